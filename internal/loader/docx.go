package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/hyperjump/smartdoc/internal/models"
)

// docxDocumentXMLPath is the default path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// oleMagic starts every legacy compound-file .doc.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

var (
	// wpTag matches one paragraph, with or without attributes. <w:pPr> and friends do not match.
	wpTag = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	// wtTag matches <w:t>text</w:t> or <w:t xml:space="preserve">text</w:t>.
	wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

	partNameRe  = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
)

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mainDocumentPath finds the main document part from [Content_Types].xml,
// falling back to word/document.xml.
func mainDocumentPath(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			break
		}
		for _, re := range []*regexp.Regexp{partNameRe, partNameRe2} {
			if m := re.FindSubmatch(data); len(m) > 1 {
				return strings.TrimPrefix(string(m[1]), "/")
			}
		}
		break
	}
	return docxDocumentXMLPath
}

// docxText returns the body text with one line per paragraph and paragraphs
// separated by blank lines, so the chunker can split on paragraph boundaries.
func docxText(content []byte) (string, error) {
	if bytes.HasPrefix(content, oleMagic) {
		return "", fmt.Errorf("legacy Word 97-2003 binary documents cannot be read; save the file as .docx")
	}
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	docPath := mainDocumentPath(zr)
	var docXML []byte
	for _, f := range zr.File {
		if f.Name == docPath {
			if docXML, err = readZipFile(f); err != nil {
				return "", fmt.Errorf("extract DOCX: read %s: %w", f.Name, err)
			}
			break
		}
	}
	if docXML == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", docPath)
	}

	var paragraphs []string
	for _, p := range wpTag.FindAll(docXML, -1) {
		var b strings.Builder
		for _, run := range wtTag.FindAllSubmatch(p, -1) {
			b.Write(run[1])
		}
		if text := strings.TrimSpace(html.UnescapeString(b.String())); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func (l *Loader) loadDOCX(_ context.Context, content []byte, source string) ([]*models.Record, error) {
	text, err := docxText(content)
	if err != nil {
		return nil, err
	}
	return []*models.Record{{Text: text, Source: source}}, nil
}
