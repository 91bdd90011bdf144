// Package fileid derives stable index keys from uploaded files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// keyLen is the number of hex characters kept from a digest.
const keyLen = 32

// FileDigest returns the hex SHA-256 of the file contents at path.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentKey returns a key determined by the bytes of the given files only.
// Names, paths and argument order do not affect it; identical uploads map to the same key.
func ContentKey(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("no files to key")
	}
	digests := make([]string, 0, len(paths))
	for _, p := range paths {
		d, err := FileDigest(p)
		if err != nil {
			return "", err
		}
		digests = append(digests, d)
	}
	return BytesKey(digests...), nil
}

// BytesKey combines digests into a single key. Order does not matter.
func BytesKey(digests ...string) string {
	sorted := append([]string(nil), digests...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])[:keyLen]
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// NameKey returns a key derived from the file names, e.g. "report.pdf" -> "report_pdf".
// Replacing a file with different content under the same name keeps the old index
// unless a rebuild is forced.
func NameKey(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("no files to key")
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		base := filepath.Base(filepath.Clean(p))
		base = strings.ReplaceAll(base, ".", "_")
		base = unsafeChars.ReplaceAllString(base, "_")
		names = append(names, strings.Trim(base, "_"))
	}
	sort.Strings(names)
	key := strings.Join(names, "+")
	if key == "" {
		return "", fmt.Errorf("file names yield an empty key")
	}
	return key, nil
}
