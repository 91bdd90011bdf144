package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/smartdoc/internal/app"
	"github.com/hyperjump/smartdoc/internal/config"
	"github.com/hyperjump/smartdoc/internal/llm"
	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/rag"
)

// scriptedModel answers by prompt kind so call order does not matter.
func scriptedModel() *llm.MockClient {
	return &llm.MockClient{Respond: func(messages []llm.Message) string {
		sys := messages[0].Content
		switch {
		case strings.HasPrefix(sys, "Suggest exactly"):
			return "Here are some questions:\n- What is X?\n- How does Y work?"
		case strings.HasPrefix(sys, "Given the conversation"):
			return "What color is the sky?"
		case strings.Contains(sys, "The sky is blue."):
			return "The sky is blue."
		default:
			return rag.Fallback
		}
	}}
}

func newTestServer(t *testing.T) (*httptest.Server, *app.App) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Embedding.Provider = config.ProviderHash
	cfg.Storage.UploadDir = filepath.Join(dir, "data")
	cfg.Storage.IndexDir = filepath.Join(dir, "indexes")
	config.ApplyDefaults(cfg)

	a, err := app.New(cfg, app.WithLLM(scriptedModel()))
	if err != nil {
		t.Fatal(err)
	}
	sess, err := a.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(NewServer(a, sess, nil).Handler())
	t.Cleanup(func() {
		ts.Close()
		sess.Close()
		a.Close()
	})
	return ts, a
}

func upload(t *testing.T, ts *httptest.Server, name, content, query string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", name)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, content)
	mw.Close()
	resp, err := http.Post(ts.URL+"/api/v1/documents"+query, mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func postJSON(t *testing.T, url string, v interface{}) *http.Response {
	t.Helper()
	data, _ := json.Marshal(v)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func readEvents(t *testing.T, resp *http.Response) []Event {
	t.Helper()
	defer resp.Body.Close()
	var events []Event
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]string
	decode(t, resp, &out)
	if resp.StatusCode != http.StatusOK || out["status"] != "ok" {
		t.Errorf("health = %d %v", resp.StatusCode, out)
	}
}

func TestChat_beforeUpload(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/v1/chat", models.AskRequest{Question: "hello?"})
	var out map[string]string
	decode(t, resp, &out)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	if !strings.Contains(out["error"], "upload a document first") {
		t.Errorf("error = %q", out["error"])
	}
}

func TestChat_emptyQuestion(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/v1/chat", models.AskRequest{Question: "   "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUpload_unsupported(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := upload(t, ts, "table.csv", "a,b\n1,2", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", resp.StatusCode)
	}
}

func TestUpload_noFiles(t *testing.T) {
	ts, _ := newTestServer(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("reindex", "true")
	mw.Close()
	resp, err := http.Post(ts.URL+"/api/v1/documents", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadAndChat(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := upload(t, ts, "sky.txt", "The sky is blue.", "")
	var up uploadResponse
	decode(t, resp, &up)
	if resp.StatusCode != http.StatusCreated || !up.Built || up.Chunks == 0 || up.Files[0] != "sky.txt" {
		t.Fatalf("upload = %d %+v", resp.StatusCode, up)
	}

	resp = upload(t, ts, "sky.txt", "The sky is blue.", "")
	var again uploadResponse
	decode(t, resp, &again)
	if again.Built || again.Key != up.Key {
		t.Errorf("re-upload = %+v, want reuse of %s", again, up.Key)
	}

	resp = upload(t, ts, "sky.txt", "The sky is blue.", "?reindex=true")
	var forced uploadResponse
	decode(t, resp, &forced)
	if !forced.Built {
		t.Errorf("reindex upload did not rebuild: %+v", forced)
	}

	resp = postJSON(t, ts.URL+"/api/v1/chat", models.AskRequest{Question: "What color is the sky?"})
	var ans models.Answer
	decode(t, resp, &ans)
	if resp.StatusCode != http.StatusOK || ans.Text != "The sky is blue." {
		t.Fatalf("chat = %d %+v", resp.StatusCode, ans)
	}
	if len(ans.Sources) == 0 || ans.Sources[0].Source != "sky.txt" {
		t.Errorf("sources = %+v", ans.Sources)
	}

	resp = postJSON(t, ts.URL+"/api/v1/chat", models.AskRequest{Question: "And what about it?", Stream: true})
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	events := readEvents(t, resp)
	if len(events) < 3 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Type != EventSources || events[0].Query != "What color is the sky?" {
		t.Errorf("first event = %+v", events[0])
	}
	var text strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		if ev.Type != EventContent {
			t.Errorf("unexpected event %+v", ev)
		}
		text.WriteString(ev.Content)
	}
	if text.String() != "The sky is blue." {
		t.Errorf("streamed = %q", text.String())
	}
	if last := events[len(events)-1]; last.Type != EventDone {
		t.Errorf("last event = %+v", last)
	}

	resp = postJSON(t, ts.URL+"/api/v1/followups", nil)
	var fu struct {
		Suggestions []string `json:"suggestions"`
	}
	decode(t, resp, &fu)
	if len(fu.Suggestions) != 2 || fu.Suggestions[0] != "What is X?" || fu.Suggestions[1] != "How does Y work?" {
		t.Errorf("suggestions = %v", fu.Suggestions)
	}

	resp, err := http.Get(ts.URL + "/api/v1/session")
	if err != nil {
		t.Fatal(err)
	}
	var sess sessionResponse
	decode(t, resp, &sess)
	if sess.Document == nil || sess.Document.Key != forced.Key || len(sess.Turns) != 4 {
		t.Errorf("session = %+v", sess)
	}
	if got := sess.Turns[3].Suggestions; len(got) != 2 {
		t.Errorf("last turn suggestions = %v", got)
	}
}

func TestUpload_sameDocumentKeepsConversation(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := upload(t, ts, "sky.txt", "The sky is blue.", "")
	var up uploadResponse
	decode(t, resp, &up)

	resp = postJSON(t, ts.URL+"/api/v1/chat", models.AskRequest{Question: "What color is the sky?"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat = %d", resp.StatusCode)
	}

	resp = upload(t, ts, "sky.txt", "The sky is blue.", "")
	var again uploadResponse
	decode(t, resp, &again)
	if resp.StatusCode != http.StatusCreated || again.Key != up.Key || again.Chunks != up.Chunks {
		t.Fatalf("re-upload = %d %+v", resp.StatusCode, again)
	}

	resp, err := http.Get(ts.URL + "/api/v1/session")
	if err != nil {
		t.Fatal(err)
	}
	var sess sessionResponse
	decode(t, resp, &sess)
	if len(sess.Turns) != 2 {
		t.Errorf("re-upload cleared the conversation: %+v", sess.Turns)
	}
}

func TestTools(t *testing.T) {
	ts, _ := newTestServer(t)
	upload(t, ts, "sky.txt", "The sky is blue.", "").Body.Close()

	resp := postJSON(t, ts.URL+"/api/v1/tools/summary", nil)
	var ans models.Answer
	decode(t, resp, &ans)
	if resp.StatusCode != http.StatusOK || ans.Text == "" {
		t.Errorf("summary = %d %+v", resp.StatusCode, ans)
	}

	resp = postJSON(t, ts.URL+"/api/v1/tools/quiz?stream=true", nil)
	events := readEvents(t, resp)
	if len(events) == 0 || events[len(events)-1].Type != EventDone {
		t.Errorf("quiz events = %+v", events)
	}

	resp = postJSON(t, ts.URL+"/api/v1/tools/poem", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown tool status = %d", resp.StatusCode)
	}
}

func TestSessionClearAndExport(t *testing.T) {
	ts, _ := newTestServer(t)
	upload(t, ts, "sky.txt", "The sky is blue.", "").Body.Close()
	postJSON(t, ts.URL+"/api/v1/chat", models.AskRequest{Question: "What color is the sky?"}).Body.Close()

	resp, err := http.Get(ts.URL + "/api/v1/export")
	if err != nil {
		t.Fatal(err)
	}
	pdf, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "application/pdf" || !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("export = %s, %d bytes", resp.Header.Get("Content-Type"), len(pdf))
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "SmartDoc_Chat.pdf") {
		t.Errorf("content disposition = %q", cd)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/session", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/v1/session")
	if err != nil {
		t.Fatal(err)
	}
	var sess sessionResponse
	decode(t, resp, &sess)
	if len(sess.Turns) != 0 || sess.Document == nil {
		t.Errorf("after clear = %+v", sess)
	}
}

func TestIndexes(t *testing.T) {
	ts, a := newTestServer(t)
	resp := upload(t, ts, "sky.txt", "The sky is blue.", "")
	var first uploadResponse
	decode(t, resp, &first)
	resp = upload(t, ts, "grass.txt", "Grass is green.", "")
	var second uploadResponse
	decode(t, resp, &second)

	resp, err := http.Get(ts.URL + "/api/v1/indexes")
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Indexes []struct {
			Key string `json:"key"`
		} `json:"indexes"`
	}
	decode(t, resp, &list)
	if len(list.Indexes) != 2 {
		t.Fatalf("indexes = %+v", list.Indexes)
	}

	del := func(key string) int {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/indexes/"+key, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if code := del(second.Key); code != http.StatusConflict {
		t.Errorf("delete attached = %d, want 409", code)
	}
	if code := del(first.Key); code != http.StatusOK {
		t.Errorf("delete = %d, want 200", code)
	}
	if a.Store.Exists(first.Key) {
		t.Error("index still on disk")
	}
	if code := del(first.Key); code != http.StatusNotFound {
		t.Errorf("delete missing = %d, want 404", code)
	}

	resp, err = http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	var st models.Status
	decode(t, resp, &st)
	if st.Indexes != 1 || !st.ChatEnabled {
		t.Errorf("status = %+v", st)
	}
}
