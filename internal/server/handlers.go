package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/export"
	"github.com/hyperjump/smartdoc/internal/llm"
	"github.com/hyperjump/smartdoc/internal/loader"
	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/ocr"
	"github.com/hyperjump/smartdoc/internal/rag"
	"github.com/hyperjump/smartdoc/internal/session"
	"github.com/hyperjump/smartdoc/internal/store"
)

// uploadMemory is how much of a multipart body is held in memory before spilling to disk.
const uploadMemory = 8 << 20

type uploadResponse struct {
	Key    string   `json:"key"`
	Files  []string `json:"files"`
	Built  bool     `json:"built"`
	Chunks int      `json:"chunks"`
}

type documentInfo struct {
	Key    string   `json:"key"`
	Files  []string `json:"files"`
	Chunks int      `json:"chunks"`
}

type sessionResponse struct {
	ID       string            `json:"id"`
	Created  time.Time         `json:"created"`
	Document *documentInfo     `json:"document"`
	Turns    []models.ChatTurn `json:"turns"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.config.MaxUploadMB)<<20)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "no files in upload (use form field \"files\")")
		return
	}
	reindex, _ := strconv.ParseBool(r.FormValue("reindex"))
	s.logger.Debug("upload request", zap.Int("files", len(headers)), zap.Bool("reindex", reindex))

	paths := make([]string, 0, len(headers))
	for _, fh := range headers {
		path, err := s.saveUpload(fh)
		if err != nil {
			s.respondFailure(w, "upload failed", err)
			return
		}
		paths = append(paths, path)
	}

	doc, built, err := s.attach(r.Context(), paths, reindex)
	if err != nil {
		s.respondFailure(w, "indexing failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, uploadResponse{
		Key:    doc.Key,
		Files:  doc.Files,
		Built:  built,
		Chunks: doc.Index.Count(),
	})
}

func (s *Server) saveUpload(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return s.app.SaveUpload(fh.Filename, f)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("chat request", zap.String("question", req.Question), zap.Bool("stream", req.Stream))

	if !req.Stream {
		ans, err := s.session.Ask(r.Context(), req.Question)
		if err != nil {
			s.respondFailure(w, "chat failed", err)
			return
		}
		s.respondJSON(w, http.StatusOK, ans)
		return
	}
	st, err := s.session.AskStream(r.Context(), req.Question)
	if err != nil {
		s.respondFailure(w, "chat failed", err)
		return
	}
	s.streamAnswer(w, st)
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	tool, err := rag.ParseTool(chi.URLParam(r, "tool"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	stream, _ := strconv.ParseBool(r.URL.Query().Get("stream"))
	s.logger.Debug("tool request", zap.String("tool", string(tool)), zap.Bool("stream", stream))

	if !stream {
		ans, err := s.session.RunTool(r.Context(), tool)
		if err != nil {
			s.respondFailure(w, "tool failed", err)
			return
		}
		s.respondJSON(w, http.StatusOK, ans)
		return
	}
	st, err := s.session.RunToolStream(r.Context(), tool)
	if err != nil {
		s.respondFailure(w, "tool failed", err)
		return
	}
	s.streamAnswer(w, st)
}

func (s *Server) handleFollowUps(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.session.FollowUps(r.Context())
	if err != nil {
		s.respondFailure(w, "follow-ups failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{
		ID:      s.session.ID(),
		Created: s.session.Created(),
		Turns:   s.session.Turns(),
	}
	if doc := s.session.Document(); doc != nil {
		resp.Document = &documentInfo{Key: doc.Key, Files: doc.Files, Chunks: doc.Index.Count()}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	s.session.Clear()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	cfg := s.app.Config.Export
	var buf bytes.Buffer
	if err := export.WritePDF(&buf, s.session.Turns(), export.Options{Title: cfg.Title, Compress: true}); err != nil {
		s.logger.Error("export failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", cfg.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleListIndexes(w http.ResponseWriter, r *http.Request) {
	manifests, err := s.app.Store.List()
	if err != nil {
		s.respondFailure(w, "list indexes failed", err)
		return
	}
	if manifests == nil {
		manifests = []*store.Manifest{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"indexes": manifests})
}

func (s *Server) handleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if doc := s.session.Document(); doc != nil && doc.Key == key {
		s.respondError(w, http.StatusConflict, "index is attached to the session; upload another document first")
		return
	}
	s.logger.Debug("delete index request", zap.String("key", key))
	if err := s.app.Store.Delete(r.Context(), key); err != nil {
		s.respondFailure(w, "delete index failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"key": key, "status": "deleted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Status()
	if err != nil {
		s.respondFailure(w, "status failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var apiErr *llm.APIError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, session.ErrNoDocument):
		return http.StatusConflict
	case errors.Is(err, session.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, loader.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, store.ErrIndexNotFound), errors.Is(err, rag.ErrUnknownTool):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ocr.ErrTesseractNotFound), errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, what string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(what, zap.Error(err))
	} else {
		s.logger.Debug(what, zap.Error(err))
	}
	s.respondError(w, code, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
