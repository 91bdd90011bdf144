// Package server provides the HTTP API for SmartDoc.
package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/app"
	"github.com/hyperjump/smartdoc/internal/config"
	"github.com/hyperjump/smartdoc/internal/session"
)

// requestTimeout bounds the non-streaming routes. Uploads and chat stream
// for as long as indexing or the model takes.
const requestTimeout = 60 * time.Second

// Server is the HTTP server for the SmartDoc API. It serves one session.
type Server struct {
	app     *app.App
	session *session.Session
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server answering through sess.
func NewServer(a *app.App, sess *session.Session, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		app:     a,
		session: sess,
		config:  &a.Config.Server,
		logger:  logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/v1/documents", s.handleUpload)
	r.Post("/api/v1/chat", s.handleChat)
	r.Post("/api/v1/tools/{tool}", s.handleTool)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.Compress(5))

		r.Post("/api/v1/followups", s.handleFollowUps)
		r.Get("/api/v1/session", s.handleGetSession)
		r.Delete("/api/v1/session", s.handleClearSession)
		r.Get("/api/v1/export", s.handleExport)
		r.Get("/api/v1/indexes", s.handleListIndexes)
		r.Delete("/api/v1/indexes/{key}", s.handleDeleteIndex)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Attach indexes paths and makes them the session's document. A document
// that is already attached is left alone unless reindex is set, and a forced
// reindex starts a fresh conversation.
func (s *Server) Attach(ctx context.Context, paths []string, reindex bool) (*session.Document, error) {
	doc, _, err := s.attach(ctx, paths, reindex)
	return doc, err
}

// AttachDropped handles a file the upload watcher saw. Files that belong to
// the attached document are ignored so a multi-file upload is not replaced
// by its parts.
func (s *Server) AttachDropped(ctx context.Context, path string) (*session.Document, error) {
	if doc := s.session.Document(); doc != nil && slices.Contains(doc.Files, filepath.Base(path)) {
		s.logger.Debug("dropped file already attached", zap.String("path", path), zap.String("key", doc.Key))
		return doc, nil
	}
	return s.Attach(ctx, []string{path}, false)
}

// attach reports whether the index was built by this call.
func (s *Server) attach(ctx context.Context, paths []string, reindex bool) (*session.Document, bool, error) {
	if !reindex {
		key, err := s.app.Indexer.Key(paths)
		if err != nil {
			return nil, false, err
		}
		if doc := s.session.Document(); doc != nil && doc.Key == key {
			return doc, false, nil
		}
	}
	doc, res, err := s.app.OpenDocuments(ctx, paths, reindex)
	if err != nil {
		return nil, false, err
	}
	if err := s.session.Attach(doc); err != nil {
		doc.Index.Close()
		return nil, false, err
	}
	if reindex {
		s.session.Clear()
	}
	return doc, res.Built, nil
}
