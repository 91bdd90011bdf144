package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/session"
)

// Event types sent on a chat stream.
const (
	EventSources = "sources"
	EventContent = "content"
	EventDone    = "done"
	EventError   = "error"
)

// Event is one server-sent event payload.
type Event struct {
	Type    string          `json:"type"`
	Content string          `json:"content,omitempty"`
	Query   string          `json:"query,omitempty"`
	Sources []*models.Chunk `json:"sources,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// streamAnswer relays st as server-sent events: sources first, then content
// fragments, then done or error. It drains st even after the client leaves.
func (s *Server) streamAnswer(w http.ResponseWriter, st *session.Stream) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	alive := true
	send := func(ev Event) {
		if !alive {
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("failed to encode event", zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			alive = false
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	send(Event{Type: EventSources, Query: st.Query, Sources: st.Sources})
	for text := range st.Fragments {
		send(Event{Type: EventContent, Content: text})
	}
	if _, err := st.Wait(); err != nil {
		s.logger.Warn("stream failed", zap.Error(err))
		send(Event{Type: EventError, Error: err.Error()})
		return
	}
	send(Event{Type: EventDone})
}
