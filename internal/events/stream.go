package events

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// StreamWriter renders events as `data: <json>\n\n` SSE frames (§6.2). No
// third-party SSE library appears anywhere in the retrieved corpus, so this
// stays on net/http's ResponseWriter/Flusher pair.
type StreamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewStreamWriter sets the SSE response headers and returns a StreamWriter.
// It returns an error if w does not support flushing.
func NewStreamWriter(w http.ResponseWriter) (*StreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("events: response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &StreamWriter{w: w, flusher: flusher}, nil
}

// Write encodes event as one SSE frame and flushes it immediately.
func (s *StreamWriter) Write(event mdflow.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Pump drains events from ch, writing each as an SSE frame until ch closes
// or a write fails. Used to bridge a ChanSink into an http.Handler.
func (s *StreamWriter) Pump(ch <-chan mdflow.Event) error {
	for event := range ch {
		if err := s.Write(event); err != nil {
			return err
		}
	}
	return nil
}
