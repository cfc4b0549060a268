package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// handleStream serves the live event stream over SSE. The subscription is
// registered on open and dropped when the client goes away; anything
// published while disconnected is recovered via the today endpoint.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	sub := s.Hub.Subscribe(uid)
	defer s.Hub.Unsubscribe(sub)
	s.Log.Debug("stream opened", zap.Int64("user_id", uid))

	for {
		select {
		case <-r.Context().Done():
			s.Log.Debug("stream closed", zap.Int64("user_id", uid))
			return
		case ev := <-sub.Events():
			b, err := json.Marshal(ev)
			if err != nil {
				s.Log.Warn("encode event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
