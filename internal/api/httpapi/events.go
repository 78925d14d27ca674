package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/app/notification"
)

var errStreamClosed = errors.New("event stream closed")

// eventStream adapts an HTTP response to notification.Stream.
type eventStream struct {
	ctx context.Context
	ch  chan *notification.Notification
}

func (s *eventStream) Send(n *notification.Notification) error {
	select {
	case s.ch <- n:
		return nil
	case <-s.ctx.Done():
		return errStreamClosed
	}
}

// events streams notifications as newline-delimited JSON until the client
// goes away.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	stream := &eventStream{ctx: r.Context(), ch: make(chan *notification.Notification, 16)}
	id := s.notifier.Subscribe(stream)
	defer s.notifier.Unsubscribe(id)
	zlog.Info().Msgf("http: event subscriber %s connected", id)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			zlog.Info().Msgf("http: event subscriber %s disconnected", id)
			return
		case n := <-stream.ch:
			if err := enc.Encode(n); err != nil {
				zlog.Warn().Msgf("http: failed to write event to %s: %v", id, err)
				return
			}
			flusher.Flush()
		}
	}
}
