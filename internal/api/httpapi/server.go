// Package httpapi exposes the player over a JSON control API.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/app/filter"
	"github.com/osa030/tunedeck/internal/app/notification"
	"github.com/osa030/tunedeck/internal/app/playback"
	"github.com/osa030/tunedeck/internal/domain/playlist"
	"github.com/osa030/tunedeck/internal/domain/queue"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// TokenHeader carries the API token when one is configured.
const TokenHeader = "X-Tunedeck-Token"

// Player is the playback surface driven by the API.
type Player interface {
	PlayTracks(ctx context.Context, tracks []track.Track) ([]filter.Rejection, error)
	PlayNext(ctx context.Context, t track.Track) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Pause() error
	Resume(ctx context.Context) error
	Stop() error
	SetMode(mode queue.LoopMode)
	StartRadio(ctx context.Context) error
	Status() playback.Status
	Queue() queue.Snapshot
}

// Catalog looks tracks up.
type Catalog interface {
	GetTrack(ctx context.Context, trackID string) (*track.Track, error)
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
	GetPlaylist(ctx context.Context, playlistURL string) (*playlist.Playlist, error)
	GetAlbum(ctx context.Context, albumURL string) (*playlist.Playlist, error)
}

// Notifier hands out notification subscriptions.
type Notifier interface {
	Subscribe(stream notification.Stream) string
	Unsubscribe(subscriptionID string)
}

// Server serves the control API.
type Server struct {
	player   Player
	catalog  Catalog
	notifier Notifier
	token    string
}

// New creates a server. An empty token disables authentication.
func New(player Player, catalog Catalog, notifier Notifier, token string) *Server {
	return &Server{
		player:   player,
		catalog:  catalog,
		notifier: notifier,
		token:    token,
	}
}

// Handler returns the router with every route mounted under /api/v1.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Group(func(r chi.Router) {
			r.Use(jsonCtx)
			r.Get("/status", s.getStatus)
			r.Route("/queue", func(r chi.Router) {
				r.Get("/", s.getQueue)
				r.Put("/", s.replaceQueue)
				r.Post("/", s.playNext)
			})
			r.Post("/next", s.next)
			r.Post("/previous", s.previous)
			r.Post("/pause", s.pause)
			r.Post("/resume", s.resume)
			r.Post("/stop", s.stop)
			r.Put("/mode", s.setMode)
			r.Post("/radio", s.startRadio)
			r.Get("/search", s.search)
		})
		r.Get("/events", s.events)
	})

	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := r.Header.Get(TokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeError(w, r, http.StatusUnauthorized, errors.New("invalid or missing token"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func jsonCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zlog.Debug().Msgf("http: %s %s status=%d bytes=%d duration=%v request_id=%s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError writes err with the given status.
func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		zlog.Error().Msgf("http: error serving %s %s: %v", r.Method, r.URL.Path, err)
	} else {
		zlog.Debug().Msgf("http: rejected %s %s: %v", r.Method, r.URL.Path, err)
	}

	resp := errorResponse{Error: err.Error()}
	var rejected *playback.RejectedError
	if errors.As(err, &rejected) {
		resp.Code = rejected.Code
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writePlayerError maps a player error to a status code.
func writePlayerError(w http.ResponseWriter, r *http.Request, err error) {
	var rejected *playback.RejectedError
	switch {
	case errors.As(err, &rejected), errors.Is(err, playback.ErrNothingAdmitted):
		writeError(w, r, http.StatusUnprocessableEntity, err)
	case errors.Is(err, playback.ErrQueueEmpty),
		errors.Is(err, playback.ErrNoMoreTracks),
		errors.Is(err, playback.ErrNotPlaying),
		errors.Is(err, playback.ErrNotPaused):
		writeError(w, r, http.StatusConflict, err)
	case errors.Is(err, playback.ErrNoStation):
		writeError(w, r, http.StatusNotImplemented, err)
	case errors.Is(err, playback.ErrClosed):
		writeError(w, r, http.StatusServiceUnavailable, err)
	default:
		writeError(w, r, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Msgf("http: failed to encode response: %v", err)
	}
}
