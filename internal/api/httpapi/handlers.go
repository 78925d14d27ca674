package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/osa030/tunedeck/internal/app/filter"
	"github.com/osa030/tunedeck/internal/app/notification"
	"github.com/osa030/tunedeck/internal/app/playback"
	"github.com/osa030/tunedeck/internal/domain/playlist"
	"github.com/osa030/tunedeck/internal/domain/queue"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// StatusResponse is the body of GET /status and of every transport call.
type StatusResponse struct {
	State      string                  `json:"state"`
	Mode       string                  `json:"mode"`
	Radio      bool                    `json:"radio"`
	Track      *notification.TrackInfo `json:"track,omitempty"`
	ElapsedMs  int64                   `json:"elapsed_ms"`
	DurationMs int64                   `json:"duration_ms"`
	Position   int                     `json:"position"`
	Length     int                     `json:"length"`
}

// QueueResponse is the body of GET /queue. Tracks are listed in insertion
// order whatever the mode.
type QueueResponse struct {
	Mode     string                   `json:"mode"`
	Position int                      `json:"position"`
	Tracks   []notification.TrackInfo `json:"tracks"`
}

// ReplaceQueueRequest is the body of PUT /queue. Exactly one source is set.
type ReplaceQueueRequest struct {
	TrackIDs []string `json:"track_ids,omitempty"`
	Playlist string   `json:"playlist,omitempty"`
	Album    string   `json:"album,omitempty"`
}

// RejectedTrack is a track the filters turned away.
type RejectedTrack struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// ReplaceQueueResponse is the body returned by PUT /queue.
type ReplaceQueueResponse struct {
	Source   string          `json:"source,omitempty"`
	Queued   int             `json:"queued"`
	Rejected []RejectedTrack `json:"rejected"`
}

// PlayNextRequest is the body of POST /queue.
type PlayNextRequest struct {
	TrackID string `json:"track_id"`
}

// ModeRequest is the body of PUT /mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

func toTrackInfos(tracks []track.Track) []notification.TrackInfo {
	return lo.Map(tracks, func(t track.Track, _ int) notification.TrackInfo {
		return notification.NewTrackInfo(t)
	})
}

func (s *Server) statusResponse() StatusResponse {
	st := s.player.Status()
	resp := StatusResponse{
		State:      st.State.String(),
		Mode:       st.Mode.String(),
		Radio:      st.Radio,
		ElapsedMs:  st.Elapsed.Milliseconds(),
		DurationMs: st.Duration.Milliseconds(),
		Position:   st.Position,
		Length:     st.Length,
	}
	if st.Track != nil {
		info := notification.NewTrackInfo(*st.Track)
		resp.Track = &info
	}
	return resp
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.statusResponse())
}

func (s *Server) getQueue(w http.ResponseWriter, r *http.Request) {
	snap := s.player.Queue()
	writeJSON(w, QueueResponse{
		Mode:     snap.Mode.String(),
		Position: snap.CurrentIndex,
		Tracks:   toTrackInfos(snap.Tracks),
	})
}

func (s *Server) replaceQueue(w http.ResponseWriter, r *http.Request) {
	var req ReplaceQueueRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sources := lo.Count([]bool{len(req.TrackIDs) > 0, req.Playlist != "", req.Album != ""}, true)
	if sources != 1 {
		writeError(w, r, http.StatusBadRequest, errors.New("exactly one of track_ids, playlist or album is required"))
		return
	}

	var source string
	var tracks []track.Track
	switch {
	case req.Playlist != "", req.Album != "":
		var pl *playlist.Playlist
		var err error
		if req.Playlist != "" {
			pl, err = s.catalog.GetPlaylist(r.Context(), req.Playlist)
		} else {
			pl, err = s.catalog.GetAlbum(r.Context(), req.Album)
		}
		if err != nil {
			writeError(w, r, http.StatusBadGateway, err)
			return
		}
		source = pl.Name
		tracks = pl.Tracks
	default:
		var err error
		tracks, err = s.lookupTracks(r.Context(), req.TrackIDs)
		if err != nil {
			writeError(w, r, http.StatusBadGateway, err)
			return
		}
	}

	rejected, err := s.player.PlayTracks(r.Context(), tracks)
	resp := ReplaceQueueResponse{
		Source: source,
		Rejected: lo.Map(rejected, func(rj filter.Rejection, _ int) RejectedTrack {
			return RejectedTrack{ID: rj.Track.ID, Code: rj.Code}
		}),
	}
	if err != nil && !errors.Is(err, playback.ErrNothingAdmitted) {
		writePlayerError(w, r, err)
		return
	}
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		writeJSON(w, resp)
		return
	}

	resp.Queued = len(s.player.Queue().Tracks)
	writeJSON(w, resp)
}

func (s *Server) lookupTracks(ctx context.Context, ids []string) ([]track.Track, error) {
	tracks := make([]track.Track, 0, len(ids))
	for _, id := range ids {
		t, err := s.catalog.GetTrack(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to look up track %s", id)
		}
		tracks = append(tracks, *t)
	}
	return tracks, nil
}

func (s *Server) playNext(w http.ResponseWriter, r *http.Request) {
	var req PlayNextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TrackID == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("track_id is required"))
		return
	}

	t, err := s.catalog.GetTrack(r.Context(), req.TrackID)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err)
		return
	}
	if err := s.player.PlayNext(r.Context(), *t); err != nil {
		writePlayerError(w, r, err)
		return
	}
	writeJSON(w, s.statusResponse())
}

func (s *Server) next(w http.ResponseWriter, r *http.Request) {
	s.transport(w, r, func() error { return s.player.Next(r.Context()) })
}

func (s *Server) previous(w http.ResponseWriter, r *http.Request) {
	s.transport(w, r, func() error { return s.player.Previous(r.Context()) })
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.transport(w, r, s.player.Pause)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	s.transport(w, r, func() error { return s.player.Resume(r.Context()) })
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	s.transport(w, r, s.player.Stop)
}

func (s *Server) startRadio(w http.ResponseWriter, r *http.Request) {
	s.transport(w, r, func() error { return s.player.StartRadio(r.Context()) })
}

// transport runs op and answers with the resulting status.
func (s *Server) transport(w http.ResponseWriter, r *http.Request, op func() error) {
	if err := op(); err != nil {
		writePlayerError(w, r, err)
		return
	}
	writeJSON(w, s.statusResponse())
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, err := queue.ParseLoopMode(req.Mode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	s.player.SetMode(mode)
	writeJSON(w, s.statusResponse())
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("q is required"))
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, errors.Newf("invalid limit %q", v))
			return
		}
		limit = n
	}

	tracks, err := s.catalog.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, map[string]any{"tracks": toTrackInfos(tracks)})
}

// decodeBody decodes the JSON body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return false
	}
	return true
}
