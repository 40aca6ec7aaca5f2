package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/justestif/spotify-listen-sync/internal/auth"
	"github.com/justestif/spotify-listen-sync/internal/db"
	"github.com/justestif/spotify-listen-sync/internal/moods"
	"github.com/justestif/spotify-listen-sync/internal/skip"
	"github.com/justestif/spotify-listen-sync/internal/spotify"
	"github.com/justestif/spotify-listen-sync/internal/sync"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxMoodGroups   = 12
)

// HandlersConfig holds handler dependencies.
type HandlersConfig struct {
	Store    db.Store
	Syncer   Syncer
	Detector *skip.Detector
	Validate *validator.Validate
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	store    db.Store
	syncer   Syncer
	detector *skip.Detector
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg HandlersConfig) *Handlers {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Handlers{
		store:    cfg.Store,
		syncer:   cfg.Syncer,
		detector: cfg.Detector,
		validate: cfg.Validate,
		logger:   cfg.Logger,
		now:      now,
	}
}

// Health reports liveness (GET /health).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Sync runs one sync job and returns its summary (POST /sync).
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	mode, err := sync.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.syncer.Run(r.Context(), mode)
	if err != nil {
		if summary == nil {
			writeError(w, syncStatus(err), err.Error())
			return
		}
		writeJSON(w, syncStatus(err), summary)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// syncStatus maps a failed run to a response status.
func syncStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrCredentialUnavailable), errors.Is(err, auth.ErrRefreshFailed):
		return http.StatusUnauthorized
	case errors.Is(err, spotify.ErrFetchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Checkpoint returns the latest completed checkpoint (GET /checkpoint).
func (h *Handlers) Checkpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := h.syncer.LastCheckpoint(r.Context())
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no completed sync yet")
		return
	}
	if err != nil {
		h.internalError(w, err, "loading checkpoint")
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// Stats returns tagging progress (GET /stats).
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Plays().Stats(r.Context())
	if err != nil {
		h.internalError(w, err, "loading stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RecentTracks lists the most recently stored tracks (GET /tracks/recent).
func (h *Handlers) RecentTracks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tracks, err := h.store.Tracks().Recent(r.Context(), limit)
	if err != nil {
		h.internalError(w, err, "loading recent tracks")
		return
	}

	resp := make([]trackResponse, len(tracks))
	for i := range tracks {
		resp[i] = newTrackResponse(&tracks[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// UntaggedPlays pages through plays missing a tag (GET /plays/untagged).
func (h *Handlers) UntaggedPlays(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0, 0, -1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plays, total, err := h.store.Plays().Untagged(r.Context(), limit, offset)
	if err != nil {
		h.internalError(w, err, "loading untagged plays")
		return
	}

	resp := untaggedResponse{
		Plays:  make([]playResponse, len(plays)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for i := range plays {
		resp.Plays[i] = newPlayResponse(&plays[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// SkipVerdict classifies one play (GET /plays/{id}/skip).
func (h *Handlers) SkipVerdict(w http.ResponseWriter, r *http.Request) {
	play, track, ok := h.loadPlay(w, r)
	if !ok {
		return
	}

	result, err := h.detector.WasSkipped(r.Context(), play, track.DurationMs)
	if err != nil {
		h.internalError(w, err, "classifying play")
		return
	}

	writeJSON(w, http.StatusOK, skipResponse{
		PlayID:  play.ID,
		TrackID: play.TrackID,
		Verdict: result.Verdict,
		Reason:  result.Reason,
	})
}

// SaveTags stores the user's labels for one play together with its skip
// verdict (PUT /plays/{id}/tags).
func (h *Handlers) SaveTags(w http.ResponseWriter, r *http.Request) {
	var tags db.Tags
	if err := json.NewDecoder(r.Body).Decode(&tags); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(tags); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return
	}

	play, track, ok := h.loadPlay(w, r)
	if !ok {
		return
	}

	result, err := h.detector.WasSkipped(r.Context(), play, track.DurationMs)
	if err != nil {
		h.internalError(w, err, "classifying play")
		return
	}

	if err := h.store.Plays().SaveTags(r.Context(), play.ID, tags, result.Verdict.Bool(), h.now().UTC()); err != nil {
		h.internalError(w, err, "saving tags")
		return
	}

	h.logger.Debug().Int64("play_id", play.ID).Str("verdict", string(result.Verdict)).Msg("play tagged")
	writeJSON(w, http.StatusOK, skipResponse{
		PlayID:  play.ID,
		TrackID: play.TrackID,
		Verdict: result.Verdict,
		Reason:  result.Reason,
	})
}

// Moods groups enriched tracks by audio features (GET /moods).
func (h *Handlers) Moods(w http.ResponseWriter, r *http.Request) {
	cfg := moods.DefaultConfig()
	k, err := queryInt(r, "k", cfg.K, 1, maxMoodGroups)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg.K = k

	tracks, err := h.store.Tracks().WithAudioFeatures(r.Context())
	if err != nil {
		h.internalError(w, err, "loading tracks")
		return
	}

	groups, ungrouped, err := moods.Group(tracks, cfg)
	if err != nil {
		h.internalError(w, err, "grouping tracks")
		return
	}

	resp := moodsResponse{
		Groups:    make([]moodGroupResponse, len(groups)),
		Ungrouped: len(ungrouped),
	}
	for i, g := range groups {
		mg := moodGroupResponse{MoodGroup: g, Tracks: make([]trackResponse, len(g.Tracks))}
		for j := range g.Tracks {
			mg.Tracks[j] = newTrackResponse(&g.Tracks[j])
		}
		resp.Groups[i] = mg
	}
	writeJSON(w, http.StatusOK, resp)
}

// loadPlay resolves the {id} URL parameter to a play and its track,
// writing the error response itself when it fails.
func (h *Handlers) loadPlay(w http.ResponseWriter, r *http.Request) (*db.Play, *db.Track, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid play id")
		return nil, nil, false
	}

	play, err := h.store.Plays().Get(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "play not found")
		return nil, nil, false
	}
	if err != nil {
		h.internalError(w, err, "loading play")
		return nil, nil, false
	}

	track, err := h.store.Tracks().Get(r.Context(), play.TrackID)
	if err != nil {
		h.internalError(w, err, "loading track")
		return nil, nil, false
	}

	return play, track, true
}

func (h *Handlers) internalError(w http.ResponseWriter, err error, action string) {
	h.logger.Error().Err(err).Msg(action)
	writeError(w, http.StatusInternalServerError, action+" failed")
}

// queryInt parses an optional integer query parameter. A negative hi means
// no upper bound.
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi >= 0 && n > hi) {
		return 0, &queryError{name: name, value: raw}
	}
	return n, nil
}

type queryError struct {
	name  string
	value string
}

func (e *queryError) Error() string {
	return "invalid " + e.name + " parameter: " + strconv.Quote(e.value)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return "field " + fe.Field() + " failed " + fe.Tag() + " validation"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
