// Package httpapi exposes the learning engine over JSON/HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-lingo/internal/learning"
	"github.com/p-n-ai/pai-lingo/internal/notify"
	"github.com/p-n-ai/pai-lingo/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ReplayedHeader is set on submission responses served from a stored result.
const ReplayedHeader = "Idempotent-Replayed"

// Config holds the handler's collaborators.
type Config struct {
	Engine *learning.Engine
	Auth   *Authenticator
	Hub    *notify.Hub // nil disables /ws/events
}

type server struct {
	engine *learning.Engine
	hub    *notify.Hub
}

// NewHandler returns the /v1 API and the event stream, wrapped with request
// ids, access logging and bearer authentication.
func NewHandler(cfg Config) http.Handler {
	s := &server{engine: cfg.Engine, hub: cfg.Hub}

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/lessons/{id}/submissions", s.submitLesson)
	api.HandleFunc("POST /v1/scenes/{id}/submissions", s.submitScene)
	api.HandleFunc("GET /v1/courses/{id}/completion", s.courseCompletion)
	api.HandleFunc("POST /v1/courses/{id}/start", s.startCourse)
	api.HandleFunc("GET /v1/scenes", s.listScenes)
	api.HandleFunc("GET /v1/scenes/{id}", s.sceneDetails)
	api.HandleFunc("GET /v1/goals/daily", s.dailyGoal)
	api.HandleFunc("GET /v1/progress", s.progress)
	api.HandleFunc("GET /v1/next", s.next)
	api.HandleFunc("POST /v1/vocabulary/{id}", s.addVocabulary)
	api.HandleFunc("POST /v1/vocabulary/{id}/reviews", s.reviewVocabulary)
	api.HandleFunc("GET /v1/vocabulary/due", s.dueVocabulary)
	api.HandleFunc("GET /v1/mistakes/{kind}", s.mistakes)
	if s.hub != nil {
		api.HandleFunc("GET /ws/events", s.events)
	}

	return withRequestID(logRequests(cfg.Auth.Middleware(api)))
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

// writeError maps engine errors to status codes. Unexpected errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *learning.ValidationError
		nf *learning.NotFoundError
		ce *learning.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error(), Field: ve.Field})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, errorBody{Error: nf.Error()})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, errorBody{Error: ce.Error()})
	case errors.Is(err, learning.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &learning.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &learning.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// learner reads the id the auth middleware stored.
func learner(r *http.Request) int64 {
	id, _ := LearnerFrom(r.Context())
	return id
}

type submissionRequest struct {
	Answers        []learning.Answer `json:"answers"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// submission builds the engine request. The Idempotency-Key header is used
// when the body carries no key.
func submission(w http.ResponseWriter, r *http.Request) (learning.Submission, error) {
	id, err := pathID(r)
	if err != nil {
		return learning.Submission{}, err
	}
	var req submissionRequest
	if err := decode(w, r, &req); err != nil {
		return learning.Submission{}, err
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}
	return learning.Submission{
		LearnerID:      learner(r),
		TargetID:       id,
		Answers:        req.Answers,
		IdempotencyKey: key,
	}, nil
}

func (s *server) submitLesson(w http.ResponseWriter, r *http.Request) {
	sub, err := submission(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.engine.SubmitLesson(r.Context(), sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) submitScene(w http.ResponseWriter, r *http.Request) {
	sub, err := submission(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.engine.SubmitScene(r.Context(), sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) courseCompletion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.engine.CourseCompletion(r.Context(), learner(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *server) startCourse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	uc, err := s.engine.StartCourse(r.Context(), learner(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uc)
}

func (s *server) listScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := s.engine.ListScenes(r.Context(), learner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scenes)
}

func (s *server) sceneDetails(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.engine.SceneDetails(r.Context(), learner(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *server) dailyGoal(w http.ResponseWriter, r *http.Request) {
	g, err := s.engine.DailyGoal(r.Context(), learner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *server) progress(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Progress(r.Context(), learner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type nextResponse struct {
	Type     string            `json:"type"`
	Activity learning.Activity `json:"activity,omitempty"`
}

func (s *server) next(w http.ResponseWriter, r *http.Request) {
	act, ok, err := s.engine.Next(r.Context(), learner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, nextResponse{Type: "none"})
		return
	}
	writeJSON(w, http.StatusOK, nextResponse{Type: string(act.Kind()), Activity: act})
}

func (s *server) addVocabulary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	card, err := s.engine.AddVocabulary(r.Context(), learner(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

type reviewRequest struct {
	Correct *bool `json:"correct"`
}

func (s *server) reviewVocabulary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reviewRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Correct == nil {
		writeError(w, r, &learning.ValidationError{Field: "correct", Reason: "is required"})
		return
	}
	card, err := s.engine.ReviewVocabulary(r.Context(), learner(r), id, *req.Correct)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *server) dueVocabulary(w http.ResponseWriter, r *http.Request) {
	cards, err := s.engine.DueVocabulary(r.Context(), learner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *server) mistakes(w http.ResponseWriter, r *http.Request) {
	kind, err := store.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, r, &learning.ValidationError{Field: "kind", Reason: "must be lesson or scene"})
		return
	}
	items, err := s.engine.Mistakes(r.Context(), learner(r), kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "items": items})
}

func (s *server) events(w http.ResponseWriter, r *http.Request) {
	s.hub.Serve(w, r, learner(r))
}
