package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/brianjohn-park/livetranslate/auth"
	"github.com/brianjohn-park/livetranslate/db"
)

// Store is the slice of db.Queries the handlers need.
type Store interface {
	CreateUser(ctx context.Context, arg db.CreateUserParams) (db.User, error)
	GetUserByEmail(ctx context.Context, email string) (db.User, error)
	FinalizeSession(ctx context.Context, session db.CreateSessionParams, utterances []db.InsertUtteranceParams) (db.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (db.Session, error)
	ListSessionsByUser(ctx context.Context, userID uuid.UUID) ([]db.Session, error)
	DeleteSession(ctx context.Context, arg db.DeleteSessionParams) (int64, error)
	GetUtterancesForSession(ctx context.Context, sessionID uuid.UUID) ([]db.Utterance, error)
}

type Handler struct {
	store  Store
	auth   *auth.Service
	logger *log.Logger
}

func NewHandler(store Store, authService *auth.Service, logger *log.Logger) *Handler {
	return &Handler{
		store:  store,
		auth:   authService,
		logger: logger,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/signup", h.handleSignup)
	r.Post("/api/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Get("/api/sessions", h.handleListSessions)
		r.Post("/api/sessions/finalize", h.handleFinalize)
		r.Get("/api/sessions/{id}", h.handleGetSession)
		r.Delete("/api/sessions/{id}", h.handleDeleteSession)
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user, err := h.store.CreateUser(r.Context(), db.CreateUserParams{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if isUniqueViolation(err) {
			respondError(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("create user", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	token, err := h.auth.IssueToken(user.ID)
	if err != nil {
		h.logger.Error("issue token", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusCreated, tokenResponse{
		Token:  token,
		UserID: user.ID.String(),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("get user", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.auth.IssueToken(user.ID)
	if err != nil {
		h.logger.Error("issue token", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, tokenResponse{
		Token:  token,
		UserID: user.ID.String(),
	})
}

type utterancePayload struct {
	Speaker    string  `json:"speaker"`
	Original   string  `json:"original"`
	Translated string  `json:"translated"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

type finalizeRequest struct {
	Title           string             `json:"title"`
	SourceLang      string             `json:"source_lang"`
	TargetLang      string             `json:"target_lang"`
	StartedAt       time.Time          `json:"started_at"`
	DurationSeconds float64            `json:"duration_seconds"`
	Utterances      []utterancePayload `json:"utterances"`
}

type sessionView struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	SourceLang      string    `json:"source_lang"`
	TargetLang      string    `json:"target_lang"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	SpeakerCount    int32     `json:"speaker_count"`
	AvgConfidence   float64   `json:"avg_confidence"`
}

type sessionDetailView struct {
	sessionView
	Utterances []utterancePayload `json:"utterances"`
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.SourceLang == "" || req.TargetLang == "" {
		respondError(w, http.StatusBadRequest, "source_lang and target_lang are required")
		return
	}

	startedAt := req.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	speakerCount, avgConfidence := aggregate(req.Utterances)

	sessionID := uuid.New()
	utterances := make([]db.InsertUtteranceParams, 0, len(req.Utterances))
	for i, u := range req.Utterances {
		utterances = append(utterances, db.InsertUtteranceParams{
			ID:             uuid.New(),
			SessionID:      sessionID,
			Position:       int32(i),
			Speaker:        u.Speaker,
			OriginalText:   u.Original,
			TranslatedText: u.Translated,
			StartTime:      u.Start,
			EndTime:        u.End,
			Confidence:     u.Confidence,
		})
	}

	session, err := h.store.FinalizeSession(r.Context(), db.CreateSessionParams{
		ID:              sessionID,
		UserID:          userID,
		Title:           req.Title,
		SourceLang:      req.SourceLang,
		TargetLang:      req.TargetLang,
		StartedAt:       startedAt,
		DurationSeconds: req.DurationSeconds,
		SpeakerCount:    speakerCount,
		AvgConfidence:   avgConfidence,
	}, utterances)
	if err != nil {
		h.logger.Error("finalize session", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusCreated, toSessionView(session))
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	sessions, err := h.store.ListSessionsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list sessions", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, toSessionView(s))
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	session, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("get session", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if session.UserID != userID {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	utterances, err := h.store.GetUtterancesForSession(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("get utterances", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	detail := sessionDetailView{
		sessionView: toSessionView(session),
		Utterances:  make([]utterancePayload, 0, len(utterances)),
	}
	for _, u := range utterances {
		detail.Utterances = append(detail.Utterances, utterancePayload{
			Speaker:    u.Speaker,
			Original:   u.OriginalText,
			Translated: u.TranslatedText,
			Start:      u.StartTime,
			End:        u.EndTime,
			Confidence: u.Confidence,
		})
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	deleted, err := h.store.DeleteSession(r.Context(), db.DeleteSessionParams{
		ID:     sessionID,
		UserID: userID,
	})
	if err != nil {
		h.logger.Error("delete session", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if deleted == 0 {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// aggregate derives the session metrics from the submitted utterances:
// distinct speaker count and the arithmetic mean of per-utterance
// confidences (zero when no utterances were submitted).
func aggregate(utterances []utterancePayload) (int32, float64) {
	if len(utterances) == 0 {
		return 0, 0
	}

	speakers := make(map[string]struct{})
	var sum float64
	for _, u := range utterances {
		speakers[u.Speaker] = struct{}{}
		sum += u.Confidence
	}
	return int32(len(speakers)), sum / float64(len(utterances))
}

func toSessionView(s db.Session) sessionView {
	return sessionView{
		ID:              s.ID.String(),
		Title:           s.Title,
		SourceLang:      s.SourceLang,
		TargetLang:      s.TargetLang,
		StartedAt:       s.StartedAt,
		DurationSeconds: s.DurationSeconds,
		SpeakerCount:    s.SpeakerCount,
		AvgConfidence:   s.AvgConfidence,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
