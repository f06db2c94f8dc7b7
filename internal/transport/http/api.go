package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"puzzle-scoring-service/internal/app"
	"puzzle-scoring-service/internal/domain"
)

const defaultPageSize = 20

// APIHandler exposes the read side of the scoring core plus the admin
// deletions as JSON endpoints.
type APIHandler struct {
	service  *app.Service
	log      logrus.FieldLogger
	validate *validator.Validate
}

func NewAPIHandler(service *app.Service, log logrus.FieldLogger) *APIHandler {
	return &APIHandler{service: service, log: log, validate: validator.New()}
}

type registerRequest struct {
	ID       string `json:"id" validate:"required"`
	Username string `json:"username" validate:"required,max=150"`
}

type positionResponse struct {
	UserID   domain.UserID `json:"userId"`
	Position int           `json:"position"`
}

type attemptStatusResponse struct {
	ChallengeID string `json:"challengeId"`
	Remaining   int    `json:"remaining"`
	Solved      bool   `json:"solved"`
}

type successRateResponse struct {
	ChallengeID string  `json:"challengeId"`
	SuccessRate float64 `json:"successRate"`
}

func (h *APIHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid json body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: err.Error()})
		return
	}
	user := domain.User{ID: domain.UserID(req.ID), Username: req.Username}
	if err := h.service.RegisterUser(r.Context(), user); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *APIHandler) RankingPage(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid offset"})
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 || limit > 100 {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid limit"})
		return
	}
	page, err := h.service.RankingPage(r.Context(), offset, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if page == nil {
		page = []domain.RankingEntry{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *APIHandler) Position(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(r.PathValue("userId"))
	pos, ok, err := h.service.PositionOf(r.Context(), user)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorPayload{Message: "user not ranked"})
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{UserID: user, Position: pos})
}

func (h *APIHandler) Profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.ProfileOf(r.Context(), domain.UserID(r.PathValue("userId")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *APIHandler) AttemptStatus(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(r.PathValue("userId"))
	challengeID := r.PathValue("challengeId")
	remaining, err := h.service.RemainingAttempts(r.Context(), user, challengeID)
	if err != nil {
		h.fail(w, err)
		return
	}
	solved, err := h.service.HasSolved(r.Context(), user, challengeID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptStatusResponse{ChallengeID: challengeID, Remaining: remaining, Solved: solved})
}

func (h *APIHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.service.Ledger.AttemptsOf(r.Context(), domain.UserID(r.PathValue("userId")), r.PathValue("challengeId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if attempts == nil {
		attempts = []domain.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *APIHandler) SuccessRate(w http.ResponseWriter, r *http.Request) {
	challengeID := r.PathValue("challengeId")
	rate, err := h.service.SuccessRate(r.Context(), challengeID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successRateResponse{ChallengeID: challengeID, SuccessRate: rate})
}

func (h *APIHandler) Progress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.service.Stats.Progress(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *APIHandler) DeleteAttempt(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAttempt(r.Context(), r.PathValue("attemptId")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) DeleteChallenge(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteChallenge(r.Context(), r.PathValue("challengeId")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

func statusFor(err error) int {
	var rejection *domain.Rejection
	switch {
	case errors.As(err, &rejection):
		if rejection.Validation() {
			return http.StatusBadRequest
		}
		return http.StatusConflict
	case errors.Is(err, domain.ErrChallengeNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLockTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
