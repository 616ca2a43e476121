package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/progression-engine/internal/catalog"
	"github.com/terra-clan/progression-engine/internal/challenge"
	"github.com/terra-clan/progression-engine/internal/models"
	"github.com/terra-clan/progression-engine/internal/progress"
	"github.com/terra-clan/progression-engine/internal/progression"
	"github.com/terra-clan/progression-engine/internal/rank"
	"github.com/terra-clan/progression-engine/internal/services"
	"github.com/terra-clan/progression-engine/internal/workout"
)

const maxBodyBytes = 1 << 20

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// errorMapping pairs a sentinel with the response it produces
type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{progress.ErrInvalidRequest, http.StatusBadRequest, "validation_error"},
	{progression.ErrInvalidAward, http.StatusBadRequest, "invalid_award"},
	{challenge.ErrInvalidChallengeConfig, http.StatusBadRequest, "invalid_challenge_config"},
	{workout.ErrInvalidExerciseDescriptor, http.StatusBadRequest, "invalid_exercise"},
	{rank.ErrInvalidTier, http.StatusBadRequest, "invalid_rank"},
	{progression.ErrProgressionOverflow, http.StatusUnprocessableEntity, "progression_overflow"},
	{progress.ErrProfileNotFound, http.StatusNotFound, "profile_not_found"},
	{progress.ErrWorkoutNotFound, http.StatusNotFound, "workout_not_found"},
	{progress.ErrChallengeNotFound, http.StatusNotFound, "challenge_not_found"},
	{progress.ErrProfileExists, http.StatusConflict, "profile_exists"},
	{progress.ErrAlreadyJoined, http.StatusConflict, "already_joined"},
	{progress.ErrChallengeClosed, http.StatusConflict, "challenge_closed"},
	{progress.ErrChallengeNotEnded, http.StatusConflict, "challenge_not_ended"},
	{progress.ErrSettlementInProgress, http.StatusConflict, "settlement_in_progress"},
	{progress.ErrNotParticipant, http.StatusUnprocessableEntity, "not_participant"},
	{progress.ErrInsufficientCoins, http.StatusUnprocessableEntity, "insufficient_coins"},
	{progress.ErrTooManyConflicts, http.StatusServiceUnavailable, "too_many_conflicts"},
}

// respondServiceError maps domain errors to HTTP responses. Anything
// unrecognised is logged and hidden behind a 500.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status == http.StatusServiceUnavailable {
				w.Header().Set("Retry-After", "1")
			}
			respondError(w, m.status, m.code, err.Error())
			return
		}
	}

	s.logger.Error("request failed", "op", op, "error", err, "path", r.URL.Path)
	respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+op)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := s.registry.HealthCheckAll(r.Context())

	checks := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			s.logger.Warn("dependency not ready", "dependency", name, "error", err)
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	if !services.Healthy(results) {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"checks": checks,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}

// Profile handlers

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.service.CreateProfile(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, "create profile", err)
		return
	}

	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.GetProfile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.respondServiceError(w, r, "get profile", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"profile":  p,
		"progress": progression.Progress(p.State()),
	})
}

func (s *Server) handleCompleteWorkout(w http.ResponseWriter, r *http.Request) {
	// an empty body records a workout with the default reward
	var req models.CompleteWorkoutRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := s.service.CompleteWorkout(r.Context(), chi.URLParam(r, "userID"), req)
	if err != nil {
		s.respondServiceError(w, r, "complete workout", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleWorkoutsForUser(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.WorkoutsForUser(r.Context(), chi.URLParam(r, "userID"), workoutFilter(r))
	if err != nil {
		s.respondServiceError(w, r, "list workouts", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"workouts": list,
		"total":    len(list),
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.Leaderboard(r.Context(), queryInt(r, "limit", 10), queryInt(r, "offset", 0))
	if err != nil {
		s.respondServiceError(w, r, "load leaderboard", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

// Catalog handlers

func (s *Server) handleListRanks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ranks": s.service.RankTiers(),
	})
}

func workoutFilter(r *http.Request) catalog.Filter {
	return catalog.Filter{
		Type:       r.URL.Query().Get("type"),
		Difficulty: r.URL.Query().Get("difficulty"),
	}
}

// tierParam reads ?rank=; empty means the base tier
func tierParam(r *http.Request) (rank.Tier, error) {
	v := r.URL.Query().Get("rank")
	if v == "" {
		return rank.E, nil
	}
	return rank.ParseTier(v)
}

func (s *Server) handleListWorkouts(w http.ResponseWriter, r *http.Request) {
	tier, err := tierParam(r)
	if err != nil {
		s.respondServiceError(w, r, "list workouts", err)
		return
	}

	list, err := s.service.ListWorkouts(tier, workoutFilter(r))
	if err != nil {
		s.respondServiceError(w, r, "list workouts", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rank":     tier,
		"workouts": list,
		"total":    len(list),
	})
}

func (s *Server) handleGetWorkout(w http.ResponseWriter, r *http.Request) {
	tier, err := tierParam(r)
	if err != nil {
		s.respondServiceError(w, r, "get workout", err)
		return
	}

	wo, err := s.service.GetWorkout(chi.URLParam(r, "id"), tier)
	if err != nil {
		s.respondServiceError(w, r, "get workout", err)
		return
	}

	respondJSON(w, http.StatusOK, wo)
}
