package api

import (
	"net/http"

	"github.com/terra-clan/progression-engine/internal/challenge"
	"github.com/terra-clan/progression-engine/internal/models"
)

// Stateless engine endpoints. Nothing here touches storage.

func (s *Server) handleAward(w http.ResponseWriter, r *http.Request) {
	var req models.AwardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := models.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	state, evs, err := s.service.Engine().ApplyAward(req.State, req.ExperienceAward, req.CoinAward)
	if err != nil {
		s.respondServiceError(w, r, "apply award", err)
		return
	}

	respondJSON(w, http.StatusOK, models.AwardResponse{State: state, Events: evs})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req models.EstimateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := s.service.EstimateWorkout(req)
	if err != nil {
		s.respondServiceError(w, r, "estimate workout", err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req models.SettleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := models.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	participants := make([]challenge.Participant, 0, len(req.Participants))
	for _, p := range req.Participants {
		participants = append(participants, challenge.Participant{ID: p.ID, AchievedValue: p.AchievedValue})
	}

	result, err := s.service.Engine().SettleChallenge(challenge.Target{Value: req.TargetValue}, participants, req.Stake)
	if err != nil {
		s.respondServiceError(w, r, "settle", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"outcomes": result,
		"winners":  result.Winners(),
	})
}
