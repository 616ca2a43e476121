package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/progression-engine/internal/models"
)

func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req models.CreateChallengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	createdBy := ""
	if client := ClientFromContext(r.Context()); client != nil {
		createdBy = client.Name
	}

	c, err := s.service.CreateChallenge(r.Context(), createdBy, req)
	if err != nil {
		s.respondServiceError(w, r, "create challenge", err)
		return
	}

	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	status := models.ChallengeStatus(r.URL.Query().Get("status"))
	list, err := s.service.ListChallenges(r.Context(), status, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		s.respondServiceError(w, r, "list challenges", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"challenges": list,
		"total":      len(list),
	})
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.GetChallenge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, "get challenge", err)
		return
	}

	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleJoinChallenge(w http.ResponseWriter, r *http.Request) {
	var req models.JoinChallengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := s.service.JoinChallenge(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondServiceError(w, r, "join challenge", err)
		return
	}

	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitResultRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := s.service.SubmitResult(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondServiceError(w, r, "submit result", err)
		return
	}

	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleSettleChallenge(w http.ResponseWriter, r *http.Request) {
	settlement, err := s.service.SettleChallenge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, "settle challenge", err)
		return
	}

	respondJSON(w, http.StatusOK, settlement)
}
