package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studydeck-backend/internal/middleware"
	"studydeck-backend/internal/models"
	"studydeck-backend/internal/repository"
	"studydeck-backend/internal/services"
)

type SyllabusHandler struct {
	voting       *services.VotingService
	proposalRepo *repository.ProposalRepo
}

func NewSyllabusHandler(voting *services.VotingService, proposalRepo *repository.ProposalRepo) *SyllabusHandler {
	return &SyllabusHandler{voting: voting, proposalRepo: proposalRepo}
}

func (h *SyllabusHandler) Propose(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	var req models.ProposeSyllabusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"content": "Content is required"}, r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	proposal, err := h.voting.Propose(r.Context(), courseID, userID, req.Content)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, proposal)
}

func (h *SyllabusHandler) Vote(w http.ResponseWriter, r *http.Request) {
	proposalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid proposal ID", r))
		return
	}

	var req models.SyllabusVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if req.VoteType != "approve" && req.VoteType != "reject" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"vote_type": "Must be 'approve' or 'reject'"}, r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	resp, err := h.voting.Vote(r.Context(), proposalID, userID, req.VoteType)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *SyllabusHandler) ListByCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	proposals, err := h.proposalRepo.ListByCourse(r.Context(), courseID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch proposals", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"proposals": proposals})
}
