package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"studydeck-backend/internal/middleware"
	"studydeck-backend/internal/models"
	"studydeck-backend/internal/repository"
)

type ProfileHandler struct {
	profileRepo *repository.ProfileRepo
}

func NewProfileHandler(profileRepo *repository.ProfileRepo) *ProfileHandler {
	return &ProfileHandler{profileRepo: profileRepo}
}

func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	profile, err := h.profileRepo.GetByUserID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Profile not found", r))
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) GetByUsername(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	profile, err := h.profileRepo.GetByUsername(r.Context(), username)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Profile not found", r))
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// RecordPuzzleRush stores a puzzle-rush result, keeping only the best score.
func (h *ProfileHandler) RecordPuzzleRush(w http.ResponseWriter, r *http.Request) {
	var req models.PuzzleRushScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if req.Score < 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"score": "Score must be non-negative"}, r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	best, err := h.profileRepo.RecordPuzzleRushScore(r.Context(), userID, req.Score)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to record score", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"best_score": best})
}

func (h *ProfileHandler) StreakLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10)
	entries, err := h.profileRepo.StreakLeaderboard(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch leaderboard", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": entries})
}

func (h *ProfileHandler) PuzzleRushLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10)
	entries, err := h.profileRepo.PuzzleRushLeaderboard(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch leaderboard", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": entries})
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 100 {
		return def
	}
	return n
}
