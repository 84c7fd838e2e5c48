package handlers

import (
	"net/http"
	"strconv"

	"studydeck-backend/internal/middleware"
	"studydeck-backend/internal/repository"
)

type FeedHandler struct {
	feedRepo     *repository.FeedRepo
	defaultLimit int
}

func NewFeedHandler(feedRepo *repository.FeedRepo, defaultLimit int) *FeedHandler {
	return &FeedHandler{feedRepo: feedRepo, defaultLimit: defaultLimit}
}

// List returns the personalized ranked feed: subscription-filtered cards
// ordered by final_score descending. Degrades to an unranked listing when
// the scoring function is unavailable.
func (h *FeedHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit := h.defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Limit must be between 1 and 200", r))
			return
		}
		limit = n
	}

	cards, err := h.feedRepo.RankedCards(r.Context(), userID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch feed", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"cards": cards})
}
