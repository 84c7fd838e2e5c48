package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studydeck-backend/internal/middleware"
	"studydeck-backend/internal/models"
	"studydeck-backend/internal/repository"
	"studydeck-backend/internal/services"
)

type CardHandler struct {
	cardRepo     *repository.CardRepo
	courseRepo   *repository.CourseRepo
	interactions *repository.InteractionRepo
	rating       *services.RatingService
}

func NewCardHandler(cardRepo *repository.CardRepo, courseRepo *repository.CourseRepo, interactions *repository.InteractionRepo, rating *services.RatingService) *CardHandler {
	return &CardHandler{
		cardRepo:     cardRepo,
		courseRepo:   courseRepo,
		interactions: interactions,
		rating:       rating,
	}
}

func (h *CardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := models.ValidatePayload(req.CardType, req.Data); err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Invalid card payload",
			map[string]string{"data": err.Error()}, r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	// Only subscribers may post into a course.
	course, err := h.courseRepo.GetByID(r.Context(), req.CourseID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Course not found", r))
		return
	}
	subscribed, err := h.courseRepo.IsSubscribed(r.Context(), userID, req.CourseID)
	if err != nil || !subscribed {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Subscribe to the course before posting", r))
		return
	}

	// Tags are shared across the course, so names carry the course code.
	tagNames := make([]string, 0, len(req.Tags))
	for _, raw := range req.Tags {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		tagNames = append(tagNames, fmt.Sprintf("%s:%s", course.Code, name))
	}

	card := &models.Card{
		UserID:   userID,
		CourseID: req.CourseID,
		CardType: req.CardType,
		DataJSON: req.Data,
	}

	if err := h.cardRepo.Create(r.Context(), card, tagNames); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create card", r))
		return
	}

	writeJSON(w, http.StatusCreated, card)
}

func (h *CardHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid card ID", r))
		return
	}

	card, err := h.cardRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Card not found", r))
		return
	}

	writeJSON(w, http.StatusOK, card)
}

func (h *CardHandler) ListByCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	cards, err := h.cardRepo.ListByCourse(r.Context(), courseID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch cards", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"cards": cards})
}

func (h *CardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid card ID", r))
		return
	}

	card, err := h.cardRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Card not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if card.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	if err := h.cardRepo.Delete(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete card", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Card deleted"})
}

// Rate applies one like/dislike/undo event end-to-end through the
// propagation engine: card rating, tag scores, author profile and streak.
func (h *CardHandler) Rate(w http.ResponseWriter, r *http.Request) {
	var req models.RatingChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	// Card id comes from the path, or from the body on the bare endpoint.
	id := req.QuizID
	if raw := chi.URLParam(r, "id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid card ID", r))
			return
		}
		id = parsed
	}
	if id == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"quizId": "Card ID is required"}, r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	newRating, err := h.rating.Apply(r.Context(), id, userID, req.RatingChange, req.IsUndo)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.RatingChangeResponse{
		Success:   true,
		QuizID:    id,
		NewRating: newRating,
	})
}

// View registers a neutral interaction (flashcard flip, quiz answered) that
// feeds the engagement score without touching the rating.
func (h *CardHandler) View(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid card ID", r))
		return
	}

	if _, err := h.cardRepo.GetByID(r.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Card not found", r))
		return
	}

	var req struct {
		Score float64 `json:"score"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	if req.Score <= 0 {
		req.Score = 1
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.interactions.RecordView(r.Context(), id, userID, req.Score); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to record view", r))
		return
	}
	if err := h.cardRepo.BumpInteractionScore(r.Context(), id, req.Score); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to record view", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "View recorded"})
}
