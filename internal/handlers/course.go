package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studydeck-backend/internal/middleware"
	"studydeck-backend/internal/models"
	"studydeck-backend/internal/repository"
)

type CourseHandler struct {
	courseRepo *repository.CourseRepo
}

func NewCourseHandler(courseRepo *repository.CourseRepo) *CourseHandler {
	return &CourseHandler{courseRepo: courseRepo}
}

func (h *CourseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if req.Name == "" || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Name and code are required", r))
		return
	}

	course := &models.Course{Name: req.Name, Code: req.Code}
	if err := h.courseRepo.Create(r.Context(), course); err != nil {
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "Course code already exists", r))
		return
	}

	// The creator is subscribed automatically.
	userID := middleware.GetUserID(r.Context())
	h.courseRepo.Subscribe(r.Context(), userID, course.ID)

	writeJSON(w, http.StatusCreated, course)
}

func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courseRepo.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch courses", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"courses": courses})
}

func (h *CourseHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	if _, err := h.courseRepo.GetByID(r.Context(), courseID); err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Course not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.courseRepo.Subscribe(r.Context(), userID, courseID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to subscribe", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Subscribed"})
}

func (h *CourseHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.courseRepo.Unsubscribe(r.Context(), userID, courseID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to unsubscribe", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Unsubscribed"})
}
