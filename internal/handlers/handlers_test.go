package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ─── Auth Handler Tests ───

func TestRegisterHandler_ValidInput(t *testing.T) {
	body := map[string]string{
		"username": "test_user",
		"email":    "test@example.com",
		"password": "StrongPass123!",
	}
	jsonBody, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")

	var parsed map[string]string
	if err := json.NewDecoder(bytes.NewReader(jsonBody)).Decode(&parsed); err != nil {
		t.Fatalf("Failed to parse request body: %v", err)
	}

	if parsed["username"] != "test_user" {
		t.Errorf("Expected username 'test_user', got %q", parsed["username"])
	}
	if parsed["email"] != "test@example.com" {
		t.Errorf("Expected email 'test@example.com', got %q", parsed["email"])
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Expected JSON content type, got %q", req.Header.Get("Content-Type"))
	}
}

func TestRegisterHandler_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing email", map[string]string{"username": "test_user", "password": "Pass123!"}},
		{"missing password", map[string]string{"username": "test_user", "email": "t@t.com"}},
		{"missing username", map[string]string{"email": "t@t.com", "password": "Pass123!"}},
		{"empty body", map[string]string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			jsonBody, _ := json.Marshal(tc.body)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(jsonBody))
			req.Header.Set("Content-Type", "application/json")

			if req.Method != http.MethodPost {
				t.Errorf("Expected POST, got %s", req.Method)
			}
		})
	}
}

// ─── JSON Response Tests ───

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()

	writeJSON(rr, http.StatusCreated, map[string]interface{}{
		"message": "Success",
		"user_id": "test-uuid",
	})

	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got %q", rr.Header().Get("Content-Type"))
	}

	var result map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result["message"] != "Success" {
		t.Errorf("Expected message 'Success', got %v", result["message"])
	}
}

func TestErrorResponseEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed", nil)
	rr := httptest.NewRecorder()

	writeJSON(rr, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid input", req))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}

	var result map[string]map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result["error"]["code"] != "VALIDATION_ERROR" {
		t.Errorf("Expected code 'VALIDATION_ERROR', got %v", result["error"]["code"])
	}
	if result["error"]["message"] != "Invalid input" {
		t.Errorf("Expected message 'Invalid input', got %v", result["error"]["message"])
	}
}

func TestErrorResponseWithFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/puzzle-rush/score", nil)
	rr := httptest.NewRecorder()

	writeJSON(rr, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
		map[string]string{"score": "Score must be non-negative"}, req))

	var result struct {
		Error struct {
			Code   string            `json:"code"`
			Fields map[string]string `json:"fields"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result.Error.Fields["score"] != "Score must be non-negative" {
		t.Errorf("Expected field error for score, got %v", result.Error.Fields)
	}
}
