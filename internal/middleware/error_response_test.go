package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/labquest/internal/model"
)

func decodeBody(t *testing.T, resp *http.Response) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// TestWriteAPIError_StatusFromCategory はカテゴリごとのステータスコードで書き込まれることを検証する。
func TestWriteAPIError_StatusFromCategory(t *testing.T) {
	tests := []struct {
		name   string
		err    *model.APIError
		status int
	}{
		{"validation", model.NewTitleRequiredError(), http.StatusBadRequest},
		{"auth", model.NewUnauthorizedError(), http.StatusUnauthorized},
		{"forbidden", model.NewForbiddenError("タスク承認"), http.StatusForbidden},
		{"not_found", model.NewTaskNotFoundError("t1"), http.StatusNotFound},
		{"conflict", model.NewSelfApprovalError(), http.StatusConflict},
		{"insufficient points", model.NewInsufficientPointsError(3, 5), http.StatusConflict},
		{"unknown category", &model.APIError{Code: "X", Category: "weird"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteAPIError(w, tt.err)

			resp := w.Result()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			body := decodeBody(t, resp)
			if body.Code != tt.err.Code || body.Category != tt.err.Category {
				t.Errorf("body = %+v, want code %q category %q", body, tt.err.Code, tt.err.Category)
			}
		})
	}
}

// TestWriteErrorResponse_ExplicitStatus は明示したステータスがカテゴリより優先されることを検証する。
func TestWriteErrorResponse_ExplicitStatus(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。",
		Category: model.CategorySystem,
		Action:   "時間をおいてください。",
	})

	resp := w.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body.Action != "時間をおいてください。" {
		t.Errorf("action = %q", body.Action)
	}
}

// TestInternalServerError_ReturnsSystemError は内部エラーが詳細を含まず返ることを検証する。
func TestInternalServerError_ReturnsSystemError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	body := decodeBody(t, resp)
	if body.Code != "INTERNAL_ERROR" || body.Category != model.CategorySystem {
		t.Errorf("body = %+v", body)
	}
	if body.Action == "" {
		t.Error("action should not be empty")
	}
}

// TestErrorResponseBody_AllFieldsPresent は全フィールドがJSONレスポンスに含まれることを検証する。
func TestErrorResponseBody_AllFieldsPresent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, model.NewBadgeAlreadyHeldError("b1"))

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	for _, field := range []string{"code", "message", "category", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
}
