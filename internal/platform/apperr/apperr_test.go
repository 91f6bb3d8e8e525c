package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestValidationError_ListsFields(t *testing.T) {
	err := MissingFields("subjective", "assessment_plan")
	msg := err.Error()
	if !strings.Contains(msg, "subjective") || !strings.Contains(msg, "assessment_plan") {
		t.Errorf("expected field names in message, got %q", msg)
	}
}

func TestHTTPStatus_Mapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidation("bad input"), http.StatusBadRequest},
		{"state", NewState("start", "completed"), http.StatusConflict},
		{"expired", &ExpiredError{ID: "a1"}, http.StatusGone},
		{"conflict", &ConflictError{Entity: "draft", ID: "d1", Version: 3}, http.StatusConflict},
		{"insufficient", &InsufficientDataError{Subscale: "anxiety", MissingFraction: 0.4}, http.StatusUnprocessableEntity},
		{"finalized", &AlreadyFinalizedError{ID: "c1"}, http.StatusConflict},
		{"notfound", NewNotFound("scale", "phq-9"), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatus(tc.err); got != tc.want {
				t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestHTTPStatus_WrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("save draft: %w", &ConflictError{Entity: "draft", ID: "d1", Version: 2})
	if got := HTTPStatus(wrapped); got != http.StatusConflict {
		t.Errorf("wrapped conflict mapped to %d, want 409", got)
	}
	if !IsConflict(wrapped) {
		t.Error("IsConflict should see through wrapping")
	}
}

func TestIsNotFound(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NewNotFound("patient", "p1"))
	if !IsNotFound(err) {
		t.Error("IsNotFound should see through wrapping")
	}
	if IsNotFound(errors.New("other")) {
		t.Error("IsNotFound matched unrelated error")
	}
}
