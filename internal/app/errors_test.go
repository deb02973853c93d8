package app

import (
	"fmt"
	"net/http"
	"testing"
)

func TestDomainErrorMapsToResponse(t *testing.T) {
	err := fmt.Errorf("saving snapshot: %w", domainError(http.StatusServiceUnavailable, "AUTOSAVE_UNAVAILABLE", "Session recovery is not configured"))

	status, code, message, details := mapError(err)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", status, http.StatusServiceUnavailable)
	}
	if code != "AUTOSAVE_UNAVAILABLE" {
		t.Fatalf("code = %q", code)
	}
	if message != "Session recovery is not configured" {
		t.Fatalf("message = %q", message)
	}
	if details != nil {
		t.Fatalf("details = %v, want nil", details)
	}
}

func TestDomainErrorString(t *testing.T) {
	err := domainError(http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found")
	if got := err.Error(); got != "SESSION_NOT_FOUND: Session not found" {
		t.Fatalf("Error() = %q", got)
	}
	var nilErr *DomainError
	if got := nilErr.Error(); got != "" {
		t.Fatalf("nil Error() = %q", got)
	}
}
