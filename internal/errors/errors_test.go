package errors

import (
	"fmt"
	"testing"
)

func TestHerdError_Error(t *testing.T) {
	err := &HerdError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "token not found",
	}

	expected := "NOT_FOUND: token not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("token is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "token is required" {
		t.Errorf("Message = %q, want %q", err.Message, "token is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("token", "01ABC")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "01ABC" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "01ABC")
	}
	if err.Message != "token not found: 01ABC" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewAlreadyRunning(t *testing.T) {
	err := NewAlreadyRunning("alice", "requests", "01XYZ")

	if err.Code != ErrAlreadyRunning {
		t.Errorf("Code = %q, want %q", err.Code, ErrAlreadyRunning)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
	if err.Details["campaign_id"] != "01XYZ" {
		t.Errorf("Details[campaign_id] = %v, want %q", err.Details["campaign_id"], "01XYZ")
	}
}

func TestNewNoActiveToken(t *testing.T) {
	err := NewNoActiveToken("alice")

	if err.Code != ErrNoActiveToken {
		t.Errorf("Code = %q, want %q", err.Code, ErrNoActiveToken)
	}
	if err.Status != 412 {
		t.Errorf("Status = %d, want 412", err.Status)
	}
}

func TestNewUpstream(t *testing.T) {
	t.Run("status only", func(t *testing.T) {
		err := NewUpstream("me", 500, "")
		if err.Message != "me failed with status 500" {
			t.Errorf("Message = %q", err.Message)
		}
	})

	t.Run("with code", func(t *testing.T) {
		err := NewUpstream("me", 401, "AuthRequired")
		if err.Message != "me failed: AuthRequired" {
			t.Errorf("Message = %q", err.Message)
		}
		if err.Details["upstream_status"] != 401 {
			t.Errorf("Details[upstream_status] = %v, want 401", err.Details["upstream_status"])
		}
	})
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		err := NewInternal(fmt.Errorf("database connection failed"))
		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Status != 500 {
			t.Errorf("Status = %d, want 500", err.Status)
		}
		if err.Message != "database connection failed" {
			t.Errorf("Message = %q, want %q", err.Message, "database connection failed")
		}
	})

	t.Run("nil error", func(t *testing.T) {
		err := NewInternal(nil)
		if err.Message != "internal error" {
			t.Errorf("Message = %q, want %q", err.Message, "internal error")
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		err := NewNotFound("token", "test")
		if !Is(err, ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		err := NewNotFound("token", "test")
		if Is(err, ErrConflict) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("non-HerdError", func(t *testing.T) {
		err := fmt.Errorf("plain error")
		if Is(err, ErrNotFound) {
			t.Error("Is() = true, want false for non-HerdError")
		}
	})

	t.Run("wrapped HerdError", func(t *testing.T) {
		inner := NewAlreadyRunning("alice", "lounge", "01")
		wrapped := fmt.Errorf("start: %w", inner)
		if !Is(wrapped, ErrAlreadyRunning) {
			t.Error("Is() = false, want true for wrapped HerdError")
		}
		if _, ok := As(wrapped); !ok {
			t.Error("As() = false, want true for wrapped HerdError")
		}
	})
}
