package apperror

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without field",
			err:      New(CodeInvalidArgs, "graph is invalid"),
			expected: "[INVALID_ARGS] graph is invalid",
		},
		{
			name:     "with field",
			err:      NewWithField(CodeNotFound, "source not found", "source_id"),
			expected: "[NOT_FOUND] source not found (field: source_id)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, CodeInternal, "wrapped error")

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestError_ToEnvelope(t *testing.T) {
	err := New(CodeCapacityExceeded, "terminal at capacity")
	if got := err.ToEnvelope(); got != "[CAPACITY_EXCEEDED] terminal at capacity" {
		t.Errorf("ToEnvelope() = %v, want %v", got, "[CAPACITY_EXCEEDED] terminal at capacity")
	}
}

func TestNew(t *testing.T) {
	err := New(CodeNameConflict, "terminal already exists")

	if err.Code != CodeNameConflict {
		t.Errorf("Code = %v, want %v", err.Code, CodeNameConflict)
	}
	if err.Message != "terminal already exists" {
		t.Errorf("Message = %v, want %v", err.Message, "terminal already exists")
	}
	if err.Severity != SeverityError {
		t.Errorf("Severity = %v, want %v", err.Severity, SeverityError)
	}
}

func TestNewWarning(t *testing.T) {
	err := NewWarning(CodeCapacityExceeded, "approaching capacity")

	if err.Severity != SeverityWarning {
		t.Errorf("Severity = %v, want %v", err.Severity, SeverityWarning)
	}
}

func TestWithDetails(t *testing.T) {
	err := New(CodeInvalidArgs, "invalid").
		WithDetails("node_count", 5).
		WithDetails("edge_count", 10)

	if err.Details["node_count"] != 5 {
		t.Errorf("Details[node_count] = %v, want 5", err.Details["node_count"])
	}
	if err.Details["edge_count"] != 10 {
		t.Errorf("Details[edge_count] = %v, want 10", err.Details["edge_count"])
	}
}

func TestWithField(t *testing.T) {
	err := New(CodeNotFound, "invalid source").WithField("source_id")

	if err.Field != "source_id" {
		t.Errorf("Field = %v, want source_id", err.Field)
	}
}

func TestIs(t *testing.T) {
	err := New(CodeNameConflict, "already exists")

	if !Is(err, CodeNameConflict) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, CodeInvalidArgs) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(errors.New("regular error"), CodeNameConflict) {
		t.Error("Is() should return false for non-Error")
	}
}

func TestCode(t *testing.T) {
	err := New(CodeNoPath, "no path")

	if Code(err) != CodeNoPath {
		t.Errorf("Code() = %v, want %v", Code(err), CodeNoPath)
	}

	regularErr := errors.New("regular error")
	if Code(regularErr) != CodeInternal {
		t.Errorf("Code() for regular error = %v, want %v", Code(regularErr), CodeInternal)
	}
}

func TestIsWarning(t *testing.T) {
	warning := NewWarning(CodeCapacityExceeded, "approaching capacity")
	err := New(CodeInvalidArgs, "invalid")

	if !IsWarning(warning) {
		t.Error("IsWarning() should return true for warning")
	}
	if IsWarning(err) {
		t.Error("IsWarning() should return false for error")
	}
}

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		expected string
	}{
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.expected {
			t.Errorf("Severity.String() = %v, want %v", got, tt.expected)
		}
	}
}

func TestValidationErrors(t *testing.T) {
	t.Run("new validation errors", func(t *testing.T) {
		ve := NewValidationErrors()
		if ve.HasErrors() {
			t.Error("new ValidationErrors should not have errors")
		}
		if ve.First() != nil {
			t.Error("new ValidationErrors should have no First() error")
		}
	})

	t.Run("add error", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.AddError(CodeInvalidArgs, "invalid graph")

		if !ve.HasErrors() {
			t.Error("should have errors")
		}
		if len(ve.Errors) != 1 {
			t.Errorf("errors count = %d, want 1", len(ve.Errors))
		}
	})

	t.Run("add via Add method", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.Add(NewWarning(CodeCapacityExceeded, "warning"))
		ve.Add(New(CodeInvalidArgs, "error"))

		if len(ve.Errors) != 2 {
			t.Errorf("errors count = %d, want 2", len(ve.Errors))
		}
	})

	t.Run("error messages", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.AddError(CodeInvalidArgs, "error1")
		ve.AddError(CodeNotFound, "error2")

		messages := ve.ErrorMessages()
		if len(messages) != 2 {
			t.Errorf("messages count = %d, want 2", len(messages))
		}
	})

	t.Run("first", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.AddError(CodeInvalidArgs, "error1")
		ve.AddError(CodeNotFound, "error2")

		first := ve.First()
		if first == nil || first.Code != CodeInvalidArgs {
			t.Errorf("First() = %v, want code %v", first, CodeInvalidArgs)
		}
	})
}

func TestPredefinedErrors(t *testing.T) {
	predefinedErrors := []*Error{
		ErrNoPath,
		ErrNotFound,
	}

	for _, err := range predefinedErrors {
		if err == nil {
			t.Error("predefined error should not be nil")
			continue
		}
		if err.Code == "" {
			t.Error("predefined error should have a code")
		}
		if err.Message == "" {
			t.Error("predefined error should have a message")
		}
	}
}
