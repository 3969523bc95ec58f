package errors

import (
	"errors"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	bare := &AppError{Code: ErrCodeNotFound, Message: "no active result for stu-100/major/csci"}
	if got := bare.Error(); got != "no active result for stu-100/major/csci" {
		t.Errorf("Error() = %q", got)
	}

	cause := errors.New("connection refused")
	wrapped := &AppError{Code: ErrCodeInternal, Message: "claim next job", Cause: cause}
	if got := wrapped.Error(); got != "claim next job: connection refused" {
		t.Errorf("Error() with cause = %q", got)
	}
	if unwrapped := wrapped.Unwrap(); !errors.Is(unwrapped, cause) {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestConstructorsAssignCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
		msg  string
	}{
		{"not found", NotFound("result not found"), ErrCodeNotFound, "result not found"},
		{"not found formatted", NotFoundf("no memo for clause hash %s", "abc"), ErrCodeNotFound, "no memo for clause hash abc"},
		{"conflict", Conflict("revision already active"), ErrCodeConflict, "revision already active"},
		{"validation", Validation("student id is required"), ErrCodeValidation, "student id is required"},
		{"foreign key", ForeignKey("result owns memo rows"), ErrCodeForeignKey, "result owns memo rows"},
		{"internal", Internal("unexpected driver state"), ErrCodeInternal, "unexpected driver state"},
		{"queue blocked", QueueBlockedf("lineage %s/%s is blocked", "stu-1", "major/csci"), ErrCodeQueueBlocked, "lineage stu-1/major/csci is blocked"},
		{"transient", Transient("engine unavailable"), ErrCodeTransient, "engine unavailable"},
		{"permanent", Permanentf("area %s does not parse", "major/csci"), ErrCodePermanent, "area major/csci does not parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.Message != tt.msg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.msg)
			}
		})
	}
}

func TestValidationFieldCarriesField(t *testing.T) {
	err := ValidationField("priority", "priority must be between 0 and 100")
	if err.Code != ErrCodeValidation {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeValidation)
	}
	if err.Field != "priority" {
		t.Errorf("Field = %q, want %q", err.Field, "priority")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("context deadline exceeded")
	err := Wrap(cause, ErrCodeTransient, "evaluate area")

	if err.Code != ErrCodeTransient {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeTransient)
	}
	if !errors.Is(err, cause) {
		t.Errorf("wrapped error does not match its cause")
	}

	if got := Wrap(nil, ErrCodeInternal, "ignored"); got != nil {
		t.Errorf("Wrap(nil) = %v, want nil", got)
	}
}

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name    string
		check   func(error) bool
		match   error
		nomatch error
	}{
		{"not found", IsNotFound, NotFound("result not found"), Conflict("conflict")},
		{"conflict", IsConflict, Conflict("duplicate revision"), NotFound("missing")},
		{"validation", IsValidation, ValidationField("catalog", "catalog is required"), Transient("retry")},
		{"queue blocked", IsQueueBlocked, QueueBlocked("lineage blocked"), Validation("bad input")},
		{"transient", IsTransient, Transient("engine unavailable"), Permanent("area does not parse")},
		{"permanent", IsPermanent, Permanent("area does not parse"), Transient("engine unavailable")},
		{"timeout", IsTimeout, &AppError{Code: ErrCodeTimeout, Message: "lease expired"}, NotFound("missing")},
		{"canceled", IsCanceled, &AppError{Code: ErrCodeCanceled, Message: "shutdown"}, NotFound("missing")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.match) {
				t.Errorf("classifier rejected its own code")
			}
			if tt.check(tt.nomatch) {
				t.Errorf("classifier matched a different code")
			}
			if tt.check(nil) {
				t.Errorf("classifier matched nil")
			}
			if tt.check(errors.New("plain error")) {
				t.Errorf("classifier matched a plain error")
			}
		})
	}
}

func TestClassifiersSeeThroughWrapping(t *testing.T) {
	inner := NotFound("result not found")
	outer := Wrap(inner, ErrCodeInternal, "load active view")

	// The outermost AppError decides the code.
	if IsNotFound(outer) {
		t.Errorf("wrapped code should shadow the inner one")
	}
	if !IsInternal(outer) {
		t.Errorf("outer code not detected")
	}
}

func TestGetCodeAndField(t *testing.T) {
	if got := GetCode(NotFound("missing")); got != ErrCodeNotFound {
		t.Errorf("GetCode = %v, want %v", got, ErrCodeNotFound)
	}
	if got := GetCode(errors.New("plain")); got != "" {
		t.Errorf("GetCode(plain) = %v, want empty", got)
	}
	if got := GetCode(nil); got != "" {
		t.Errorf("GetCode(nil) = %v, want empty", got)
	}

	if got := GetField(ValidationField("area_code", "area code is required")); got != "area_code" {
		t.Errorf("GetField = %q, want %q", got, "area_code")
	}
	if got := GetField(NotFound("missing")); got != "" {
		t.Errorf("GetField without field = %q, want empty", got)
	}
}
