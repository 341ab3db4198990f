package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeValidation,
				Message: "email is required",
			},
			want: "email is required",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeTransient,
				Message: "backend unreachable",
				Cause:   errors.New("connection refused"),
			},
			want: "backend unreachable: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &AppError{
		Code:    ErrCodeInternal,
		Message: "wrapped error",
		Cause:   cause,
	}

	if unwrapped := err.Unwrap(); !errors.Is(unwrapped, cause) {
		t.Errorf("AppError.Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name    string
		err     *AppError
		code    ErrorCode
		message string
	}{
		{"transient", Transient("offline"), ErrCodeTransient, "offline"},
		{"transientf", Transientf("status %d", 503), ErrCodeTransient, "status 503"},
		{"authentication", Authentication("expired"), ErrCodeAuthentication, "expired"},
		{"validation", Validation("bad email"), ErrCodeValidation, "bad email"},
		{"validationf", Validationf("%s is required", "password"), ErrCodeValidation, "password is required"},
		{"decode", Decode("malformed"), ErrCodeDecode, "malformed"},
		{"decodef", Decodef("segments: %d", 2), ErrCodeDecode, "segments: 2"},
		{"internal", Internal("boom"), ErrCodeInternal, "boom"},
		{"internalf", Internalf("boom %s", "again"), ErrCodeInternal, "boom again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.Message != tt.message {
				t.Errorf("Message = %v, want %v", tt.err.Message, tt.message)
			}
		})
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("email", "must be a valid email address")
	if err.Code != ErrCodeValidation {
		t.Errorf("ValidationField().Code = %v, want %v", err.Code, ErrCodeValidation)
	}
	if err.Field != "email" {
		t.Errorf("ValidationField().Field = %v, want %v", err.Field, "email")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeTransient, "wrapped error")

	if err.Code != ErrCodeTransient {
		t.Errorf("Wrap().Code = %v, want %v", err.Code, ErrCodeTransient)
	}
	if err.Message != "wrapped error" {
		t.Errorf("Wrap().Message = %v, want %v", err.Message, "wrapped error")
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Wrap().Cause = %v, want %v", err.Cause, cause)
	}
}

func TestWrap_NilError(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "wrapped error"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errors.New("eof"), ErrCodeTransient, "call %s", "/auth/me")
	if err.Message != "call /auth/me" {
		t.Errorf("Wrapf().Message = %v, want %v", err.Message, "call /auth/me")
	}
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("fetch profile: %w", Authentication("expired"))

	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"transient", IsTransient(Transient("x")), true},
		{"timeout counts as transient", IsTransient(&AppError{Code: ErrCodeTimeout}), true},
		{"validation is not transient", IsTransient(Validation("x")), false},
		{"authentication through wrapping", IsAuthentication(wrapped), true},
		{"validation", IsValidation(Validation("x")), true},
		{"decode", IsDecode(Decode("x")), true},
		{"internal", IsInternal(Internal("x")), true},
		{"timeout", IsTimeout(&AppError{Code: ErrCodeTimeout}), true},
		{"canceled", IsCanceled(&AppError{Code: ErrCodeCanceled}), true},
		{"standard error", IsValidation(errors.New("x")), false},
		{"nil error", IsAuthentication(nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(Decode("x")); got != ErrCodeDecode {
		t.Errorf("GetCode() = %v, want %v", got, ErrCodeDecode)
	}
	if got := GetCode(errors.New("x")); got != "" {
		t.Errorf("GetCode() = %v, want empty", got)
	}
}

func TestGetField(t *testing.T) {
	if got := GetField(ValidationField("token", "required")); got != "token" {
		t.Errorf("GetField() = %v, want %v", got, "token")
	}
	if got := GetField(nil); got != "" {
		t.Errorf("GetField() = %v, want empty", got)
	}
}

func TestGetStatus(t *testing.T) {
	err := fmt.Errorf("login: %w", Validation("locked").WithStatus(423))
	if got := GetStatus(err); got != 423 {
		t.Errorf("GetStatus() = %v, want %v", got, 423)
	}
	if got := GetStatus(errors.New("x")); got != 0 {
		t.Errorf("GetStatus() = %v, want 0", got)
	}
}

func TestDisplayMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"app error hides cause", Wrap(errors.New("dial tcp"), ErrCodeTransient, "backend unreachable"), "backend unreachable"},
		{"wrapped app error", fmt.Errorf("login: %w", Validation("Incorrect email or password")), "Incorrect email or password"},
		{"plain error", errors.New("plain"), "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DisplayMessage(tt.err); got != tt.want {
				t.Errorf("DisplayMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"canceled", fmt.Errorf("call: %w", context.Canceled), "canceled"},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), "timeout"},
		{"app error", Authentication("x"), "authentication"},
		{"unknown", errors.New("x"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
