package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/target/libsession/internal/errors"
)

func jsonBody(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestNormalizeDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string detail", `{"detail":"Incorrect email or password"}`, "Incorrect email or password"},
		{"object detail", `{"detail":{"msg":"Invalid or expired token"}}`, "Invalid or expired token"},
		{
			"validation list",
			`{"detail":[{"loc":["body","email"],"msg":"field required"},{"loc":["body","password"],"msg":"too short"}]}`,
			"field required; too short",
		},
		{"list of strings", `{"detail":["a","b"]}`, "a; b"},
		{"message fallback", `{"message":"Something went wrong"}`, "Something went wrong"},
		{"empty detail uses message", `{"detail":"","message":"fallback"}`, "fallback"},
		{"empty list uses message", `{"detail":[],"message":"fallback"}`, "fallback"},
		{"nothing usable", `{"error":true}`, ""},
		{"bare string", `"plain"`, "plain"},
		{"array body", `[1,2]`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDetail(jsonBody(t, tt.body)))
		})
	}

	assert.Empty(t, NormalizeDetail(nil))
}

func response(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestFromResponse(t *testing.T) {
	t.Run("2xx is nil", func(t *testing.T) {
		assert.NoError(t, FromResponse(response(http.StatusCreated, ""), "x"))
	})

	t.Run("401 is authentication", func(t *testing.T) {
		err := FromResponse(response(http.StatusUnauthorized, `{"detail":"Could not validate credentials"}`), "login failed")
		require.Error(t, err)
		assert.True(t, apperrors.IsAuthentication(err))
		assert.Equal(t, "Could not validate credentials", apperrors.DisplayMessage(err))
		assert.Equal(t, http.StatusUnauthorized, apperrors.GetStatus(err))
	})

	t.Run("4xx is validation with normalized detail", func(t *testing.T) {
		err := FromResponse(response(http.StatusUnprocessableEntity, `{"detail":[{"loc":["body"],"msg":"bad"}]}`), "x")
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, "bad", apperrors.DisplayMessage(err))
	})

	t.Run("4xx without body uses fallback", func(t *testing.T) {
		err := FromResponse(response(http.StatusBadRequest, ""), "Registration failed. Please try again.")
		assert.Equal(t, "Registration failed. Please try again.", apperrors.DisplayMessage(err))
	})

	t.Run("plain text body", func(t *testing.T) {
		err := FromResponse(response(http.StatusBadRequest, "nope"), "fallback")
		assert.Equal(t, "nope", apperrors.DisplayMessage(err))
	})

	t.Run("html body ignored", func(t *testing.T) {
		err := FromResponse(response(http.StatusNotFound, "<html>404</html>"), "fallback")
		assert.Equal(t, "fallback", apperrors.DisplayMessage(err))
	})

	t.Run("5xx is transient", func(t *testing.T) {
		err := FromResponse(response(http.StatusBadGateway, `{"detail":"upstream"}`), "x")
		assert.True(t, apperrors.IsTransient(err))
		assert.Equal(t, http.StatusBadGateway, apperrors.GetStatus(err))
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestFromTransportError(t *testing.T) {
	assert.NoError(t, FromTransportError(nil))

	err := FromTransportError(fmt.Errorf("dial: %w", context.DeadlineExceeded))
	assert.True(t, apperrors.IsTimeout(err))
	assert.True(t, apperrors.IsTransient(err), "timeouts count as transient")

	err = FromTransportError(timeoutErr{})
	assert.True(t, apperrors.IsTimeout(err))

	err = FromTransportError(context.Canceled)
	assert.True(t, apperrors.IsCanceled(err))

	err = FromTransportError(errors.New("connection refused"))
	assert.True(t, apperrors.IsTransient(err))
	assert.False(t, apperrors.IsTimeout(err))
}
