package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jmespath-community/go-jmespath"
	apperrors "github.com/target/libsession/internal/errors"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 1 << 20

// DetailSeparator joins multiple validation messages.
const DetailSeparator = "; "

// FromTransportError classifies a failed round trip. Deadlines become timeouts,
// cancellations stay canceled, everything else is transient.
func FromTransportError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "request canceled")
	}
	var netTimeout interface{ Timeout() bool }
	if errors.As(err, &netTimeout) && netTimeout.Timeout() {
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "request timed out")
	}
	return apperrors.Wrap(err, apperrors.ErrCodeTransient, "backend unreachable")
}

// FromResponse converts a non-2xx response into an AppError and closes its body.
// 2xx responses return nil and are left untouched.
func FromResponse(resp *http.Response, fallback string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := NormalizeDetail(decodeBody(raw))
	if msg == "" {
		msg = fallback
	}

	status := resp.StatusCode
	switch {
	case status == http.StatusUnauthorized:
		return apperrors.Authentication(msg).WithStatus(status)
	case status >= 500:
		return apperrors.Transientf("backend unavailable (%d)", status).WithStatus(status)
	default:
		return apperrors.Validation(msg).WithStatus(status)
	}
}

func decodeBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		if s := strings.TrimSpace(string(raw)); s != "" && len(s) < 200 && !strings.HasPrefix(s, "<") {
			return map[string]any{"detail": s}
		}
		return nil
	}
	return body
}

// NormalizeDetail reduces the backend's error body to one display string.
// detail may be a string, an object with msg, or a list of {loc, msg}
// entries; a top-level message is the last resort.
func NormalizeDetail(body any) string {
	if body == nil {
		return ""
	}
	if s, ok := body.(string); ok {
		return strings.TrimSpace(s)
	}

	detail, _ := jmespath.Search("detail", body)
	switch d := detail.(type) {
	case string:
		if s := strings.TrimSpace(d); s != "" {
			return s
		}
	case map[string]any:
		if s := searchString("msg", d); s != "" {
			return s
		}
	case []any:
		if s := joinMessages(d); s != "" {
			return s
		}
	}
	return searchString("message", body)
}

func joinMessages(entries []any) string {
	msgs := make([]string, 0, len(entries))
	for _, e := range entries {
		switch v := e.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				msgs = append(msgs, s)
			}
		case map[string]any:
			if s := searchString("msg", v); s != "" {
				msgs = append(msgs, s)
			}
		}
	}
	return strings.Join(msgs, DetailSeparator)
}

func searchString(expr string, data any) string {
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}
