// Package metrics emits session lifecycle metrics through a ports.MetricsSink.
package metrics

import (
	"time"

	apperrors "github.com/target/libsession/internal/errors"
	"github.com/target/libsession/internal/ports"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names.
const (
	TransitionInitialize   = "initialize"
	TransitionLogin        = "login"
	TransitionRegister     = "register"
	TransitionLogout       = "logout"
	TransitionExpire       = "expire"
	TransitionRefresh      = "refresh"
	TransitionSync         = "sync"
	TransitionForgot       = "forgot_password"
	TransitionReset        = "reset_password"
	TransitionProfileFetch = "profile_fetch"
)

// SessionMetric captures one session transition for metric emission.
type SessionMetric struct {
	Transition string
	Result     string
	Role       string
	Duration   time.Duration
	Err        error
}

// EmitSessionTransition emits a session.transition counter and, when a
// duration is known, a session.duration timing with the same tags.
func EmitSessionTransition(sink ports.MetricsSink, in SessionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Role != "" {
		tags["role"] = in.Role
	}
	if in.Err != nil && in.Result == ResultError {
		tags["error_class"] = apperrors.Classify(in.Err)
	}

	sink.Count("session.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("session.duration", in.Duration, CloneTags(tags))
	}
}

// ResultFor maps an error to ResultSuccess or ResultError.
func ResultFor(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
