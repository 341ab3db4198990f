package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/target/libsession/internal/errors"
)

type recordedMetric struct {
	kind  string
	name  string
	tags  map[string]string
	value float64
}

type recordingSink struct {
	mu      sync.Mutex
	metrics []recordedMetric
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.add(recordedMetric{kind: "count", name: name, tags: tags, value: float64(value)})
}

func (r *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	r.add(recordedMetric{kind: "gauge", name: name, tags: tags, value: value})
}

func (r *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	r.add(recordedMetric{kind: "timing", name: name, tags: tags, value: float64(value)})
}

func (r *recordingSink) add(m recordedMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
}

func TestEmitSessionTransition_Success(t *testing.T) {
	sink := &recordingSink{}

	EmitSessionTransition(sink, SessionMetric{
		Transition: TransitionLogin,
		Result:     ResultSuccess,
		Role:       "librarian",
		Duration:   20 * time.Millisecond,
	})

	require.Len(t, sink.metrics, 2)
	assert.Equal(t, "session.transition", sink.metrics[0].name)
	assert.Equal(t, map[string]string{"transition": "login", "result": "success", "role": "librarian"}, sink.metrics[0].tags)
	assert.Equal(t, "timing", sink.metrics[1].kind)
	assert.Equal(t, "session.duration", sink.metrics[1].name)
}

func TestEmitSessionTransition_ErrorClass(t *testing.T) {
	sink := &recordingSink{}

	EmitSessionTransition(sink, SessionMetric{
		Transition: TransitionLogin,
		Result:     ResultError,
		Err:        apperrors.Authentication("bad password"),
	})

	require.Len(t, sink.metrics, 1)
	assert.Equal(t, "authentication", sink.metrics[0].tags["error_class"])
}

func TestEmitSessionTransition_NilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitSessionTransition(nil, SessionMetric{Transition: TransitionExpire})
	})
}

func TestResultFor(t *testing.T) {
	assert.Equal(t, ResultSuccess, ResultFor(nil))
	assert.Equal(t, ResultError, ResultFor(errors.New("x")))
}
