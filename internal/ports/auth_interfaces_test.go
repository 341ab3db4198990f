package ports_test

import (
	"testing"

	"github.com/target/libsession/internal/adapters/credstore"
	"github.com/target/libsession/internal/clock"
	"github.com/target/libsession/internal/mocks"
	mockauth "github.com/target/libsession/internal/mocks/auth"
	"github.com/target/libsession/internal/observability/statsd"
	"github.com/target/libsession/internal/ports"
)

// This test only verifies that our doubles and adapters conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.AuthBackend = (*mockauth.StubBackend)(nil)
	var _ ports.AuthBackend = (*mocks.MockAuthBackend)(nil)
	var _ ports.CredentialStore = (*mockauth.MemoryCredentialStore)(nil)
	var _ ports.KeyValueStore = (*credstore.MemoryStore)(nil)
	var _ ports.KeyValueStore = (*credstore.SQLiteStore)(nil)
	var _ ports.CredentialStore = (*credstore.Slot)(nil)
	var _ ports.KeyValueStore = (*mocks.MockKeyValueStore)(nil)
	var _ ports.Clock = clock.Real{}
	var _ ports.Clock = (*clock.Manual)(nil)
	var _ ports.MetricsSink = (*statsd.Client)(nil)
}
