package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mockauth "github.com/target/libsession/internal/mocks/auth"
)

type capturedRequest struct {
	auth      string
	requestID string
}

func recordingServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, capturedRequest{auth: r.Header.Get("Authorization"), requestID: r.Header.Get(RequestIDHeader)})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), seen...)
	}
}

func doGet(t *testing.T, client *http.Client, ctx context.Context, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestTransport_AttachesStoredCredential(t *testing.T) {
	srv, seen := recordingServer(t, http.StatusOK)
	store := mockauth.NewMemoryCredentialStore("cred-1")
	client := &http.Client{Transport: NewTransport(TransportOptions{Store: store})}

	doGet(t, client, context.Background(), srv.URL)

	got := seen()
	require.Len(t, got, 1)
	assert.Equal(t, "Bearer cred-1", got[0].auth)
	assert.NotEmpty(t, got[0].requestID)
}

func TestTransport_NoCredentialNoHeader(t *testing.T) {
	srv, seen := recordingServer(t, http.StatusOK)
	client := &http.Client{Transport: NewTransport(TransportOptions{Store: mockauth.NewMemoryCredentialStore("")})}

	doGet(t, client, context.Background(), srv.URL)

	assert.Empty(t, seen()[0].auth)
}

func TestTransport_ReadsStorePerRequest(t *testing.T) {
	srv, seen := recordingServer(t, http.StatusOK)
	store := mockauth.NewMemoryCredentialStore("first")
	client := &http.Client{Transport: NewTransport(TransportOptions{Store: store})}
	ctx := context.Background()

	doGet(t, client, ctx, srv.URL)
	store.Clear(ctx)
	doGet(t, client, ctx, srv.URL)
	store.Save(ctx, "second")
	doGet(t, client, ctx, srv.URL)

	got := seen()
	require.Len(t, got, 3)
	assert.Equal(t, "Bearer first", got[0].auth)
	assert.Empty(t, got[1].auth, "a retry after logout must not reuse the old credential")
	assert.Equal(t, "Bearer second", got[2].auth)
	assert.NotEqual(t, got[0].requestID, got[2].requestID)
}

func TestTransport_ExplicitAuthorizationWins(t *testing.T) {
	srv, seen := recordingServer(t, http.StatusOK)
	store := mockauth.NewMemoryCredentialStore("stored")
	client := &http.Client{Transport: NewTransport(TransportOptions{Store: store})}

	req, err := http.NewRequest(http.MethodPost, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer explicit")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer explicit", seen()[0].auth)
	assert.Empty(t, req.Header.Get(RequestIDHeader), "caller's request is not mutated")
}

func TestTransport_UnauthorizedClearsStoreAndNotifies(t *testing.T) {
	srv, _ := recordingServer(t, http.StatusUnauthorized)
	store := mockauth.NewMemoryCredentialStore("cred")
	var notified atomic.Int32
	client := &http.Client{Transport: NewTransport(TransportOptions{
		Store:         store,
		OnAuthFailure: func(context.Context) { notified.Add(1) },
	})}

	resp := doGet(t, client, context.Background(), srv.URL)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "response is passed through unchanged")
	_, ok := store.Load(context.Background())
	assert.False(t, ok)
	assert.Equal(t, int32(1), notified.Load())
}

func TestTransport_UnauthorizedForSupersededCredential(t *testing.T) {
	store := mockauth.NewMemoryCredentialStore("old")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A new login lands while the old request is in flight.
		store.Save(r.Context(), "new")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	var notified atomic.Int32
	client := &http.Client{Transport: NewTransport(TransportOptions{
		Store:         store,
		OnAuthFailure: func(context.Context) { notified.Add(1) },
	})}

	doGet(t, client, context.Background(), srv.URL)

	got, ok := store.Load(context.Background())
	require.True(t, ok)
	assert.Equal(t, "new", got)
	assert.Zero(t, notified.Load())
}

func TestTransport_PublicRequests(t *testing.T) {
	srv, seen := recordingServer(t, http.StatusUnauthorized)
	store := mockauth.NewMemoryCredentialStore("cred")
	client := &http.Client{Transport: NewTransport(TransportOptions{Store: store})}

	doGet(t, client, WithoutCredential(context.Background()), srv.URL)

	assert.Empty(t, seen()[0].auth)
	_, ok := store.Load(context.Background())
	assert.True(t, ok, "a 401 on a public call leaves the session alone")
}

func TestTransport_OtherStatusesLeaveStore(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusForbidden, http.StatusInternalServerError} {
		srv, _ := recordingServer(t, status)
		store := mockauth.NewMemoryCredentialStore("cred")
		client := &http.Client{Transport: NewTransport(TransportOptions{Store: store})}

		doGet(t, client, context.Background(), srv.URL)

		_, ok := store.Load(context.Background())
		assert.True(t, ok, "status %d", status)
	}
}

func TestTransport_ConcurrentRequests(t *testing.T) {
	srv, seen := recordingServer(t, http.StatusOK)
	store := mockauth.NewMemoryCredentialStore("cred")
	client := &http.Client{Transport: NewTransport(TransportOptions{Store: store})}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
			if resp, err := client.Do(req); err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	for _, r := range seen() {
		assert.Equal(t, "Bearer cred", r.auth)
	}
}
