package testutil

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/libsession/internal/domain/auth"
)

func TestMintCredential_Decodes(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	cred := MintCredential(t, exp, "librarian")

	claims, err := domainauth.DecodeClaims(cred)
	require.NoError(t, err)
	assert.True(t, claims.Exp.Equal(exp))
	assert.Equal(t, "librarian", claims.Role)
}

func TestRunConcurrent_PreservesOrder(t *testing.T) {
	boom := errors.New("boom")
	errs := RunConcurrent(
		func() error { return nil },
		func() error { return boom },
	)
	require.Len(t, errs, 2)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("LIBSESSION_TESTUTIL_KEY", "")
	assert.Equal(t, "fallback", getEnvOrDefault("LIBSESSION_TESTUTIL_KEY", "fallback"))

	t.Setenv("LIBSESSION_TESTUTIL_KEY", "set")
	assert.Equal(t, "set", getEnvOrDefault("LIBSESSION_TESTUTIL_KEY", "fallback"))
	assert.Equal(t, "set", os.Getenv("LIBSESSION_TESTUTIL_KEY"))
}

func TestFakeBackend_LoginAndMe(t *testing.T) {
	fb := NewFakeBackend(t, FakeUser{Email: "a@b.com", Password: "pw", Role: "admin", FullName: "Ada"})

	resp, err := http.Post(fb.URL()+"/auth/login", "application/json",
		strings.NewReader(`{"email":"a@b.com","password":"pw"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, fb.URL()+"/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+fb.IssueCredential("a@b.com"))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
