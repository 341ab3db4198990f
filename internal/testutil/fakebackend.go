package testutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// FakeUser is an account known to FakeBackend.
type FakeUser struct {
	ID          int
	FullName    string
	Email       string
	Password    string
	Role        string
	IsAdmin     bool
	IsLibrarian bool
	Roles       []string
	Inactive    bool
}

// FakeBackend is an httptest server implementing the /auth/* contract.
// Credentials are HS256 tokens signed with SigningSecret and verified server-side.
type FakeBackend struct {
	Server *httptest.Server

	// TTL is the lifetime of issued credentials.
	TTL time.Duration
	// Now is the server clock.
	Now func() time.Time
	// MeHandler, when set, replaces the /auth/me handler.
	MeHandler http.HandlerFunc
	// LogoutHandler, when set, replaces the /auth/logout handler.
	LogoutHandler http.HandlerFunc

	t           TestingTB
	mu          sync.Mutex
	nextID      int
	users       map[string]*FakeUser
	revoked     map[string]bool
	resetTokens map[string]string
	logouts     []string
	requests    []*http.Request
}

// NewFakeBackend starts a fake backend seeded with users. The server is closed
// on test cleanup when t supports it.
func NewFakeBackend(t TestingTB, users ...FakeUser) *FakeBackend {
	t.Helper()
	fb := &FakeBackend{
		TTL:         time.Hour,
		Now:         time.Now,
		t:           t,
		users:       make(map[string]*FakeUser),
		revoked:     make(map[string]bool),
		resetTokens: make(map[string]string),
	}
	for _, u := range users {
		fb.AddUser(u)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", fb.handleLogin)
	mux.HandleFunc("POST /auth/register", fb.handleRegister)
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		if fb.MeHandler != nil {
			fb.MeHandler(w, r)
			return
		}
		fb.handleMe(w, r)
	})
	mux.HandleFunc("POST /auth/forgot-password", fb.handleForgot)
	mux.HandleFunc("POST /auth/reset-password", fb.handleReset)
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.logouts = append(fb.logouts, bearer(r))
		fb.mu.Unlock()
		if fb.LogoutHandler != nil {
			fb.LogoutHandler(w, r)
			return
		}
		fb.handleLogout(w, r)
	})

	fb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.requests = append(fb.requests, r.Clone(r.Context()))
		fb.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	if tc, ok := any(t).(interface{ Cleanup(func()) }); ok {
		tc.Cleanup(fb.Server.Close)
	}
	return fb
}

// URL returns the server base URL.
func (fb *FakeBackend) URL() string { return fb.Server.URL }

// AddUser registers an account, assigning an ID when missing.
func (fb *FakeBackend) AddUser(u FakeUser) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.nextID++
	if u.ID == 0 {
		u.ID = fb.nextID
	}
	fb.users[strings.ToLower(u.Email)] = &u
}

// IssueCredential mints a credential for email exactly as /auth/login would.
func (fb *FakeBackend) IssueCredential(email string) string {
	fb.mu.Lock()
	u := fb.users[strings.ToLower(email)]
	fb.mu.Unlock()
	role := ""
	if u != nil {
		role = u.Role
	}
	return MintCredentialClaims(fb.t, jwt.MapClaims{
		"sub":   strings.ToLower(email),
		"exp":   fb.Now().Add(fb.TTL).Unix(),
		"jti":   uuid.NewString(),
		"role":  role,
		"email": strings.ToLower(email),
	})
}

// ResetTokenFor returns the reset token issued by forgot-password for email.
func (fb *FakeBackend) ResetTokenFor(email string) string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for token, owner := range fb.resetTokens {
		if owner == strings.ToLower(email) {
			return token
		}
	}
	return ""
}

// Logouts returns the bearer credentials seen by /auth/logout.
func (fb *FakeBackend) Logouts() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.logouts...)
}

// Requests returns clones of every request served, in arrival order.
func (fb *FakeBackend) Requests() []*http.Request {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]*http.Request(nil), fb.requests...)
}

// Password returns the current password of email.
func (fb *FakeBackend) Password(email string) string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if u := fb.users[strings.ToLower(email)]; u != nil {
		return u.Password
	}
	return ""
}

func (fb *FakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	fb.mu.Lock()
	u := fb.users[strings.ToLower(in.Email)]
	fb.mu.Unlock()
	switch {
	case u == nil || u.Password != in.Password:
		WriteDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	case u.Inactive:
		WriteDetail(w, http.StatusBadRequest, "Inactive user")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": fb.IssueCredential(u.Email),
		"token_type":   "bearer",
		"user_id":      u.ID,
		"email":        u.Email,
		"role":         u.Role,
	})
}

func (fb *FakeBackend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	var missing []map[string]any
	for field, v := range map[string]string{"email": in.Email, "password": in.Password} {
		if v == "" {
			missing = append(missing, map[string]any{"loc": []string{"body", field}, "msg": field + " field required"})
		}
	}
	if len(missing) > 0 {
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": missing})
		return
	}

	fb.mu.Lock()
	_, exists := fb.users[strings.ToLower(in.Email)]
	fb.mu.Unlock()
	if exists {
		WriteDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	fb.AddUser(FakeUser{FullName: in.FullName, Email: in.Email, Password: in.Password, Role: "member"})
	WriteJSON(w, http.StatusCreated, map[string]any{"email": in.Email, "full_name": in.FullName})
}

func (fb *FakeBackend) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := fb.authenticate(r)
	if err != nil {
		WriteDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	body := map[string]any{
		"id":           u.ID,
		"email":        u.Email,
		"full_name":    u.FullName,
		"is_active":    !u.Inactive,
		"is_admin":     u.IsAdmin,
		"is_librarian": u.IsLibrarian,
	}
	if u.Role != "" {
		body["role"] = u.Role
	}
	if len(u.Roles) > 0 {
		body["roles"] = u.Roles
	}
	WriteJSON(w, http.StatusOK, body)
}

func (fb *FakeBackend) handleForgot(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if !strings.Contains(in.Email, "@") {
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "email"}, "msg": "value is not a valid email address"}},
		})
		return
	}
	fb.mu.Lock()
	if _, ok := fb.users[strings.ToLower(in.Email)]; ok {
		fb.resetTokens[uuid.NewString()] = strings.ToLower(in.Email)
	}
	fb.mu.Unlock()
	WriteJSON(w, http.StatusOK, map[string]any{"message": "If the email exists, a reset link has been sent"})
}

func (fb *FakeBackend) handleReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	email, ok := fb.resetTokens[in.Token]
	if !ok {
		WriteJSON(w, http.StatusBadRequest, map[string]any{"detail": map[string]any{"msg": "Invalid or expired token"}})
		return
	}
	delete(fb.resetTokens, in.Token)
	fb.users[email].Password = in.NewPassword
	WriteJSON(w, http.StatusOK, map[string]any{"message": "Password updated"})
}

func (fb *FakeBackend) handleLogout(w http.ResponseWriter, r *http.Request) {
	if tok := bearer(r); tok != "" {
		fb.mu.Lock()
		fb.revoked[tok] = true
		fb.mu.Unlock()
	}
	WriteJSON(w, http.StatusOK, map[string]any{"message": "Logged out"})
}

func (fb *FakeBackend) authenticate(r *http.Request) (*FakeUser, error) {
	raw := bearer(r)
	if raw == "" {
		return nil, errors.New("missing bearer")
	}
	fb.mu.Lock()
	revoked := fb.revoked[raw]
	fb.mu.Unlock()
	if revoked {
		return nil, errors.New("revoked")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(SigningSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(fb.Now))
	if err != nil {
		return nil, err
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, err
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	u, ok := fb.users[sub]
	if !ok {
		return nil, errors.New("unknown user")
	}
	cp := *u
	return &cp, nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body"}, "msg": "invalid JSON body"}},
		})
		return false
	}
	return true
}

// WriteJSON writes v as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteDetail writes a {"detail": msg} error body.
func WriteDetail(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]any{"detail": msg})
}
