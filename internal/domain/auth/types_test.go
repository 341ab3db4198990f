package auth

import (
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in     string
		want   Role
		wantOK bool
	}{
		{"admin", RoleAdmin, true},
		{"ADMIN", RoleAdmin, true},
		{" Librarian ", RoleLibrarian, true},
		{"member", RoleMember, true},
		{"anonymous", "", false},
		{"staff", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseRole(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRole_IsAtLeast(t *testing.T) {
	if !RoleAdmin.IsAtLeast(RoleLibrarian) {
		t.Fatalf("expected admin to cover librarian")
	}
	if RoleMember.IsAtLeast(RoleLibrarian) {
		t.Fatalf("did not expect member to cover librarian")
	}
	if !RoleAnonymous.IsAtLeast(RoleAnonymous) {
		t.Fatalf("expected anonymous to cover anonymous")
	}
}

func TestClaimSet_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	c := ClaimSet{Exp: now.Add(90 * time.Second)}
	if c.Expired(now) {
		t.Fatalf("did not expect expired")
	}
	if got := c.Remaining(now); got != 90*time.Second {
		t.Fatalf("Remaining = %v, want 90s", got)
	}

	past := ClaimSet{Exp: now.Add(-time.Second)}
	if !past.Expired(now) {
		t.Fatalf("expected expired")
	}
	if got := past.Remaining(now); got != 0 {
		t.Fatalf("Remaining = %v, want 0", got)
	}

	if !(ClaimSet{Exp: now}).Expired(now) {
		t.Fatalf("expected exp == now to count as expired")
	}
}

func TestSession_Helpers(t *testing.T) {
	s := Session{Status: StatusAuthenticated, Role: RoleLibrarian}
	if !s.IsAuthenticated() {
		t.Fatalf("expected authenticated")
	}
	if !s.HasAnyRole(RoleAdmin, RoleLibrarian) {
		t.Fatalf("expected librarian to be in set")
	}
	if s.HasAnyRole(RoleAdmin) {
		t.Fatalf("did not expect admin")
	}
	if !LoadingSession().IsLoading() {
		t.Fatalf("expected loading")
	}
	if a := AnonymousSession(); a.Status != StatusAnonymous || a.Role != RoleAnonymous {
		t.Fatalf("unexpected anonymous session: %+v", a)
	}
}

func TestResult(t *testing.T) {
	if r := Succeeded(); !r.Success || r.Error != "" {
		t.Fatalf("unexpected success result: %+v", r)
	}
	if r := Failed("nope"); r.Success || r.Error != "nope" {
		t.Fatalf("unexpected failure result: %+v", r)
	}
}
