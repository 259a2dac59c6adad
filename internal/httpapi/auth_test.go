package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cedipos/backend/internal/domain"
	"cedipos/backend/internal/store"
)

type userDirectoryStub struct {
	users map[string]domain.UserAccount
}

func (s *userDirectoryStub) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func stubDirectory(t *testing.T, role string, active bool) *userDirectoryStub {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return &userDirectoryStub{
		users: map[string]domain.UserAccount{
			"admin": {
				ID:           "user-admin",
				Username:     "admin",
				PasswordHash: string(hash),
				DisplayName:  "Store Admin",
				Role:         role,
				Active:       active,
				CreatedAt:    time.Now().UTC(),
			},
		},
	}
}

func TestLoginIssuesParseableToken(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, stubDirectory(t, domain.RoleSuperAdmin, true))

	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "Admin ",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleSuperAdmin {
		t.Fatalf("unexpected role %q", resp.Role)
	}
	if resp.DisplayName != "Store Admin" {
		t.Fatalf("unexpected display name %q", resp.DisplayName)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.ID != "user-admin" || actor.Username != "admin" || actor.Role != domain.RoleSuperAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, stubDirectory(t, domain.RoleSuperAdmin, true))

	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "nope",
	})
	if err == nil {
		t.Fatalf("expected login to fail")
	}
	if !strings.Contains(err.Error(), "invalid credentials") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, stubDirectory(t, domain.RoleSuperAdmin, true))

	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "ghost",
		Password: "admin123",
	})
	if err == nil {
		t.Fatalf("expected login to fail for unknown user")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, stubDirectory(t, domain.RoleCashier, false))

	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err == nil {
		t.Fatalf("expected login to fail for inactive account")
	}
	if !strings.Contains(err.Error(), "inactive") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, stubDirectory(t, domain.RoleCashier, true))

	token, err := manager.sign(domain.UserAccount{
		ID:       "user-x",
		Username: "x",
		Role:     domain.RoleCashier,
	}, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	dir := stubDirectory(t, domain.RoleSuperAdmin, true)
	issuer := NewAuthManager("secret-one", time.Hour, dir)
	verifier := NewAuthManager("secret-two", time.Hour, dir)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
