package jwtauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, sub, role string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, portalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: role,
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type roleStoreFake struct {
	mu    sync.Mutex
	roles map[string]domain.Role
	gets  int
	err   error
}

func (f *roleStoreFake) SetRole(_ context.Context, userID string, role domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roles == nil {
		f.roles = map[string]domain.Role{}
	}
	f.roles[userID] = role
	return nil
}

func (f *roleStoreFake) GetRole(_ context.Context, userID string) (domain.Role, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return "", false, f.err
	}
	role, ok := f.roles[userID]
	return role, ok, nil
}

func TestResolveValidToken(t *testing.T) {
	r, err := NewResolver(Config{Secret: testSecret}, nil, nil)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	id, err := r.Resolve(context.Background(), signToken(t, testSecret, "d-1", "doctor", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id.UserID != "d-1" || id.Role != domain.RoleDoctor {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestResolveRejectsBadTokens(t *testing.T) {
	r, _ := NewResolver(Config{Secret: testSecret}, nil, nil)
	future := time.Now().Add(time.Hour)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"wrong secret": signToken(t, "other", "d-1", "doctor", future),
		"expired":      signToken(t, testSecret, "d-1", "doctor", time.Now().Add(-time.Hour)),
		"no subject":   signToken(t, testSecret, "", "doctor", future),
		"unknown role": signToken(t, testSecret, "d-1", "nurse", future),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := r.Resolve(context.Background(), token); !domain.IsKind(err, domain.ErrUnauthenticated) {
				t.Fatalf("expected ErrUnauthenticated, got %v", err)
			}
		})
	}
}

func TestResolveAppliesRoleOverride(t *testing.T) {
	store := &roleStoreFake{roles: map[string]domain.Role{"u-1": domain.RoleAdmin}}
	r, _ := NewResolver(Config{Secret: testSecret}, store, nil)

	id, err := r.Resolve(context.Background(), signToken(t, testSecret, "u-1", "patient", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id.Role != domain.RoleAdmin {
		t.Fatalf("expected override role admin, got %s", id.Role)
	}
}

func TestResolveFallsBackToTokenRoleWhenOverrideLookupFails(t *testing.T) {
	store := &roleStoreFake{err: errors.New("db down")}
	r, _ := NewResolver(Config{Secret: testSecret}, store, nil)

	id, err := r.Resolve(context.Background(), signToken(t, testSecret, "u-1", "patient", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id.Role != domain.RolePatient {
		t.Fatalf("expected token role patient, got %s", id.Role)
	}
}

func TestNewResolverRequiresSecret(t *testing.T) {
	if _, err := NewResolver(Config{}, nil, nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestCachedRoleStoreServesFromCacheAndEvictsOnSet(t *testing.T) {
	backing := &roleStoreFake{roles: map[string]domain.Role{"u-1": domain.RoleDoctor}}
	cache := NewCachedRoleStore(backing, 16, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		role, ok, err := cache.GetRole(ctx, "u-1")
		if err != nil || !ok || role != domain.RoleDoctor {
			t.Fatalf("GetRole() = %s %v %v", role, ok, err)
		}
	}
	if _, ok, _ := cache.GetRole(ctx, "u-2"); ok {
		t.Fatalf("expected no override for u-2")
	}
	if _, _, _ = cache.GetRole(ctx, "u-2"); backing.gets != 2 {
		t.Fatalf("expected 2 backing lookups, got %d", backing.gets)
	}

	if err := cache.SetRole(ctx, "u-1", domain.RoleAdmin); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	role, _, _ := cache.GetRole(ctx, "u-1")
	if role != domain.RoleAdmin {
		t.Fatalf("expected fresh role after SetRole, got %s", role)
	}
}
