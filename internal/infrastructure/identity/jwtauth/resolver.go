// Package jwtauth resolves bearer tokens into portal identities.
// Tokens are HS256 JWTs issued by the external identity provider and carry
// the user id in "sub" and the portal role in "role". Role overrides set by an
// administrator take precedence over the token role.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/core/ports"
)

type Config struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

type portalClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type Resolver struct {
	secret    []byte
	issuer    string
	leeway    time.Duration
	overrides ports.UserRoleStore
	logger    *slog.Logger
}

func NewResolver(cfg Config, overrides ports.UserRoleStore, logger *slog.Logger) (*Resolver, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		leeway:    cfg.Leeway,
		overrides: overrides,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}, nil
}

func (r *Resolver) Resolve(ctx context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthenticated, "resolve identity", errors.New("empty token"))
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(r.leeway),
	}
	if r.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(r.issuer))
	}

	claims := &portalClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, parserOpts...)
	if err != nil || !parsed.Valid {
		r.logger.Debug("jwt_rejected", "error", err)
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthenticated, "resolve identity", errors.New("invalid or expired token"))
	}

	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthenticated, "resolve identity", errors.New("token has no subject"))
	}

	identity := domain.Identity{UserID: subject, Role: domain.Role(claims.Role)}
	if r.overrides != nil {
		override, ok, err := r.overrides.GetRole(ctx, subject)
		switch {
		case err != nil:
			r.logger.Warn("role_override_lookup_failed", "user_id", subject, "error", err)
		case ok:
			identity.Role = override
		}
	}

	if !identity.Role.Valid() {
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthenticated, "resolve identity", fmt.Errorf("unknown role %q", identity.Role))
	}
	return identity, nil
}
