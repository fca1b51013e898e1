package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/trustline/internal/auth/credentials"
	"github.com/aussiebroadwan/trustline/internal/auth/domain"
	"github.com/aussiebroadwan/trustline/internal/auth/store"
	"github.com/aussiebroadwan/trustline/pkg/cryptox"
	"github.com/aussiebroadwan/trustline/pkg/httpx"
	"github.com/aussiebroadwan/trustline/pkg/jwtx"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
)

// SessionService orchestrates login, refresh rotation and logout on top of the
// token codec, the session and revocation stores, and the credential lookup.
type SessionService struct {
	Tokens      *jwtx.TokenCodec
	Sessions    store.RefreshSessions
	Revocations store.Revocations
	Credentials credentials.Store
}

var _ httpx.PrincipalLoader = (*SessionService)(nil)

// Login authenticates email and password and opens a refresh session.
func (s *SessionService) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidRequest
	}
	l := slogx.FromContext(ctx)

	user, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	l = l.With(slog.String("user_id", user.ID))

	if err := s.checkBlocked(ctx, user.ID); err != nil {
		if errors.Is(err, ErrUserBlocked) {
			l.Warn("login refused for blocked account")
		}
		return nil, err
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		l.Info("login failed: bad credentials")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	l.Info("login succeeded")
	return pair, nil
}

// Refresh rotates refreshToken: the presented token is consumed and a new
// access and refresh pair is issued. Every token is single use.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidRefresh
	}
	l := slogx.FromContext(ctx).With(slog.String("token_fp", cryptox.FingerprintToken(refreshToken)))

	claims, err := s.Tokens.ExtractClaims(refreshToken, jwtx.RefreshToken)
	if err != nil {
		l.Info("refresh rejected: unreadable token", "err", err)
		return nil, ErrInvalidRefresh
	}

	user, err := s.lookup(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}
	l = l.With(slog.String("user_id", user.ID))

	if !s.Tokens.Verify(refreshToken, user.Email, jwtx.RefreshToken) {
		return nil, ErrInvalidRefresh
	}
	if err := s.checkBlocked(ctx, user.ID); err != nil {
		return nil, err
	}

	// Consume is the single-use check: of two concurrent refreshes with the
	// same token only one removes the key.
	consumed, err := s.Sessions.Consume(ctx, refreshToken, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: consume refresh: %w", ErrUnavailable, err)
	}
	if !consumed {
		l.Info("refresh rejected: session not live")
		return nil, ErrInvalidRefresh
	}

	return s.issue(ctx, user)
}

// Logout ends the refresh session and revokes the access token. The two are
// independent: both are attempted and bad or blank tokens are skipped. A
// failed cache write on either returns ErrUnavailable.
func (s *SessionService) Logout(ctx context.Context, refreshToken, accessToken string) error {
	l := slogx.FromContext(ctx)

	var revokeErr error
	if accessToken = strings.TrimSpace(accessToken); accessToken != "" {
		ttl := s.Tokens.RemainingTTL(accessToken, jwtx.AccessToken)
		if err := s.Revocations.Blacklist(ctx, accessToken, ttl); err != nil {
			l.Error("blacklist access token", "err", err, "token_fp", cryptox.FingerprintToken(accessToken))
			revokeErr = fmt.Errorf("%w: blacklist: %w", ErrUnavailable, err)
		}
	}

	if err := s.endSession(ctx, strings.TrimSpace(refreshToken)); err != nil {
		return err
	}
	return revokeErr
}

func (s *SessionService) endSession(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	l := slogx.FromContext(ctx)

	claims, err := s.Tokens.ExtractClaims(refreshToken, jwtx.RefreshToken)
	if err != nil {
		l.Debug("logout: ignoring unreadable refresh token", "err", err)
		return nil
	}
	user, err := s.Credentials.FindByEmail(ctx, claims.Subject)
	if err != nil && !errors.Is(err, credentials.ErrUserDisabled) {
		l.Warn("logout: user lookup failed, refresh session left to expire", "err", err)
		return nil
	}
	if err := s.Sessions.Delete(ctx, refreshToken, user.ID); err != nil {
		return fmt.Errorf("%w: delete refresh: %w", ErrUnavailable, err)
	}
	l.Info("logout", slog.String("user_id", user.ID))
	return nil
}

// Validate reports the identity of an authenticated principal.
func (s *SessionService) Validate(p *httpx.Principal) (domain.Validation, error) {
	if p == nil {
		return domain.Validation{}, ErrInvalidCredentials
	}
	if !p.Enabled {
		return domain.Validation{}, ErrUserDisabled
	}
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	return domain.Validation{UserID: p.UserID, Roles: roles}, nil
}

// LoadPrincipal resolves a token subject for the request authenticator.
// Disabled users load with Enabled unset so authorization can refuse them.
func (s *SessionService) LoadPrincipal(ctx context.Context, subject string) (*httpx.Principal, error) {
	user, err := s.Credentials.FindByEmail(ctx, subject)
	if err != nil && !errors.Is(err, credentials.ErrUserDisabled) {
		return nil, err
	}
	return &httpx.Principal{
		Subject: user.Email,
		UserID:  user.ID,
		Roles:   user.Roles,
		Enabled: user.Enabled,
	}, nil
}

func (s *SessionService) lookup(ctx context.Context, email string) (domain.User, error) {
	user, err := s.Credentials.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, credentials.ErrUserNotFound):
		return domain.User{}, ErrUserNotFound
	case errors.Is(err, credentials.ErrUserDisabled):
		return domain.User{}, ErrUserDisabled
	default:
		slogx.FromContext(ctx).Error("credential lookup failed", "err", err)
		return domain.User{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

// checkBlocked denies when the block list can't be read.
func (s *SessionService) checkBlocked(ctx context.Context, userID string) error {
	blocked, err := s.Revocations.IsBlocked(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: block lookup: %w", ErrUnavailable, err)
	}
	if blocked {
		return ErrUserBlocked
	}
	return nil
}

func (s *SessionService) issue(ctx context.Context, user domain.User) (*domain.TokenPair, error) {
	access, err := s.Tokens.MintAccess(user.Email, user.ID, user.Roles)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := s.Tokens.MintRefresh(user.Email)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}

	if err := s.Sessions.Save(ctx, refresh, user.ID); err != nil {
		switch {
		case errors.Is(err, store.ErrSessionLimit):
			slogx.FromContext(ctx).Warn("session limit reached, account blocked", slog.String("user_id", user.ID))
			return nil, ErrSessionLimit
		case errors.Is(err, store.ErrUserBlocked):
			return nil, ErrUserBlocked
		default:
			return nil, fmt.Errorf("%w: save refresh: %w", ErrUnavailable, err)
		}
	}

	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh, UserID: user.ID}, nil
}
