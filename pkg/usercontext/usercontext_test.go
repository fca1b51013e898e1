package usercontext_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/trustline/pkg/jwtx"
	"github.com/aussiebroadwan/trustline/pkg/usercontext"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testKey = func() *rsa.PrivateKey {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return k
}()

func newSigner(t *testing.T) *jwtx.RS256Signer {
	t.Helper()
	s, err := jwtx.NewSignerRS256("gw-1", testKey)
	require.NoError(t, err)
	return s
}

func newVerifier(t *testing.T, s jwtx.Signer) *usercontext.Verifier {
	t.Helper()
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddSigner(s))
	return &usercontext.Verifier{Keys: keys}
}

func decode(t *testing.T, token string) *usercontext.Claims {
	t.Helper()
	claims := &usercontext.Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	return claims
}

func TestMintClaims(t *testing.T) {
	now := time.Unix(1700000000, 0)
	m := &usercontext.Minter{Signer: newSigner(t), Clock: func() time.Time { return now }}
	rid := uuid.NewString()

	token, err := m.Mint("42", []string{"ROLE_USER"}, rid, 10*time.Second)
	require.NoError(t, err)

	claims := decode(t, token)
	require.Equal(t, "42", claims.Subject)
	require.Equal(t, rid, claims.RequestID)
	require.Equal(t, []string{"ROLE_USER"}, claims.Roles)
	require.Equal(t, "1.0", claims.Version)
	require.Equal(t, usercontext.DefaultIssuer, claims.Issuer)
	require.Equal(t, 10*time.Second, claims.ExpiresAt.Sub(claims.IssuedAt.Time))

	parsed, _, err := jwt.NewParser().ParseUnverified(token, &usercontext.Claims{})
	require.NoError(t, err)
	require.Equal(t, "gw-1", parsed.Header["kid"])
	require.Equal(t, "JWT", parsed.Header["typ"])
	require.Equal(t, "RS256", parsed.Header["alg"])
}

func TestMintTTLFallback(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	tests := []struct {
		name       string
		defaultTTL time.Duration
		requested  time.Duration
		want       time.Duration
	}{
		{"requested wins", time.Minute, 10 * time.Second, 10 * time.Second},
		{"zero falls back to default", time.Minute, 0, time.Minute},
		{"negative falls back to default", time.Minute, -time.Second, time.Minute},
		{"invalid default falls back to floor", -time.Minute, 0, 30 * time.Second},
		{"no default falls back to floor", 0, 0, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &usercontext.Minter{Signer: newSigner(t), DefaultTTL: tt.defaultTTL, Clock: clock}
			token, err := m.Mint("42", nil, uuid.NewString(), tt.requested)
			require.NoError(t, err)

			claims := decode(t, token)
			require.Equal(t, tt.want, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
		})
	}
}

func TestMintNilRolesEncodeAsEmptyArray(t *testing.T) {
	m := &usercontext.Minter{Signer: newSigner(t)}
	token, err := m.Mint("42", nil, uuid.NewString(), 0)
	require.NoError(t, err)

	claims := decode(t, token)
	require.NotNil(t, claims.Roles)
	require.Empty(t, claims.Roles)
}

func TestMintRequiresIdentity(t *testing.T) {
	m := &usercontext.Minter{Signer: newSigner(t)}

	_, err := m.Mint("", []string{"ROLE_USER"}, uuid.NewString(), 0)
	require.ErrorIs(t, err, usercontext.ErrMissingIdentity)

	_, err = m.Mint("42", nil, "  ", 0)
	require.ErrorIs(t, err, usercontext.ErrMissingIdentity)
}

func TestVerifier(t *testing.T) {
	signer := newSigner(t)
	now := time.Now()
	m := &usercontext.Minter{Signer: signer, Clock: func() time.Time { return now }}
	v := newVerifier(t, signer)
	rid := uuid.NewString()

	token, err := m.Mint("42", []string{"ROLE_ADMIN"}, rid, 10*time.Second)
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		claims, err := v.Verify(token, rid)
		require.NoError(t, err)
		require.Equal(t, "42", claims.Subject)
		require.Equal(t, []string{"ROLE_ADMIN"}, claims.Roles)
	})

	t.Run("replayed on another request", func(t *testing.T) {
		_, err := v.Verify(token, uuid.NewString())
		require.ErrorIs(t, err, usercontext.ErrRequestID)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		other := &usercontext.Verifier{Keys: v.Keys, Issuer: "someone-else"}
		_, err := other.Verify(token, rid)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("expired", func(t *testing.T) {
		late := &usercontext.Verifier{Keys: v.Keys, Clock: func() time.Time { return now.Add(time.Minute) }}
		_, err := late.Verify(token, rid)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("within leeway", func(t *testing.T) {
		late := &usercontext.Verifier{Keys: v.Keys, Clock: func() time.Time { return now.Add(12 * time.Second) }}
		_, err := late.Verify(token, rid)
		require.NoError(t, err)
	})

	t.Run("unknown signer", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		s, err := jwtx.NewSignerRS256("rogue", other)
		require.NoError(t, err)
		forged, err := (&usercontext.Minter{Signer: s}).Mint("1", nil, rid, 0)
		require.NoError(t, err)

		_, err = v.Verify(forged, rid)
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})

	t.Run("wrong version", func(t *testing.T) {
		raw, err := signer.Sign(usercontext.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    usercontext.DefaultIssuer,
				Subject:   "42",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
			RequestID: rid,
			Version:   "0.9",
		})
		require.NoError(t, err)

		_, err = v.Verify(raw, rid)
		require.ErrorIs(t, err, usercontext.ErrVersion)
	})
}

type failingSigner struct{ jwtx.Signer }

func (failingSigner) Sign(jwt.Claims) (string, error) { return "", errors.New("hsm offline") }

func TestVerifierFromPEM(t *testing.T) {
	now := time.Now()
	m := &usercontext.Minter{Signer: newSigner(t), Clock: func() time.Time { return now }}
	rid := uuid.NewString()
	token, err := m.Mint("42", []string{"ROLE_USER"}, rid, 10*time.Second)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&testKey.PublicKey)
	require.NoError(t, err)
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	t.Run("matching kid", func(t *testing.T) {
		v, err := usercontext.NewVerifierFromPEM("gw-1", publicPEM)
		require.NoError(t, err)

		claims, err := v.Verify(token, rid)
		require.NoError(t, err)
		require.Equal(t, "42", claims.Subject)
	})

	t.Run("other kid", func(t *testing.T) {
		v, err := usercontext.NewVerifierFromPEM("gw-2", publicPEM)
		require.NoError(t, err)

		_, err = v.Verify(token, rid)
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})

	t.Run("bad pem", func(t *testing.T) {
		_, err := usercontext.NewVerifierFromPEM("gw-1", []byte("not a key"))
		require.ErrorIs(t, err, jwtx.ErrInvalidPEM)
	})
}

func TestStage(t *testing.T) {
	signer := newSigner(t)
	minter := &usercontext.Minter{Signer: signer}
	verifier := newVerifier(t, signer)
	rid := uuid.NewString()

	var seen http.Header
	downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	})

	spoofed := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
		req.Header.Set("X-User-Id", "999")
		req.Header.Set("x-user-roles", "ROLE_ADMIN")
		req.Header.Set("X-Internal-Bypass", "1")
		req.Header.Set("X-AUTH-Token", "forged")
		req.Header.Set("X-User-Context", "forged")
		req.Header.Set("Accept", "application/json")
		return req
	}

	t.Run("replaces spoofed headers with established identity", func(t *testing.T) {
		seen = nil
		req := spoofed()
		req = req.WithContext(usercontext.WithIdentity(req.Context(), usercontext.Identity{
			UserID: "42", Roles: []string{"ROLE_USER", "ROLE_DOCTOR"}, RequestID: rid,
		}))

		rec := httptest.NewRecorder()
		usercontext.Stage(usercontext.StageOptions{Minter: minter, TTL: 10 * time.Second})(downstream).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, []string{"42"}, seen.Values("X-User-Id"))
		require.Equal(t, "ROLE_USER,ROLE_DOCTOR", seen.Get("X-User-Roles"))
		require.Empty(t, seen.Get("X-Internal-Bypass"))
		require.Empty(t, seen.Get("X-Auth-Token"))
		require.Equal(t, "application/json", seen.Get("Accept"))

		claims, err := verifier.Verify(seen.Get("X-User-Context"), rid)
		require.NoError(t, err)
		require.Equal(t, "42", claims.Subject)
	})

	t.Run("custom header name", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(usercontext.WithIdentity(req.Context(), usercontext.Identity{UserID: "42", RequestID: rid}))

		usercontext.Stage(usercontext.StageOptions{Minter: minter, Header: "X-Auth-Assertion"})(downstream).ServeHTTP(httptest.NewRecorder(), req)
		require.NotEmpty(t, seen.Get("X-Auth-Assertion"))
		require.Empty(t, seen.Get("X-User-Context"))
	})

	t.Run("missing identity is 401", func(t *testing.T) {
		seen = nil
		rec := httptest.NewRecorder()
		usercontext.Stage(usercontext.StageOptions{Minter: minter})(downstream).ServeHTTP(rec, spoofed())

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Nil(t, seen)
	})

	t.Run("blank user id is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(usercontext.WithIdentity(req.Context(), usercontext.Identity{UserID: " ", RequestID: rid}))

		rec := httptest.NewRecorder()
		usercontext.Stage(usercontext.StageOptions{Minter: minter})(downstream).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("fail open passes through unmodified", func(t *testing.T) {
		seen = nil
		rec := httptest.NewRecorder()
		usercontext.Stage(usercontext.StageOptions{Minter: minter, FailOpen: true})(downstream).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, seen.Get("X-User-Context"))
	})

	t.Run("signing failure is 500", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(usercontext.WithIdentity(req.Context(), usercontext.Identity{UserID: "42", RequestID: rid}))

		rec := httptest.NewRecorder()
		broken := &usercontext.Minter{Signer: failingSigner{signer}}
		usercontext.Stage(usercontext.StageOptions{Minter: broken})(downstream).ServeHTTP(rec, req)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestScrub(t *testing.T) {
	var seen http.Header
	h := usercontext.Scrub(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
	}))

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set("X-User-Id", "999")
	req.Header.Set("X-Request-Id", "keep")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Empty(t, seen.Get("X-User-Id"))
	require.Equal(t, "keep", seen.Get("X-Request-Id"))
}

func TestVerifierMiddleware(t *testing.T) {
	signer := newSigner(t)
	minter := &usercontext.Minter{Signer: signer}
	v := newVerifier(t, signer)
	rid := uuid.NewString()

	token, err := minter.Mint("42", []string{"ROLE_USER"}, rid, 0)
	require.NoError(t, err)

	var got usercontext.Identity
	h := v.Middleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = usercontext.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		token  string
		rid    string
		status int
	}{
		{"valid", token, rid, http.StatusOK},
		{"missing assertion", "", rid, http.StatusUnauthorized},
		{"missing request id", token, "", http.StatusUnauthorized},
		{"other request id", token, uuid.NewString(), http.StatusUnauthorized},
		{"garbage", "a.b.c", rid, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.token != "" {
				req.Header.Set(usercontext.DefaultHeader, tt.token)
			}
			if tt.rid != "" {
				req.Header.Set("X-Request-Id", tt.rid)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
		})
	}

	require.Equal(t, "42", got.UserID)
	require.Equal(t, rid, got.RequestID)
}
