package verifier_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
	"github.com/jrsteele09/epr-admin-frontend/internal/testhelper"
	"github.com/jrsteele09/epr-admin-frontend/oidc/discovery"
	"github.com/jrsteele09/epr-admin-frontend/token/verifier"
	"github.com/stretchr/testify/require"
)

func setupTestFixture(t *testing.T) (*testhelper.IdentityProvider, *verifier.Verifier) {
	t.Helper()
	idp := testhelper.NewIdentityProvider(t)
	v := verifier.New(discovery.New(idp.WellKnownURL()), verifier.Options{
		ClientID: testhelper.ClientID,
	})
	return idp, v
}

func TestVerifier_VerifyToken(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		idp, v := setupTestFixture(t)
		raw := idp.MintToken(idp.AccessTokenClaims(jwt.MapClaims{"email": "jo@example.com"}))

		claims, err := v.VerifyToken(context.Background(), raw)
		require.NoError(t, err)
		require.Equal(t, "subject-1", claims.Subject)
		require.Equal(t, "object-1", claims.ObjectID)
		require.Equal(t, "Test User", claims.Name)
		require.Equal(t, "jo@example.com", claims.Email)
		require.Equal(t, "test.user@example.com", claims.PreferredUsername)
		require.Equal(t, idp.Issuer(), claims.Issuer)
		require.Contains(t, claims.Audience, testhelper.ClientID)
		require.Equal(t, "object-1", claims.Raw["oid"])
	})

	t.Run("signed by another key", func(t *testing.T) {
		idp, v := setupTestFixture(t)
		otherKey := testhelper.GenerateRSAKey(t)
		raw := testhelper.SignToken(t, otherKey, testhelper.KeyID, idp.AccessTokenClaims(nil))

		_, err := v.VerifyToken(context.Background(), raw)
		require.Error(t, err)
		require.True(t, errors.Is(err, apperrors.ErrTokenVerification))
	})

	t.Run("unknown kid", func(t *testing.T) {
		idp, v := setupTestFixture(t)
		raw := testhelper.SignToken(t, idp.Key, "rotated-away", idp.AccessTokenClaims(nil))

		_, err := v.VerifyToken(context.Background(), raw)
		require.Error(t, err)
		require.True(t, errors.Is(err, apperrors.ErrTokenVerification))
	})

	t.Run("audience mismatch", func(t *testing.T) {
		idp, v := setupTestFixture(t)
		raw := idp.MintToken(idp.AccessTokenClaims(jwt.MapClaims{"aud": "someone-else"}))

		_, err := v.VerifyToken(context.Background(), raw)
		require.Error(t, err)
		require.True(t, errors.Is(err, apperrors.ErrTokenVerification))
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		idp, v := setupTestFixture(t)
		raw := idp.MintToken(idp.AccessTokenClaims(jwt.MapClaims{"iss": "https://login.example.com/other/v2.0"}))

		_, err := v.VerifyToken(context.Background(), raw)
		require.Error(t, err)
		require.True(t, errors.Is(err, apperrors.ErrTokenVerification))
	})

	t.Run("expired", func(t *testing.T) {
		idp, v := setupTestFixture(t)
		past := time.Now().Add(-2 * time.Hour)
		raw := idp.MintToken(idp.AccessTokenClaims(jwt.MapClaims{
			"iat": past.Unix(),
			"nbf": past.Unix(),
			"exp": past.Add(time.Hour).Unix(),
		}))

		_, err := v.VerifyToken(context.Background(), raw)
		require.Error(t, err)
		require.True(t, errors.Is(err, apperrors.ErrTokenVerification))
	})

	t.Run("malformed", func(t *testing.T) {
		_, v := setupTestFixture(t)

		_, err := v.VerifyToken(context.Background(), "not-a-jwt")
		require.Error(t, err)
		require.True(t, errors.Is(err, apperrors.ErrTokenVerification))
	})

	t.Run("discovery failure", func(t *testing.T) {
		idp, v := setupTestFixture(t)
		raw := idp.MintToken(idp.AccessTokenClaims(nil))
		idp.SetDiscoveryStatus(http.StatusBadGateway)

		_, err := v.VerifyToken(context.Background(), raw)
		require.Error(t, err)
		require.True(t, errors.Is(err, apperrors.ErrDiscoveryFailed))
		require.False(t, errors.Is(err, apperrors.ErrTokenVerification))
	})
}

func TestVerifier_ConfiguredIssuer(t *testing.T) {
	idp := testhelper.NewIdentityProvider(t)
	v := verifier.New(discovery.New(idp.WellKnownURL()), verifier.Options{
		ClientID: testhelper.ClientID,
		Issuer:   "https://login.microsoftonline.com/tenant-guid/v2.0",
	})

	t.Run("discovery issuer is rejected", func(t *testing.T) {
		_, err := v.VerifyToken(context.Background(), idp.MintToken(idp.AccessTokenClaims(nil)))
		require.Error(t, err)
		require.True(t, errors.Is(err, apperrors.ErrTokenVerification))
	})

	t.Run("configured issuer is accepted", func(t *testing.T) {
		raw := idp.MintToken(idp.AccessTokenClaims(jwt.MapClaims{"iss": "https://login.microsoftonline.com/tenant-guid/v2.0"}))
		claims, err := v.VerifyToken(context.Background(), raw)
		require.NoError(t, err)
		require.Equal(t, "subject-1", claims.Subject)
	})
}

func TestVerifier_Clock(t *testing.T) {
	idp := testhelper.NewIdentityProvider(t)
	future := time.Now().Add(3 * time.Hour)
	v := verifier.New(discovery.New(idp.WellKnownURL()), verifier.Options{
		ClientID: testhelper.ClientID,
		Now:      func() time.Time { return future },
	})

	_, err := v.VerifyToken(context.Background(), idp.MintToken(idp.AccessTokenClaims(nil)))
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrTokenVerification))
}
