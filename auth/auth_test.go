package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/epr-admin-frontend/auth"
	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
	"github.com/jrsteele09/epr-admin-frontend/internal/testhelper"
	"github.com/jrsteele09/epr-admin-frontend/oidc/discovery"
	"github.com/jrsteele09/epr-admin-frontend/sessions"
	"github.com/jrsteele09/epr-admin-frontend/token/verifier"
	"github.com/stretchr/testify/require"
)

const (
	baseURL      = "https://admin.example.com"
	callbackPath = "/auth/callback"
)

type fixture struct {
	idp      *testhelper.IdentityProvider
	manager  *sessions.Manager
	pending  *auth.PendingLogins
	strategy *auth.ProviderStrategy
}

func setupTestFixture(t *testing.T) *fixture {
	t.Helper()
	idp := testhelper.NewIdentityProvider(t)
	store := sessions.NewMemoryStore()
	codec, err := sessions.NewCookieCodec("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	manager := sessions.NewManager(store, codec, sessions.Options{
		CookieName: "epr_admin_session",
		CacheName:  "epr-admin-session",
		TTL:        time.Hour,
	})
	pending := auth.NewPendingLogins(store, manager.Key("pending"))
	disco := discovery.New(idp.WellKnownURL())

	strategy := auth.NewProviderStrategy(
		disco,
		verifier.New(disco, verifier.Options{ClientID: testhelper.ClientID}),
		pending,
		manager,
		auth.ProviderOptions{
			ClientID:     testhelper.ClientID,
			ClientSecret: testhelper.ClientSecret,
			Scopes:       []string{"openid", "profile", "email", "offline_access", "api://epr/.default"},
			BaseURL:      baseURL,
			CallbackPath: callbackPath,
		},
	)
	return &fixture{idp: idp, manager: manager, pending: pending, strategy: strategy}
}

type authorizeRequest struct {
	query     url.Values
	cookies   []*http.Cookie
	reference string
}

func (f *fixture) begin(t *testing.T, referer string) authorizeRequest {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, baseURL+"/auth/sign-in", nil)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	rec := httptest.NewRecorder()
	require.NoError(t, f.strategy.Begin(rec, req))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, f.idp.AuthorizeURL(), loc.Scheme+"://"+loc.Host+loc.Path)
	a := authorizeRequest{query: loc.Query(), cookies: rec.Result().Cookies()}
	require.NotEmpty(t, a.cookies, "the login is bound to a browser cookie")
	bound := httptest.NewRequest(http.MethodGet, baseURL+callbackPath, nil)
	for _, c := range a.cookies {
		bound.AddCookie(c)
	}
	var ok bool
	a.reference, ok = f.manager.Reference(bound)
	require.True(t, ok)
	return a
}

func (f *fixture) callback(a authorizeRequest, code string) *http.Request {
	q := url.Values{"code": {code}, "state": {a.query.Get("state")}}
	req := httptest.NewRequest(http.MethodGet, baseURL+callbackPath+"?"+q.Encode(), nil)
	for _, c := range a.cookies {
		req.AddCookie(c)
	}
	return req
}

func TestProviderStrategy_Begin(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, auth.ProviderStrategyName, f.strategy.Name())
	a := f.begin(t, "")

	require.Equal(t, testhelper.ClientID, a.query.Get("client_id"))
	require.Equal(t, "code", a.query.Get("response_type"))
	require.Equal(t, baseURL+callbackPath, a.query.Get("redirect_uri"))
	require.Equal(t, "openid profile email offline_access api://epr/.default", a.query.Get("scope"))
	require.Equal(t, "S256", a.query.Get("code_challenge_method"))
	require.NotEmpty(t, a.query.Get("code_challenge"))
	require.NotEmpty(t, a.query.Get("nonce"))
	require.NotEmpty(t, a.query.Get("state"))

	login, err := f.pending.Take(context.Background(), a.reference, a.query.Get("state"))
	require.NoError(t, err)
	require.Equal(t, a.query.Get("nonce"), login.Nonce)
	require.NotEqual(t, a.query.Get("code_challenge"), login.CodeVerifier, "only the challenge leaves the server")
}

func TestProviderStrategy_Location(t *testing.T) {
	tests := []struct {
		name     string
		referer  string
		expected string
	}{
		{"same origin absolute", baseURL + "/organisations?page=2", "/organisations?page=2"},
		{"relative", "/prns", "/prns"},
		{"other origin", "https://evil.example.net/phish", ""},
		{"callback path", baseURL + callbackPath + "?code=x", ""},
		{"none", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			req := httptest.NewRequest(http.MethodGet, baseURL+"/auth/sign-in", nil)
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			rec := httptest.NewRecorder()

			require.Equal(t, baseURL+callbackPath, f.strategy.Location(rec, req))

			next := httptest.NewRequest(http.MethodGet, baseURL+callbackPath, nil)
			for _, c := range rec.Result().Cookies() {
				next.AddCookie(c)
			}
			got, ok := f.manager.TakeFlash(context.Background(), next, auth.ReferrerFlashKey)
			require.Equal(t, tt.expected != "", ok)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestProviderStrategy_Authenticate(t *testing.T) {
	t.Run("maps the profile", func(t *testing.T) {
		f := setupTestFixture(t)
		a := f.begin(t, "")
		claims := f.idp.AccessTokenClaims(jwt.MapClaims{"oid": "u1", "preferred_username": "a@b.com", "name": "Ada"})
		code := f.idp.Authorize(a.query.Get("code_challenge"), a.query.Get("nonce"), claims)

		creds, err := f.strategy.Authenticate(f.callback(a, code))
		require.NoError(t, err)
		require.Equal(t, auth.Profile{ID: "u1", Name: "Ada", Email: "a@b.com", DisplayName: "Ada"}, creds.Profile)
		require.NotEmpty(t, creds.Token)
		require.NotEmpty(t, creds.RefreshToken)
	})

	t.Run("falls back to sub and prefers email", func(t *testing.T) {
		f := setupTestFixture(t)
		a := f.begin(t, "")
		claims := f.idp.AccessTokenClaims(jwt.MapClaims{"oid": nil, "email": "real@b.com"})
		code := f.idp.Authorize(a.query.Get("code_challenge"), a.query.Get("nonce"), claims)

		creds, err := f.strategy.Authenticate(f.callback(a, code))
		require.NoError(t, err)
		require.Equal(t, "subject-1", creds.Profile.ID)
		require.Equal(t, "real@b.com", creds.Profile.Email)
	})

	t.Run("state is single use", func(t *testing.T) {
		f := setupTestFixture(t)
		a := f.begin(t, "")
		claims := f.idp.AccessTokenClaims(nil)
		code := f.idp.Authorize(a.query.Get("code_challenge"), a.query.Get("nonce"), claims)

		_, err := f.strategy.Authenticate(f.callback(a, code))
		require.NoError(t, err)

		_, err = f.strategy.Authenticate(f.callback(a, code))
		require.True(t, errors.Is(err, apperrors.ErrNotAuthenticated))
		require.True(t, errors.Is(err, apperrors.ErrInvalidState))
	})

	t.Run("callback from another browser", func(t *testing.T) {
		f := setupTestFixture(t)
		a := f.begin(t, "")
		code := f.idp.Authorize(a.query.Get("code_challenge"), a.query.Get("nonce"), f.idp.AccessTokenClaims(nil))

		other := f.begin(t, "")
		foreign := authorizeRequest{query: a.query, cookies: other.cookies}
		_, err := f.strategy.Authenticate(f.callback(foreign, code))
		require.True(t, errors.Is(err, apperrors.ErrNotAuthenticated))
		require.True(t, errors.Is(err, apperrors.ErrInvalidState))

		cookieless := authorizeRequest{query: a.query}
		_, err = f.strategy.Authenticate(f.callback(cookieless, code))
		require.True(t, errors.Is(err, apperrors.ErrInvalidState))

		_, err = f.strategy.Authenticate(f.callback(a, code))
		require.NoError(t, err, "the starting browser can still finish")
	})

	t.Run("existing reference is reused", func(t *testing.T) {
		f := setupTestFixture(t)
		a := f.begin(t, baseURL+"/organisations")
		require.Len(t, a.cookies, 1, "flash and pending login share one cookie")

		req := httptest.NewRequest(http.MethodGet, baseURL+"/auth/sign-in", nil)
		for _, c := range a.cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		require.NoError(t, f.strategy.Begin(rec, req))
		require.Empty(t, rec.Result().Cookies())
	})

	t.Run("provider error", func(t *testing.T) {
		f := setupTestFixture(t)
		req := httptest.NewRequest(http.MethodGet, baseURL+callbackPath+"?error=access_denied&error_description=cancelled", nil)

		_, err := f.strategy.Authenticate(req)
		require.True(t, errors.Is(err, apperrors.ErrNotAuthenticated))
		require.Contains(t, err.Error(), "access_denied")
	})

	t.Run("missing code", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.strategy.Authenticate(httptest.NewRequest(http.MethodGet, baseURL+callbackPath, nil))
		require.True(t, errors.Is(err, apperrors.ErrNotAuthenticated))
	})

	t.Run("code bound to another verifier", func(t *testing.T) {
		f := setupTestFixture(t)
		a := f.begin(t, "")
		code := f.idp.Authorize("some-other-challenge", a.query.Get("nonce"), f.idp.AccessTokenClaims(nil))

		_, err := f.strategy.Authenticate(f.callback(a, code))
		require.True(t, errors.Is(err, apperrors.ErrNotAuthenticated))
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		f := setupTestFixture(t)
		a := f.begin(t, "")
		code := f.idp.Authorize(a.query.Get("code_challenge"), "replayed-nonce", f.idp.AccessTokenClaims(nil))

		_, err := f.strategy.Authenticate(f.callback(a, code))
		require.True(t, errors.Is(err, apperrors.ErrNotAuthenticated))
		require.Contains(t, err.Error(), "nonce")
	})

	t.Run("unverifiable access token", func(t *testing.T) {
		f := setupTestFixture(t)
		a := f.begin(t, "")
		claims := f.idp.AccessTokenClaims(jwt.MapClaims{"aud": "api://someone-else"})
		code := f.idp.Authorize(a.query.Get("code_challenge"), a.query.Get("nonce"), claims)

		_, err := f.strategy.Authenticate(f.callback(a, code))
		require.True(t, errors.Is(err, apperrors.ErrNotAuthenticated))
		require.True(t, errors.Is(err, apperrors.ErrTokenVerification))
	})
}

func TestProviderStrategy_DiscoveryFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.idp.SetDiscoveryStatus(http.StatusBadGateway)

	err := f.strategy.Begin(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, baseURL+"/auth/sign-in", nil))
	require.True(t, errors.Is(err, apperrors.ErrDiscoveryFailed))
}

type stubReader struct {
	session *sessions.Session
	cleared int
}

func (s *stubReader) GetSession(*http.Request) (*sessions.Session, bool) {
	return s.session, s.session != nil
}

func (s *stubReader) ClearInvalidCookie(http.ResponseWriter, *http.Request) { s.cleared++ }

type stubValidator struct {
	calls int
	out   *sessions.Session
	err   error
}

func (s *stubValidator) ValidateAndRefresh(_ context.Context, _ *http.Request, in *sessions.Session) (*sessions.Session, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.out != nil {
		return s.out, nil
	}
	return in, nil
}

func TestCookieStrategy_Validate(t *testing.T) {
	stored := &sessions.Session{SessionID: "s1", UserID: "u1", IsAuthenticated: true, Token: "t1", RefreshToken: "r1"}
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	require.Equal(t, auth.CookieStrategyName, auth.NewCookieStrategy(&stubReader{}, &stubValidator{}).Name())

	t.Run("no session", func(t *testing.T) {
		v := &stubValidator{}
		c := auth.NewCookieStrategy(&stubReader{}, v)
		require.Equal(t, auth.Result{IsValid: false}, c.Validate(req))
		require.Equal(t, 0, v.calls)
	})

	t.Run("valid session", func(t *testing.T) {
		c := auth.NewCookieStrategy(&stubReader{session: stored}, &stubValidator{})
		result := c.Validate(req)
		require.True(t, result.IsValid)
		require.Same(t, stored, result.Credentials)
	})

	t.Run("refreshed session is returned", func(t *testing.T) {
		refreshed := stored.WithTokens("t2", "r2")
		c := auth.NewCookieStrategy(&stubReader{session: stored}, &stubValidator{out: refreshed})
		result := c.Validate(req)
		require.True(t, result.IsValid)
		require.Equal(t, "t2", result.Credentials.Token)
	})

	t.Run("refresh failure is quiet", func(t *testing.T) {
		c := auth.NewCookieStrategy(&stubReader{session: stored}, &stubValidator{err: apperrors.ErrSessionExpiredNoRefresh})
		require.Equal(t, auth.Result{IsValid: false}, c.Validate(req))
	})
}

func TestCookieStrategy_Require(t *testing.T) {
	stored := &sessions.Session{SessionID: "s1", UserID: "u1", IsAuthenticated: true, Token: "t1"}
	unauthorised := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }

	t.Run("anonymous", func(t *testing.T) {
		reader := &stubReader{}
		c := auth.NewCookieStrategy(reader, &stubValidator{})
		handler := c.Require(unauthorised)(func(w http.ResponseWriter, r *http.Request) {
			require.Fail(t, "protected handler must not run")
		})

		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, 1, reader.cleared)
	})

	t.Run("authenticated", func(t *testing.T) {
		c := auth.NewCookieStrategy(&stubReader{session: stored}, &stubValidator{})
		handler := c.Require(unauthorised)(func(w http.ResponseWriter, r *http.Request) {
			s, ok := auth.SessionFromContext(r.Context())
			require.True(t, ok)
			require.Equal(t, "u1", s.UserID)
			w.WriteHeader(http.StatusOK)
		})

		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}
