package oauth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizzard/internal/domain"
	"github.com/victornm/quizzard/internal/errors"
	"github.com/victornm/quizzard/internal/oauth"
)

type fakeIDP struct {
	*httptest.Server

	mu      sync.Mutex
	revoked []string
}

func newIDP(t *testing.T) *fakeIDP {
	t.Helper()

	idp := &fakeIDP{}
	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("code_verifier") == "" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_request"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600,"scope":"openid email"}`))
		case "refresh_token":
			if r.PostForm.Get("refresh_token") == "dead" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"at-2","token_type":"Bearer","expires_in":1800}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer at-1":
			_ = json.NewEncoder(w).Encode(domain.Profile{Email: "host@quiz.night", Name: "Quiz Host", EmailVerified: true})
		case "Bearer broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})

	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		idp.mu.Lock()
		idp.revoked = append(idp.revoked, r.PostForm.Get("token"))
		idp.mu.Unlock()
	})

	idp.Server = httptest.NewServer(mux)
	t.Cleanup(idp.Close)
	return idp
}

func (idp *fakeIDP) provider(open func(string) error) *oauth.Provider {
	return oauth.NewProvider(oauth.Config{
		ClientID:     "client-123",
		AuthURL:      idp.URL + "/auth",
		TokenURL:     idp.URL + "/token",
		UserInfoURL:  idp.URL + "/userinfo",
		RevokeURL:    idp.URL + "/revoke",
		Scopes:       []string{"openid", "email"},
		OpenURL:      open,
		HTTPClient:   idp.Client(),
		LoginTimeout: 2 * time.Second,
	})
}

// browser plays the user agent: it follows the consent URL straight back to
// the loopback redirect with the given query.
func browser(t *testing.T, query func(state string) url.Values) func(string) error {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.NotEmpty(t, q.Get("code_challenge"))
		assert.Equal(t, "offline", q.Get("access_type"))

		go func() {
			resp, err := http.Get(q.Get("redirect_uri") + "?" + query(q.Get("state")).Encode())
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

func TestProvider_ObtainToken(t *testing.T) {
	idp := newIDP(t)
	p := idp.provider(browser(t, func(state string) url.Values {
		return url.Values{"state": {state}, "code": {"good-code"}}
	}))

	tok, err := p.ObtainToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "rt-1", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, "openid email", tok.Scope)
	assert.InDelta(t, 3600, tok.ExpiresIn, 1)
}

func TestProvider_ObtainTokenFailures(t *testing.T) {
	tests := map[string]struct {
		query    func(state string) url.Values
		wantCode errors.Code
	}{
		"user declined": {
			query: func(state string) url.Values {
				return url.Values{"state": {state}, "error": {"access_denied"}}
			},
			wantCode: errors.CodeProviderUnavailable,
		},
		"state mismatch never completes": {
			query: func(string) url.Values {
				return url.Values{"state": {"forged"}, "code": {"good-code"}}
			},
			wantCode: errors.CodeProviderUnavailable,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			idp := newIDP(t)
			p := oauth.NewProvider(oauth.Config{
				ClientID:     "client-123",
				AuthURL:      idp.URL + "/auth",
				TokenURL:     idp.URL + "/token",
				OpenURL:      browser(t, tc.query),
				HTTPClient:   idp.Client(),
				LoginTimeout: 200 * time.Millisecond,
			})

			_, err := p.ObtainToken(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.wantCode), err)
		})
	}
}

func TestProvider_FetchProfile(t *testing.T) {
	tests := map[string]struct {
		token    string
		want     domain.Profile
		wantCode errors.Code
	}{
		"ok": {
			token: "at-1",
			want:  domain.Profile{Email: "host@quiz.night", Name: "Quiz Host", EmailVerified: true},
		},
		"rejected token": {
			token:    "stale",
			wantCode: errors.CodeTokenExpired,
		},
		"provider down": {
			token:    "broken",
			wantCode: errors.CodeProviderUnavailable,
		},
	}

	idp := newIDP(t)
	p := idp.provider(nil)

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := p.FetchProfile(context.Background(), tc.token)
			if tc.wantCode != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.wantCode), err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestProvider_RefreshToken(t *testing.T) {
	idp := newIDP(t)
	p := idp.provider(nil)
	ctx := context.Background()

	tok, err := p.RefreshToken(ctx, domain.Token{AccessToken: "at-1", RefreshToken: "rt-1"})
	require.NoError(t, err)
	assert.Equal(t, "at-2", tok.AccessToken)
	assert.Equal(t, "rt-1", tok.RefreshToken)
	assert.InDelta(t, 1800, tok.ExpiresIn, 1)

	_, err = p.RefreshToken(ctx, domain.Token{RefreshToken: "dead"})
	require.Error(t, err)
	assert.True(t, errors.IsPermanentGrant(err), err)
	assert.Equal(t, errors.CodeTokenExpired, errors.Classify(err))

	_, err = p.RefreshToken(ctx, domain.Token{AccessToken: "at-1"})
	assert.True(t, errors.Is(err, errors.CodeTokenExpired))
}

func TestProvider_Revoke(t *testing.T) {
	idp := newIDP(t)
	p := idp.provider(nil)
	ctx := context.Background()

	require.NoError(t, p.Revoke(ctx, domain.Token{AccessToken: "at-1", RefreshToken: "rt-1"}))
	require.NoError(t, p.Revoke(ctx, domain.Token{AccessToken: "at-9"}))
	require.NoError(t, p.Revoke(ctx, domain.Token{}))

	idp.mu.Lock()
	defer idp.mu.Unlock()
	assert.Equal(t, []string{"rt-1", "at-9"}, idp.revoked)
}

func TestProvider_Online(t *testing.T) {
	idp := newIDP(t)
	assert.True(t, idp.provider(nil).Online(context.Background()))

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	p := oauth.NewProvider(oauth.Config{TokenURL: downURL + "/token"})
	assert.False(t, p.Online(context.Background()))
}
