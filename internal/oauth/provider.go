// Package oauth talks to the identity provider: interactive sign-in through a
// loopback redirect, token refresh, profile lookup and revocation.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/oauth2"

	"github.com/victornm/quizzard/internal/domain"
	"github.com/victornm/quizzard/internal/errors"
)

const (
	CallbackPath = "/callback"

	DefaultLoginTimeout = 5 * time.Minute
	defaultProbeTimeout = 3 * time.Second
)

type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RevokeURL    string
	Scopes       []string

	// RedirectPort is the loopback port of the callback server. Zero picks a
	// free port.
	RedirectPort int
	// OpenURL presents the consent page to the user, usually by launching a
	// browser. It must not block until sign-in completes.
	OpenURL func(authURL string) error
	// HTTPClient is used for every call to the provider. Nil means
	// http.DefaultClient.
	HTTPClient   *http.Client
	LoginTimeout time.Duration
}

type Provider struct {
	c      Config
	oc     *oauth2.Config
	client *http.Client
}

func NewProvider(c Config) *Provider {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = DefaultLoginTimeout
	}
	if c.OpenURL == nil {
		c.OpenURL = func(u string) error {
			slog.Info("oauth: open this URL to sign in", "url", u)
			return nil
		}
	}

	return &Provider{
		c: c,
		oc: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  c.AuthURL,
				TokenURL: c.TokenURL,
			},
			Scopes: c.Scopes,
		},
		client: c.HTTPClient,
	}
}

type callback struct {
	code string
	err  error
}

// ObtainToken runs the authorization code flow with PKCE. The consent page
// redirects to a short-lived server on the loopback interface, whose code is
// then exchanged for a token.
func (p *Provider) ObtainToken(ctx context.Context) (domain.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.c.LoginTimeout)
	defer cancel()

	lis, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p.c.RedirectPort))
	if err != nil {
		return domain.Token{}, errors.New(errors.CodeConfiguration,
			errors.WithMessagef("Cannot listen for the sign-in callback on port %d.", p.c.RedirectPort),
			errors.WithCause(err))
	}

	state, err := gonanoid.New()
	if err != nil {
		_ = lis.Close()
		return domain.Token{}, fmt.Errorf("oauth: generate state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	oc := *p.oc
	oc.RedirectURL = "http://" + lis.Addr().String() + CallbackPath

	results := make(chan callback, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "oauth: callback server failed", "error", err)
		}
	}()
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
	}()

	authURL := oc.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	if err := p.c.OpenURL(authURL); err != nil {
		return domain.Token{}, errors.New(errors.CodeProviderUnavailable,
			errors.WithMessagef("Could not open the sign-in page."),
			errors.WithCause(err))
	}

	var cb callback
	select {
	case cb = <-results:
	case <-ctx.Done():
		return domain.Token{}, errors.New(errors.CodeProviderUnavailable,
			errors.WithMessagef("Sign-in was not completed in time."),
			errors.WithCause(ctx.Err()))
	}
	if cb.err != nil {
		return domain.Token{}, cb.err
	}

	tok, err := oc.Exchange(p.context(ctx), cb.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return domain.Token{}, fmt.Errorf("oauth: exchange code: %w", err)
	}

	return fromOAuth(tok, time.Now()), nil
}

func callbackHandler(state string, results chan<- callback) http.Handler {
	deliver := func(cb callback) {
		select {
		case results <- cb:
		default:
		}
	}

	e := gin.New()
	e.Use(gin.Recovery())
	e.GET(CallbackPath, func(c *gin.Context) {
		if msg := c.Query("error"); msg != "" {
			deliver(callback{err: errors.New(errors.CodeProviderUnavailable,
				errors.WithMessagef("Sign-in was declined: %s", msg))})
			c.String(http.StatusBadRequest, "Sign-in failed: %s. You can close this window.", msg)
			return
		}

		if c.Query("state") != state {
			c.String(http.StatusBadRequest, "Unexpected sign-in response.")
			return
		}

		code := c.Query("code")
		if code == "" {
			c.String(http.StatusBadRequest, "Missing authorization code.")
			return
		}

		deliver(callback{code: code})
		c.String(http.StatusOK, "Signed in. You can close this window.")
	})

	return e
}

func (p *Provider) FetchProfile(ctx context.Context, accessToken string) (domain.Profile, error) {
	if p.c.UserInfoURL == "" {
		return domain.Profile{}, errors.New(errors.CodeConfiguration,
			errors.WithMessagef("No user info endpoint configured."))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.c.UserInfoURL, nil)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("oauth: build userinfo request: %w", err)
	}

	client := oauth2.NewClient(p.context(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	resp, err := client.Do(req)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("oauth: fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return domain.Profile{}, err
	}

	var profile domain.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return domain.Profile{}, fmt.Errorf("oauth: decode userinfo: %w", err)
	}

	return profile, nil
}

// RefreshToken exchanges the refresh token for a new access token. The
// returned token keeps the old refresh token when the provider does not
// rotate it.
func (p *Provider) RefreshToken(ctx context.Context, t domain.Token) (domain.Token, error) {
	if t.RefreshToken == "" {
		return domain.Token{}, errors.New(errors.CodeTokenExpired,
			errors.WithMessagef("No refresh token available. Please sign in again."))
	}

	src := p.oc.TokenSource(p.context(ctx), &oauth2.Token{RefreshToken: t.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return domain.Token{}, fmt.Errorf("oauth: refresh token: %w", err)
	}

	return fromOAuth(tok, time.Now()), nil
}

// Revoke invalidates the grant at the provider (RFC 7009). The refresh token
// is preferred since revoking it also kills its access tokens.
func (p *Provider) Revoke(ctx context.Context, t domain.Token) error {
	if p.c.RevokeURL == "" {
		return nil
	}

	tok := t.RefreshToken
	if tok == "" {
		tok = t.AccessToken
	}
	if tok == "" {
		return nil
	}

	form := url.Values{"token": {tok}}
	if p.c.ClientID != "" {
		form.Set("client_id", p.c.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.c.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("oauth: build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("oauth: revoke: %w", err)
	}
	defer resp.Body.Close()

	return statusError(resp)
}

// Online reports whether the token endpoint host accepts TCP connections.
func (p *Provider) Online(ctx context.Context) bool {
	u, err := url.Parse(p.c.TokenURL)
	if err != nil || u.Host == "" {
		return false
	}

	host := u.Host
	if u.Port() == "" {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		slog.DebugContext(ctx, "oauth: provider unreachable", "host", host, "error", err)
		return false
	}
	_ = conn.Close()
	return true
}

func (p *Provider) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	cause := fmt.Errorf("oauth: %s: %s", resp.Status, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.New(errors.CodeTokenExpired, errors.WithCause(cause))
	case resp.StatusCode >= 500:
		return errors.New(errors.CodeProviderUnavailable, errors.WithCause(cause))
	default:
		return errors.New(errors.CodeUnknown, errors.WithCause(cause))
	}
}

func fromOAuth(tok *oauth2.Token, now time.Time) domain.Token {
	t := domain.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresIn:    tok.ExpiresIn,
	}

	if t.ExpiresIn <= 0 && !tok.Expiry.IsZero() {
		t.ExpiresIn = max(int64(math.Round(tok.Expiry.Sub(now).Seconds())), 0)
	}

	if scope, ok := tok.Extra("scope").(string); ok {
		t.Scope = scope
	}

	return t
}
