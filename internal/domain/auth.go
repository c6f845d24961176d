package domain

import "time"

// Token is an OAuth access token as reported by the provider.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	// ExpiresIn is the lifetime in seconds. Zero means the provider did not
	// report one; such tokens are never refreshed proactively.
	ExpiresIn int64 `json:"expires_in,omitempty"`
}

// Lifetime returns the token lifetime and whether it is known.
func (t Token) Lifetime() (time.Duration, bool) {
	if t.ExpiresIn <= 0 {
		return 0, false
	}
	return time.Duration(t.ExpiresIn) * time.Second, true
}

type Profile struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	EmailVerified bool   `json:"email_verified"`
	Locale        string `json:"locale"`
}

// Session is the persisted authentication state.
type Session struct {
	Token     Token     `json:"token"`
	User      *Profile  `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

// ExpiresAt returns when the session token expires, if known.
func (s Session) ExpiresAt() (time.Time, bool) {
	d, ok := s.Token.Lifetime()
	if !ok {
		return time.Time{}, false
	}
	return s.Timestamp.Add(d), true
}
