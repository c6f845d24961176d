package app

import (
	"time"

	"github.com/victornm/quizzard/internal/auth"
	"github.com/victornm/quizzard/internal/draft"
	"github.com/victornm/quizzard/internal/telemetry"
)

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverFile   = "file"
	DriverMemory = "memory"
	DriverNone   = "none"

	// fallbackAutoSaveDelay applies when only the fallback tier is
	// configured, since it is cheap to write and the most likely to be lost.
	fallbackAutoSaveDelay = time.Second
)

type Config struct {
	Log telemetry.LogConfig

	Storage struct {
		Primary struct {
			Driver string `validate:"oneof=sqlite redis none"`

			SQLite struct {
				Path string
			}

			Redis struct {
				Addrs  []string
				Pass   string
				Prefix string
			}
		}

		Fallback struct {
			Driver string `validate:"oneof=file memory none"`

			File struct {
				Dir string
			}
		}

		Breaker struct {
			MaxFailures uint32        `validate:"gte=0"`
			Timeout     time.Duration `validate:"gte=0"`
		}
	}

	Draft struct {
		// AutoSaveDelay zero picks a delay suited to the configured tiers.
		AutoSaveDelay time.Duration `validate:"gte=0"`
		KeyPrefix     string
	}

	Auth struct {
		ClientID     string
		ClientSecret string
		AuthURL      string `validate:"omitempty,url"`
		TokenURL     string `validate:"omitempty,url"`
		UserInfoURL  string `validate:"omitempty,url"`
		RevokeURL    string `validate:"omitempty,url"`
		RedirectPort int    `validate:"gte=0,lte=65535"`
		Scopes       []string

		SessionKey string
		AuxKeys    []string

		RefreshLead time.Duration `validate:"gte=0"`
		MaxRetries  int           `validate:"gte=0,lte=10"`
		BaseDelay   time.Duration `validate:"gte=0"`
		MaxDelay    time.Duration `validate:"gte=0"`

		CheckInterval time.Duration `validate:"gte=0"`
		AutoLogout    time.Duration `validate:"gte=0"`
		WarningLead   time.Duration `validate:"gte=0"`
	}
}

// DefaultConfig is seeded before the config file is read.
func DefaultConfig() Config {
	var c Config

	c.Log.Level = "info"
	c.Log.Format = "text"

	c.Storage.Primary.Driver = DriverSQLite
	c.Storage.Primary.SQLite.Path = "data/quizzard.db"
	c.Storage.Primary.Redis.Prefix = "quizzard"
	c.Storage.Fallback.Driver = DriverFile
	c.Storage.Fallback.File.Dir = "data/fallback"
	c.Storage.Breaker.MaxFailures = 3
	c.Storage.Breaker.Timeout = 30 * time.Second

	c.Draft.KeyPrefix = draft.DefaultKeyPrefix

	c.Auth.AuthURL = "https://accounts.google.com/o/oauth2/v2/auth"
	c.Auth.TokenURL = "https://oauth2.googleapis.com/token"
	c.Auth.UserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	c.Auth.RevokeURL = "https://oauth2.googleapis.com/revoke"
	c.Auth.Scopes = []string{"openid", "email", "profile"}
	c.Auth.SessionKey = auth.DefaultSessionKey
	c.Auth.AuxKeys = []string{"quizzard:settings", "quizzard:recent"}
	c.Auth.RefreshLead = auth.DefaultRefreshLead
	c.Auth.MaxRetries = auth.DefaultMaxRetries
	c.Auth.BaseDelay = auth.DefaultBaseDelay
	c.Auth.MaxDelay = auth.DefaultMaxDelay
	c.Auth.CheckInterval = auth.DefaultCheckInterval
	c.Auth.AutoLogout = auth.DefaultAutoLogout
	c.Auth.WarningLead = auth.DefaultWarningLead

	return c
}

func (c Config) autoSaveDelay(hasPrimary bool) time.Duration {
	switch {
	case c.Draft.AutoSaveDelay > 0:
		return c.Draft.AutoSaveDelay
	case hasPrimary:
		return draft.DefaultAutoSaveDelay
	default:
		return fallbackAutoSaveDelay
	}
}
