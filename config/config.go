package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrInvalidValue = errors.New("invalid value")

const (
	StorageBackendPostgres = "postgres"
	StorageBackendFile     = "file"

	BlobBackendDisk = "disk"
	BlobBackendR2   = "r2"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Tournament TournamentConfig
	Profile    ProfileConfig
	Jobs       JobsConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins string
	AdminToken     string
	CronSecret     string
	BodyLimit      int
	// Per-IP token bucket for the webhook endpoint.
	WebhookRatePerSecond int
	WebhookBurst         int
}

type StorageConfig struct {
	Backend     string
	DatabaseURL string
	DataFile    string
	BlobBackend string
	R2          R2Config
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	ObjectKey       string
}

type TournamentConfig struct {
	DefaultEvent    string
	Events          []string
	Timezone        string
	Location        *time.Location
	UnmatchedPolicy string
	// Attempts used when the webhook resolves unknown names under the eager policy.
	WebhookResolveAttempts int
}

type ProfileConfig struct {
	UsersBaseURL      string
	ThumbnailsBaseURL string
	UserAgent         string
	AvatarCacheTTL    time.Duration
}

type JobsConfig struct {
	AvatarBackfillInterval time.Duration
}

type LogConfig struct {
	Level       string
	Format      string
	ServiceName string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 5200)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", 1024*1024)
	v.SetDefault("WEBHOOK_RATE_PER_SECOND", 10)
	v.SetDefault("WEBHOOK_BURST", 30)

	v.SetDefault("DATA_FILE", "data.json")
	v.SetDefault("BLOB_BACKEND", BlobBackendDisk)
	v.SetDefault("R2_OBJECT_KEY", "leaderboard/data.json")

	v.SetDefault("DEFAULT_EVENT", "rvnc-jan-24th")
	v.SetDefault("EVENTS", "RVNC Jan 24th,Hobby Horizon")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("UNMATCHED_POLICY", "pending")
	v.SetDefault("WEBHOOK_RESOLVE_ATTEMPTS", 1)

	v.SetDefault("PROFILE_USERS_BASE_URL", "https://users.roblox.com")
	v.SetDefault("PROFILE_THUMBNAILS_BASE_URL", "https://thumbnails.roblox.com")
	v.SetDefault("PROFILE_USER_AGENT", "tournament-leaderboard/1.0")
	v.SetDefault("AVATAR_CACHE_TTL", "60s")

	v.SetDefault("AVATAR_BACKFILL_INTERVAL", "5m")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SERVICE_NAME", "tournament-leaderboard")
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal in containers; the environment is used directly.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:                 v.GetInt("PORT"),
			AllowedOrigins:       normalizeCSV(v.GetString("ALLOWED_ORIGINS")),
			AdminToken:           v.GetString("ADMIN_TOKEN"),
			CronSecret:           v.GetString("CRON_SECRET"),
			BodyLimit:            v.GetInt("BODY_LIMIT"),
			WebhookRatePerSecond: v.GetInt("WEBHOOK_RATE_PER_SECOND"),
			WebhookBurst:         v.GetInt("WEBHOOK_BURST"),
		},
		Storage: StorageConfig{
			Backend:     strings.ToLower(v.GetString("STORAGE_BACKEND")),
			DatabaseURL: v.GetString("DATABASE_URL"),
			DataFile:    v.GetString("DATA_FILE"),
			BlobBackend: strings.ToLower(v.GetString("BLOB_BACKEND")),
			R2: R2Config{
				AccountID:       v.GetString("CLOUDFLARE_ACCOUNT_ID"),
				AccessKeyID:     v.GetString("R2_ACCESS_KEY_ID"),
				AccessKeySecret: v.GetString("R2_ACCESS_KEY_SECRET"),
				Bucket:          v.GetString("R2_BUCKET_NAME"),
				ObjectKey:       v.GetString("R2_OBJECT_KEY"),
			},
		},
		Tournament: TournamentConfig{
			DefaultEvent:           v.GetString("DEFAULT_EVENT"),
			Events:                 splitCSV(v.GetString("EVENTS")),
			Timezone:               v.GetString("TIMEZONE"),
			UnmatchedPolicy:        strings.ToLower(v.GetString("UNMATCHED_POLICY")),
			WebhookResolveAttempts: v.GetInt("WEBHOOK_RESOLVE_ATTEMPTS"),
		},
		Profile: ProfileConfig{
			UsersBaseURL:      strings.TrimRight(v.GetString("PROFILE_USERS_BASE_URL"), "/"),
			ThumbnailsBaseURL: strings.TrimRight(v.GetString("PROFILE_THUMBNAILS_BASE_URL"), "/"),
			UserAgent:         v.GetString("PROFILE_USER_AGENT"),
			AvatarCacheTTL:    v.GetDuration("AVATAR_CACHE_TTL"),
		},
		Jobs: JobsConfig{
			AvatarBackfillInterval: v.GetDuration("AVATAR_BACKFILL_INTERVAL"),
		},
		Log: LogConfig{
			Level:       v.GetString("LOG_LEVEL"),
			Format:      v.GetString("LOG_FORMAT"),
			ServiceName: v.GetString("SERVICE_NAME"),
		},
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageBackendFile
		if cfg.Storage.DatabaseURL != "" {
			cfg.Storage.Backend = StorageBackendPostgres
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Tournament.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: TIMEZONE (%s): %v", ErrInvalidValue, cfg.Tournament.Timezone, err)
	}
	cfg.Tournament.Location = loc

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case StorageBackendPostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("%w: STORAGE_BACKEND=postgres requires DATABASE_URL", ErrInvalidValue)
		}
	case StorageBackendFile:
	default:
		return fmt.Errorf("%w: STORAGE_BACKEND (%s)", ErrInvalidValue, c.Storage.Backend)
	}

	switch c.Storage.BlobBackend {
	case BlobBackendDisk:
	case BlobBackendR2:
		if c.Storage.R2.AccountID == "" || c.Storage.R2.Bucket == "" {
			return fmt.Errorf("%w: BLOB_BACKEND=r2 requires CLOUDFLARE_ACCOUNT_ID and R2_BUCKET_NAME", ErrInvalidValue)
		}
	default:
		return fmt.Errorf("%w: BLOB_BACKEND (%s)", ErrInvalidValue, c.Storage.BlobBackend)
	}

	switch c.Tournament.UnmatchedPolicy {
	case "pending", "eager", "skip":
	default:
		return fmt.Errorf("%w: UNMATCHED_POLICY (%s)", ErrInvalidValue, c.Tournament.UnmatchedPolicy)
	}

	if c.Tournament.DefaultEvent == "" {
		return fmt.Errorf("%w: DEFAULT_EVENT must not be empty", ErrInvalidValue)
	}
	if c.Tournament.WebhookResolveAttempts < 1 {
		c.Tournament.WebhookResolveAttempts = 1
	}

	return nil
}

// NonSensitiveString is safe to log.
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf(
		"Config{port: %d, storage: %s/%s, policy: %s, event: %s, tz: %s, admin_token: %t, cron_secret: %t}",
		c.Server.Port,
		c.Storage.Backend,
		c.Storage.BlobBackend,
		c.Tournament.UnmatchedPolicy,
		c.Tournament.DefaultEvent,
		c.Tournament.Timezone,
		c.Server.AdminToken != "",
		c.Server.CronSecret != "",
	)
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeCSV(raw string) string {
	return strings.Join(splitCSV(raw), ",")
}
