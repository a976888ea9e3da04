// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	gerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

// ErrConfiguration is returned when a required value is missing or malformed.
// It is fatal: the process must not start serving traffic.
var ErrConfiguration = gerrors.New("invalid configuration", gerrors.CategoryValidation).
	WithTextCode("CONFIGURATION_ERROR")

// Remote backends understood by the relay.
const (
	BackendGitHub = "github"
	BackendMinio  = "minio"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port   string
	AppEnv string

	LogLevel string
	LogFile  string // optional rolling log file, empty disables it

	// Staging
	UploadFolder  string
	MaxUploadSize int64
	PurgeInterval time.Duration

	// Remote persistence
	RemoteBackend    string
	RemotePrefix     string // fixed path segment in front of every object, e.g. "cn"
	RemoteTimeout    time.Duration
	RemoteMaxRetries uint64
	WebsiteURL       string // browser-accessible base URL that mirrors the remote store

	GitHubToken  string
	GitHubOwner  string
	GitHubRepo   string
	GitHubBranch string
	GitHubAPIURL string

	// Object storage (S3-compatible, used when RemoteBackend is "minio")
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool

	// Notifications
	DiscordWebhookURL string
	NotifyTimeout     time.Duration

	// Per-IP upload rate limit; zero disables it.
	RateLimitPerMinute int
	RateLimitBurst     int

	// EnvFileLoaded reports whether a .env file was found and applied.
	EnvFileLoaded bool
}

// Load reads configuration from a .env file (if present) and environment variables,
// validates it, and reports every problem at once.
func Load() (*Config, error) {
	loaded := godotenv.Load() == nil

	p := &parser{}

	cfg := &Config{
		Port:     getEnv("PORT", "49098"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),

		UploadFolder:  p.required("UPLOAD_FOLDER"),
		MaxUploadSize: p.positiveInt64("MAX_CONTENT_LENGTH"),
		PurgeInterval: p.duration("PURGE_INTERVAL", 30*time.Minute),

		RemoteBackend:    strings.ToLower(getEnv("REMOTE_BACKEND", BackendGitHub)),
		RemotePrefix:     strings.Trim(getEnv("REMOTE_PREFIX", "cn"), "/"),
		RemoteTimeout:    p.duration("REMOTE_TIMEOUT", 30*time.Second),
		RemoteMaxRetries: uint64(p.nonNegativeInt("REMOTE_MAX_RETRIES", 0)),
		WebsiteURL:       strings.TrimRight(p.url("WEBSITE_URL", "http://localhost"), "/"),

		DiscordWebhookURL: p.url("DISCORD_WEBHOOK_URL", ""),
		NotifyTimeout:     p.duration("NOTIFY_TIMEOUT", 10*time.Second),

		RateLimitPerMinute: p.nonNegativeInt("RATE_LIMIT_PER_MINUTE", 0),
		RateLimitBurst:     p.nonNegativeInt("RATE_LIMIT_BURST", 10),

		EnvFileLoaded: loaded,
	}

	if cfg.RemotePrefix == "" {
		p.fail("REMOTE_PREFIX must not be empty")
	}

	switch cfg.RemoteBackend {
	case BackendGitHub:
		cfg.GitHubToken = p.required("GITHUB_TOKEN")
		cfg.GitHubOwner, cfg.GitHubRepo = p.repo("GITHUB_REPO")
		cfg.GitHubBranch = os.Getenv("GITHUB_BRANCH")
		cfg.GitHubAPIURL = p.url("GITHUB_API_URL", "")
	case BackendMinio:
		cfg.StorageEndpoint = p.required("STORAGE_ENDPOINT")
		cfg.StorageAccessKey = p.required("STORAGE_ACCESS_KEY")
		cfg.StorageSecretKey = p.required("STORAGE_SECRET_KEY")
		cfg.StorageBucket = p.required("STORAGE_BUCKET")
		cfg.StorageUseSSL = getEnv("STORAGE_USE_SSL", "false") == "true"
	default:
		p.fail(fmt.Sprintf("REMOTE_BACKEND %q is not one of %s, %s", cfg.RemoteBackend, BackendGitHub, BackendMinio))
	}

	if err := p.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NotificationsEnabled reports whether a notification sink is configured.
func (c *Config) NotificationsEnabled() bool {
	return c.DiscordWebhookURL != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parser accumulates validation problems so they can be reported together.
type parser struct {
	problems []string
}

func (p *parser) fail(msg string) {
	p.problems = append(p.problems, msg)
}

func (p *parser) err() error {
	if len(p.problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(p.problems, "; "))
}

func (p *parser) required(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		p.fail(key + " not found")
	}
	return v
}

func (p *parser) positiveInt64(key string) int64 {
	raw := p.required(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		p.fail(key + " must be a positive integer")
		return 0
	}
	return n
}

func (p *parser) nonNegativeInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		p.fail(key + " must be a non-negative integer")
		return fallback
	}
	return n
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		p.fail(key + " must be a positive duration such as 30s or 30m")
		return fallback
	}
	return d
}

func (p *parser) url(key, fallback string) string {
	raw := getEnv(key, fallback)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		p.fail(key + " must be an absolute URL")
		return raw
	}
	return raw
}

func (p *parser) repo(key string) (owner, repo string) {
	raw := p.required(key)
	if raw == "" {
		return "", ""
	}
	owner, repo, ok := strings.Cut(raw, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		p.fail(key + " must look like owner/repo")
		return "", ""
	}
	return owner, repo
}

// IsConfigurationError reports whether err came from Load validation.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
