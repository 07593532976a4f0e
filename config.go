package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/go-authgate/slowfall-cli/idp"
)

// Token storage backends.
const (
	storageFile   = "file"
	storageRedis  = "redis"
	storageMemory = "memory"
)

// Config is the CLI configuration. Values come from an optional YAML file,
// the environment (after loading .env), and finally command-line flags.
type Config struct {
	Origin     string `yaml:"origin"       env:"SLOWFALL_ORIGIN" env-default:"http://localhost:8080"`
	APIBaseURL string `yaml:"api_base_url" env:"API_BASE_URL"`

	TokenStorage string        `yaml:"token_storage"       env:"TOKEN_STORAGE"       env-default:"file"`
	TokenFile    string        `yaml:"token_file"          env:"TOKEN_FILE"          env-default:".slowfall-tokens.json"`
	PollInterval time.Duration `yaml:"token_poll_interval" env:"TOKEN_POLL_INTERVAL" env-default:"1s"`
	RedisURL     string        `yaml:"redis_url"           env:"REDIS_URL"           env-default:"redis://localhost:6379/0"`
	RedisPrefix  string        `yaml:"redis_prefix"        env:"REDIS_PREFIX"        env-default:"slowfall"`
	Channel      string        `yaml:"token_channel"       env:"TOKEN_CHANNEL"       env-default:"slowfall-auth"`

	IdP IdPConfig `yaml:"idp"`

	Username string `yaml:"username" env:"SLOWFALL_USERNAME"`
	Password string `yaml:"-"        env:"SLOWFALL_PASSWORD"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"warn"`
}

// IdPConfig configures silent token acquisition.
type IdPConfig struct {
	ClientID        string `yaml:"client_id"         env:"IDP_CLIENT_ID"`
	ClientSecret    string `yaml:"-"                 env:"IDP_CLIENT_SECRET"`
	BackendClientID string `yaml:"backend_client_id" env:"IDP_BACKEND_CLIENT_ID"`
	TenantID        string `yaml:"tenant_id"         env:"IDP_TENANT_ID"`
	Authority       string `yaml:"authority"         env:"IDP_AUTHORITY"`
	TokenURL        string `yaml:"token_url"         env:"IDP_TOKEN_URL"`
}

func (c IdPConfig) idp() idp.Config {
	return idp.Config{
		ClientID:        c.ClientID,
		ClientSecret:    c.ClientSecret,
		BackendClientID: c.BackendClientID,
		TenantID:        c.TenantID,
		Authority:       c.Authority,
		TokenURL:        c.TokenURL,
	}
}

// flagValues holds raw flag input; empty means "not given".
type flagValues struct {
	config       string
	origin       string
	apiBaseURL   string
	tokenStorage string
	tokenFile    string
	redisURL     string
	username     string
	password     string
	logLevel     string
}

func newFlagSet(output io.Writer) (*flag.FlagSet, *flagValues) {
	fs := flag.NewFlagSet("slowfall", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() { printUsage(output, fs) }

	v := &flagValues{}
	fs.StringVar(&v.config, "config", "", "YAML config file (or SLOWFALL_CONFIG env)")
	fs.StringVar(&v.origin, "origin", "",
		"Slowfall server origin (default: http://localhost:8080 or SLOWFALL_ORIGIN env)")
	fs.StringVar(&v.apiBaseURL, "api-base-url", "", "API base URL (default: /api or API_BASE_URL env)")
	fs.StringVar(&v.tokenStorage, "token-storage", "", "Token storage: file, redis or memory (or TOKEN_STORAGE env)")
	fs.StringVar(&v.tokenFile, "token-file", "",
		"Token storage file (default: .slowfall-tokens.json or TOKEN_FILE env)")
	fs.StringVar(&v.redisURL, "redis-url", "", "Redis URL for redis token storage (or REDIS_URL env)")
	fs.StringVar(&v.username, "username", "", "Login username (or SLOWFALL_USERNAME env)")
	fs.StringVar(&v.password, "password", "", "Login password (or SLOWFALL_PASSWORD env)")
	fs.StringVar(&v.logLevel, "log-level", "",
		"Log level: debug, info, warn, error or silent (or LOG_LEVEL env)")
	return fs, v
}

// loadConfig parses args and builds the configuration.
// Priority: flag > env > config file > default.
// It returns the remaining positional arguments.
func loadConfig(args []string, stderr io.Writer) (*Config, []string, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	fs, v := newFlagSet(stderr)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if path := getConfig(v.config, os.Getenv("SLOWFALL_CONFIG")); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.Origin = getConfig(v.origin, cfg.Origin)
	cfg.APIBaseURL = getConfig(v.apiBaseURL, cfg.APIBaseURL)
	cfg.TokenStorage = strings.ToLower(getConfig(v.tokenStorage, cfg.TokenStorage))
	cfg.TokenFile = getConfig(v.tokenFile, cfg.TokenFile)
	cfg.RedisURL = getConfig(v.redisURL, cfg.RedisURL)
	cfg.Username = getConfig(v.username, cfg.Username)
	cfg.Password = getConfig(v.password, cfg.Password)
	cfg.LogLevel = strings.ToLower(getConfig(v.logLevel, cfg.LogLevel))

	if err := validateConfig(&cfg, stderr); err != nil {
		return nil, nil, err
	}
	return &cfg, fs.Args(), nil
}

// getConfig returns flagValue when set, otherwise current.
func getConfig(flagValue, current string) string {
	if flagValue != "" {
		return flagValue
	}
	return current
}

// validateConfig rejects unusable settings and prints warnings for risky ones.
func validateConfig(cfg *Config, stderr io.Writer) error {
	if err := validateServerURL(cfg.Origin); err != nil {
		return fmt.Errorf("invalid SLOWFALL_ORIGIN: %w", err)
	}
	cfg.Origin = strings.TrimRight(cfg.Origin, "/")

	// Warn if using HTTP instead of HTTPS
	if strings.HasPrefix(strings.ToLower(cfg.Origin), "http://") && !isLoopback(cfg.Origin) {
		fmt.Fprintln(
			stderr,
			"⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!",
		)
		fmt.Fprintln(
			stderr,
			"⚠️  This is only safe for local development. Use HTTPS in production.",
		)
		fmt.Fprintln(stderr)
	}

	switch cfg.TokenStorage {
	case storageFile, storageRedis, storageMemory:
	default:
		return fmt.Errorf("unknown token storage %q (want file, redis or memory)", cfg.TokenStorage)
	}
	if cfg.TokenStorage == storageFile && cfg.TokenFile == "" {
		return errors.New("token file path cannot be empty")
	}

	if _, _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	// Validate IDP_CLIENT_ID format (should be UUID)
	if id := cfg.IdP.ClientID; id != "" {
		if _, err := uuid.Parse(id); err != nil {
			fmt.Fprintf(
				stderr,
				"⚠️  Warning: IDP_CLIENT_ID doesn't appear to be a valid UUID: %s\n",
				id,
			)
			fmt.Fprintln(
				stderr,
				"⚠️  This may cause authentication issues if the identity provider expects UUID format.",
			)
			fmt.Fprintln(stderr)
		}
	}
	return nil
}

// validateServerURL validates that the server URL is properly formatted
func validateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

func isLoopback(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// parseLogLevel maps a level name to a slog level; "silent" disables logging.
func parseLogLevel(s string) (level slog.Level, silent bool, err error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, false, nil
	case "info":
		return slog.LevelInfo, false, nil
	case "", "warn", "warning":
		return slog.LevelWarn, false, nil
	case "error":
		return slog.LevelError, false, nil
	case "silent", "off", "none":
		return 0, true, nil
	}
	return 0, false, fmt.Errorf("unknown log level %q", s)
}

// newLogger builds the diagnostic logger. Logs go to w (stderr), keeping
// stdout free for command output.
func newLogger(level string, w io.Writer) *slog.Logger {
	lvl, silent, err := parseLogLevel(level)
	if err != nil || silent {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
