package app

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/rahulunni73/authclient/pkg/authclient"
	"github.com/rahulunni73/authclient/pkg/httpx"
)

// DefaultConfigFile is read from the working directory when neither an
// explicit path nor CONFIG_PATH is given.
const DefaultConfigFile = "authclient.yaml"

// Config is the root configuration of the authclient binary.
// Sources, highest priority first:
//  1. explicit path (--config);
//  2. the file named by CONFIG_PATH;
//  3. ./authclient.yaml;
//  4. environment variables only.
//
// Environment variables are always overlaid on top of a file.
type Config struct {
	Env       string `yaml:"env" env:"ENV" env-default:"dev"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`

	Backend  BackendConfig   `yaml:"backend"`
	Store    StoreConfig     `yaml:"store"`
	Keeper   KeeperConfig    `yaml:"keeper"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Timeouts TimeoutConfig   `yaml:"timeouts"`
	Limit    RateLimitConfig `yaml:"rate_limit"`
}

// BackendConfig maps onto authclient.ClientConfig.
type BackendConfig struct {
	BaseURL           string `yaml:"base_url" env:"AUTHCLIENT_BASE_URL"`
	EncryptionEnabled bool   `yaml:"encryption_enabled" env:"AUTHCLIENT_ENCRYPTION_ENABLED" env-default:"false"`
	ClientID          string `yaml:"client_id" env:"AUTHCLIENT_CLIENT_ID"`
	PassPhrase        string `yaml:"pass_phrase" env:"AUTHCLIENT_PASS_PHRASE"`
	RefreshPath       string `yaml:"refresh_path" env:"AUTHCLIENT_REFRESH_PATH" env-default:"/api/auth/refresh"`
}

// StoreConfig selects where the session lives. An empty Path keeps the
// session in memory for the lifetime of the process.
type StoreConfig struct {
	Path          string `yaml:"path" env:"AUTHCLIENT_STORE_PATH"`
	MasterKeyPath string `yaml:"master_key_path" env:"AUTHCLIENT_MASTER_KEY_PATH"`
}

// KeeperConfig controls proactive refresh. A zero Interval disables it.
type KeeperConfig struct {
	Interval time.Duration `yaml:"interval" env:"AUTHCLIENT_KEEPER_INTERVAL" env-default:"0s"`
	Lead     time.Duration `yaml:"lead" env:"AUTHCLIENT_KEEPER_LEAD" env-default:"2m"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"AUTHCLIENT_METRICS_ADDR"`
}

type TimeoutConfig struct {
	HTTP    time.Duration `yaml:"http" env:"AUTHCLIENT_HTTP_TIMEOUT" env-default:"60s"`
	Refresh time.Duration `yaml:"refresh" env:"AUTHCLIENT_REFRESH_TIMEOUT" env-default:"30s"`
}

// RateLimitConfig caps outbound requests per host. Zero values fall back to
// httpx.DefaultClientLimit, which honours RATELIMIT_CLIENT_*.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	Burst    int           `yaml:"burst"`
}

// MasterKeyEnv names the variable holding the store master key when no key
// file is configured.
const MasterKeyEnv = "AUTHCLIENT_MASTER_KEY"

// ClientConfig converts the backend section for authclient.Client.Initialize.
func (c Config) ClientConfig() authclient.ClientConfig {
	return authclient.ClientConfig{
		BaseURL:           c.Backend.BaseURL,
		EncryptionEnabled: c.Backend.EncryptionEnabled,
		ClientID:          c.Backend.ClientID,
		PassPhrase:        c.Backend.PassPhrase,
		RefreshPath:       c.Backend.RefreshPath,
	}
}

// RateLimit merges the configured limit over httpx.DefaultClientLimit.
func (c Config) RateLimit() httpx.RateLimitConfig {
	out := httpx.DefaultClientLimit
	if c.Limit.Requests > 0 {
		out.RequestsPerWindow = c.Limit.Requests
	}
	if c.Limit.Window > 0 {
		out.Window = c.Limit.Window
	}
	if c.Limit.Burst > 0 {
		out.Burst = c.Limit.Burst
	}
	return out
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration in priority order. See Config.
func Load(path string) (*Config, error) {
	var cfg Config

	readFile := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}
		return &cfg, nil
	}

	if path != "" {
		return readFile(path)
	}

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return readFile(envPath)
	}

	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return readFile(DefaultConfigFile)
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, %s or env vars: %w", DefaultConfigFile, err)
	}
	return &cfg, nil
}
