package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nexum/observability/logging"
	"nexum/services/lending/archive"
)

const (
	defaultListen     = ":8443"
	defaultDataDir    = "data/lendingd"
	defaultRatePerMin = 120

	envListen     = "LENDINGD_LISTEN"
	envHMACSecret = "LENDINGD_AUTH_HMAC_SECRET"
	envArchiveDSN = "LENDINGD_ARCHIVE_DSN"
	envRatePerMin = "LENDINGD_RATE_PER_MIN"
)

// Config captures the runtime settings for the lending service daemon.
type Config struct {
	ListenAddress  string          `yaml:"listen"`
	MetricsAddress string          `yaml:"metrics_listen"`
	DataDir        string          `yaml:"data_dir"`
	GenesisPath    string          `yaml:"genesis"`
	MaxBodyBytes   int64           `yaml:"max_body_bytes"`
	TLS            TLSConfig       `yaml:"tls"`
	Auth           AuthConfig      `yaml:"auth"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Archive        ArchiveConfig   `yaml:"archive"`
	Logging        logging.Options `yaml:"logging"`
}

// TLSConfig describes the TLS material for the HTTP listener.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	ClientCAPath  string `yaml:"client_ca"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig configures bearer token verification and co-signature replay
// protection.
type AuthConfig struct {
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
	CosignTTL  time.Duration `yaml:"cosign_ttl"`
	// ReplayPath is the bbolt file remembering used co-signatures. Relative
	// paths resolve under data_dir.
	ReplayPath string `yaml:"replay_db"`
}

// RateLimitConfig bounds requests per caller. A zero rate disables limiting.
// TrustedProxies lists the reverse proxies whose X-Real-IP and
// X-Forwarded-For headers identify anonymous callers.
type RateLimitConfig struct {
	RequestsPerMinute int      `yaml:"requests_per_minute"`
	Burst             int      `yaml:"burst"`
	TrustedProxies    []string `yaml:"trusted_proxies"`
}

// ArchiveConfig selects the event archive database.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
}

// Store converts the section into the archive package configuration.
func (cfg ArchiveConfig) Store() archive.Config {
	return archive.Config{Driver: cfg.Driver, DSN: cfg.DSN}
}

// Load reads the YAML configuration from disk, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: defaultListen,
		DataDir:       defaultDataDir,
		RateLimit:     RateLimitConfig{RequestsPerMinute: defaultRatePerMin},
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) {
	if value, ok := lookup(envListen); ok && strings.TrimSpace(value) != "" {
		cfg.ListenAddress = value
	}
	if value, ok := lookup(envHMACSecret); ok && strings.TrimSpace(value) != "" {
		cfg.Auth.HMACSecret = value
	}
	if value, ok := lookup(envArchiveDSN); ok && strings.TrimSpace(value) != "" {
		cfg.Archive.DSN = value
	}
	if value, ok := lookup(envRatePerMin); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			cfg.RateLimit.RequestsPerMinute = parsed
		}
	}
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.MetricsAddress = strings.TrimSpace(cfg.MetricsAddress)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.GenesisPath = strings.TrimSpace(cfg.GenesisPath)
	cfg.TLS.normalize()
	cfg.Auth.normalize(cfg.DataDir)
	cfg.Archive.Driver = strings.ToLower(strings.TrimSpace(cfg.Archive.Driver))
	cfg.Archive.DSN = strings.TrimSpace(cfg.Archive.DSN)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.GenesisPath == "" {
		return fmt.Errorf("genesis path is required")
	}
	if cfg.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative")
	}
	if err := cfg.TLS.validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	for _, proxy := range cfg.RateLimit.TrustedProxies {
		if !validProxy(proxy) {
			return fmt.Errorf("rate_limit: trusted proxy %q is not an address or CIDR", proxy)
		}
	}
	if cfg.Archive.Enabled {
		switch cfg.Archive.Driver {
		case "", archive.DriverSQLite:
		case archive.DriverPostgres:
			if cfg.Archive.DSN == "" {
				return fmt.Errorf("archive: postgres requires a dsn")
			}
		default:
			return fmt.Errorf("archive: unsupported driver %q", cfg.Archive.Driver)
		}
	}
	return nil
}

func validProxy(entry string) bool {
	entry = strings.TrimSpace(entry)
	if _, err := netip.ParsePrefix(entry); err == nil {
		return true
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}

// StorePath is the LevelDB directory holding protocol state.
func (cfg Config) StorePath() string {
	return filepath.Join(cfg.DataDir, "state")
}

func (cfg *TLSConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.CertPath = strings.TrimSpace(cfg.CertPath)
	cfg.KeyPath = strings.TrimSpace(cfg.KeyPath)
	cfg.ClientCAPath = strings.TrimSpace(cfg.ClientCAPath)
}

func (cfg TLSConfig) validate() error {
	hasCert := cfg.CertPath != ""
	hasKey := cfg.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("cert and key must either both be provided or both be empty")
	}
	if !cfg.AllowInsecure && !hasCert {
		return fmt.Errorf("cert and key are required unless allow_insecure=true")
	}
	if cfg.ClientCAPath != "" && !hasCert {
		return fmt.Errorf("client_ca requires a server certificate and key")
	}
	return nil
}

// MTLSEnabled reports whether mutual TLS verification is configured.
func (cfg TLSConfig) MTLSEnabled() bool {
	return strings.TrimSpace(cfg.ClientCAPath) != ""
}

func (cfg *AuthConfig) normalize(dataDir string) {
	if cfg == nil {
		return
	}
	cfg.HMACSecret = strings.TrimSpace(cfg.HMACSecret)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	cfg.ReplayPath = strings.TrimSpace(cfg.ReplayPath)
	if cfg.ReplayPath == "" {
		cfg.ReplayPath = "replay.db"
	}
	if !filepath.IsAbs(cfg.ReplayPath) {
		cfg.ReplayPath = filepath.Join(dataDir, cfg.ReplayPath)
	}
}

func (cfg AuthConfig) validate() error {
	if len(cfg.HMACSecret) < 32 {
		return fmt.Errorf("hmac_secret must be at least 32 bytes")
	}
	if cfg.ClockSkew < 0 || cfg.CosignTTL < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}
