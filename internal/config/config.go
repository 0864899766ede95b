// Package config loads the coffeeclub configuration from
// ~/.coffeeclub/config.yaml, an optional .env file and COFFEECLUB_*
// environment variables, in increasing order of precedence.
package config

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/coffeeclub/internal/log"
	"github.com/felixgeelhaar/coffeeclub/internal/securestore"
)

// Environment variables recognised by Load.
const (
	EnvHome         = "COFFEECLUB_HOME"
	EnvAPIURL       = "COFFEECLUB_API_URL"
	EnvLogLevel     = "COFFEECLUB_LOG_LEVEL"
	EnvStoreBackend = "COFFEECLUB_STORE_BACKEND"
	EnvStorePath    = "COFFEECLUB_STORE_PATH"
	EnvPassphrase   = "COFFEECLUB_STORE_PASSPHRASE"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendVault  = "vault"
)

// Config is the complete client configuration.
type Config struct {
	API      APIConfig      `yaml:"api" json:"api"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Device   DeviceConfig   `yaml:"device" json:"device"`
	Rewards  RewardsConfig  `yaml:"rewards" json:"rewards"`
	Defaults DefaultsConfig `yaml:"defaults" json:"defaults"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

type APIConfig struct {
	BaseURL          string        `yaml:"base_url" json:"base_url"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	RefreshPath      string        `yaml:"refresh_path" json:"refresh_path"`
	ValidateRequests bool          `yaml:"validate_requests" json:"validate_requests"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend" json:"backend"` // "file", "memory", "vault"
	Path       string `yaml:"path,omitempty" json:"path,omitempty"`
	ReadPolicy string `yaml:"read_policy" json:"read_policy"` // "strict", "lenient"

	// PassphraseEnv names the variable holding the file store passphrase.
	// Without one the key is bound to this machine and user.
	PassphraseEnv string      `yaml:"passphrase_env,omitempty" json:"passphrase_env,omitempty"`
	Vault         VaultConfig `yaml:"vault,omitempty" json:"vault,omitempty"`
}

type VaultConfig struct {
	Address   string `yaml:"address,omitempty" json:"address,omitempty"`
	Mount     string `yaml:"mount,omitempty" json:"mount,omitempty"`
	Prefix    string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

type LogConfig struct {
	Level   string        `yaml:"level" json:"level"`
	Format  string        `yaml:"format" json:"format"`
	FileDir string        `yaml:"file_dir,omitempty" json:"file_dir,omitempty"` // empty disables file logging
	MaxAge  time.Duration `yaml:"max_age,omitempty" json:"max_age,omitempty"`
}

type DeviceConfig struct {
	AutoRegister bool `yaml:"auto_register" json:"auto_register"`
}

type RewardsConfig struct {
	Threshold int `yaml:"threshold" json:"threshold"`
}

type DefaultsConfig struct {
	Format  string `yaml:"format" json:"format"` // "text", "json", "yaml"
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

type MetricsConfig struct {
	// Textfile, when set, receives the run's metrics for a node exporter
	// textfile collector.
	Textfile string `yaml:"textfile,omitempty" json:"textfile,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:     "http://localhost:5050",
			Timeout:     30 * time.Second,
			RefreshPath: "/account/refresh",
		},
		Store: StoreConfig{
			Backend:       BackendFile,
			ReadPolicy:    securestore.ReadStrict.String(),
			PassphraseEnv: EnvPassphrase,
			Vault: VaultConfig{
				Mount:  "secret",
				Prefix: "coffeeclub",
			},
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
			MaxAge: 7 * 24 * time.Hour,
		},
		Device: DeviceConfig{
			AutoRegister: true,
		},
		Rewards: RewardsConfig{
			Threshold: 10,
		},
		Defaults: DefaultsConfig{
			Format: "text",
		},
	}
}

// Home returns the coffeeclub state directory.
func Home() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".coffeeclub"), nil
}

// DefaultPath returns the path of the configuration file.
func DefaultPath() (string, error) {
	dir, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadDotEnv loads .env from the working directory and then from the state
// directory. Variables already set in the environment are not overridden.
// Missing files are ignored.
func LoadDotEnv() error {
	candidates := []string{".env"}
	if dir, err := Home(); err == nil {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads the file at path (DefaultPath when empty) over the defaults,
// applies environment overrides and validates the result. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile reads the file at path (DefaultPath when empty) over the
// defaults without applying the environment or validating. Edits that are
// saved back start from here so environment overrides never leak into the
// file.
func ReadFile(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case stderrors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory when needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		c.API.BaseURL = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvStoreBackend); ok && v != "" {
		c.Store.Backend = v
	}
	if v, ok := lookup(EnvStorePath); ok && v != "" {
		c.Store.Path = v
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var problems []string

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("api.base_url %q must be an http(s) URL", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		problems = append(problems, "api.timeout must be positive")
	}
	if !strings.HasPrefix(c.API.RefreshPath, "/") {
		problems = append(problems, "api.refresh_path must start with /")
	}

	switch c.Store.Backend {
	case BackendFile, BackendMemory:
	case BackendVault:
		if c.Store.Vault.Address == "" && os.Getenv("VAULT_ADDR") == "" {
			problems = append(problems, "store.vault.address (or VAULT_ADDR) is required for the vault backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.backend %q must be file, memory or vault", c.Store.Backend))
	}
	if _, err := securestore.ParseReadPolicy(c.Store.ReadPolicy); err != nil {
		problems = append(problems, err.Error())
	}

	if !log.ValidLevel(c.Log.Level) {
		problems = append(problems, fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		problems = append(problems, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}

	if c.Rewards.Threshold <= 0 {
		problems = append(problems, "rewards.threshold must be positive")
	}

	switch c.Defaults.Format {
	case "text", "json", "yaml":
	default:
		problems = append(problems, fmt.Sprintf("defaults.format %q must be text, json or yaml", c.Defaults.Format))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidationError lists every invalid field.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// StorePath returns the file store location, defaulting to
// <home>/credentials.json.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return expandHome(c.Store.Path)
	}
	dir, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.json"), nil
}

// Passphrase returns the file store passphrase, or "" when unset.
func (c *Config) Passphrase() string {
	if c.Store.PassphraseEnv == "" {
		return ""
	}
	return os.Getenv(c.Store.PassphraseEnv)
}

// MetricsTextfile returns the expanded metrics textfile path, or "" when
// disabled.
func (c *Config) MetricsTextfile() (string, error) {
	if c.Metrics.Textfile == "" {
		return "", nil
	}
	return expandHome(c.Metrics.Textfile)
}

// LogDir returns the expanded log directory, or "" when file logging is off.
func (c *Config) LogDir() (string, error) {
	if c.Log.FileDir == "" {
		return "", nil
	}
	return expandHome(c.Log.FileDir)
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
