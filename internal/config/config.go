// Package config loads shelf settings from a TOML file and the environment.
//
// Precedence, lowest first: built-in defaults, the config file, SHELF_*
// environment variables. Command-line flags are applied by the caller on top
// of the returned Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	errs "github.com/matzehuels/shelf/pkg/errors"
)

// Environment variables that override file settings.
const (
	EnvCacheDir       = "SHELF_CACHE_DIR"
	EnvRegistry       = "SHELF_REGISTRY"
	EnvNPM            = "SHELF_NPM"
	EnvNode           = "SHELF_NODE"
	EnvRequireVersion = "SHELF_REQUIRE_VERSION"
	EnvLogLevel       = "SHELF_LOG_LEVEL"
)

// DefaultHTTPTTL is how long registry responses stay fresh on disk.
const DefaultHTTPTTL = 24 * time.Hour

// Config holds resolved settings.
type Config struct {
	CacheDir       string        // package slots
	HTTPCacheDir   string        // registry responses
	HTTPCacheTTL   time.Duration // 0 disables expiry
	HTTPTimeout    time.Duration // registry request timeout, 0 for the client default
	Registry       string        // npm registry URL, empty for npm's default
	NPM            string        // npm executable
	NPMArgs        []string      // extra npm install arguments
	Node           string        // node executable
	RequireVersion bool
	LogLevel       log.Level
}

type fileConfig struct {
	CacheDir       string   `toml:"cache_dir"`
	HTTPCacheDir   string   `toml:"http_cache_dir"`
	HTTPCacheTTL   string   `toml:"http_cache_ttl"`
	HTTPTimeout    string   `toml:"http_timeout"`
	Registry       string   `toml:"registry"`
	NPM            string   `toml:"npm"`
	NPMArgs        []string `toml:"npm_args"`
	Node           string   `toml:"node"`
	RequireVersion bool     `toml:"require_version"`
	LogLevel       string   `toml:"log_level"`
}

// Default returns the built-in settings.
func Default() (Config, error) {
	base, err := cacheHome()
	if err != nil {
		return Config{}, err
	}
	return Config{
		CacheDir:     filepath.Join(base, "shelf", "packages"),
		HTTPCacheDir: filepath.Join(base, "shelf", "http"),
		HTTPCacheTTL: DefaultHTTPTTL,
		NPM:          "npm",
		Node:         "node",
		LogLevel:     log.InfoLevel,
	}, nil
}

// DefaultPath returns $XDG_CONFIG_HOME/shelf/config.toml, falling back to
// ~/.config/shelf/config.toml.
func DefaultPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shelf", "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "shelf", "config.toml"), nil
}

// Load builds a Config from defaults, the file at path and the environment.
// An empty path selects DefaultPath, which may be absent. An explicit path
// must exist.
func Load(path string) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return Config{}, errs.Wrap(errs.ErrCodeInvalidConfig, err, "locate cache directory")
	}

	explicit := path != ""
	if !explicit {
		if path, err = DefaultPath(); err != nil {
			return Config{}, errs.Wrap(errs.ErrCodeInvalidConfig, err, "locate config file")
		}
	}

	if err := applyFile(&cfg, path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, applyEnv(&cfg)
		}
		return Config{}, err
	}
	return cfg, applyEnv(&cfg)
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errs.Wrap(errs.ErrCodeInvalidConfig, err, "config file not found: %s", path)
		}
		return errs.Wrap(errs.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errs.New(errs.ErrCodeInvalidConfig, "unknown config key %q in %s", undecoded[0].String(), path)
	}

	if meta.IsDefined("cache_dir") {
		cfg.CacheDir = expandHome(raw.CacheDir)
	}
	if meta.IsDefined("http_cache_dir") {
		cfg.HTTPCacheDir = expandHome(raw.HTTPCacheDir)
	}
	if meta.IsDefined("http_cache_ttl") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HTTPCacheTTL))
		if err != nil {
			return errs.Wrap(errs.ErrCodeInvalidConfig, err, "parse http_cache_ttl")
		}
		cfg.HTTPCacheTTL = d
	}
	if meta.IsDefined("http_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HTTPTimeout))
		if err != nil {
			return errs.Wrap(errs.ErrCodeInvalidConfig, err, "parse http_timeout")
		}
		cfg.HTTPTimeout = d
	}
	if meta.IsDefined("registry") {
		cfg.Registry = strings.TrimSpace(raw.Registry)
	}
	if meta.IsDefined("npm") {
		cfg.NPM = strings.TrimSpace(raw.NPM)
	}
	if meta.IsDefined("npm_args") {
		cfg.NPMArgs = raw.NPMArgs
	}
	if meta.IsDefined("node") {
		cfg.Node = strings.TrimSpace(raw.Node)
	}
	if meta.IsDefined("require_version") {
		cfg.RequireVersion = raw.RequireVersion
	}
	if meta.IsDefined("log_level") {
		lvl, err := log.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if err != nil {
			return errs.Wrap(errs.ErrCodeInvalidConfig, err, "parse log_level")
		}
		cfg.LogLevel = lvl
	}
	return cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvCacheDir); v != "" {
		cfg.CacheDir = expandHome(v)
	}
	if v := os.Getenv(EnvRegistry); v != "" {
		cfg.Registry = v
	}
	if v := os.Getenv(EnvNPM); v != "" {
		cfg.NPM = v
	}
	if v := os.Getenv(EnvNode); v != "" {
		cfg.Node = v
	}
	if v := os.Getenv(EnvRequireVersion); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errs.Wrap(errs.ErrCodeInvalidConfig, err, "parse %s", EnvRequireVersion)
		}
		cfg.RequireVersion = b
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		lvl, err := log.ParseLevel(v)
		if err != nil {
			return errs.Wrap(errs.ErrCodeInvalidConfig, err, "parse %s", EnvLogLevel)
		}
		cfg.LogLevel = lvl
	}
	return cfg.Validate()
}

// Validate checks that the settings are usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.CacheDir) == "" {
		return errs.New(errs.ErrCodeInvalidConfig, "cache_dir cannot be empty")
	}
	if strings.TrimSpace(c.NPM) == "" {
		return errs.New(errs.ErrCodeInvalidConfig, "npm cannot be empty")
	}
	if strings.TrimSpace(c.Node) == "" {
		return errs.New(errs.ErrCodeInvalidConfig, "node cannot be empty")
	}
	if c.HTTPCacheTTL < 0 {
		return errs.New(errs.ErrCodeInvalidConfig, "http_cache_ttl cannot be negative")
	}
	if c.HTTPTimeout < 0 {
		return errs.New(errs.ErrCodeInvalidConfig, "http_timeout cannot be negative")
	}
	if c.Registry != "" {
		if err := errs.ValidateURL(c.Registry); err != nil {
			return fmt.Errorf("registry: %w", err)
		}
	}
	return nil
}

func cacheHome() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache"), nil
}

func expandHome(p string) string {
	p = strings.TrimSpace(p)
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
