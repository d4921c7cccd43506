// Package config loads flyter settings from defaults, an optional CUE file,
// .env files and FLYTER_* environment variables, in increasing precedence.
// Command-line flags are applied on top by the caller.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"

	"github.com/roach88/flyter/internal/kv"
)

//go:embed schema.cue
var schemaCUE string

// DefaultFile is the config file looked up when none is named.
const DefaultFile = "flyter.cue"

// Config is the effective flyter configuration.
type Config struct {
	Store  StoreConfig  `json:"store"`
	Server ServerConfig `json:"server"`
	Log    LogConfig    `json:"log"`
}

// StoreConfig selects the key/value backend.
type StoreConfig struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

// ServerConfig configures the HTTP entry points.
type ServerConfig struct {
	Addr            string          `json:"addr"`
	MaxContentBytes int64           `json:"max_content_bytes"`
	RateLimit       RateLimitConfig `json:"rate_limit"`

	// SigningKeys verify X-User-Signature headers. Empty disables
	// signature checks and trusts X-User-ID as given.
	SigningKeys []string `json:"signing_keys"`
}

// RateLimitConfig is a per-caller token bucket.
type RateLimitConfig struct {
	RPS   float64 `json:"rps"`
	Burst int     `json:"burst"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend: kv.BackendSQLite,
			Path:    "./flyter.db",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			MaxContentBytes: 64 * 1024,
			RateLimit:       RateLimitConfig{RPS: 5, Burst: 10},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Options controls Load.
type Options struct {
	// Path of the CUE config file. Empty means DefaultFile, which may be
	// missing; a named file must exist.
	Path string

	// EnvFiles are loaded with godotenv before reading the environment.
	// Missing files are ignored. Defaults to ".env".
	EnvFiles []string

	// Getenv reads the environment. Defaults to os.Getenv.
	Getenv func(string) string
}

// Load builds the effective configuration.
func Load(opts Options) (Config, error) {
	cfg := Default()

	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	path, required := opts.Path, true
	if path == "" {
		path, required = DefaultFile, false
	}
	fileCfg, err := LoadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !required:
	case err != nil:
		return Config{}, err
	default:
		cfg.merge(fileCfg)
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a CUE config file and validates it against the embedded
// schema. Fields absent from the file are zero in the result.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates CUE source against the schema and decodes it.
func Parse(filename string, src []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", filename, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", filename, err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", filename, err)
	}
	return cfg, nil
}

// merge copies every non-zero field of o into c.
func (c *Config) merge(o Config) {
	setString(&c.Store.Backend, o.Store.Backend)
	setString(&c.Store.Path, o.Store.Path)
	setString(&c.Server.Addr, o.Server.Addr)
	if o.Server.MaxContentBytes > 0 {
		c.Server.MaxContentBytes = o.Server.MaxContentBytes
	}
	if o.Server.RateLimit.RPS > 0 {
		c.Server.RateLimit.RPS = o.Server.RateLimit.RPS
	}
	if o.Server.RateLimit.Burst > 0 {
		c.Server.RateLimit.Burst = o.Server.RateLimit.Burst
	}
	if len(o.Server.SigningKeys) > 0 {
		c.Server.SigningKeys = slices.Clone(o.Server.SigningKeys)
	}
	setString(&c.Log.Level, o.Log.Level)
	setString(&c.Log.Format, o.Log.Format)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// applyEnv overrides c with FLYTER_* variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	env := func(name string) string {
		return strings.TrimSpace(getenv("FLYTER_" + name))
	}

	setString(&c.Store.Backend, env("BACKEND"))
	setString(&c.Store.Path, env("DB"))
	setString(&c.Server.Addr, env("ADDR"))
	setString(&c.Log.Level, env("LOG_LEVEL"))
	setString(&c.Log.Format, env("LOG_FORMAT"))

	if v := env("MAX_CONTENT_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FLYTER_MAX_CONTENT_BYTES: %w", err)
		}
		c.Server.MaxContentBytes = n
	}
	if v := env("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("FLYTER_RATE_RPS: %w", err)
		}
		c.Server.RateLimit.RPS = f
	}
	if v := env("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLYTER_RATE_BURST: %w", err)
		}
		c.Server.RateLimit.Burst = n
	}
	if v := env("SIGNING_KEYS"); v != "" {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		c.Server.SigningKeys = keys
	}
	return nil
}

// Validate checks the effective configuration. The CUE schema covers the
// file; this covers env and flag overrides.
func (c Config) Validate() error {
	if !slices.Contains(kv.Backends, c.Store.Backend) {
		return fmt.Errorf("invalid store backend %q: must be one of %v", c.Store.Backend, kv.Backends)
	}
	if c.Store.Backend != kv.BackendMemory && c.Store.Path == "" {
		return fmt.Errorf("store path is empty: set --db, FLYTER_DB or store.path")
	}
	if c.Server.MaxContentBytes <= 0 {
		return fmt.Errorf("max_content_bytes must be positive, got %d", c.Server.MaxContentBytes)
	}
	if c.Server.RateLimit.RPS <= 0 || c.Server.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit must be positive, got rps=%v burst=%d", c.Server.RateLimit.RPS, c.Server.RateLimit.Burst)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format %q: must be text or json", c.Log.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}

// NewLogger builds the process logger. verbose forces debug level.
func (l LogConfig) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
