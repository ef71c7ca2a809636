// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/jeranaias/bcard-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete bcard configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	API      APIConfig      `toml:"api" json:"api" envPrefix:"API_"`
	Security SecurityConfig `toml:"security" json:"security" envPrefix:"SECURITY_"`
	Storage  StorageConfig  `toml:"storage" json:"storage" envPrefix:"STORAGE_"`
	UI       UIConfig       `toml:"ui" json:"ui" envPrefix:"UI_"`
	Log      LogConfig      `toml:"log" json:"log" envPrefix:"LOG_"`
}

// APIConfig configures the card API client.
type APIConfig struct {
	// BaseURL is the API root, without a trailing slash.
	BaseURL string `toml:"base_url" json:"base_url" env:"BASE_URL"`
	// TimeoutSecs bounds one HTTP round trip.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs" env:"TIMEOUT_SECS"`
	// AuthHeader is the request header carrying the session token.
	AuthHeader string `toml:"auth_header" json:"auth_header" env:"AUTH_HEADER"`
	// RequestsPerSecond caps outgoing requests. 0 disables the limit.
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	// MaxRetries is the retry count for transient failures of idempotent calls.
	MaxRetries int `toml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`
}

// SecurityConfig configures sign-in throttling and token storage.
type SecurityConfig struct {
	// MaxLoginAttempts is the number of consecutive failures that start a lockout.
	MaxLoginAttempts int `toml:"max_login_attempts" json:"max_login_attempts" env:"MAX_LOGIN_ATTEMPTS"`
	// LockoutDurationMinutes is how long a lockout lasts.
	LockoutDurationMinutes int `toml:"lockout_duration_minutes" json:"lockout_duration_minutes" env:"LOCKOUT_DURATION_MINUTES"`
	// EncryptToken seals the stored session token with AES-256-GCM.
	EncryptToken bool `toml:"encrypt_token" json:"encrypt_token" env:"ENCRYPT_TOKEN"`
	// KeyFile holds the random token key. Empty means ~/.bcard/token.key.
	KeyFile string `toml:"key_file" json:"key_file" env:"KEY_FILE"`
	// PassphraseEnv names an environment variable holding a passphrase.
	// When that variable is set the key is derived from it instead of KeyFile.
	PassphraseEnv string `toml:"passphrase_env" json:"passphrase_env" env:"PASSPHRASE_ENV"`
	// SaltFile holds the PBKDF2 salt. Empty means ~/.bcard/token.salt.
	SaltFile string `toml:"salt_file" json:"salt_file" env:"SALT_FILE"`
}

// StorageConfig selects where attempts and the session token are kept.
type StorageConfig struct {
	// Backend is one of file, sqlite, redis, memory.
	Backend string `toml:"backend" json:"backend" env:"BACKEND"`
	// Path is the state file for file and sqlite. Empty means a default
	// under the config directory.
	Path string `toml:"path" json:"path" env:"PATH"`
	// RedisURL is a redis:// URL for the redis backend.
	RedisURL string `toml:"redis_url" json:"redis_url" env:"REDIS_URL"`
	// RedisPrefix namespaces keys in a shared Redis.
	RedisPrefix string `toml:"redis_prefix" json:"redis_prefix" env:"REDIS_PREFIX"`
	// Watch reloads the session when another process changes the store.
	Watch bool `toml:"watch" json:"watch" env:"WATCH"`
	// LockTimeoutSecs bounds the wait for the file backend's lock.
	LockTimeoutSecs int `toml:"lock_timeout_secs" json:"lock_timeout_secs" env:"LOCK_TIMEOUT_SECS"`
}

// UIConfig configures the terminal front ends.
type UIConfig struct {
	// Theme is dark, light or auto.
	Theme string `toml:"theme" json:"theme" env:"THEME"`
	// PageSize is the number of cards per page.
	PageSize int `toml:"page_size" json:"page_size" env:"PAGE_SIZE"`
	// NoColor disables colour output.
	NoColor bool `toml:"no_color" json:"no_color" env:"NO_COLOR"`
}

// LogConfig configures the structured log file.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" json:"level" env:"LEVEL"`
	// Path is the log file. Empty means ~/.bcard/bcard.log; "-" means stderr.
	Path string `toml:"path" json:"path" env:"PATH"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	// CurrentVersion is the config schema version.
	CurrentVersion = "1"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "BCARD_"

	// HomeEnv overrides the config directory.
	HomeEnv = "BCARD_HOME"

	defaultBaseURL = "https://monkfish-app-z9uza.ondigitalocean.app/bcard2"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		API: APIConfig{
			BaseURL:           defaultBaseURL,
			TimeoutSecs:       30,
			AuthHeader:        "x-auth-token",
			RequestsPerSecond: 5,
			MaxRetries:        3,
		},
		Security: SecurityConfig{
			MaxLoginAttempts:       3,
			LockoutDurationMinutes: 15,
			EncryptToken:           true,
			PassphraseEnv:          "BCARD_PASSPHRASE",
		},
		Storage: StorageConfig{
			Backend:         BackendFile,
			RedisPrefix:     "bcard:",
			Watch:           true,
			LockTimeoutSecs: 5,
		},
		UI: UIConfig{
			Theme:    "dark",
			PageSize: 8,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Timeout returns the API timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// LockoutDuration returns the lockout window.
func (c *Config) LockoutDuration() time.Duration {
	return time.Duration(c.Security.LockoutDurationMinutes) * time.Minute
}

// LockTimeout returns the file-lock wait bound.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Storage.LockTimeoutSecs) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the configuration directory: $BCARD_HOME, or ~/.bcard.
func Dir() (string, error) {
	if home := os.Getenv(HomeEnv); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".bcard"), nil
}

// PathTOML returns the path to the TOML config file.
func PathTOML() (string, error) {
	return inDir("config.toml")
}

// PathJSON returns the path to the JSON config file.
func PathJSON() (string, error) {
	return inDir("config.json")
}

func inDir(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// EnsureDir creates the config directory, owner-only.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// StatePath returns the storage file for the configured backend.
func (c *Config) StatePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	name := "state.json"
	if c.Storage.Backend == BackendSQLite {
		name = "state.db"
	}
	return inDir(name)
}

// KeyPath returns the token key file.
func (c *Config) KeyPath() (string, error) {
	if c.Security.KeyFile != "" {
		return c.Security.KeyFile, nil
	}
	return inDir("token.key")
}

// SaltPath returns the PBKDF2 salt file.
func (c *Config) SaltPath() (string, error) {
	if c.Security.SaltFile != "" {
		return c.Security.SaltFile, nil
	}
	return inDir("token.salt")
}

// LogPath returns the log file, or "-" for stderr.
func (c *Config) LogPath() (string, error) {
	if c.Log.Path != "" {
		return c.Log.Path, nil
	}
	return inDir("bcard.log")
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads config.toml, falling back to config.json and then to defaults.
// Environment overrides are applied last. A file that cannot be decoded is
// reported alongside the default configuration so the caller can warn and
// continue.
func Load() (*Config, error) {
	var loadErr error
	for _, pathFn := range []func() (string, error){PathTOML, PathJSON} {
		path, err := pathFn()
		if err != nil {
			loadErr = err
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		var verrs ValidateErrors
		if errors.As(err, &verrs) {
			return nil, err
		}
		loadErr = err
	}

	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// LoadFromPath loads one file (.json or TOML) with env overrides and
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	var err error
	if strings.HasSuffix(path, ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	if err := c.ApplyEnvOverrides(); err != nil {
		return err
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default TOML file.
func Save(cfg *Config) error {
	path, err := PathTOML()
	if err != nil {
		return err
	}
	if err := EnsureDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML, atomically and owner-only.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# bcard configuration file\n")
	buf.WriteString("# Environment variables BCARD_<SECTION>_<KEY> override these values.\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON, atomically and owner-only.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid setting.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every setting and returns ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// API
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Host == "" {
		add("api.base_url", "invalid URL '%s'", c.API.BaseURL)
	} else if u.Scheme != "https" && u.Scheme != "http" {
		add("api.base_url", "scheme must be http or https, got '%s'", u.Scheme)
	}
	if c.API.TimeoutSecs < 1 || c.API.TimeoutSecs > 300 {
		add("api.timeout_secs", "must be between 1 and 300, got %d", c.API.TimeoutSecs)
	}
	if strings.TrimSpace(c.API.AuthHeader) == "" {
		add("api.auth_header", "must not be empty")
	}
	if c.API.RequestsPerSecond < 0 {
		add("api.requests_per_second", "must not be negative")
	}
	if c.API.MaxRetries < 0 || c.API.MaxRetries > 10 {
		add("api.max_retries", "must be between 0 and 10, got %d", c.API.MaxRetries)
	}

	// Security
	if c.Security.MaxLoginAttempts < 1 || c.Security.MaxLoginAttempts > 100 {
		add("security.max_login_attempts", "must be between 1 and 100, got %d", c.Security.MaxLoginAttempts)
	}
	if c.Security.LockoutDurationMinutes < 1 || c.Security.LockoutDurationMinutes > 24*60 {
		add("security.lockout_duration_minutes", "must be between 1 and 1440, got %d", c.Security.LockoutDurationMinutes)
	}

	// Storage
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			add("storage.redis_url", "required when backend is redis")
		} else if u, err := url.Parse(c.Storage.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			add("storage.redis_url", "must be a redis:// or rediss:// URL")
		}
	default:
		add("storage.backend", "invalid backend '%s', must be one of: file, sqlite, redis, memory", c.Storage.Backend)
	}
	if c.Storage.LockTimeoutSecs < 1 {
		add("storage.lock_timeout_secs", "must be at least 1, got %d", c.Storage.LockTimeoutSecs)
	}

	// UI
	switch strings.ToLower(c.UI.Theme) {
	case "dark", "light", "auto":
	default:
		add("ui.theme", "invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme)
	}
	if c.UI.PageSize < 1 || c.UI.PageSize > 100 {
		add("ui.page_size", "must be between 1 and 100, got %d", c.UI.PageSize)
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills unset values from Default.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.TimeoutSecs == 0 {
		c.API.TimeoutSecs = d.API.TimeoutSecs
	}
	if c.API.AuthHeader == "" {
		c.API.AuthHeader = d.API.AuthHeader
	}
	if c.Security.MaxLoginAttempts == 0 {
		c.Security.MaxLoginAttempts = d.Security.MaxLoginAttempts
	}
	if c.Security.LockoutDurationMinutes == 0 {
		c.Security.LockoutDurationMinutes = d.Security.LockoutDurationMinutes
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	if c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = d.Storage.RedisPrefix
	}
	if c.Storage.LockTimeoutSecs == 0 {
		c.Storage.LockTimeoutSecs = d.Storage.LockTimeoutSecs
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.PageSize == 0 {
		c.UI.PageSize = d.UI.PageSize
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies BCARD_<SECTION>_<KEY> variables, for example
// BCARD_STORAGE_BACKEND=sqlite or BCARD_SECURITY_MAX_LOGIN_ATTEMPTS=5.
// NO_COLOR is honoured as well.
func (c *Config) ApplyEnvOverrides() error {
	return c.applyEnv(nil)
}

func (c *Config) applyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	noColor, ok := os.LookupEnv("NO_COLOR")
	if environ != nil {
		noColor, ok = environ["NO_COLOR"]
	}
	if ok && noColor != "" {
		c.UI.NoColor = true
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value by dot notation, e.g. "security.max_login_attempts".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value by dot notation. String input is converted to the
// field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a setting", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts snake_case or kebab-case to a Go field name.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue assigns value to field, converting from string if needed.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.ToLower(strVal))
			if err != nil {
				if strings.EqualFold(strVal, "yes") {
					boolVal = true
				} else if !strings.EqualFold(strVal, "no") {
					return fmt.Errorf("invalid boolean value: %q", strVal)
				}
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Keys returns every setting in dot notation, sorted.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		name := tagName(section)
		if section.Type.Kind() != reflect.Struct {
			keys = append(keys, name)
			continue
		}
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, name+"."+tagName(section.Type.Field(j)))
		}
	}
	sort.Strings(keys)
	return keys
}

func tagName(f reflect.StructField) string {
	if tag, _, _ := strings.Cut(f.Tag.Get("toml"), ","); tag != "" {
		return tag
	}
	return strings.ToLower(f.Name)
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the config as JSON with the Redis password redacted.
func (c *Config) String() string {
	safe := c.Clone()
	safe.Storage.RedisURL = redactURL(safe.Storage.RedisURL)
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// Redacted returns the value of key for display, hiding credentials.
func (c *Config) Redacted(key string) (any, error) {
	v, err := c.Get(key)
	if err != nil {
		return nil, err
	}
	if key == "storage.redis_url" {
		if s, ok := v.(string); ok {
			return redactURL(s), nil
		}
	}
	return v, nil
}

func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[REDACTED]"
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "REDACTED")
	}
	return u.String()
}
