package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment names recognised by Env.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// ConfigFileEnv names the variable pointing at an optional JSON config file.
const ConfigFileEnv = "HUDDLE_CONFIG_FILE"

var (
	ErrMissingJWTSecret = errors.New("JWT secret is required (set JWT_SECRET)")
	ErrMissingAPIKey    = errors.New("assistant API key is required (set GEMINI_API_KEY)")
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Env       string           `json:"env"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Database  *DatabaseConfig  `json:"database"`
	Redis     *RedisConfig     `json:"redis"`
	Auth      *AuthConfig      `json:"auth"`
	Assistant *AssistantConfig `json:"assistant"`
	Log       *LogConfig       `json:"log"`
}

// FUNCTIONAL DISCOVERY: HTTP configuration balances performance and reliability
type HTTPConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	CORSOrigins     []string      `json:"cors_origins"`
}

// WebSocketConfig tunes the room transport. ReadTimeout is the pong wait.
type WebSocketConfig struct {
	PingInterval     time.Duration `json:"ping_interval"`
	ReadTimeout      time.Duration `json:"read_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout"`
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	BufferSize       int           `json:"buffer_size"`
	ReadLimit        int64         `json:"read_limit"`
	AllowedOrigins   []string      `json:"allowed_origins"`
}

// FUNCTIONAL DISCOVERY: Database configuration supports SQLite optimizations
type DatabaseConfig struct {
	Path           string `json:"path"`
	MigrationsPath string `json:"migrations_path"`
	MaxConnections int    `json:"max_connections"`
}

// RedisConfig fronts project lookups with a cache. An empty URL disables it.
type RedisConfig struct {
	URL         string        `json:"url"`
	TTL         time.Duration `json:"ttl"`
	NegativeTTL time.Duration `json:"negative_ttl"`
}

type AuthConfig struct {
	JWTSecret         string        `json:"-"`
	Issuer            string        `json:"issuer"`
	Audience          string        `json:"audience"`
	Leeway            time.Duration `json:"leeway"`
	RequireMembership bool          `json:"require_membership"`
}

// AssistantConfig covers the generative backend, its retry policy and the
// per-user request limit.
type AssistantConfig struct {
	APIKey            string        `json:"-"`
	BaseURL           string        `json:"base_url"`
	Model             string        `json:"model"`
	SystemInstruction string        `json:"system_instruction"`
	Temperature       float64       `json:"temperature"`
	ResponseMIMEType  string        `json:"response_mime_type"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	Trigger           string        `json:"trigger"`
	FallbackText      string        `json:"fallback_text"`

	RetryKind       string        `json:"retry_kind"`
	RetryAttempts   int           `json:"retry_attempts"`
	RetryDelay      time.Duration `json:"retry_delay"`
	RetryMultiplier float64       `json:"retry_multiplier"`
	RetryMaxDelay   time.Duration `json:"retry_max_delay"`

	RateLimit  int           `json:"rate_limit"`
	RateWindow time.Duration `json:"rate_window"`
}

type LogConfig struct {
	Level string `json:"level"`
	// Format is "console" or "json"; empty picks console in development.
	Format string `json:"format"`
}

const defaultSystemInstruction = "You are a helpful assistant taking part in a team chat room. " +
	"Answer the question you were mentioned with clearly and concisely, " +
	"using plain text that reads well in a chat window."

// FUNCTIONAL DISCOVERY: Production-ready defaults
// Database on local filesystem, HTTP on standard port, WebSocket with 30s heartbeat
func DefaultConfig() *Config {
	return &Config{
		Env: EnvDevelopment,
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:     30 * time.Second,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     5 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			BufferSize:       100,
			ReadLimit:        1 << 20,
		},
		Database: &DatabaseConfig{
			Path:           "./data/huddle.db",
			MaxConnections: 10,
		},
		Redis: &RedisConfig{
			TTL:         5 * time.Minute,
			NegativeTTL: 30 * time.Second,
		},
		Auth: &AuthConfig{
			Leeway: 30 * time.Second,
		},
		Assistant: &AssistantConfig{
			BaseURL:           "https://generativelanguage.googleapis.com",
			Model:             "gemini-2.5-flash",
			SystemInstruction: defaultSystemInstruction,
			Temperature:       0.4,
			Trigger:           "@ai",
			RetryKind:         "fixed",
			RetryAttempts:     3,
			RetryDelay:        2 * time.Second,
			RetryMultiplier:   2,
			RetryMaxDelay:     30 * time.Second,
			RateLimit:         30,
			RateWindow:        time.Minute,
		},
		Log: &LogConfig{
			Level: "info",
		},
	}
}

// Address is the host:port the HTTP server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// IsDevelopment reports whether Env is development.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
// Critical for preventing runtime failures in production deployment
func (c *Config) Validate() error {
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return fmt.Errorf("env must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env)
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	// port 0 binds an ephemeral port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 || c.WebSocket.HandshakeTimeout <= 0 {
		return fmt.Errorf("WebSocket write and handshake timeouts must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.ReadLimit <= 0 {
		return fmt.Errorf("WebSocket read limit must be positive")
	}

	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}

	if c.Redis == nil {
		return fmt.Errorf("redis configuration is required")
	}
	if c.Redis.TTL <= 0 || c.Redis.NegativeTTL < 0 {
		return fmt.Errorf("redis TTLs must be positive (negative TTL may be zero)")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}
	if c.Auth.Leeway < 0 {
		return fmt.Errorf("auth leeway cannot be negative")
	}

	if c.Assistant == nil {
		return fmt.Errorf("assistant configuration is required")
	}
	if c.Assistant.Model == "" || c.Assistant.BaseURL == "" {
		return fmt.Errorf("assistant model and base URL cannot be empty")
	}
	if strings.TrimSpace(c.Assistant.Trigger) == "" {
		return fmt.Errorf("assistant trigger cannot be blank")
	}
	if c.Assistant.Temperature < 0 || c.Assistant.Temperature > 2 {
		return fmt.Errorf("assistant temperature must be between 0 and 2")
	}
	if c.Assistant.RetryKind != "fixed" && c.Assistant.RetryKind != "exponential" {
		return fmt.Errorf("assistant retry kind must be fixed or exponential")
	}
	if c.Assistant.RetryAttempts < 1 {
		return fmt.Errorf("assistant retry attempts must be at least 1")
	}
	if c.Assistant.RetryDelay < 0 || c.Assistant.RetryMaxDelay < 0 || c.Assistant.RequestTimeout < 0 {
		return fmt.Errorf("assistant durations cannot be negative")
	}
	if c.Assistant.RateLimit < 0 {
		return fmt.Errorf("assistant rate limit cannot be negative")
	}
	if c.Assistant.RateLimit > 0 && c.Assistant.RateWindow <= 0 {
		return fmt.Errorf("assistant rate window must be positive when rate limiting is enabled")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log format must be console or json")
	}

	return nil
}

// RequireSecrets reports the credentials the server cannot run without.
func (c *Config) RequireSecrets() error {
	var errs []error
	if c.Auth == nil || c.Auth.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.Assistant == nil || c.Assistant.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	return errors.Join(errs...)
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// Unparseable values are ignored and the previous value is kept
func LoadFromEnv() *Config {
	config := DefaultConfig()
	config.applyEnv()
	return config
}

func (c *Config) applyEnv() {
	envString("HUDDLE_ENV", &c.Env)

	envString("HUDDLE_HTTP_HOST", &c.HTTP.Host)
	envInt("PORT", &c.HTTP.Port)
	envInt("HUDDLE_HTTP_PORT", &c.HTTP.Port)
	envDuration("HUDDLE_HTTP_READ_TIMEOUT", &c.HTTP.ReadTimeout)
	envDuration("HUDDLE_HTTP_WRITE_TIMEOUT", &c.HTTP.WriteTimeout)
	envDuration("HUDDLE_HTTP_SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout)
	envList("HUDDLE_HTTP_CORS_ORIGINS", &c.HTTP.CORSOrigins)

	envDuration("HUDDLE_WEBSOCKET_PING_INTERVAL", &c.WebSocket.PingInterval)
	envDuration("HUDDLE_WEBSOCKET_READ_TIMEOUT", &c.WebSocket.ReadTimeout)
	envDuration("HUDDLE_WEBSOCKET_WRITE_TIMEOUT", &c.WebSocket.WriteTimeout)
	envDuration("HUDDLE_WEBSOCKET_HANDSHAKE_TIMEOUT", &c.WebSocket.HandshakeTimeout)
	envInt("HUDDLE_WEBSOCKET_BUFFER_SIZE", &c.WebSocket.BufferSize)
	envInt64("HUDDLE_WEBSOCKET_READ_LIMIT", &c.WebSocket.ReadLimit)
	envList("HUDDLE_WEBSOCKET_ALLOWED_ORIGINS", &c.WebSocket.AllowedOrigins)

	envString("HUDDLE_DATABASE_PATH", &c.Database.Path)
	envString("HUDDLE_DATABASE_MIGRATIONS_PATH", &c.Database.MigrationsPath)
	envInt("HUDDLE_DATABASE_MAX_CONNECTIONS", &c.Database.MaxConnections)

	envString("REDIS_URL", &c.Redis.URL)
	envString("HUDDLE_REDIS_URL", &c.Redis.URL)
	envDuration("HUDDLE_REDIS_TTL", &c.Redis.TTL)
	envDuration("HUDDLE_REDIS_NEGATIVE_TTL", &c.Redis.NegativeTTL)

	envString("JWT_SECRET", &c.Auth.JWTSecret)
	envString("HUDDLE_AUTH_JWT_SECRET", &c.Auth.JWTSecret)
	envString("HUDDLE_AUTH_ISSUER", &c.Auth.Issuer)
	envString("HUDDLE_AUTH_AUDIENCE", &c.Auth.Audience)
	envDuration("HUDDLE_AUTH_LEEWAY", &c.Auth.Leeway)
	envBool("HUDDLE_AUTH_REQUIRE_MEMBERSHIP", &c.Auth.RequireMembership)

	envString("GEMINI_API_KEY", &c.Assistant.APIKey)
	envString("HUDDLE_ASSISTANT_API_KEY", &c.Assistant.APIKey)
	envString("HUDDLE_ASSISTANT_BASE_URL", &c.Assistant.BaseURL)
	envString("HUDDLE_ASSISTANT_MODEL", &c.Assistant.Model)
	envString("HUDDLE_ASSISTANT_SYSTEM_INSTRUCTION", &c.Assistant.SystemInstruction)
	envFloat("HUDDLE_ASSISTANT_TEMPERATURE", &c.Assistant.Temperature)
	envString("HUDDLE_ASSISTANT_RESPONSE_MIME_TYPE", &c.Assistant.ResponseMIMEType)
	envDuration("HUDDLE_ASSISTANT_REQUEST_TIMEOUT", &c.Assistant.RequestTimeout)
	envString("HUDDLE_ASSISTANT_TRIGGER", &c.Assistant.Trigger)
	envString("HUDDLE_ASSISTANT_FALLBACK_TEXT", &c.Assistant.FallbackText)
	envString("HUDDLE_ASSISTANT_RETRY_KIND", &c.Assistant.RetryKind)
	envInt("HUDDLE_ASSISTANT_RETRY_ATTEMPTS", &c.Assistant.RetryAttempts)
	envDuration("HUDDLE_ASSISTANT_RETRY_DELAY", &c.Assistant.RetryDelay)
	envFloat("HUDDLE_ASSISTANT_RETRY_MULTIPLIER", &c.Assistant.RetryMultiplier)
	envDuration("HUDDLE_ASSISTANT_RETRY_MAX_DELAY", &c.Assistant.RetryMaxDelay)
	envInt("HUDDLE_ASSISTANT_RATE_LIMIT", &c.Assistant.RateLimit)
	envDuration("HUDDLE_ASSISTANT_RATE_WINDOW", &c.Assistant.RateWindow)

	envString("HUDDLE_LOG_LEVEL", &c.Log.Level)
	envString("HUDDLE_LOG_FORMAT", &c.Log.Format)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envList(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, entry := range strings.Split(v, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	*dst = out
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Env       string               `json:"env"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Database  *DatabaseConfig      `json:"database"`
	Redis     *RedisConfigFile     `json:"redis"`
	Auth      *AuthConfigFile      `json:"auth"`
	Assistant *AssistantConfigFile `json:"assistant"`
	Log       *LogConfig           `json:"log"`
}

type HTTPConfigFile struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	ReadTimeout     string   `json:"read_timeout"`
	WriteTimeout    string   `json:"write_timeout"`
	ShutdownTimeout string   `json:"shutdown_timeout"`
	CORSOrigins     []string `json:"cors_origins"`
}

type WebSocketConfigFile struct {
	PingInterval     string   `json:"ping_interval"`
	ReadTimeout      string   `json:"read_timeout"`
	WriteTimeout     string   `json:"write_timeout"`
	HandshakeTimeout string   `json:"handshake_timeout"`
	BufferSize       int      `json:"buffer_size"`
	ReadLimit        int64    `json:"read_limit"`
	AllowedOrigins   []string `json:"allowed_origins"`
}

type RedisConfigFile struct {
	URL         string `json:"url"`
	TTL         string `json:"ttl"`
	NegativeTTL string `json:"negative_ttl"`
}

// AuthConfigFile has no secret field; secrets come from the environment.
type AuthConfigFile struct {
	Issuer            string `json:"issuer"`
	Audience          string `json:"audience"`
	Leeway            string `json:"leeway"`
	RequireMembership *bool  `json:"require_membership"`
}

type AssistantConfigFile struct {
	BaseURL           string   `json:"base_url"`
	Model             string   `json:"model"`
	SystemInstruction string   `json:"system_instruction"`
	Temperature       *float64 `json:"temperature"`
	ResponseMIMEType  string   `json:"response_mime_type"`
	RequestTimeout    string   `json:"request_timeout"`
	Trigger           string   `json:"trigger"`
	FallbackText      string   `json:"fallback_text"`
	RetryKind         string   `json:"retry_kind"`
	RetryAttempts     int      `json:"retry_attempts"`
	RetryDelay        string   `json:"retry_delay"`
	RetryMultiplier   float64  `json:"retry_multiplier"`
	RetryMaxDelay     string   `json:"retry_max_delay"`
	RateLimit         *int     `json:"rate_limit"`
	RateWindow        string   `json:"rate_window"`
}

// LoadFromFile reads a JSON config file over the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := config.applyFile(filepath); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func (c *Config) applyFile(filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	// durations are parsed strictly here; a typo in a file is a deploy bug
	var errs []error
	duration := func(field, value string, dst *time.Duration) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = d
	}
	str := func(value string, dst *string) {
		if value != "" {
			*dst = value
		}
	}

	str(file.Env, &c.Env)

	if f := file.HTTP; f != nil {
		str(f.Host, &c.HTTP.Host)
		if f.Port > 0 {
			c.HTTP.Port = f.Port
		}
		duration("http.read_timeout", f.ReadTimeout, &c.HTTP.ReadTimeout)
		duration("http.write_timeout", f.WriteTimeout, &c.HTTP.WriteTimeout)
		duration("http.shutdown_timeout", f.ShutdownTimeout, &c.HTTP.ShutdownTimeout)
		if f.CORSOrigins != nil {
			c.HTTP.CORSOrigins = f.CORSOrigins
		}
	}

	if f := file.WebSocket; f != nil {
		duration("websocket.ping_interval", f.PingInterval, &c.WebSocket.PingInterval)
		duration("websocket.read_timeout", f.ReadTimeout, &c.WebSocket.ReadTimeout)
		duration("websocket.write_timeout", f.WriteTimeout, &c.WebSocket.WriteTimeout)
		duration("websocket.handshake_timeout", f.HandshakeTimeout, &c.WebSocket.HandshakeTimeout)
		if f.BufferSize > 0 {
			c.WebSocket.BufferSize = f.BufferSize
		}
		if f.ReadLimit > 0 {
			c.WebSocket.ReadLimit = f.ReadLimit
		}
		if f.AllowedOrigins != nil {
			c.WebSocket.AllowedOrigins = f.AllowedOrigins
		}
	}

	if f := file.Database; f != nil {
		str(f.Path, &c.Database.Path)
		str(f.MigrationsPath, &c.Database.MigrationsPath)
		if f.MaxConnections > 0 {
			c.Database.MaxConnections = f.MaxConnections
		}
	}

	if f := file.Redis; f != nil {
		str(f.URL, &c.Redis.URL)
		duration("redis.ttl", f.TTL, &c.Redis.TTL)
		duration("redis.negative_ttl", f.NegativeTTL, &c.Redis.NegativeTTL)
	}

	if f := file.Auth; f != nil {
		str(f.Issuer, &c.Auth.Issuer)
		str(f.Audience, &c.Auth.Audience)
		duration("auth.leeway", f.Leeway, &c.Auth.Leeway)
		if f.RequireMembership != nil {
			c.Auth.RequireMembership = *f.RequireMembership
		}
	}

	if f := file.Assistant; f != nil {
		str(f.BaseURL, &c.Assistant.BaseURL)
		str(f.Model, &c.Assistant.Model)
		str(f.SystemInstruction, &c.Assistant.SystemInstruction)
		if f.Temperature != nil {
			c.Assistant.Temperature = *f.Temperature
		}
		str(f.ResponseMIMEType, &c.Assistant.ResponseMIMEType)
		duration("assistant.request_timeout", f.RequestTimeout, &c.Assistant.RequestTimeout)
		str(f.Trigger, &c.Assistant.Trigger)
		str(f.FallbackText, &c.Assistant.FallbackText)
		str(f.RetryKind, &c.Assistant.RetryKind)
		if f.RetryAttempts > 0 {
			c.Assistant.RetryAttempts = f.RetryAttempts
		}
		duration("assistant.retry_delay", f.RetryDelay, &c.Assistant.RetryDelay)
		if f.RetryMultiplier > 0 {
			c.Assistant.RetryMultiplier = f.RetryMultiplier
		}
		duration("assistant.retry_max_delay", f.RetryMaxDelay, &c.Assistant.RetryMaxDelay)
		if f.RateLimit != nil {
			c.Assistant.RateLimit = *f.RateLimit
		}
		duration("assistant.rate_window", f.RateWindow, &c.Assistant.RateWindow)
	}

	if f := file.Log; f != nil {
		str(f.Level, &c.Log.Level)
		str(f.Format, &c.Log.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid durations in %s: %w", filepath, errors.Join(errs...))
	}
	return nil
}

// Load builds the runtime configuration
// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
// A .env file in the working directory is loaded first when present; real
// environment variables always win over it
func Load(filepath string) (*Config, error) {
	_ = godotenv.Load()

	config := LoadFromEnv()

	if filepath == "" {
		filepath = os.Getenv(ConfigFileEnv)
	}
	if filepath != "" {
		if err := config.applyFile(filepath); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
