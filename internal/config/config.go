// Package config provides application configuration loaded from environment
// variables (and an optional .env file) with defaults and validation. It
// centralizes server, logging, database, auth, outbound RPC, analysis and
// observability settings.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the SQL driver and its connection target.
type DBConfig struct {
	Driver string // sqlite|postgres|mysql
	Path   string // sqlite file path
	DSN    string // postgres/mysql DSN
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	AdminEmails []string
}

// FunctionsConfig points at the hosted serverless functions.
type FunctionsConfig struct {
	BaseURL   string
	APIKey    string
	Retries   int           // total attempts
	RetryWait time.Duration // fixed wait between attempts
	Timeout   time.Duration
}

// AIConfig points at the assistants-style text generation API.
type AIConfig struct {
	BaseURL      string
	APIKey       string
	AssistantID  string
	PollInterval time.Duration
}

// AnalysisConfig bounds AI-assisted analyses.
type AnalysisConfig struct {
	Timeout   time.Duration
	TokenCost int64
	MaxUpload int64 // bytes
}

// SharingConfig controls the invitation lifecycle.
type SharingConfig struct {
	InviteTTL     time.Duration
	SweepSchedule string // cron spec; empty disables the sweeper
	AppBaseURL    string // used to build invite and share links
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	LogFile        string // optional rotated log file
	SwaggerEnabled bool
	APIBasePath    string

	DB DBConfig

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

	Auth      AuthConfig
	Functions FunctionsConfig
	AI        AIConfig
	Analysis  AnalysisConfig
	Sharing   SharingConfig

	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from the environment (after merging a .env file
// when present), applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	// A missing .env is the normal production case.
	_ = godotenv.Load()

	v := newViper()

	cfg := Config{
		Port:              v.GetString("PORT"),
		ReadTimeout:       duration(v, "READ_TIMEOUT"),
		ReadHeaderTimeout: duration(v, "READ_HEADER_TIMEOUT"),
		WriteTimeout:      duration(v, "WRITE_TIMEOUT"),
		IdleTimeout:       duration(v, "IDLE_TIMEOUT"),
		MaxHeaderBytes:    integer(v, "MAX_HEADER_BYTES"),
		GinMode:           strings.ToLower(v.GetString("GIN_MODE")),

		LogLevel:       strings.ToLower(v.GetString("LOG_LEVEL")),
		LogPretty:      boolean(v, "LOG_PRETTY"),
		LogFile:        strings.TrimSpace(v.GetString("LOG_FILE")),
		SwaggerEnabled: boolean(v, "SWAGGER_ENABLED"),
		APIBasePath:    normalizeBasePath(v.GetString("API_BASE_PATH")),

		DB: DBConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
			Path:   v.GetString("DB_PATH"),
			DSN:    v.GetString("DB_DSN"),
		},

		RateRPS:   float(v, "RATE_RPS"),
		RateBurst: integer(v, "RATE_BURST"),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Security: SecurityConfig{
			EnableHSTS: boolean(v, "ENABLE_HSTS"),
			HSTSMaxAge: duration(v, "HSTS_MAX_AGE"),
		},

		IdempotencyTTL: duration(v, "IDEMPOTENCY_TTL"),

		Auth: AuthConfig{
			JWTSecret:   v.GetString("JWT_SECRET"),
			JWTIssuer:   v.GetString("JWT_ISSUER"),
			AdminEmails: lowerAll(splitCSV(v.GetString("ADMIN_EMAILS"))),
		},
		Functions: FunctionsConfig{
			BaseURL:   strings.TrimRight(v.GetString("FUNCTIONS_BASE_URL"), "/"),
			APIKey:    v.GetString("FUNCTIONS_API_KEY"),
			Retries:   integer(v, "FUNCTIONS_RETRIES"),
			RetryWait: duration(v, "FUNCTIONS_RETRY_WAIT"),
			Timeout:   duration(v, "FUNCTIONS_TIMEOUT"),
		},
		AI: AIConfig{
			BaseURL:      strings.TrimRight(v.GetString("AI_BASE_URL"), "/"),
			APIKey:       v.GetString("AI_API_KEY"),
			AssistantID:  v.GetString("AI_ASSISTANT_ID"),
			PollInterval: duration(v, "AI_POLL_INTERVAL"),
		},
		Analysis: AnalysisConfig{
			Timeout:   duration(v, "ANALYSIS_TIMEOUT"),
			TokenCost: int64(integer(v, "ANALYSIS_TOKEN_COST")),
			MaxUpload: int64(integer(v, "ANALYSIS_MAX_UPLOAD")),
		},
		Sharing: SharingConfig{
			InviteTTL:     duration(v, "INVITE_TTL"),
			SweepSchedule: strings.TrimSpace(v.GetString("INVITE_SWEEP_SCHEDULE")),
			AppBaseURL:    strings.TrimRight(v.GetString("APP_BASE_URL"), "/"),
		},

		OTEL: OTELConfig{
			Enabled:     boolean(v, "OTEL_ENABLED"),
			Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:    boolean(v, "OTEL_EXPORTER_OTLP_INSECURE"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
			SampleRatio: float(v, "OTEL_TRACES_SAMPLER_ARG"),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres", "mysql":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return fmt.Errorf("DB_DSN is required for driver %q", cfg.DB.Driver)
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres, mysql")
	}
	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if cfg.Functions.Retries < 1 {
		return errors.New("FUNCTIONS_RETRIES must be >= 1")
	}
	if cfg.Functions.RetryWait < 0 || cfg.Functions.Timeout <= 0 {
		return errors.New("FUNCTIONS_RETRY_WAIT must be >= 0 and FUNCTIONS_TIMEOUT > 0")
	}
	if cfg.AI.PollInterval <= 0 {
		return errors.New("AI_POLL_INTERVAL must be > 0")
	}
	if cfg.Analysis.Timeout <= 0 {
		return errors.New("ANALYSIS_TIMEOUT must be > 0")
	}
	if cfg.Analysis.TokenCost < 0 {
		return errors.New("ANALYSIS_TOKEN_COST must be >= 0")
	}
	if cfg.Analysis.MaxUpload <= 0 {
		return errors.New("ANALYSIS_MAX_UPLOAD must be > 0")
	}
	if cfg.Sharing.InviteTTL <= 0 {
		return errors.New("INVITE_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// defaults are registered on every viper instance and serve as the fallback
// for values that are present but unparsable.
var defaults = map[string]any{
	"PORT":                "8080",
	"READ_TIMEOUT":        "15s",
	"READ_HEADER_TIMEOUT": "10s",
	"WRITE_TIMEOUT":       "150s", // must outlive ANALYSIS_TIMEOUT
	"IDLE_TIMEOUT":        "60s",
	"MAX_HEADER_BYTES":    1 << 20,
	"GIN_MODE":            "release",

	"LOG_LEVEL":       "info",
	"LOG_PRETTY":      false,
	"LOG_FILE":        "",
	"SWAGGER_ENABLED": false,
	"API_BASE_PATH":   "/api/v1",

	"DB_DRIVER": "sqlite",
	"DB_PATH":   "traderobots.db",
	"DB_DSN":    "",

	"RATE_RPS":   5.0,
	"RATE_BURST": 10,

	"CORS_ALLOWED_ORIGINS": "",
	"ENABLE_HSTS":          false,
	"HSTS_MAX_AGE":         "4320h",

	"IDEMPOTENCY_TTL": "24h",

	"JWT_SECRET":   "",
	"JWT_ISSUER":   "",
	"ADMIN_EMAILS": "",

	"FUNCTIONS_BASE_URL":   "http://localhost:54321/functions/v1",
	"FUNCTIONS_API_KEY":    "",
	"FUNCTIONS_RETRIES":    3,
	"FUNCTIONS_RETRY_WAIT": "1s",
	"FUNCTIONS_TIMEOUT":    "15s",

	"AI_BASE_URL":      "https://api.openai.com/v1",
	"AI_API_KEY":       "",
	"AI_ASSISTANT_ID":  "",
	"AI_POLL_INTERVAL": "1s",

	"ANALYSIS_TIMEOUT":    "2m",
	"ANALYSIS_TOKEN_COST": 1000,
	"ANALYSIS_MAX_UPLOAD": 10 << 20,

	"INVITE_TTL":            "168h",
	"INVITE_SWEEP_SCHEDULE": "@hourly",
	"APP_BASE_URL":          "https://devhubtrader.com.br",

	"OTEL_ENABLED":                false,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317",
	"OTEL_EXPORTER_OTLP_INSECURE": true,
	"OTEL_SERVICE_NAME":           "traderobots-backend",
	"OTEL_TRACES_SAMPLER_ARG":     1.0,
}

// newViper returns an env-bound viper instance carrying every default.
// Empty variables count as unset.
func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v
}

// ---- typed getters ----

func duration(v *viper.Viper, k string) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(v.GetString(k))); err == nil {
		return d
	}
	d, _ := time.ParseDuration(defaults[k].(string))
	return d
}

func integer(v *viper.Viper, k string) int {
	if i, err := strconv.Atoi(strings.TrimSpace(v.GetString(k))); err == nil {
		return i
	}
	return defaults[k].(int)
}

func float(v *viper.Viper, k string) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(k)), 64); err == nil {
		return f
	}
	return defaults[k].(float64)
}

func boolean(v *viper.Viper, k string) bool {
	switch strings.ToLower(strings.TrimSpace(v.GetString(k))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return defaults[k].(bool)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	for i := range in {
		in[i] = strings.ToLower(in[i])
	}
	return in
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
