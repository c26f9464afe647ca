// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server, storage,
// generator, notifier, channel, throttling and observability settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "support-router")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// GeneratorConfig selects the response generator backend.
type GeneratorConfig struct {
	Backend          string        // retrieval|gemini|openai
	Model            string        // backend model name
	APIKey           string        // gemini/openai key
	BaseURL          string        // openai-compatible base URL
	Timeout          time.Duration // per-call budget
	BreakerFailures  int           // consecutive failures before the breaker opens
	BreakerCooldown  time.Duration // open -> half-open delay
	RetrievalMinimum float64       // retrieval confidence threshold [0,1]

	// Knowledge index tuning (retrieval only); zero values keep the defaults.
	KnowledgeMaxDocs   int
	KnowledgeMinRunes  int
	KnowledgeStopwords []string
}

// NotifyConfig lists escalation notifiers. Empty URLs disable a notifier.
type NotifyConfig struct {
	Timeout     time.Duration
	SlackURL    string
	DiscordURL  string
	NATSURL     string
	NATSSubject string
}

// RateConfig configures submission throttling.
type RateConfig struct {
	Counter string        // memory|sql
	Limit   int           // submissions per window per client
	Window  time.Duration // fixed window size
}

// ChannelsConfig carries channel credentials. A channel whose secret is empty
// is not registered.
type ChannelsConfig struct {
	LineSecret           string
	LineAccessToken      string
	LineBaseURL          string
	MessengerAppSecret   string
	MessengerPageToken   string
	MessengerVerifyToken string
	MessengerBaseURL     string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogRedact      bool   // scrub secrets and PII from access logs
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN

	// Routing
	DataPath       string // knowledge markdown for the retrieval generator
	RulesPath      string // optional YAML rule overrides
	RulesWatch     bool   // hot-reload RulesPath
	HistoryWindow  int    // messages passed to the generator
	MaxTextRunes   int    // per-message limit
	ContactChannel string // shown in apology and fallback texts
	AdminToken     string // bearer token for operator routes

	Generator GeneratorConfig
	Notify    NotifyConfig
	Rate      RateConfig
	Channels  ChannelsConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are given) without overriding variables already set. Missing files are
// not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogRedact:      getbool("LOG_REDACT", true),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:      getenv("DB_PATH", "app.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		// Routing
		DataPath:       getenv("DATA_PATH", "data/knowledge.md"),
		RulesPath:      getenv("RULES_PATH", ""),
		RulesWatch:     getbool("RULES_WATCH", false),
		HistoryWindow:  getint("HISTORY_WINDOW", 10),
		MaxTextRunes:   getint("MAX_TEXT_RUNES", 4000),
		ContactChannel: getenv("CONTACT_CHANNEL_TEXT", "our contact form"),
		AdminToken:     getenv("ADMIN_TOKEN", ""),

		Generator: GeneratorConfig{
			Backend:          strings.ToLower(getenv("GENERATOR", "retrieval")),
			Model:            getenv("GENERATOR_MODEL", ""),
			APIKey:           getenv("GENERATOR_API_KEY", ""),
			BaseURL:          getenv("GENERATOR_BASE_URL", ""),
			Timeout:          getdur("GENERATOR_TIMEOUT", 15*time.Second),
			BreakerFailures:  getint("GENERATOR_BREAKER_FAILURES", 5),
			BreakerCooldown:  getdur("GENERATOR_BREAKER_COOLDOWN", 30*time.Second),
			RetrievalMinimum: getfloat("RETRIEVAL_THRESHOLD", 0.2),

			KnowledgeMaxDocs:   getint("KNOWLEDGE_MAX_DOCS", 0),
			KnowledgeMinRunes:  getint("KNOWLEDGE_MIN_PARAGRAPH_RUNES", 0),
			KnowledgeStopwords: splitCSV(getenv("KNOWLEDGE_STOPWORDS", "")),
		},
		Notify: NotifyConfig{
			Timeout:     getdur("NOTIFY_TIMEOUT", 5*time.Second),
			SlackURL:    getenv("SLACK_WEBHOOK_URL", ""),
			DiscordURL:  getenv("DISCORD_WEBHOOK_URL", ""),
			NATSURL:     getenv("NATS_URL", ""),
			NATSSubject: getenv("NATS_SUBJECT", "support.escalations"),
		},
		Rate: RateConfig{
			Counter: strings.ToLower(getenv("RATE_COUNTER", "memory")),
			Limit:   getint("RATE_LIMIT", 20),
			Window:  getdur("RATE_WINDOW", time.Minute),
		},
		Channels: ChannelsConfig{
			LineSecret:           getenv("LINE_CHANNEL_SECRET", ""),
			LineAccessToken:      getenv("LINE_ACCESS_TOKEN", ""),
			LineBaseURL:          getenv("LINE_API_BASE_URL", ""),
			MessengerAppSecret:   getenv("MESSENGER_APP_SECRET", ""),
			MessengerPageToken:   getenv("MESSENGER_PAGE_TOKEN", ""),
			MessengerVerifyToken: getenv("MESSENGER_VERIFY_TOKEN", ""),
			MessengerBaseURL:     getenv("MESSENGER_API_BASE_URL", ""),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "support-router"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
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
	if cfg.DBDriver == "postgresql" {
		cfg.DBDriver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	switch cfg.Generator.Backend {
	case "retrieval":
		if strings.TrimSpace(cfg.DataPath) == "" {
			return cfg, errors.New("DATA_PATH must not be empty")
		}
	case "gemini", "openai":
		if strings.TrimSpace(cfg.Generator.APIKey) == "" {
			return cfg, fmt.Errorf("GENERATOR_API_KEY is required when GENERATOR=%s", cfg.Generator.Backend)
		}
	default:
		return cfg, errors.New("GENERATOR must be one of: retrieval, gemini, openai")
	}
	if cfg.Generator.RetrievalMinimum < 0 || cfg.Generator.RetrievalMinimum > 1 {
		return cfg, errors.New("RETRIEVAL_THRESHOLD must be between 0 and 1")
	}
	if cfg.Generator.Timeout <= 0 {
		return cfg, errors.New("GENERATOR_TIMEOUT must be > 0")
	}
	if cfg.Generator.BreakerFailures < 1 || cfg.Generator.BreakerCooldown <= 0 {
		return cfg, errors.New("GENERATOR_BREAKER_FAILURES must be >= 1 and GENERATOR_BREAKER_COOLDOWN > 0")
	}
	if cfg.Generator.KnowledgeMaxDocs < 0 || cfg.Generator.KnowledgeMinRunes < 0 {
		return cfg, errors.New("KNOWLEDGE_MAX_DOCS and KNOWLEDGE_MIN_PARAGRAPH_RUNES must be >= 0")
	}
	if cfg.HistoryWindow < 0 {
		return cfg, errors.New("HISTORY_WINDOW must be >= 0")
	}
	if cfg.MaxTextRunes < 1 {
		return cfg, errors.New("MAX_TEXT_RUNES must be >= 1")
	}
	if cfg.Notify.Timeout <= 0 {
		return cfg, errors.New("NOTIFY_TIMEOUT must be > 0")
	}
	switch cfg.Rate.Counter {
	case "memory", "sql":
	default:
		return cfg, errors.New("RATE_COUNTER must be one of: memory, sql")
	}
	if cfg.Rate.Limit < 0 {
		return cfg, errors.New("RATE_LIMIT must be >= 0")
	}
	if cfg.Rate.Window <= 0 {
		return cfg, errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
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
