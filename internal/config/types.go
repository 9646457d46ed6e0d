package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Privacy      PrivacyConfig      `yaml:"privacy" mapstructure:"privacy"`
	Review       ReviewConfig       `yaml:"review" mapstructure:"review"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	Summarizer   SummarizerConfig   `yaml:"summarizer" mapstructure:"summarizer"`
	SessionStore SessionStoreConfig `yaml:"session_store" mapstructure:"session_store"`
	Audit        AuditConfig        `yaml:"audit" mapstructure:"audit"`
	ETL          ETLConfig          `yaml:"etl" mapstructure:"etl"`
	WebSocket    WebSocketConfig    `yaml:"websocket" mapstructure:"websocket"`
	Security     SecurityConfig     `yaml:"security" mapstructure:"security"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           int           `yaml:"port" mapstructure:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxRequestSize int64         `yaml:"max_request_size" mapstructure:"max_request_size"`
}

// PrivacyConfig contains redaction engine configuration
type PrivacyConfig struct {
	Enabled             bool     `yaml:"enabled" mapstructure:"enabled"`
	Detectors           []string `yaml:"detectors" mapstructure:"detectors"`
	StrictNames         bool     `yaml:"strict_names" mapstructure:"strict_names"`
	ExtraProtectedTerms []string `yaml:"extra_protected_terms" mapstructure:"extra_protected_terms"`
}

// ReviewConfig contains the confirmation workflow configuration
type ReviewConfig struct {
	Interactive   bool          `yaml:"interactive" mapstructure:"interactive"`
	ContextWindow int           `yaml:"context_window" mapstructure:"context_window"`
	SessionTTL    time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// SummarizerConfig contains the external summarization service configuration
type SummarizerConfig struct {
	Provider        string        `yaml:"provider" mapstructure:"provider"` // anthropic or openai
	Model           string        `yaml:"model" mapstructure:"model"`
	AnthropicAPIKey string        `yaml:"-" mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string        `yaml:"-" mapstructure:"openai_api_key"`
	AnthropicURL    string        `yaml:"anthropic_url" mapstructure:"anthropic_url"`
	OpenAIURL       string        `yaml:"openai_url" mapstructure:"openai_url"`
	Template        string        `yaml:"template" mapstructure:"template"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerMin  int           `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Breaker         struct {
		MaxFailures uint32        `yaml:"max_failures" mapstructure:"max_failures"`
		OpenTimeout time.Duration `yaml:"open_timeout" mapstructure:"open_timeout"`
	} `yaml:"breaker" mapstructure:"breaker"`
	CustomTemplates map[string]TemplateConfig `yaml:"custom_templates" mapstructure:"custom_templates"`
}

// TemplateConfig is a user-defined summary template. Each prompt must
// contain the {text} marker.
type TemplateConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Description string `yaml:"description" mapstructure:"description"`
	History     string `yaml:"history" mapstructure:"history"`
	Symptoms    string `yaml:"symptoms" mapstructure:"symptoms"`
	Summary     string `yaml:"summary" mapstructure:"summary"` // optional
}

// SessionStoreConfig selects where parked review sessions live
type SessionStoreConfig struct {
	Type      string `yaml:"type" mapstructure:"type"` // memory or redis
	RedisURL  string `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
	PoolSize  int    `yaml:"pool_size" mapstructure:"pool_size"`
}

// AuditConfig contains the audit trail database configuration
type AuditConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Driver       string        `yaml:"driver" mapstructure:"driver"` // postgres or sqlite
	DSN          string        `yaml:"dsn" mapstructure:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLife  time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// ETLConfig contains batch redaction configuration
type ETLConfig struct {
	BatchSize      int  `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount    int  `yaml:"worker_count" mapstructure:"worker_count"`
	ProgressReport int  `yaml:"progress_report" mapstructure:"progress_report"`
	RecordAudit    bool `yaml:"record_audit" mapstructure:"record_audit"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Path           string        `yaml:"path" mapstructure:"path"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	PingInterval   time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	Username       string        `yaml:"username" mapstructure:"username"`
	Password       string        `yaml:"-" mapstructure:"password"`
	Events         struct {
		BroadcastRedactions  bool `yaml:"broadcast_redactions" mapstructure:"broadcast_redactions"`
		BroadcastReviews     bool `yaml:"broadcast_reviews" mapstructure:"broadcast_reviews"`
		BroadcastSystem      bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// SecurityConfig contains request guardrails
type SecurityConfig struct {
	RateLimit struct {
		Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
		RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
		Burst          int  `yaml:"burst" mapstructure:"burst"`
	} `yaml:"rate_limit" mapstructure:"rate_limit"`
	TrustedProxies []string `yaml:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// OutputConfig controls where the CLI writes result files
type OutputConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	MaxFileSize int64  `yaml:"max_file_size" mapstructure:"max_file_size"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   120 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxRequestSize: 10 << 20,
		},
		Privacy: PrivacyConfig{
			Enabled:   true,
			Detectors: []string{"all"},
		},
		Review: ReviewConfig{
			Interactive:   true,
			ContextWindow: 50,
			SessionTTL:    2 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Summarizer: SummarizerConfig{
			Provider:       "anthropic",
			Model:          "claude-3-5-haiku-20241022",
			AnthropicURL:   "https://api.anthropic.com/v1/messages",
			OpenAIURL:      "https://api.openai.com/v1/chat/completions",
			Template:       "disability_pension",
			Timeout:        120 * time.Second,
			RequestsPerMin: 30,
		},
		SessionStore: SessionStoreConfig{
			Type:      "memory",
			RedisURL:  "redis://localhost:6379/0",
			KeyPrefix: "docsentinel:review:",
			PoolSize:  10,
		},
		Audit: AuditConfig{
			Enabled:      false,
			Driver:       "sqlite",
			DSN:          "file:audit.db",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
			ConnMaxLife:  30 * time.Minute,
		},
		ETL: ETLConfig{
			BatchSize:      500,
			WorkerCount:    4,
			ProgressReport: 1000,
			RecordAudit:    true,
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			MaxConnections: 100,
			PingInterval:   54 * time.Second,
			PongTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
		},
		Output: OutputConfig{
			Dir:         "output",
			MaxFileSize: 10 << 20,
		},
	}

	cfg.Summarizer.Breaker.MaxFailures = 5
	cfg.Summarizer.Breaker.OpenTimeout = 30 * time.Second

	cfg.WebSocket.Events.BroadcastRedactions = true
	cfg.WebSocket.Events.BroadcastReviews = true
	cfg.WebSocket.Events.BroadcastSystem = true
	cfg.WebSocket.Events.BroadcastConnections = true

	cfg.Security.RateLimit.Enabled = true
	cfg.Security.RateLimit.RequestsPerMin = 120
	cfg.Security.RateLimit.Burst = 20

	return cfg
}
