package config

import "time"

// Config represents the main configuration structure
type Config struct {
	// Pattern overrides live at the top level so flat JSON config files
	// ({"date_format": "...", "name_regex": "..."}) keep working.
	PatternConfig `yaml:",inline" mapstructure:",squash"`

	Generator GeneratorConfig `yaml:"generator" mapstructure:"generator"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Lookup    LookupConfig    `yaml:"lookup" mapstructure:"lookup"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// PatternConfig holds the detection pattern and date format overrides.
// An empty value means "use the built-in default".
type PatternConfig struct {
	DateFormat   string `yaml:"date_format" mapstructure:"date_format" json:"date_format,omitempty"`
	DateRegex    string `yaml:"date_regex" mapstructure:"date_regex" json:"date_regex,omitempty"`
	NameRegex    string `yaml:"name_regex" mapstructure:"name_regex" json:"name_regex,omitempty"`
	EmailRegex   string `yaml:"email_regex" mapstructure:"email_regex" json:"email_regex,omitempty"`
	PhoneRegex   string `yaml:"phone_regex" mapstructure:"phone_regex" json:"phone_regex,omitempty"`
	AddressRegex string `yaml:"address_regex" mapstructure:"address_regex" json:"address_regex,omitempty"`
}

// PatternConfigFromMap builds a PatternConfig from a plain option map.
// Unknown keys are ignored.
func PatternConfigFromMap(options map[string]string) PatternConfig {
	return PatternConfig{
		DateFormat:   options["date_format"],
		DateRegex:    options["date_regex"],
		NameRegex:    options["name_regex"],
		EmailRegex:   options["email_regex"],
		PhoneRegex:   options["phone_regex"],
		AddressRegex: options["address_regex"],
	}
}

// Merge returns p with every non-empty field of override applied on top.
func (p PatternConfig) Merge(override PatternConfig) PatternConfig {
	pick := func(base, over string) string {
		if over != "" {
			return over
		}
		return base
	}
	return PatternConfig{
		DateFormat:   pick(p.DateFormat, override.DateFormat),
		DateRegex:    pick(p.DateRegex, override.DateRegex),
		NameRegex:    pick(p.NameRegex, override.NameRegex),
		EmailRegex:   pick(p.EmailRegex, override.EmailRegex),
		PhoneRegex:   pick(p.PhoneRegex, override.PhoneRegex),
		AddressRegex: pick(p.AddressRegex, override.AddressRegex),
	}
}

// IsZero reports whether no override is set.
func (p PatternConfig) IsZero() bool {
	return p == PatternConfig{}
}

// GeneratorConfig controls the fake value source
type GeneratorConfig struct {
	// Seed makes generated substitutes reproducible. Zero means random.
	Seed int64 `yaml:"seed" mapstructure:"seed"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
		Path       string `yaml:"path" mapstructure:"path"`
		MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`
		MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`
		MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
		Compress   bool   `yaml:"compress" mapstructure:"compress"`
	} `yaml:"file" mapstructure:"file"`
}

// LookupConfig selects where name_to_id lookup tables are persisted
type LookupConfig struct {
	Sink string `yaml:"sink" mapstructure:"sink"` // file, redis, postgres or none
	// Path overrides the <output>_lookup.json location for the file sink.
	Path     string         `yaml:"path" mapstructure:"path"`
	// Dir holds <run_id>_lookup.json files for runs without an output file
	// (the HTTP API).
	Dir      string         `yaml:"dir" mapstructure:"dir"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// RedisConfig contains Redis lookup sink configuration
type RedisConfig struct {
	URL            string        `yaml:"url" mapstructure:"url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	TTL            time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// PostgresConfig contains Postgres lookup sink configuration
type PostgresConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	Table           string        `yaml:"table" mapstructure:"table"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// BatchConfig contains dataset pipeline configuration
type BatchConfig struct {
	Fields         []string `yaml:"fields" mapstructure:"fields"`                   // columns/keys to anonymize
	BatchSize      int      `yaml:"batch_size" mapstructure:"batch_size"`           // 1000
	ProgressReport int      `yaml:"progress_report" mapstructure:"progress_report"` // 1000
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int             `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration   `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration   `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64           `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig contains per-client request rate limiting
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// WebSocketConfig contains WebSocket event feed configuration
type WebSocketConfig struct {
	Enabled  bool            `yaml:"enabled" mapstructure:"enabled"`
	Path     string          `yaml:"path" mapstructure:"path"`
	Username string          `yaml:"username" mapstructure:"username"`
	Password string          `yaml:"password" mapstructure:"password"`
	Events   WebSocketEvents `yaml:"events" mapstructure:"events"`
}

// WebSocketEvents selects which event types are broadcast
type WebSocketEvents struct {
	BroadcastAnonymizations bool `yaml:"broadcast_anonymizations" mapstructure:"broadcast_anonymizations"`
	BroadcastRequests       bool `yaml:"broadcast_requests" mapstructure:"broadcast_requests"`
	BroadcastConnections    bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Lookup: LookupConfig{
			Sink: "file",
			Dir:  "lookups",
			Redis: RedisConfig{
				URL:            "redis://localhost:6379/0",
				MaxConnections: 10,
				MinIdleConns:   1,
				TTL:            24 * time.Hour,
				KeyPrefix:      "anonymizer",
			},
			Postgres: PostgresConfig{
				Table:           "identity_lookups",
				MaxOpenConns:    5,
				MaxIdleConns:    2,
				ConnMaxLifetime: 30 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
		},
		Batch: BatchConfig{
			Fields:         []string{"text"},
			BatchSize:      1000,
			ProgressReport: 1000,
		},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 10 << 20,
		},
		WebSocket: WebSocketConfig{
			Enabled: true,
			Path:    "/ws",
		},
	}

	cfg.Logging.File.Path = "logs/anonymizer.log"
	cfg.Logging.File.MaxSize = 100 // MB
	cfg.Logging.File.MaxAge = 30   // days
	cfg.Logging.File.MaxBackups = 5
	cfg.Logging.File.Compress = true

	cfg.Server.RateLimit.Enabled = true
	cfg.Server.RateLimit.RequestsPerSecond = 20
	cfg.Server.RateLimit.Burst = 40

	cfg.WebSocket.Events.BroadcastAnonymizations = true
	cfg.WebSocket.Events.BroadcastRequests = true
	cfg.WebSocket.Events.BroadcastConnections = true

	return cfg
}
