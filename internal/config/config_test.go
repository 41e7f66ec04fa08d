package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, GetDefaults(), cfg)
	assert.True(t, cfg.PatternConfig.IsZero())
}

func TestLoadFlatPatternFile(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"date_format": "%d/%m/%Y",
		"date_regex": "\\d{2}/\\d{2}/\\d{4}",
		"email_regex": "[a-z]+@corp\\.example"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, PatternConfig{
		DateFormat: "%d/%m/%Y",
		DateRegex:  `\d{2}/\d{2}/\d{4}`,
		EmailRegex: `[a-z]+@corp\.example`,
	}, cfg.PatternConfig)
	assert.Equal(t, "info", cfg.Logging.Level, "untouched sections keep defaults")
}

func TestLoadNestedYAML(t *testing.T) {
	path := writeConfig(t, "anonymizer.yaml", `
name_regex: "[A-Z][a-z]+"
generator:
  seed: 42
logging:
  level: WARNING
  format: json
lookup:
  sink: redis
  redis:
    url: redis://cache:6379/1
    ttl: 2h
batch:
  fields: [body, subject]
  batch_size: 250
server:
  port: 9090
  rate_limit:
    enabled: false
websocket:
  events:
    broadcast_requests: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "[A-Z][a-z]+", cfg.NameRegex)
	assert.EqualValues(t, 42, cfg.Generator.Seed)
	assert.Equal(t, "WARNING", cfg.Logging.Level)
	assert.Equal(t, "redis", cfg.Lookup.Sink)
	assert.Equal(t, 2*time.Hour, cfg.Lookup.Redis.TTL)
	assert.Equal(t, "anonymizer", cfg.Lookup.Redis.KeyPrefix)
	assert.Equal(t, []string{"body", "subject"}, cfg.Batch.Fields)
	assert.Equal(t, 250, cfg.Batch.BatchSize)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Server.RateLimit.Enabled)
	assert.False(t, cfg.WebSocket.Events.BroadcastRequests)
	assert.True(t, cfg.WebSocket.Events.BroadcastAnonymizations)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ANONYMIZER_PHONE_REGEX", `\d{4}`)
	t.Setenv("ANONYMIZER_LOGGING_LEVEL", "debug")
	t.Setenv("ANONYMIZER_SERVER_PORT", "9443")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, `\d{4}`, cfg.PhoneRegex)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 9443, cfg.Server.Port)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"date_regex": `)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"sink", func(c *Config) { c.Lookup.Sink = "s3" }, "invalid lookup sink"},
		{"postgres url", func(c *Config) { c.Lookup.Sink = "postgres" }, "database_url is required"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"rate limit", func(c *Config) { c.Server.RateLimit.Burst = 0 }, "rate limit"},
		{"batch size", func(c *Config) { c.Batch.BatchSize = 0 }, "invalid batch size"},
	}

	require.NoError(t, validateConfig(GetDefaults()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidLogLevel(t *testing.T) {
	for _, level := range []string{"DEBUG", "info", "WARNING", "warn", "ERROR", "CRITICAL"} {
		assert.True(t, ValidLogLevel(level), level)
	}
	assert.False(t, ValidLogLevel("trace"))
	assert.False(t, ValidLogLevel(""))
}

func TestPatternConfigFromMapAndMerge(t *testing.T) {
	base := PatternConfig{DateFormat: "%Y/%m/%d", NameRegex: "base"}
	override := PatternConfigFromMap(map[string]string{
		"name_regex":  "override",
		"phone_regex": `\d+`,
		"unknown_key": "ignored",
	})

	assert.Equal(t, PatternConfig{NameRegex: "override", PhoneRegex: `\d+`}, override)
	assert.Equal(t, PatternConfig{
		DateFormat: "%Y/%m/%d",
		NameRegex:  "override",
		PhoneRegex: `\d+`,
	}, base.Merge(override))
	assert.Equal(t, base, base.Merge(PatternConfig{}))
	assert.True(t, PatternConfigFromMap(nil).IsZero())
}

func TestLoadAndWatchReloadsPatterns(t *testing.T) {
	path := writeConfig(t, "anonymizer.json", `{"date_format": "%Y-%m-%d"}`)

	changes := make(chan *Config, 16)
	cfg, err := LoadAndWatch(path, func(c *Config) { changes <- c }, nil)
	require.NoError(t, err)
	assert.Equal(t, "%Y-%m-%d", cfg.DateFormat)

	require.NoError(t, os.WriteFile(path, []byte(`{"date_format": "%d.%m.%Y"}`), 0o644))

	// A rewrite can surface as several events, the first seeing a truncated file
	timeout := time.After(5 * time.Second)
	for {
		select {
		case updated := <-changes:
			if updated.DateFormat == "%d.%m.%Y" {
				return
			}
		case <-timeout:
			t.Fatal("config change was not delivered")
		}
	}
}

func TestLoadAndWatchReportsInvalidEdits(t *testing.T) {
	path := writeConfig(t, "anonymizer.json", `{"logging": {"level": "info"}}`)

	errs := make(chan error, 16)
	_, err := LoadAndWatch(path, func(*Config) {}, func(err error) { errs <- err })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"logging": {"level": "loud"}}`), 0o644))

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "invalid log level")
	case <-time.After(5 * time.Second):
		t.Fatal("invalid config was not reported")
	}
}
