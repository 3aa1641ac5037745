package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment: test
universe:
  symbols: [tcs, " INFY ", RELIANCE]
ingestion:
  synthetic_only: true
`

func TestParse_AppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"TCS", "INFY", "RELIANCE"}, c.Universe.Symbols)
	assert.Equal(t, 60*time.Second, c.Ingestion.Interval)
	assert.Equal(t, 500*time.Millisecond, c.Ingestion.PacingMin)
	assert.Equal(t, 1500*time.Millisecond, c.Ingestion.PacingMax)
	assert.Equal(t, 0.6, c.Ingestion.FailureRatio)
	assert.Equal(t, 30*time.Second, c.Ingestion.Cooldown)
	assert.Equal(t, 3, c.Fetcher.MaxAttempts)
	assert.Equal(t, 600*time.Millisecond, c.Fetcher.BaseDelay)
	assert.Equal(t, 1, c.Fetcher.LookbackDays)
	assert.Equal(t, 5, c.Fetcher.WidenedLookbackDays)
	assert.Equal(t, 2000, c.Store.Capacity)
	assert.Equal(t, 200, c.Store.AlertWindow)
	assert.Equal(t, 100, c.Store.AnalyticsWindow)
	assert.Equal(t, 384, c.Embedding.Dimension)
	assert.Equal(t, "hash", c.Embedding.Provider)
	assert.Equal(t, "none", c.Sink.Type)
	assert.Equal(t, 5*time.Second, c.Sink.PublishTimeout)
	assert.Equal(t, 50*time.Millisecond, c.Sink.BackoffMin)
	assert.Equal(t, 2*time.Second, c.Sink.BackoffMax)
	assert.Zero(t, c.Sink.MinInterval)
	assert.Equal(t, "@every 30s", c.Heartbeat.Schedule)
	assert.Equal(t, 25*time.Second, c.Generative.Timeout)
	assert.NoError(t, c.Validate())
}

func TestParse_ExplicitValuesWin(t *testing.T) {
	c, err := Parse([]byte(minimalYAML + `
store:
  capacity: 500
sink:
  type: NATS
  min_interval: 2m
`))
	require.NoError(t, err)
	assert.Equal(t, 500, c.Store.Capacity)
	assert.Equal(t, "nats", c.Sink.Type)
	assert.Equal(t, 2*time.Minute, c.Sink.MinInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"empty universe", func(c *Config) { c.Universe.Symbols = nil }, "universe.symbols"},
		{"duplicate symbol", func(c *Config) { c.Universe.Symbols = []string{"TCS", "TCS"} }, "twice"},
		{"api key required for live data", func(c *Config) { c.Ingestion.SyntheticOnly = false }, "finnhub.api_key"},
		{"pacing bounds", func(c *Config) { c.Ingestion.PacingMin = 2 * time.Second }, "pacing_min"},
		{"unknown sink", func(c *Config) { c.Sink.Type = "s3" }, "sink.type"},
		{"kafka sink without brokers", func(c *Config) { c.Sink.Type = "kafka" }, "kafka.brokers"},
		{"sink backoff range", func(c *Config) { c.Sink.BackoffMax = time.Millisecond }, "sink.backoff_max"},
		{"negative sink throttle", func(c *Config) { c.Sink.MinInterval = -time.Second }, "sink.min_interval"},
		{"http embedder without url", func(c *Config) { c.Embedding.Provider = "http" }, "embedding.url"},
		{"generative timeout above 30s", func(c *Config) { c.Generative.Timeout = time.Minute }, "generative.timeout"},
		{"zero capacity", func(c *Config) { c.Store.Capacity = 0 }, "store.capacity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(minimalYAML))
			require.NoError(t, err)
			tt.mutate(c)
			err = c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	env := map[string]string{
		"SYMBOLS":         "hdfcbank, itc",
		"PORT":            "9091",
		"GROQ_API_KEY":    "gsk_test",
		"KAFKA_BROKERS":   "k1:9092,k2:9092",
		"SINK_TYPE":       "Kafka",
		"FINNHUB_API_KEY": "fh",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, []string{"HDFCBANK", "ITC"}, c.Universe.Symbols)
	assert.Equal(t, 9091, c.Server.Port)
	assert.Equal(t, "gsk_test", c.Generative.APIKey)
	assert.True(t, c.Generative.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "kafka", c.Sink.Type)
	assert.Equal(t, "fh", c.Finnhub.APIKey)
	assert.True(t, c.KafkaEnabled())
	assert.NoError(t, c.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", c.Environment)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
