package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: test\nserver:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "file", c.Forecast.ModelBackend)
	assert.Equal(t, 365, c.Forecast.HistoryDays)
	assert.Equal(t, 30, c.Forecast.PredictionDays)
	assert.Equal(t, 0.8, c.Forecast.SplitRatio)
	assert.Equal(t, int64(42), c.Forecast.RandomSeed)
	assert.Equal(t, 5*time.Minute, c.Recommend.CacheTTL)
	assert.Equal(t, "bars.daily", c.Kafka.BarsTopic)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "environment: test\nkafka:\n  enabled: true\n  brokers: [\"k1:9092\"]\n")
	t.Setenv("FINSIGHT_FEED_API_KEY", "abc")
	t.Setenv("FINSIGHT_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("FINSIGHT_FORECAST_PREDICTION_DAYS", "10")
	t.Setenv("FINSIGHT_RECOMMEND_CACHE_TTL", "90s")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", c.Feed.APIKey)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 10, c.Forecast.PredictionDays)
	assert.Equal(t, 90*time.Second, c.Recommend.CacheTTL)
}

func TestValidate(t *testing.T) {
	_, err := Load(writeConfig(t, "environment: test\nforecast:\n  model_backend: s3\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "environment: test\nforecast:\n  model_backend: redis\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "environment: test\nkafka:\n  enabled: true\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "environment: test\nexplainer:\n  enabled: true\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "environment: test\nforecast:\n  split_ratio: 1.5\n"))
	assert.Error(t, err)
}
