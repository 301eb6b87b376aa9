package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []ClientOption{
		WithHost("ch.local"),
		WithPort(9440),
		WithDatabase("finsight"),
		WithCredentials("svc", "secret"),
		WithTimeouts(2*time.Second, 0),
		WithAsyncInsert(true, false),
		WithMaxExecutionTime(30 * time.Second),
	} {
		opt(cfg)
	}

	o := options(*cfg)
	assert.Equal(t, ch.Native, o.Protocol)
	assert.Equal(t, []string{"ch.local:9440"}, o.Addr)
	assert.Equal(t, "finsight", o.Auth.Database)
	assert.Equal(t, "svc", o.Auth.Username)
	assert.Equal(t, "secret", o.Auth.Password)
	assert.Equal(t, 2*time.Second, o.DialTimeout)
	assert.Equal(t, 10*time.Second, o.ReadTimeout)
	assert.Equal(t, 30, o.Settings["max_execution_time"])
	assert.Equal(t, 1, o.Settings["async_insert"])
	assert.Equal(t, 0, o.Settings["wait_for_async_insert"])
}

func TestOptionsHTTPAndBlankOverrides(t *testing.T) {
	cfg := defaultConfig()
	WithHTTP(true)(cfg)
	WithDatabase("")(cfg)
	WithCredentials("", "")(cfg)

	o := options(*cfg)
	assert.Equal(t, ch.HTTP, o.Protocol)
	assert.Equal(t, "default", o.Auth.Database)
	assert.Equal(t, "default", o.Auth.Username)
	assert.Empty(t, o.Settings)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(WithPort(9000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")
}
