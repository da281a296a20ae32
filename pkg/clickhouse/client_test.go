package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	opts := options(ClientConfig{
		Host:         "ch.local",
		Port:         9000,
		Database:     "fxengine",
		User:         "default",
		Password:     "p@ss",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  30 * time.Second,
		MaxExecTime:  time.Minute,
		AsyncInsert:  true,
		WaitForAsync: true,
	})

	assert.Equal(t, ch.Native, opts.Protocol)
	assert.Equal(t, []string{"ch.local:9000"}, opts.Addr)
	assert.Equal(t, "fxengine", opts.Auth.Database)
	assert.Equal(t, "p@ss", opts.Auth.Password)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
	assert.Equal(t, 30*time.Second, opts.ReadTimeout)
	assert.Equal(t, 60, opts.Settings["max_execution_time"])
	assert.Equal(t, 1, opts.Settings["async_insert"])
	assert.Equal(t, 1, opts.Settings["wait_for_async_insert"])
}

func TestOptions_HTTPMinimal(t *testing.T) {
	opts := options(ClientConfig{Host: "h", Port: 8123, UseHTTP: true})
	assert.Equal(t, ch.HTTP, opts.Protocol)
	assert.Empty(t, opts.Settings)
}

func TestNewClient_RequiresHost(t *testing.T) {
	_, err := NewClient(WithPort(9000))
	assert.EqualError(t, err, "host is required")
}
