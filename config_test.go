package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"cert without key", func(c *Config) { c.tlsCert = "cert.pem" }, "--tls-key"},
		{"key without cert", func(c *Config) { c.tlsKey = "key.pem" }, "--tls-cert"},
		{"port too low", func(c *Config) { c.port = 0 }, "invalid port"},
		{"port too high", func(c *Config) { c.port = 65536 }, "invalid port"},
		{"unknown catalog", func(c *Config) { c.catalog = "mongo" }, "invalid catalog"},
		{"sqlite without path", func(c *Config) { c.catalog = catalogSQLite; c.databasePath = "" }, "--database-path"},
		{"sqlite with path", func(c *Config) { c.catalog = catalogSQLite; c.databasePath = "sippy.db" }, ""},
		{"postgres without url", func(c *Config) { c.catalog = catalogPostgres }, "--database-url"},
		{"postgres with url", func(c *Config) { c.catalog = catalogPostgres; c.databaseURL = "postgres://localhost/sippy" }, ""},
		{"negative cache ttl", func(c *Config) { c.cacheTTL = -time.Second }, "cache ttl"},
		{"zero fetch timeout", func(c *Config) { c.fetchTimeout = 0 }, "fetch timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigScheme(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, "http", cfg.scheme())

	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	assert.Equal(t, "https", cfg.scheme())
}

func TestNewCmdReadsEnvironment(t *testing.T) {
	t.Setenv("SIPPY_PORT", "9090")
	t.Setenv("SIPPY_FETCH_TIMEOUT", "3s")
	t.Setenv("SIPPY_CATALOG", catalogSQLite)

	cfg := &Config{}
	cmd := newCmd(cfg)
	require.NotNil(t, cmd)

	assert.Equal(t, 9090, cfg.port)
	assert.Equal(t, 3*time.Second, cfg.fetchTimeout)
	assert.Equal(t, catalogSQLite, cfg.catalog)
	assert.Equal(t, "sippy.db", cfg.databasePath)
	assert.NoError(t, cfg.validate())
}

func TestNewCmdFlagDefaults(t *testing.T) {
	cfg := &Config{}
	_ = newCmd(cfg)

	assert.Equal(t, "0.0.0.0", cfg.bind)
	assert.Equal(t, 8080, cfg.port)
	assert.Equal(t, catalogMemory, cfg.catalog)
	assert.Equal(t, 60*time.Minute, cfg.sessionTimeout)
	assert.True(t, cfg.seed)
	assert.NoError(t, cfg.validate())
}
