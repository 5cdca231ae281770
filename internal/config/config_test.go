package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "mxbai-embed-large", cfg.Embedding.Model)
	assert.Equal(t, 32, cfg.Index.BatchSize)
	assert.Equal(t, 8321, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative batch size", func(c *Config) { c.Index.BatchSize = -1 }},
		{"bad request timeout", func(c *Config) { c.Embedding.RequestTimeout = "soon" }},
		{"bad inference timeout", func(c *Config) { c.Embedding.InferenceTimeout = "" }},
		{"negative slab rate", func(c *Config) { c.DAZ.SlabRate = -5 }},
		{"bad watch debounce", func(c *Config) { c.DAZ.WatchDebounce = "2 seconds" }},
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := DefaultConfig()

	reqTimeout, err := cfg.GetRequestTimeout()
	require.NoError(t, err)
	assert.Equal(t, "10s", reqTimeout.String())

	infTimeout, err := cfg.GetInferenceTimeout()
	require.NoError(t, err)
	assert.Equal(t, "2m0s", infTimeout.String())

	debounce, err := cfg.GetWatchDebounce()
	require.NoError(t, err)
	assert.Equal(t, "2s", debounce.String())
}
