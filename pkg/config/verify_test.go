package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	cfg := &Config{}
	cfg.Server.Listen = ":8080"
	cfg.Server.Timeout = 30 * time.Second
	return cfg
}

func TestVerifyAgainstEmbeddedSchema(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, VerifyAgainstEmbeddedSchema(validTestConfig()))
	})

	t.Run("missing listen fails", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Server.Listen = ""
		err := VerifyAgainstEmbeddedSchema(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.listen")
	})

	t.Run("missing timeout fails", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Server.Timeout = 0
		err := VerifyAgainstEmbeddedSchema(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.timeout")
	})

	t.Run("enabled enrichment needs timeout", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Enrichment.Enabled = true
		err := VerifyAgainstEmbeddedSchema(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "enrichment.timeout")
	})

	t.Run("enabled enrichment rejects negative min length", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Enrichment.Enabled = true
		cfg.Enrichment.Timeout = 30 * time.Second
		cfg.Enrichment.MinTextLength = -1
		err := VerifyAgainstEmbeddedSchema(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "min_text_length")
	})
}

func TestGenerateSchema(t *testing.T) {
	schema, err := GenerateSchema()
	require.NoError(t, err)
	require.NotNil(t, schema)

	data, err := schema.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), "schedule")
	assert.Contains(t, string(data), "sources")
}
