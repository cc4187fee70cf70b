package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIProvider_Load(t *testing.T) {
	t.Run("Should map CLI flags to configuration structure", func(t *testing.T) {
		provider := NewCLIProvider(map[string]any{
			"host":         "127.0.0.1",
			"port":         9000,
			"upstream":     "http://localhost:1234",
			"model-marker": "mixtral",
			"normalize":    false,
			"log-level":    "debug",
			"unknown-flag": "ignored",
		})

		data, err := provider.Load()

		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"server":     map[string]any{"host": "127.0.0.1", "port": 9000},
			"upstream":   map[string]any{"base_url": "http://localhost:1234"},
			"normalizer": map[string]any{"model_marker": "mixtral", "enabled": false},
			"runtime":    map[string]any{"log_level": "debug"},
		}, data)
	})

	t.Run("Should return empty map for nil flags", func(t *testing.T) {
		data, err := NewCLIProvider(nil).Load()
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("Should report its type and ignore watching", func(t *testing.T) {
		provider := NewCLIProvider(nil)
		assert.Equal(t, SourceCLI, provider.Type())
		assert.NoError(t, provider.Watch(t.Context(), func() {}))
		assert.NoError(t, provider.Close())
	})

	t.Run("Should map every flag to a known config path", func(t *testing.T) {
		known := make(map[string]bool)
		for _, m := range GenerateEnvMappings() {
			known[m.ConfigPath] = true
		}
		for flag, path := range CLIFlagPaths {
			assert.True(t, known[path], "flag %s maps to unknown path %s", flag, path)
		}
	})
}

func TestSetNested(t *testing.T) {
	t.Run("Should set value in nested map structure", func(t *testing.T) {
		m := make(map[string]any)
		require.NoError(t, setNested(m, "server.host", "relay.local"))
		require.NoError(t, setNested(m, "server.port", 8081))
		server, ok := m["server"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "relay.local", server["host"])
		assert.Equal(t, 8081, server["port"])
	})

	t.Run("Should return error on structure conflicts", func(t *testing.T) {
		m := map[string]any{"server": "not-a-map"}
		err := setNested(m, "server.host", "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `configuration conflict: key "server" is not a map`)
		assert.Equal(t, "not-a-map", m["server"])
	})

	t.Run("Should handle empty path", func(t *testing.T) {
		m := make(map[string]any)
		assert.NoError(t, setNested(m, "", "value"))
		assert.Empty(t, m)
	})
}

func TestYAMLProvider_Load(t *testing.T) {
	t.Run("Should load configuration from YAML file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "relay.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: yaml.local
  port: 9090
normalizer:
  model_marker: mistral
  verify_output: true
  paths: ~
`), 0o600))

		data, err := NewYAMLProvider(path).Load()

		require.NoError(t, err)
		server, ok := data["server"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "yaml.local", server["host"])
		assert.Equal(t, 9090, server["port"])
		normalizer, ok := data["normalizer"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, normalizer["verify_output"])
		assert.NotContains(t, normalizer, "paths")
	})

	t.Run("Should return empty config for non-existent file", func(t *testing.T) {
		data, err := NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml")).Load()
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("Should return error for invalid YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("invalid: yaml: content: ["), 0o600))
		data, err := NewYAMLProvider(path).Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse YAML file")
		assert.Nil(t, data)
	})
}

func TestYAMLProvider_Watch(t *testing.T) {
	t.Run("Should invoke the callback when the file changes", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "relay.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: {}\n"), 0o600))
		provider := NewYAMLProvider(path)
		t.Cleanup(func() { _ = provider.Close() })

		called := make(chan struct{}, 1)
		require.NoError(t, provider.Watch(t.Context(), func() {
			select {
			case called <- struct{}{}:
			default:
			}
		}))
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))

		select {
		case <-called:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for callback")
		}
	})

	t.Run("Should close idempotently", func(t *testing.T) {
		provider := NewYAMLProvider(filepath.Join(t.TempDir(), "relay.yaml"))
		assert.NoError(t, provider.Close())
		assert.NoError(t, provider.Close())
		assert.Equal(t, SourceYAML, provider.Type())
	})
}
