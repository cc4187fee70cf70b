package config

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	t.Run("Should expose the loaded configuration", func(t *testing.T) {
		m := NewManager(nil)
		cfg, err := m.Load(t.Context())
		require.NoError(t, err)
		t.Cleanup(func() { _ = m.Close(context.Background()) })
		assert.Same(t, cfg, m.Get())
	})

	t.Run("Should fail to load an invalid configuration", func(t *testing.T) {
		m := NewManager(nil)
		_, err := m.Load(t.Context(), &mockSource{
			sourceType: SourceCLI,
			data:       map[string]any{"server": map[string]any{"port": 0}},
		})
		require.Error(t, err)
		assert.Nil(t, m.Get())
	})

	t.Run("Should notify callbacks only when the configuration changes", func(t *testing.T) {
		src := &mockSource{
			sourceType: SourceYAML,
			data:       map[string]any{"normalizer": map[string]any{"model_marker": "mistral"}},
		}
		m := NewManager(nil)
		var calls atomic.Int32
		m.OnChange(func(*Config) { calls.Add(1) })
		_, err := m.Load(t.Context(), src)
		require.NoError(t, err)
		t.Cleanup(func() { _ = m.Close(context.Background()) })
		assert.Equal(t, int32(1), calls.Load())

		require.NoError(t, m.Reload(t.Context()))
		assert.Equal(t, int32(1), calls.Load())

		src.data = map[string]any{"normalizer": map[string]any{"model_marker": "mixtral"}}
		require.NoError(t, m.Reload(t.Context()))
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, "mixtral", m.Get().Normalizer.ModelMarker)
	})

	t.Run("Should keep the previous configuration when a reload is invalid", func(t *testing.T) {
		src := &mockSource{sourceType: SourceYAML, data: map[string]any{}}
		m := NewManager(nil)
		_, err := m.Load(t.Context(), src)
		require.NoError(t, err)
		t.Cleanup(func() { _ = m.Close(context.Background()) })

		src.data = map[string]any{"upstream": map[string]any{"base_url": "not a url"}}
		assert.Error(t, m.Reload(t.Context()))
		assert.Equal(t, DefaultUpstreamURL, m.Get().Upstream.BaseURL)
	})

	t.Run("Should hot reload a watched YAML file", func(t *testing.T) {
		path := writeTempConfig(t, "normalizer:\n  model_marker: mistral\n")
		m := NewManager(nil)
		m.SetDebounce(20 * time.Millisecond)
		changed := make(chan *Config, 4)
		m.OnChange(func(c *Config) { changed <- c })
		_, err := m.Load(t.Context(), NewYAMLProvider(path))
		require.NoError(t, err)
		t.Cleanup(func() { _ = m.Close(context.Background()) })
		<-changed
		time.Sleep(50 * time.Millisecond)

		require.NoError(t, os.WriteFile(path, []byte("normalizer:\n  model_marker: codestral\n"), 0o600))

		select {
		case c := <-changed:
			assert.Equal(t, "codestral", c.Normalizer.ModelMarker)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for reload")
		}
	})

	t.Run("Should close idempotently", func(t *testing.T) {
		m := NewManager(nil)
		_, err := m.Load(t.Context())
		require.NoError(t, err)
		assert.NoError(t, m.Close(t.Context()))
		assert.NoError(t, m.Close(t.Context()))
	})
}
