package config

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kiriru/mistral-relay/pkg/logger"
	"github.com/romdo/go-debounce"
)

// Manager handles configuration with atomic updates and hot-reload support.
type Manager struct {
	Service        Service
	current        atomic.Pointer[Config]
	sources        []Source
	callbacks      []func(*Config)
	callbackMu     sync.RWMutex
	reloadMu       sync.Mutex
	watchCtx       context.Context
	watchCancel    context.CancelFunc
	watchWg        sync.WaitGroup
	closeOnce      sync.Once
	debounce       time.Duration
	debounceMu     sync.Mutex
	cancelDebounce func()
}

// NewManager creates a new configuration manager.
func NewManager(service Service) *Manager {
	if service == nil {
		service = NewService()
	}
	return &Manager{
		Service:  service,
		debounce: 100 * time.Millisecond,
	}
}

// Load loads configuration from sources and starts watching those that
// support it. The watchers outlive ctx's cancellation and stop on Close.
func (m *Manager) Load(ctx context.Context, sources ...Source) (*Config, error) {
	m.reloadMu.Lock()
	m.sources = append([]Source(nil), sources...)
	m.reloadMu.Unlock()

	config, err := m.Service.Load(ctx, sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	m.applyConfig(config)

	if m.watchCancel != nil {
		m.watchCancel()
	}
	m.watchCtx, m.watchCancel = context.WithCancel(context.WithoutCancel(ctx))
	m.startWatching(sources)
	return config, nil
}

// Get returns the current configuration atomically.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// Reload forces a configuration reload from all sources. The current
// configuration is kept when the new one fails to load or validate.
func (m *Manager) Reload(ctx context.Context) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()
	newConfig, err := m.Service.Load(ctx, m.sources...)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	m.applyConfig(newConfig)
	return nil
}

// SetDebounce sets the debounce duration for file watching.
// Must be called before Load() to take effect.
func (m *Manager) SetDebounce(duration time.Duration) {
	m.debounce = duration
}

// OnChange registers a callback to be invoked when configuration changes.
func (m *Manager) OnChange(callback func(*Config)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// Close stops watching and releases resources.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		if m.watchCancel != nil {
			m.watchCancel()
		}
		m.debounceMu.Lock()
		if m.cancelDebounce != nil {
			m.cancelDebounce()
		}
		m.debounceMu.Unlock()
		m.watchWg.Wait()

		m.reloadMu.Lock()
		sources := append([]Source(nil), m.sources...)
		m.reloadMu.Unlock()
		for _, source := range sources {
			if source == nil {
				continue
			}
			if err := source.Close(); err != nil {
				logger.FromContext(ctx).Error("failed to close configuration source", "error", err)
			}
		}
	})
	return nil
}

func (m *Manager) startWatching(sources []Source) {
	ctx := m.watchCtx
	reload := m.newReloader(ctx)
	for _, source := range sources {
		if source == nil {
			continue
		}
		src := source
		m.watchWg.Add(1)
		go func() {
			defer m.watchWg.Done()
			if err := src.Watch(ctx, reload); err != nil {
				logger.FromContext(ctx).Warn("config source cannot be watched", "source", src.Type(), "error", err)
			}
		}()
	}
}

// newReloader returns the callback handed to watchers. Bursts of file events
// are coalesced into one reload, and a steady stream of events still reloads
// at least every ten debounce periods.
func (m *Manager) newReloader(ctx context.Context) func() {
	reload := func() {
		if ctx.Err() != nil {
			return
		}
		log := logger.FromContext(ctx)
		if err := m.Reload(ctx); err != nil {
			log.Error("failed to reload configuration", "error", err)
			return
		}
		log.Info("configuration reloaded")
	}
	if m.debounce <= 0 {
		return reload
	}
	debounced, cancel := debounce.NewWithMaxWait(m.debounce, 10*m.debounce, reload)
	m.debounceMu.Lock()
	if m.cancelDebounce != nil {
		m.cancelDebounce()
	}
	m.cancelDebounce = cancel
	m.debounceMu.Unlock()
	return debounced
}

// applyConfig stores config and notifies callbacks when it differs from the
// previous one.
func (m *Manager) applyConfig(config *Config) {
	oldConfig := m.current.Swap(config)
	if oldConfig != nil && reflect.DeepEqual(oldConfig, config) {
		return
	}
	m.callbackMu.RLock()
	callbacks := make([]func(*Config), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.callbackMu.RUnlock()
	for _, callback := range callbacks {
		if callback != nil {
			callback(config)
		}
	}
}
