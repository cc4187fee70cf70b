package relay

import (
	"strings"
	"sync/atomic"

	"github.com/kiriru/mistral-relay/pkg/config"
)

type gateSettings struct {
	enabled bool
	marker  string
	paths   map[string]struct{}
	verify  bool
}

// Gate decides which requests get their conversation normalized. Settings
// are swapped atomically so a config reload never blocks in-flight requests.
type Gate struct {
	settings atomic.Pointer[gateSettings]
}

// NewGate creates a gate from the normalizer configuration.
func NewGate(cfg *config.NormalizerConfig) *Gate {
	g := &Gate{}
	g.Update(cfg)
	return g
}

// Update replaces the gate settings.
func (g *Gate) Update(cfg *config.NormalizerConfig) {
	s := &gateSettings{paths: make(map[string]struct{})}
	if cfg != nil {
		s.enabled = cfg.Enabled
		s.marker = strings.ToLower(cfg.ModelMarker)
		s.verify = cfg.VerifyOutput
		for _, p := range cfg.Paths {
			s.paths[strings.ToLower(p)] = struct{}{}
		}
	}
	g.settings.Store(s)
}

// ShouldNormalize reports whether a request for path declaring model must be
// normalized. Path and model are both compared case-insensitively.
func (g *Gate) ShouldNormalize(path, model string) bool {
	s := g.settings.Load()
	if s == nil || !s.enabled || model == "" {
		return false
	}
	if _, ok := s.paths[strings.ToLower(path)]; !ok {
		return false
	}
	return strings.Contains(strings.ToLower(model), s.marker)
}

// VerifyOutput reports whether normalized conversations are re-checked
// before forwarding.
func (g *Gate) VerifyOutput() bool {
	s := g.settings.Load()
	return s != nil && s.verify
}
