package config

import (
	"context"
	"fmt"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

// Runtime is a store-backed accessor for the bounded config knobs
// named in spec.md §6 (max_green_attempts, green_retry_delay_ms, ...).
// Every read and write is clamped against domain.KnownConfig, with the
// clamp outcome logged per spec §8's "clamps to the nearest bound and
// logs a warning".
type Runtime struct {
	store store.Store
	log   *logging.Logger
}

func NewRuntime(s store.Store, log *logging.Logger) *Runtime {
	return &Runtime{store: s, log: log}
}

// Get returns the current value for key, falling back to its default
// when unset. The returned value is always within bounds even if the
// stored value somehow drifted out of range.
func (r *Runtime) Get(ctx context.Context, key domain.ConfigKey) (int, error) {
	bounds, known := domain.KnownConfig[key]
	if !known {
		return 0, fmt.Errorf("config: unknown key %q", key)
	}
	v, found, err := r.store.GetConfig(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("config: reading %q: %w", key, err)
	}
	if !found {
		return bounds.Default, nil
	}
	clamped, didClamp := bounds.Clamp(v)
	if didClamp {
		r.log.Warn("config value out of bounds, clamping", "key", string(key), "stored", v, "clamped", clamped)
	}
	return clamped, nil
}

// Set validates key is known, clamps v into bounds, persists it, and
// returns the clamped value actually stored.
func (r *Runtime) Set(ctx context.Context, key domain.ConfigKey, v int) (int, error) {
	bounds, known := domain.KnownConfig[key]
	if !known {
		return 0, fmt.Errorf("config: unknown key %q", key)
	}
	clamped, didClamp := bounds.Clamp(v)
	if didClamp {
		r.log.Warn("config write out of bounds, clamping", "key", string(key), "requested", v, "clamped", clamped)
	}
	if err := r.store.SetConfig(ctx, key, clamped); err != nil {
		return 0, fmt.Errorf("config: writing %q: %w", key, err)
	}
	return clamped, nil
}

// Snapshot returns every known key's current (clamped) value. No HTTP
// route serves it.
func (r *Runtime) Snapshot(ctx context.Context) (map[domain.ConfigKey]int, error) {
	out := make(map[domain.ConfigKey]int, len(domain.KnownConfig))
	for key := range domain.KnownConfig {
		v, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}
