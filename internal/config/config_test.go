package config_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/config"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store/gormstore"
)

func newRuntime(t *testing.T) *config.Runtime {
	t.Helper()
	s, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return config.NewRuntime(s, logging.NewNop())
}

func TestRuntimeGetReturnsDefaultWhenUnset(t *testing.T) {
	r := newRuntime(t)
	v, err := r.Get(context.Background(), domain.KeyMaxGreenAttempts)
	require.NoError(t, err)
	require.Equal(t, domain.KnownConfig[domain.KeyMaxGreenAttempts].Default, v)
}

func TestRuntimeSetClampsOutOfBoundsValue(t *testing.T) {
	r := newRuntime(t)
	stored, err := r.Set(context.Background(), domain.KeyMaxGreenAttempts, 9999)
	require.NoError(t, err)
	require.Equal(t, domain.KnownConfig[domain.KeyMaxGreenAttempts].Max, stored)

	got, err := r.Get(context.Background(), domain.KeyMaxGreenAttempts)
	require.NoError(t, err)
	require.Equal(t, stored, got)
}

func TestRuntimeUnknownKeyErrors(t *testing.T) {
	r := newRuntime(t)
	_, err := r.Get(context.Background(), domain.ConfigKey("not_a_real_key"))
	require.Error(t, err)
}

func TestRuntimeSnapshotCoversEveryKnownKey(t *testing.T) {
	r := newRuntime(t)
	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, len(domain.KnownConfig))
}
