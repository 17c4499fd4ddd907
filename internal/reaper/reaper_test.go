package reaper

import (
	"testing"
	"time"

	"github.com/helperd/helperd/internal/config"
	"github.com/helperd/helperd/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.ResourceTTL[config.KindConnection] = 10 * time.Millisecond
	return cfg
}

func TestTTLSweepEvictsIdleEntries(t *testing.T) {
	reg := registry.New()
	cfg := testConfig(t)

	released := false
	entry, err := reg.Create(registry.Kind(config.KindConnection), nil, "", nil, func(any) error {
		released = true
		return nil
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	r := New(cfg, reg, []config.ResourceKind{config.KindConnection}, func() bool { return false })
	r.sweep()

	_, ok := reg.Get(entry.ID, "")
	assert.False(t, ok)
	assert.True(t, released)
}

func TestTTLSweepLeavesFreshEntries(t *testing.T) {
	reg := registry.New()
	cfg := testConfig(t)
	cfg.ResourceTTL[config.KindConnection] = time.Hour

	entry, err := reg.Create(registry.Kind(config.KindConnection), nil, "", nil, nil)
	require.NoError(t, err)

	r := New(cfg, reg, []config.ResourceKind{config.KindConnection}, func() bool { return false })
	r.sweep()

	_, ok := reg.Get(entry.ID, "")
	assert.True(t, ok)
}

func TestPressureEvictionHalvesRegistry(t *testing.T) {
	reg := registry.New()
	cfg := testConfig(t)
	cfg.ResourceTTL[config.KindConnection] = time.Hour

	for i := 0; i < 4; i++ {
		_, err := reg.Create(registry.Kind(config.KindConnection), nil, "", nil, nil)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	r := New(cfg, reg, []config.ResourceKind{config.KindConnection}, func() bool { return true })
	r.sweep()

	assert.Equal(t, 2, reg.Len())
}
