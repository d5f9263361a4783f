package bridge

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillbridge/skillbridge/internal/config"
	"github.com/skillbridge/skillbridge/internal/host"
	"github.com/skillbridge/skillbridge/internal/registry"
	"github.com/skillbridge/skillbridge/internal/store"
)

// memorySettings is an in-memory stand-in for the durable keyed store.
type memorySettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemorySettings() *memorySettings {
	return &memorySettings{values: map[string]string{}}
}

func (m *memorySettings) get(instance, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[instance+"/"+key]
	return v, ok
}

func (m *memorySettings) set(instance, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[instance+"/"+key] = value
}

func (m *memorySettings) GetBool(ctx context.Context, instance, key string, def bool) (bool, error) {
	if v, ok := m.get(instance, key); ok {
		return v == "true", nil
	}
	return def, nil
}

func (m *memorySettings) SetBool(ctx context.Context, instance, key string, value bool) error {
	if value {
		m.set(instance, key, "true")
	} else {
		m.set(instance, key, "false")
	}
	return nil
}

func (m *memorySettings) GetInt(ctx context.Context, instance, key string, def int64) (int64, error) {
	if v, ok := m.get(instance, key); ok {
		return strconv.ParseInt(v, 10, 64)
	}
	return def, nil
}

func (m *memorySettings) SetInt(ctx context.Context, instance, key string, value int64) error {
	m.set(instance, key, strconv.FormatInt(value, 10))
	return nil
}

// memoryInstances records heartbeats.
type memoryInstances struct {
	mu      sync.Mutex
	rows    map[string]store.Instance
	removed []string
}

func newMemoryInstances() *memoryInstances {
	return &memoryInstances{rows: map[string]store.Instance{}}
}

func (m *memoryInstances) UpsertInstance(ctx context.Context, inst store.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[inst.ID] = inst
	return nil
}

func (m *memoryInstances) RemoveInstance(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	m.removed = append(m.removed, id)
	return nil
}

func newLifecycleFixture(t *testing.T, settings Settings, instances InstanceRegistry, autoStart bool) (*Bridge, *Lifecycle) {
	t.Helper()
	b := New(config.Default().Server, "test", registry.NewDemoTable(), &host.ManualHost{})
	l := NewLifecycle(b, settings, instances, "default", autoStart)
	t.Cleanup(b.Stop)
	return b, l
}

func TestLifecycleReloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	settings := newMemorySettings()

	b, l := newLifecycleFixture(t, settings, nil, true)
	require.NoError(t, l.Start(ctx, 0))
	port := b.Port()
	require.NotZero(t, port)

	b.SetTotalProcessed(17)

	// Host announces an imminent reset.
	require.NoError(t, l.PrepareReload(ctx))
	require.False(t, b.IsRunning())

	shouldRun, err := settings.GetBool(ctx, "default", store.KeyServerShouldRun, false)
	require.NoError(t, err)
	require.True(t, shouldRun)

	// The reload destroys the runtime objects; a fresh bridge restores.
	b2, l2 := newLifecycleFixture(t, settings, nil, true)
	require.NoError(t, l2.Restore(ctx))

	require.True(t, b2.IsRunning())
	require.Equal(t, port, b2.Port(), "restore rebinds the previously bound port")
	require.EqualValues(t, 17, b2.TotalProcessed())
}

func TestLifecycleRestoreSkippedWithoutAutoStart(t *testing.T) {
	ctx := context.Background()
	settings := newMemorySettings()

	_, l := newLifecycleFixture(t, settings, nil, false)
	require.NoError(t, l.Start(ctx, 0))
	require.NoError(t, l.PrepareReload(ctx))

	b2, l2 := newLifecycleFixture(t, settings, nil, false)
	require.NoError(t, l2.Restore(ctx))
	require.False(t, b2.IsRunning())
}

func TestLifecycleRestoreSkippedAfterPermanentStop(t *testing.T) {
	ctx := context.Background()
	settings := newMemorySettings()
	instances := newMemoryInstances()

	b, l := newLifecycleFixture(t, settings, instances, true)
	require.NoError(t, l.Start(ctx, 0))
	require.NoError(t, l.Stop(ctx, true))
	require.False(t, b.IsRunning())
	require.Contains(t, instances.removed, b.RunID())

	b2, l2 := newLifecycleFixture(t, settings, instances, true)
	require.NoError(t, l2.Restore(ctx))
	require.False(t, b2.IsRunning())
}

func TestLifecycleNonPermanentStopKeepsRunFlag(t *testing.T) {
	ctx := context.Background()
	settings := newMemorySettings()

	_, l := newLifecycleFixture(t, settings, nil, true)
	require.NoError(t, l.Start(ctx, 0))
	require.NoError(t, l.Stop(ctx, false))

	shouldRun, err := settings.GetBool(ctx, "default", store.KeyServerShouldRun, false)
	require.NoError(t, err)
	require.True(t, shouldRun)
}

func TestLifecycleShutdownClearsRunFlag(t *testing.T) {
	ctx := context.Background()
	settings := newMemorySettings()

	_, l := newLifecycleFixture(t, settings, nil, true)
	require.NoError(t, l.Start(ctx, 0))
	require.NoError(t, l.Shutdown(ctx))

	shouldRun, err := settings.GetBool(ctx, "default", store.KeyServerShouldRun, true)
	require.NoError(t, err)
	require.False(t, shouldRun)
}

func TestLifecycleHeartbeatPublishesInstance(t *testing.T) {
	ctx := context.Background()
	settings := newMemorySettings()
	instances := newMemoryInstances()

	b, l := newLifecycleFixture(t, settings, instances, true)
	require.NoError(t, l.Start(ctx, 0))

	l.heartbeat()

	instances.mu.Lock()
	defer instances.mu.Unlock()
	row, ok := instances.rows[b.RunID()]
	require.True(t, ok)
	require.Equal(t, "default", row.Name)
	require.Equal(t, b.Port(), row.Port)
	require.NotZero(t, row.PID)
}
