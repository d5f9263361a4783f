package bridge

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/skillbridge/skillbridge/internal/observability"
	"github.com/skillbridge/skillbridge/internal/store"
)

// Settings is the durable keyed store the lifecycle manager persists
// reload-survival state into. *store.Store satisfies it.
type Settings interface {
	GetBool(ctx context.Context, instance, key string, def bool) (bool, error)
	SetBool(ctx context.Context, instance, key string, value bool) error
	GetInt(ctx context.Context, instance, key string, def int64) (int64, error)
	SetInt(ctx context.Context, instance, key string, value int64) error
}

// InstanceRegistry is the discovery collaborator that receives advisory
// heartbeats. *store.Store satisfies it.
type InstanceRegistry interface {
	UpsertInstance(ctx context.Context, inst store.Instance) error
	RemoveInstance(ctx context.Context, id string) error
}

// Lifecycle persists run state across host reloads and restores it
// afterwards. The host announces an impending reset via PrepareReload
// and calls Restore once its tick callback is registered again.
type Lifecycle struct {
	bridge    *Bridge
	settings  Settings
	instances InstanceRegistry // may be nil; heartbeats are then dropped
	instance  string
	autoStart bool
}

// NewLifecycle wires a lifecycle manager to a bridge. instance is the
// logical instance name namespacing persisted keys.
func NewLifecycle(b *Bridge, settings Settings, instances InstanceRegistry, instance string, autoStart bool) *Lifecycle {
	l := &Lifecycle{
		bridge:    b,
		settings:  settings,
		instances: instances,
		instance:  instance,
		autoStart: autoStart,
	}
	b.SetHeartbeat(l.heartbeat)
	return l
}

// Start starts the bridge and persists that it should be running, so a
// reload occurring at any later moment resumes it.
func (l *Lifecycle) Start(ctx context.Context, preferredPort int) error {
	if err := l.bridge.Start(preferredPort); err != nil {
		return err
	}

	if err := l.settings.SetBool(ctx, l.instance, store.KeyServerShouldRun, true); err != nil {
		return fmt.Errorf("persist run state: %w", err)
	}
	if err := l.settings.SetInt(ctx, l.instance, store.KeyPreferredPort, int64(preferredPort)); err != nil {
		return fmt.Errorf("persist preferred port: %w", err)
	}
	if err := l.settings.SetBool(ctx, l.instance, store.KeyAutoStart, l.autoStart); err != nil {
		return fmt.Errorf("persist auto-start: %w", err)
	}
	return nil
}

// Stop halts the bridge. A permanent stop additionally clears the
// persisted run flag so a later session does not auto-resume, and
// withdraws the instance from the discovery registry.
func (l *Lifecycle) Stop(ctx context.Context, permanent bool) error {
	l.bridge.Stop()

	if !permanent {
		return nil
	}
	if err := l.settings.SetBool(ctx, l.instance, store.KeyServerShouldRun, false); err != nil {
		return fmt.Errorf("clear run state: %w", err)
	}
	if l.instances != nil {
		if err := l.instances.RemoveInstance(ctx, l.bridge.RunID()); err != nil {
			l.logWarn("Failed to withdraw instance from registry", err)
		}
	}
	return nil
}

// PrepareReload is called synchronously before an imminent host reset.
// It persists whether the bridge should resume plus the counters, then
// stops the live listener, which would not survive the reset anyway.
// Persistence failures are returned: resuming silently with lost state
// is worse than surfacing the write error to the host.
func (l *Lifecycle) PrepareReload(ctx context.Context) error {
	wasRunning := l.bridge.IsRunning()
	port := l.bridge.Port()

	if err := l.settings.SetBool(ctx, l.instance, store.KeyServerShouldRun, wasRunning); err != nil {
		return fmt.Errorf("persist run state: %w", err)
	}
	if err := l.settings.SetInt(ctx, l.instance, store.KeyTotalProcessed, l.bridge.TotalProcessed()); err != nil {
		return fmt.Errorf("persist processed counter: %w", err)
	}
	if wasRunning {
		if err := l.settings.SetInt(ctx, l.instance, store.KeyPreferredPort, int64(port)); err != nil {
			return fmt.Errorf("persist preferred port: %w", err)
		}
	}

	l.bridge.Stop()
	return nil
}

// Restore is the deferred post-reload entrypoint, invoked once the host
// has re-registered its tick callback. When both the persisted run flag
// and auto-start are set it restarts the bridge on the previously bound
// port and restores the counters; otherwise it does nothing.
func (l *Lifecycle) Restore(ctx context.Context) error {
	shouldRun, err := l.settings.GetBool(ctx, l.instance, store.KeyServerShouldRun, false)
	if err != nil {
		return fmt.Errorf("read run state: %w", err)
	}
	autoStart, err := l.settings.GetBool(ctx, l.instance, store.KeyAutoStart, l.autoStart)
	if err != nil {
		return fmt.Errorf("read auto-start: %w", err)
	}
	if !shouldRun || !autoStart {
		return nil
	}

	processed, err := l.settings.GetInt(ctx, l.instance, store.KeyTotalProcessed, 0)
	if err != nil {
		return fmt.Errorf("read processed counter: %w", err)
	}
	port, err := l.settings.GetInt(ctx, l.instance, store.KeyPreferredPort, 0)
	if err != nil {
		return fmt.Errorf("read preferred port: %w", err)
	}

	l.bridge.SetTotalProcessed(processed)
	return l.Start(ctx, int(port))
}

// Shutdown handles host process exit: the bridge must not auto-resume
// in the next session unless it is started again explicitly.
func (l *Lifecycle) Shutdown(ctx context.Context) error {
	l.bridge.Stop()
	if err := l.settings.SetBool(ctx, l.instance, store.KeyServerShouldRun, false); err != nil {
		return fmt.Errorf("clear run state: %w", err)
	}
	return nil
}

// heartbeat publishes this instance to the discovery registry. Runs on
// the consumer thread; failures are advisory and only logged.
func (l *Lifecycle) heartbeat() {
	if l.instances == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := l.instances.UpsertInstance(ctx, store.Instance{
		ID:       l.bridge.RunID(),
		Name:     l.instance,
		Port:     l.bridge.Port(),
		PID:      os.Getpid(),
		LastSeen: time.Now().UTC(),
	})
	if err != nil {
		l.logWarn("Instance heartbeat failed", err)
	}
}

func (l *Lifecycle) logWarn(msg string, err error) {
	if logger := observability.ServerLogger; logger != nil {
		logger.Warn(msg, zap.String("instance", l.instance), zap.Error(err))
	}
}
