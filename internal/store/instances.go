package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Instance is one live bridge in the discovery registry. Agent clients
// use it to find the port of a named instance when several hosts run on
// the same machine.
type Instance struct {
	ID       string
	Name     string
	Port     int
	PID      int
	LastSeen time.Time
}

// UpsertInstance records a heartbeat for a bridge instance.
func (s *Store) UpsertInstance(ctx context.Context, inst Instance) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(inst.ID) == "" {
		return errors.New("instance id is required")
	}
	if inst.LastSeen.IsZero() {
		inst.LastSeen = time.Now().UTC()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO instances (id, name, port, pid, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			port = excluded.port,
			pid = excluded.pid,
			last_seen = excluded.last_seen
	`, inst.ID, inst.Name, inst.Port, inst.PID, inst.LastSeen.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store instance heartbeat: %w", err)
	}
	return nil
}

// ListInstances returns registered instances, most recently seen first.
func (s *Store) ListInstances(ctx context.Context) ([]Instance, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, port, pid, last_seen
		FROM instances
		ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var instances []Instance
	for rows.Next() {
		var inst Instance
		var lastSeen int64
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.Port, &inst.PID, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		inst.LastSeen = time.Unix(lastSeen, 0).UTC()
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// PruneInstances removes instances not seen within maxAge and returns
// how many rows were deleted.
func (s *Store) PruneInstances(ctx context.Context, maxAge time.Duration) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}

	cutoff := time.Now().UTC().Add(-maxAge).Unix()
	res, err := s.DB.ExecContext(ctx, `DELETE FROM instances WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune instances: %w", err)
	}
	return res.RowsAffected()
}

// RemoveInstance deletes one instance row, used on permanent stop.
func (s *Store) RemoveInstance(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.DB.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove instance: %w", err)
	}
	return nil
}
