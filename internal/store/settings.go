package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Setting keys persisted per logical instance.
const (
	KeyServerShouldRun = "ServerShouldRun"
	KeyAutoStart       = "AutoStart"
	KeyTotalProcessed  = "TotalProcessed"
	KeyPreferredPort   = "PreferredPort"
)

// GetString returns the stored value for (instance, key). The second
// return value is false when the key has never been written.
func (s *Store) GetString(ctx context.Context, instance, key string) (string, bool, error) {
	if s == nil || s.DB == nil {
		return "", false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	instance = strings.TrimSpace(instance)
	if instance == "" {
		return "", false, errors.New("instance is required")
	}

	var value string
	row := s.DB.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE instance = ? AND key = ?
	`, instance, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("fetch setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetString stores a value for (instance, key).
func (s *Store) SetString(ctx context.Context, instance, key, value string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	instance = strings.TrimSpace(instance)
	if instance == "" {
		return errors.New("instance is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO settings (instance, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(instance, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, instance, key, value, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store setting %s: %w", key, err)
	}
	return nil
}

// GetBool reads a boolean setting; def is returned for unset keys.
func (s *Store) GetBool(ctx context.Context, instance, key string, def bool) (bool, error) {
	value, ok, err := s.GetString(ctx, instance, key)
	if err != nil || !ok {
		return def, err
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def, fmt.Errorf("setting %s is not a bool: %w", key, err)
	}
	return parsed, nil
}

// SetBool stores a boolean setting.
func (s *Store) SetBool(ctx context.Context, instance, key string, value bool) error {
	return s.SetString(ctx, instance, key, strconv.FormatBool(value))
}

// GetInt reads an integer setting; def is returned for unset keys.
func (s *Store) GetInt(ctx context.Context, instance, key string, def int64) (int64, error) {
	value, ok, err := s.GetString(ctx, instance, key)
	if err != nil || !ok {
		return def, err
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def, fmt.Errorf("setting %s is not an integer: %w", key, err)
	}
	return parsed, nil
}

// SetInt stores an integer setting.
func (s *Store) SetInt(ctx context.Context, instance, key string, value int64) error {
	return s.SetString(ctx, instance, key, strconv.FormatInt(value, 10))
}
