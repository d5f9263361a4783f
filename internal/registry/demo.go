package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// NewDemoTable returns a table with the built-in demonstration skills
// used by the skillbridge CLI. Embedding applications register their own
// skills instead.
func NewDemoTable() *Table {
	t := NewTable()

	t.Register("echo", "Returns the request body unchanged", func(ctx context.Context, argsJSON string) (string, error) {
		if argsJSON == "" {
			return "{}", nil
		}
		if !json.Valid([]byte(argsJSON)) {
			return "", fmt.Errorf("body is not valid JSON")
		}
		return argsJSON, nil
	})

	t.Register("ping", "Liveness probe returning pong and the server time", func(ctx context.Context, argsJSON string) (string, error) {
		resp := struct {
			Pong bool   `json:"pong"`
			Time string `json:"time"`
		}{Pong: true, Time: time.Now().UTC().Format(time.RFC3339Nano)}
		raw, err := json.Marshal(resp)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	})

	t.Register("sleep", "Blocks the host thread for ms milliseconds (diagnostics)", func(ctx context.Context, argsJSON string) (string, error) {
		var args struct {
			Ms int `json:"ms"`
		}
		if argsJSON != "" {
			if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
				return "", fmt.Errorf("parse sleep args: %w", err)
			}
		}
		if args.Ms < 0 {
			return "", fmt.Errorf("ms must not be negative")
		}
		select {
		case <-time.After(time.Duration(args.Ms) * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return fmt.Sprintf(`{"slept_ms":%d}`, args.Ms), nil
	})

	return t
}
