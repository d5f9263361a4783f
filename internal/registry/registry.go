// Package registry maps skill names to executable handlers. Skills are
// registered explicitly by the embedding application at start-up; there
// is no runtime discovery.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc executes one skill. argsJSON is the raw request body (may
// be empty); the returned string must be a JSON document.
type HandlerFunc func(ctx context.Context, argsJSON string) (string, error)

// Registry is the command-registry contract consumed by the bridge.
type Registry interface {
	// Execute runs the named skill. An unknown name yields
	// *UnknownSkillError.
	Execute(ctx context.Context, name, argsJSON string) (string, error)
	// Manifest returns the JSON skill manifest served by GET /skills.
	Manifest() string
	// Names returns registered skill names, sorted.
	Names() []string
}

// UnknownSkillError reports an Execute call for a name that was never
// registered.
type UnknownSkillError struct {
	Name string
}

func (e *UnknownSkillError) Error() string {
	return fmt.Sprintf("unknown skill: %s", e.Name)
}

type entry struct {
	description string
	handler     HandlerFunc
}

// Table is the standard Registry implementation: a mutex-guarded name →
// handler map populated via Register.
type Table struct {
	mu     sync.RWMutex
	skills map[string]entry
}

// NewTable creates an empty registration table.
func NewTable() *Table {
	return &Table{skills: make(map[string]entry)}
}

// Register adds or replaces a skill. A nil handler removes the name.
func (t *Table) Register(name, description string, handler HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if handler == nil {
		delete(t.skills, name)
		return
	}
	t.skills[name] = entry{description: description, handler: handler}
}

// Execute implements Registry.
func (t *Table) Execute(ctx context.Context, name, argsJSON string) (string, error) {
	t.mu.RLock()
	e, ok := t.skills[name]
	t.mu.RUnlock()
	if !ok {
		return "", &UnknownSkillError{Name: name}
	}
	return e.handler(ctx, argsJSON)
}

// ManifestEntry is one skill in the manifest document.
type ManifestEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Manifest implements Registry. The manifest is rebuilt on each call;
// /skills traffic is low-volume diagnostics.
func (t *Table) Manifest() string {
	entries := t.manifestEntries()
	doc := struct {
		Count  int             `json:"count"`
		Skills []ManifestEntry `json:"skills"`
	}{Count: len(entries), Skills: entries}

	raw, err := json.Marshal(doc)
	if err != nil {
		return `{"count":0,"skills":[]}`
	}
	return string(raw)
}

// Names implements Registry.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.skills))
	for name := range t.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns the manifest entries, sorted by name. Used by the CLI
// skills table alongside Manifest.
func (t *Table) Entries() []ManifestEntry {
	return t.manifestEntries()
}

func (t *Table) manifestEntries() []ManifestEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := make([]ManifestEntry, 0, len(t.skills))
	for name, e := range t.skills {
		entries = append(entries, ManifestEntry{Name: name, Description: e.description})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
