package output

import (
	"encoding/json"
	"time"

	"github.com/skillbridge/skillbridge/internal/registry"
	"github.com/skillbridge/skillbridge/internal/store"
)

// JSONFormatter renders listings as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatSkills renders registered skills as JSON.
func (f *JSONFormatter) FormatSkills(entries []registry.ManifestEntry) (string, error) {
	doc := struct {
		Count  int                      `json:"count"`
		Skills []registry.ManifestEntry `json:"skills"`
	}{Count: len(entries), Skills: entries}
	return f.marshal(doc)
}

// FormatInstances renders registered bridge instances as JSON.
func (f *JSONFormatter) FormatInstances(instances []store.Instance) (string, error) {
	type row struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Port     int    `json:"port"`
		PID      int    `json:"pid"`
		LastSeen string `json:"lastSeen"`
	}
	rows := make([]row, 0, len(instances))
	for _, inst := range instances {
		rows = append(rows, row{
			ID:       inst.ID,
			Name:     inst.Name,
			Port:     inst.Port,
			PID:      inst.PID,
			LastSeen: inst.LastSeen.UTC().Format(time.RFC3339),
		})
	}
	return f.marshal(rows)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
