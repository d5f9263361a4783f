package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/skillbridge/skillbridge/internal/registry"
	"github.com/skillbridge/skillbridge/internal/store"
)

// TableFormatter renders listings as ASCII tables.
type TableFormatter struct{}

// FormatSkills renders registered skills as a table.
func (f *TableFormatter) FormatSkills(entries []registry.ManifestEntry) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Skill", "Description"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Name, e.Description})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d skills", len(entries))})
	return t.Render(), nil
}

// FormatInstances renders registered bridge instances as a table.
func (f *TableFormatter) FormatInstances(instances []store.Instance) (string, error) {
	if len(instances) == 0 {
		return "No instances registered.", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Name", "Port", "PID", "Last seen"})
	for _, inst := range instances {
		t.AppendRow(table.Row{
			inst.Name,
			inst.Port,
			inst.PID,
			inst.LastSeen.Local().Format(time.RFC3339),
		})
	}
	return t.Render(), nil
}
