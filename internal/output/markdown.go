package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/skillbridge/skillbridge/internal/registry"
	"github.com/skillbridge/skillbridge/internal/store"
)

// MarkdownFormatter renders listings as markdown tables.
type MarkdownFormatter struct{}

// FormatSkills renders registered skills as a markdown table.
func (f *MarkdownFormatter) FormatSkills(entries []registry.ManifestEntry) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Skills\n\n")
	sb.WriteString("| Skill | Description |\n")
	sb.WriteString("|-------|-------------|\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("| %s | %s |\n",
			escapeMarkdownCell(e.Name),
			escapeMarkdownCell(e.Description)))
	}
	sb.WriteString(fmt.Sprintf("\n**Total**: %d skills\n", len(entries)))
	return sb.String(), nil
}

// FormatInstances renders registered bridge instances as a markdown table.
func (f *MarkdownFormatter) FormatInstances(instances []store.Instance) (string, error) {
	if len(instances) == 0 {
		return "No instances registered.\n", nil
	}

	var sb strings.Builder
	sb.WriteString("## Instances\n\n")
	sb.WriteString("| Name | Port | PID | Last seen |\n")
	sb.WriteString("|------|------|-----|-----------|\n")
	for _, inst := range instances {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s |\n",
			escapeMarkdownCell(inst.Name),
			inst.Port,
			inst.PID,
			inst.LastSeen.Local().Format(time.RFC3339)))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	escaped := strings.ReplaceAll(value, "|", "\\|")
	escaped = strings.ReplaceAll(escaped, "\n", " ")
	return escaped
}
