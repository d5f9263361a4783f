package bridge

import (
	"net/http"
	"strings"
)

// AgentHeader lets a client state its identity explicitly, overriding
// the User-Agent heuristic.
const AgentHeader = "X-Agent-Id"

// agentKeywords maps User-Agent substrings to canonical agent names.
// Ordered: the first match wins.
var agentKeywords = []struct {
	keyword string
	name    string
}{
	{"claude", "Claude"},
	{"cursor", "Cursor"},
	{"copilot", "Copilot"},
	{"gemini", "Gemini"},
	{"openai", "OpenAI"},
	{"gpt", "OpenAI"},
	{"python-requests", "Python"},
	{"python", "Python"},
	{"curl", "curl"},
}

// detectAgent identifies the calling tool: explicit override header if
// present, else keyword match on the declared User-Agent, else Unknown.
func detectAgent(h http.Header) string {
	if override := strings.TrimSpace(h.Get(AgentHeader)); override != "" {
		return override
	}

	ua := strings.ToLower(h.Get("User-Agent"))
	for _, k := range agentKeywords {
		if strings.Contains(ua, k.keyword) {
			return k.name
		}
	}
	return "Unknown"
}
