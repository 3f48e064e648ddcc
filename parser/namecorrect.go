package parser

import (
	"regexp"
	"strings"
)

var (
	serverHeadingRe = regexp.MustCompile(`(?m)^## Server name:\s*(.+)$`)
	toolHeadingRe   = regexp.MustCompile(`(?m)^### Tool name:\s*(.+)$`)
)

// commonMisnames is the enumerated allow-list of tool aliases a model
// sometimes emits instead of a tool's canonical name. Correction is
// confined to this list; any other emitted name is passed through
// unchanged even if it doesn't match a known tool.
var commonMisnames = map[string]string{
	"python":      "run_python_code",
	"python_code": "run_python_code",
	"run_python":  "run_python_code",
	"search":      "google_search",
	"web_search":  "google_search",
	"browse":      "browse_page",
	"browse_url":  "browse_page",
	"visit_page":  "browse_page",
}

// NameCorrector maps a tool's canonical name to the server that hosts it, as
// scraped from a rendered system prompt's "## Server name:" / "### Tool
// name:" heading pairs (the Prompt Builder's load-bearing layout, §4.5).
type NameCorrector struct {
	toolToServer map[string]string
}

// BuildNameCorrector scans systemPrompt for server/tool heading pairs,
// tracking the most recently seen server name as each tool heading is
// encountered.
func BuildNameCorrector(systemPrompt string) *NameCorrector {
	serverMatches := serverHeadingRe.FindAllStringSubmatchIndex(systemPrompt, -1)
	toolMatches := toolHeadingRe.FindAllStringSubmatch(systemPrompt, -1)
	toolIdx := toolHeadingRe.FindAllStringSubmatchIndex(systemPrompt, -1)

	nc := &NameCorrector{toolToServer: make(map[string]string)}
	if len(serverMatches) == 0 || len(toolMatches) == 0 {
		return nc
	}

	for i, tm := range toolIdx {
		pos := tm[0]
		server := ""
		for _, sm := range serverMatches {
			if sm[0] > pos {
				break
			}
			server = systemPrompt[sm[2]:sm[3]]
		}
		if server == "" {
			continue
		}
		toolName := toolMatches[i][1]
		nc.toolToServer[strings.TrimSpace(toolName)] = strings.TrimSpace(server)
	}
	return nc
}

// Correct rewrites (serverName, toolName) using the allow-listed alias table
// and the scraped tool->server map. A tool name not present in either table
// is returned unchanged, as is a server name that already agrees with the
// map.
func (nc *NameCorrector) Correct(serverName, toolName string) (string, string) {
	canonical := toolName
	if c, ok := commonMisnames[toolName]; ok {
		canonical = c
	}

	server, known := nc.toolToServer[canonical]
	if !known {
		return serverName, canonical
	}
	return server, canonical
}
