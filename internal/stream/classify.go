package stream

import "strings"

// Classification is the verdict on a candidate name captured by an
// agent-detection pattern.
type Classification int

const (
	ClassUnknown Classification = iota
	ClassTool                   // known tool invocation, not an agent
	ClassAgent                  // genuine sub-agent
)

// Classifier decides whether a captured name refers to a real sub-agent.
// The default is a string heuristic; a structured signal from the
// supervised CLI could replace it without touching the engine.
type Classifier interface {
	Classify(candidate string) Classification
}

// reservedToolNames are identifiers the supervised CLI uses for tool
// invocations. Any of these captured by an agent pattern is a false
// positive.
var reservedToolNames = map[string]struct{}{
	"Read": {}, "Write": {}, "Edit": {}, "MultiEdit": {}, "NotebookEdit": {},
	"Bash": {}, "BashOutput": {}, "KillShell": {},
	"Grep": {}, "Glob": {}, "LS": {}, "Search": {},
	"Task": {}, "Agent": {}, "Explore": {}, "Skill": {},
	"WebFetch": {}, "WebSearch": {}, "TodoWrite": {},
}

// HeuristicClassifier distinguishes multi-word agent slugs (frontend-ui,
// claude-skill-creator) from single capitalized tool names (Read, Bash).
// A candidate is an agent only when it contains a hyphen AND is not a
// reserved tool name. Numbered variants ("Explore #2") are normalized to
// their base name before the reserved check.
type HeuristicClassifier struct {
	reserved map[string]struct{}
}

// NewHeuristicClassifier returns a classifier seeded with the built-in
// reserved tool names plus any extras.
func NewHeuristicClassifier(extraReserved ...string) *HeuristicClassifier {
	reserved := make(map[string]struct{}, len(reservedToolNames)+len(extraReserved))
	for name := range reservedToolNames {
		reserved[name] = struct{}{}
	}
	for _, name := range extraReserved {
		reserved[name] = struct{}{}
	}
	return &HeuristicClassifier{reserved: reserved}
}

// Classify implements Classifier.
func (c *HeuristicClassifier) Classify(candidate string) Classification {
	name := strings.TrimSpace(candidate)
	if name == "" {
		return ClassUnknown
	}
	if _, ok := c.reserved[baseName(name)]; ok {
		return ClassTool
	}
	if !strings.Contains(name, "-") {
		// Single-word names are tool invocations, not agent slugs.
		return ClassTool
	}
	return ClassAgent
}

// baseName strips a trailing " #N" numbered-variant suffix.
func baseName(name string) string {
	i := strings.LastIndex(name, " #")
	if i <= 0 {
		return name
	}
	suffix := name[i+2:]
	if suffix == "" {
		return name
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return name
		}
	}
	return name[:i]
}
