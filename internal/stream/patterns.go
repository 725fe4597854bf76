package stream

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// MatchTarget selects which copy of the chunk a pattern is evaluated
// against. Tool/error/cost patterns were authored against raw terminal
// output and need byte-exact matching; agent-name capture needs the
// ANSI-stripped copy so control sequences cannot corrupt the name.
type MatchTarget int

const (
	MatchRaw MatchTarget = iota
	MatchStripped
)

// Extractor builds a payload from a regex submatch. Returning ok=false
// suppresses the match entirely: no event, no side effects.
type Extractor func(m []string) (p Payload, ok bool)

// PatternDefinition is one entry in the pattern registry.
type PatternDefinition struct {
	Name         string
	Regexp       *regexp.Regexp
	Kind         EventKind
	MatchAgainst MatchTarget
	Extract      Extractor // optional; nil means empty payload
}

var (
	// [Tool: Read] or [Tool: Bash(ls -la)]
	toolStartRe = regexp.MustCompile(`\[Tool:\s*([A-Za-z][A-Za-z0-9_]*)(?:\s*\(([^)]*)\))?\]`)

	// Tool Read completed successfully / Tool Bash failed: exit 1
	toolEndRe = regexp.MustCompile(`Tool\s+([A-Za-z][A-Za-z0-9_]*)\s+(completed successfully|failed)(?:\s*[:\-]\s*([^\r\n]*))?`)

	// Spinner char + whimsical word + unicode ellipsis, the supervised
	// CLI's thinking indicator ("✶ Pondering…", "✳ Reticulating…").
	thinkingStartRe = regexp.MustCompile(`[✳✽✶✻✢·]\s*\p{L}+…`)

	// Response content marker, or an explicit done line. Either one ends a
	// thinking span.
	thinkingEndRe = regexp.MustCompile(`(?m)^(?:⏺|✻\s+Done\b)`)

	errorRe   = regexp.MustCompile(`(?im)\b(?:error|exception)\s*[:!]\s*([^\r\n]*)`)
	warningRe = regexp.MustCompile(`(?im)\bwarning\s*:\s*([^\r\n]*)`)

	// Bare input prompt on its own line (">" or "❯", possibly with NBSP).
	promptReadyRe = regexp.MustCompile(`(?m)^[>❯][ \x{00a0}]*\r?$`)

	costRe   = regexp.MustCompile(`\$(\d+\.\d{2,4})\b`)
	tokensRe = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)(k?)\s*tokens`)

	// Bullet + name + parenthesized task, the sub-agent spawn line:
	// "● claude-skill-creator(Create project summary skill)".
	// Also matches plain tool bullets ("● Read(some/file.ts)"), which the
	// classifier suppresses.
	agentSpawnRe = regexp.MustCompile(`(?m)^[●○◆•]\s*([A-Za-z][A-Za-z0-9_-]*(?: #\d+)?)\(([^)]*)\)`)

	// "● frontend-ui completed" / "● db-migrator finished"
	agentCompleteRe = regexp.MustCompile(`(?m)^[●○◆•]\s*([A-Za-z][A-Za-z0-9_-]*(?: #\d+)?)\s+(?:completed|finished|done)\b`)

	// Nested progress line under an agent bullet:
	// "  ⎿ frontend-ui: rendering component tree"
	agentActivityRe = regexp.MustCompile(`(?m)^\s*⎿\s+([A-Za-z][A-Za-z0-9_-]*(?: #\d+)?)\s*[:·]\s*([^\r\n]+)`)
)

// DefaultPatterns returns the built-in pattern set for the supervised
// CLI's terminal dialect. Agent-detection patterns run against the
// ANSI-stripped chunk; everything else runs raw.
func DefaultPatterns(classifier Classifier) []PatternDefinition {
	if classifier == nil {
		classifier = NewHeuristicClassifier()
	}
	return []PatternDefinition{
		{
			Name:   "tool-start",
			Regexp: toolStartRe,
			Kind:   KindToolStart,
			Extract: func(m []string) (Payload, bool) {
				return Payload{ToolName: m[1], Input: m[2]}, true
			},
		},
		{
			Name:   "tool-end",
			Regexp: toolEndRe,
			Kind:   KindToolEnd,
			Extract: func(m []string) (Payload, bool) {
				return Payload{
					ToolName:      m[1],
					Success:       m[2] == "completed successfully",
					ResultPreview: strings.TrimSpace(m[3]),
				}, true
			},
		},
		{
			Name:   "thinking-start",
			Regexp: thinkingStartRe,
			Kind:   KindThinkingStart,
		},
		{
			Name:   "thinking-end",
			Regexp: thinkingEndRe,
			Kind:   KindThinkingEnd,
		},
		{
			Name:   "error",
			Regexp: errorRe,
			Kind:   KindError,
			Extract: func(m []string) (Payload, bool) {
				return Payload{Message: strings.TrimSpace(m[1])}, true
			},
		},
		{
			Name:   "warning",
			Regexp: warningRe,
			Kind:   KindWarning,
			Extract: func(m []string) (Payload, bool) {
				return Payload{Message: strings.TrimSpace(m[1])}, true
			},
		},
		{
			Name:   "prompt-ready",
			Regexp: promptReadyRe,
			Kind:   KindPromptReady,
		},
		{
			Name:   "cost-update",
			Regexp: costRe,
			Kind:   KindCostUpdate,
			Extract: func(m []string) (Payload, bool) {
				cost, err := strconv.ParseFloat(m[1], 64)
				if err != nil {
					return Payload{}, false
				}
				return Payload{CostUSD: cost}, true
			},
		},
		{
			Name:   "tokens-update",
			Regexp: tokensRe,
			Kind:   KindTokensUpdate,
			Extract: func(m []string) (Payload, bool) {
				n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
				if err != nil {
					return Payload{}, false
				}
				if m[2] == "k" {
					n *= 1000
				}
				return Payload{Tokens: int(math.Round(n))}, true
			},
		},
		{
			Name:         "agent-spawn",
			Regexp:       agentSpawnRe,
			Kind:         KindAgentSpawn,
			MatchAgainst: MatchStripped,
			Extract: func(m []string) (Payload, bool) {
				if classifier.Classify(m[1]) != ClassAgent {
					return Payload{}, false
				}
				return Payload{AgentName: m[1], Task: m[2], IsRealAgent: true}, true
			},
		},
		{
			Name:         "agent-complete",
			Regexp:       agentCompleteRe,
			Kind:         KindAgentComplete,
			MatchAgainst: MatchStripped,
			Extract: func(m []string) (Payload, bool) {
				if classifier.Classify(m[1]) != ClassAgent {
					return Payload{}, false
				}
				return Payload{AgentName: m[1], IsRealAgent: true}, true
			},
		},
		{
			Name:         "agent-activity",
			Regexp:       agentActivityRe,
			Kind:         KindAgentActivity,
			MatchAgainst: MatchStripped,
			Extract: func(m []string) (Payload, bool) {
				if classifier.Classify(m[1]) != ClassAgent {
					return Payload{}, false
				}
				return Payload{AgentName: m[1], Message: strings.TrimSpace(m[2]), IsRealAgent: true}, true
			},
		},
	}
}

// ParseEventKind maps a config string to an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	kind := EventKind(strings.TrimSpace(strings.ToLower(s)))
	if _, ok := kindChannels[kind]; !ok {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return kind, nil
}

// ParseMatchTarget maps a config string ("raw" or "stripped") to a
// MatchTarget. Empty defaults to raw.
func ParseMatchTarget(s string) (MatchTarget, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "", "raw":
		return MatchRaw, nil
	case "stripped", "ansi_stripped", "ansi-stripped":
		return MatchStripped, nil
	default:
		return MatchRaw, fmt.Errorf("unknown match target %q", s)
	}
}
