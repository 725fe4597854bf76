package stream

import (
	"fmt"
	"sync"
)

// ToolCall tracks one open or just-completed tool invocation. Owned
// exclusively by the correlator: created on tool_start, stamped on the
// matching tool_end, then removed.
type ToolCall struct {
	TerminalID    int    `json:"terminal_id"`
	Name          string `json:"name"`
	Input         string `json:"input,omitempty"`
	StartMs       int64  `json:"start_ms"`
	EndMs         int64  `json:"end_ms,omitempty"` // zero while open
	ResultPreview string `json:"result_preview,omitempty"`
	Success       bool   `json:"success,omitempty"`
}

// DurationMs returns the call duration, valid once EndMs is stamped.
func (c ToolCall) DurationMs() int64 {
	if c.EndMs == 0 {
		return 0
	}
	return c.EndMs - c.StartMs
}

// ToolUsageRecord is the completed-call record handed to the persistence
// sink.
type ToolUsageRecord struct {
	SessionID     string
	ToolName      string
	Input         string
	ResultPreview string
	Success       bool
	DurationMs    int64
}

// UsageSink accepts completed tool-call records. Implementations may
// block or fail; the analyzer calls them fire-and-forget off the
// ingestion path.
type UsageSink interface {
	SaveToolUsage(rec ToolUsageRecord) error
}

// correlator matches tool_start events with their tool_end counterparts.
// Calls are keyed by terminal + tool name + start timestamp (plus a
// sequence number so same-millisecond starts stay distinct); completion
// picks the oldest open call with the matching terminal and name.
type correlator struct {
	mu    sync.Mutex
	open  map[string]*ToolCall
	order []string // insertion order, for FIFO end-matching
	seq   uint64
}

func newCorrelator() *correlator {
	return &correlator{open: make(map[string]*ToolCall)}
}

func (c *correlator) start(terminalID int, name, input string, startMs int64) ToolCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	key := fmt.Sprintf("%d-%s-%d-%d", terminalID, name, startMs, c.seq)
	call := &ToolCall{
		TerminalID: terminalID,
		Name:       name,
		Input:      input,
		StartMs:    startMs,
	}
	c.open[key] = call
	c.order = append(c.order, key)
	return *call
}

// complete stamps and removes the oldest open call for (terminal, name).
// Returns ok=false when no open call matches; such ends are dropped by
// the caller without error.
func (c *correlator) complete(terminalID int, name string, endMs int64, success bool, preview string) (ToolCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, key := range c.order {
		call, ok := c.open[key]
		if !ok || call.TerminalID != terminalID || call.Name != name {
			continue
		}
		call.EndMs = endMs
		call.Success = success
		call.ResultPreview = preview
		done := *call
		delete(c.open, key)
		c.order = append(c.order[:i], c.order[i+1:]...)
		return done, true
	}
	return ToolCall{}, false
}

// active returns copies of the open calls for one terminal, oldest first.
func (c *correlator) active(terminalID int) []ToolCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []ToolCall
	for _, key := range c.order {
		if call, ok := c.open[key]; ok && call.TerminalID == terminalID {
			out = append(out, *call)
		}
	}
	return out
}

// activeAll returns a snapshot of open calls across every terminal.
func (c *correlator) activeAll() map[int][]ToolCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[int][]ToolCall)
	for _, key := range c.order {
		if call, ok := c.open[key]; ok {
			out[call.TerminalID] = append(out[call.TerminalID], *call)
		}
	}
	return out
}

func (c *correlator) hasActive(terminalID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, call := range c.open {
		if call.TerminalID == terminalID {
			return true
		}
	}
	return false
}

// clear drops every open call for a terminal.
func (c *correlator) clear(terminalID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.order[:0]
	for _, key := range c.order {
		call, ok := c.open[key]
		if ok && call.TerminalID == terminalID {
			delete(c.open, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
}

// terminals returns the set of terminal ids with open calls.
func (c *correlator) terminals() map[int]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[int]struct{})
	for _, call := range c.open {
		out[call.TerminalID] = struct{}{}
	}
	return out
}
