package stream

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// DefaultBufferCap is the per-terminal output buffer ceiling.
const DefaultBufferCap = 50 * 1024

// TerminalMetrics accumulates per-terminal counters. Created lazily on
// the first chunk, updated on every chunk, removed on clear or reap.
// Counters are monotonic except EstimatedTokens and LastActivityMs,
// which are last-write-wins.
type TerminalMetrics struct {
	TerminalID      int    `json:"terminal_id"`
	SessionID       string `json:"session_id,omitempty"`
	ToolCalls       int    `json:"tool_calls"`
	ThinkingBlocks  int    `json:"thinking_blocks"`
	Errors          int    `json:"errors"`
	Warnings        int    `json:"warnings"`
	OutputBytes     int64  `json:"output_bytes"`
	StartTimeMs     int64  `json:"start_time_ms"`
	LastActivityMs  int64  `json:"last_activity_ms"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

// stateStore holds per-terminal buffers, metrics and thinking flags. All
// operations are synchronous map/string work; nothing here blocks.
type stateStore struct {
	mu        sync.Mutex
	bufferCap int
	buffers   map[int]string
	metrics   map[int]*TerminalMetrics
	thinking  map[int]struct{}
}

func newStateStore(bufferCap int) *stateStore {
	if bufferCap <= 0 {
		bufferCap = DefaultBufferCap
	}
	return &stateStore{
		bufferCap: bufferCap,
		buffers:   make(map[int]string),
		metrics:   make(map[int]*TerminalMetrics),
		thinking:  make(map[int]struct{}),
	}
}

// appendOutput appends a chunk to the terminal's buffer, keeping only the
// trailing bufferCap bytes of the full historical concatenation.
func (s *stateStore) appendOutput(terminalID int, chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[terminalID] + chunk
	if len(buf) > s.bufferCap {
		buf = buf[len(buf)-s.bufferCap:]
	}
	s.buffers[terminalID] = buf
}

func (s *stateStore) buffer(terminalID int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffers[terminalID]
}

func (s *stateStore) clearBuffer(terminalID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, terminalID)
}

// searchBuffer returns the lines of the terminal's buffer matching the
// given regex.
func (s *stateStore) searchBuffer(terminalID int, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile search pattern: %w", err)
	}

	s.mu.Lock()
	buf := s.buffers[terminalID]
	s.mu.Unlock()

	var out []string
	for _, line := range strings.Split(buf, "\n") {
		if re.MatchString(line) {
			out = append(out, line)
		}
	}
	return out, nil
}

// touch lazily creates the terminal's metrics entry and applies the
// per-chunk updates under one lock acquisition.
func (s *stateStore) touch(terminalID int, sessionID string, chunkLen int, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metrics[terminalID]
	if !ok {
		m = &TerminalMetrics{TerminalID: terminalID, StartTimeMs: nowMs}
		s.metrics[terminalID] = m
	}
	if sessionID != "" {
		m.SessionID = sessionID
	}
	m.OutputBytes += int64(chunkLen)
	m.LastActivityMs = nowMs
}

// update mutates the terminal's metrics entry if it exists.
func (s *stateStore) update(terminalID int, fn func(*TerminalMetrics)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.metrics[terminalID]; ok {
		fn(m)
	}
}

// getMetrics returns a copy of the terminal's metrics.
func (s *stateStore) getMetrics(terminalID int) (TerminalMetrics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metrics[terminalID]
	if !ok {
		return TerminalMetrics{}, false
	}
	return *m, true
}

// allMetrics returns copies of every tracked terminal's metrics.
func (s *stateStore) allMetrics() []TerminalMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TerminalMetrics, 0, len(s.metrics))
	for _, m := range s.metrics {
		out = append(out, *m)
	}
	return out
}

// setThinking adds the terminal to the thinking set. Returns true only
// when the call changed the set, so the caller can count distinct spans
// rather than every match.
func (s *stateStore) setThinking(terminalID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.thinking[terminalID]; ok {
		return false
	}
	s.thinking[terminalID] = struct{}{}
	return true
}

func (s *stateStore) clearThinking(terminalID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.thinking, terminalID)
}

func (s *stateStore) isThinking(terminalID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.thinking[terminalID]
	return ok
}

// clearTerminal drops every piece of state for the terminal. Idempotent.
func (s *stateStore) clearTerminal(terminalID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, terminalID)
	delete(s.metrics, terminalID)
	delete(s.thinking, terminalID)
}

// trackedCount returns the number of terminals with any state.
func (s *stateStore) trackedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.terminalSetLocked())
}

// terminals returns the set of terminal ids with any state.
func (s *stateStore) terminals() map[int]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalSetLocked()
}

func (s *stateStore) terminalSetLocked() map[int]struct{} {
	out := make(map[int]struct{}, len(s.metrics))
	for id := range s.metrics {
		out[id] = struct{}{}
	}
	for id := range s.buffers {
		out[id] = struct{}{}
	}
	for id := range s.thinking {
		out[id] = struct{}{}
	}
	return out
}
