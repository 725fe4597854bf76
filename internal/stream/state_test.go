package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore_BufferCap(t *testing.T) {
	s := newStateStore(100)

	// Build the full historical concatenation alongside the store.
	var full strings.Builder
	chunks := []string{
		strings.Repeat("a", 40),
		strings.Repeat("b", 40),
		strings.Repeat("c", 40),
		"tail-marker",
	}
	for _, chunk := range chunks {
		s.appendOutput(7, chunk)
		full.WriteString(chunk)

		buf := s.buffer(7)
		require.LessOrEqual(t, len(buf), 100, "buffer must never exceed cap")

		history := full.String()
		want := history
		if len(history) > 100 {
			want = history[len(history)-100:]
		}
		assert.Equal(t, want, buf, "buffer must equal trailing cap bytes of history")
	}

	assert.True(t, strings.HasSuffix(s.buffer(7), "tail-marker"))
}

func TestStateStore_BufferCap_OversizeChunk(t *testing.T) {
	s := newStateStore(10)
	s.appendOutput(1, "0123456789abcdef")
	assert.Equal(t, "6789abcdef", s.buffer(1))
}

func TestStateStore_SearchBuffer(t *testing.T) {
	s := newStateStore(0)
	s.appendOutput(1, "alpha\nbeta\ngamma\nbeta again\n")

	lines, err := s.searchBuffer(1, `^beta`)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta", "beta again"}, lines)

	_, err = s.searchBuffer(1, `(unclosed`)
	assert.Error(t, err)
}

func TestStateStore_MetricsLazyCreate(t *testing.T) {
	s := newStateStore(0)

	_, ok := s.getMetrics(3)
	assert.False(t, ok, "no metrics before first chunk")

	s.touch(3, "sess-1", 128, 1000)
	m, ok := s.getMetrics(3)
	require.True(t, ok)
	assert.Equal(t, 3, m.TerminalID)
	assert.Equal(t, "sess-1", m.SessionID)
	assert.Equal(t, int64(128), m.OutputBytes)
	assert.Equal(t, int64(1000), m.StartTimeMs)
	assert.Equal(t, int64(1000), m.LastActivityMs)

	// Second chunk accumulates bytes, keeps start time, advances activity.
	s.touch(3, "", 72, 2000)
	m, _ = s.getMetrics(3)
	assert.Equal(t, "sess-1", m.SessionID, "empty session id must not clobber")
	assert.Equal(t, int64(200), m.OutputBytes)
	assert.Equal(t, int64(1000), m.StartTimeMs)
	assert.Equal(t, int64(2000), m.LastActivityMs)
}

func TestStateStore_ThinkingIdempotent(t *testing.T) {
	s := newStateStore(0)

	assert.False(t, s.isThinking(1))
	assert.True(t, s.setThinking(1), "first set changes the set")
	assert.False(t, s.setThinking(1), "second set is a no-op")
	assert.True(t, s.isThinking(1))

	s.clearThinking(1)
	assert.False(t, s.isThinking(1))
	s.clearThinking(1) // idempotent
}

func TestStateStore_ClearTerminal(t *testing.T) {
	s := newStateStore(0)
	s.appendOutput(5, "data")
	s.touch(5, "", 4, 1)
	s.setThinking(5)

	s.clearTerminal(5)
	assert.Empty(t, s.buffer(5))
	_, ok := s.getMetrics(5)
	assert.False(t, ok)
	assert.False(t, s.isThinking(5))
	assert.Equal(t, 0, s.trackedCount())

	// Twice in a row is fine.
	s.clearTerminal(5)
	assert.Equal(t, 0, s.trackedCount())
}

func TestStateStore_TrackedCount(t *testing.T) {
	s := newStateStore(0)
	s.appendOutput(1, "x")
	s.touch(2, "", 1, 1)
	s.setThinking(3)
	assert.Equal(t, 3, s.trackedCount())
}
