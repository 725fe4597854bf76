package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelator_StartComplete(t *testing.T) {
	c := newCorrelator()
	c.start(1, "Read", "main.go", 100)

	assert.True(t, c.hasActive(1))
	assert.False(t, c.hasActive(2))

	call, ok := c.complete(1, "Read", 250, true, "120 lines")
	require.True(t, ok)
	assert.Equal(t, "Read", call.Name)
	assert.Equal(t, "main.go", call.Input)
	assert.True(t, call.Success)
	assert.Equal(t, int64(150), call.DurationMs())
	assert.Equal(t, "120 lines", call.ResultPreview)

	assert.False(t, c.hasActive(1), "completed call must be removed")
}

func TestCorrelator_UnmatchedEndDropped(t *testing.T) {
	c := newCorrelator()
	_, ok := c.complete(1, "Read", 100, true, "")
	assert.False(t, ok)

	// Wrong terminal and wrong name both miss.
	c.start(1, "Read", "", 100)
	_, ok = c.complete(2, "Read", 200, true, "")
	assert.False(t, ok)
	_, ok = c.complete(1, "Write", 200, true, "")
	assert.False(t, ok)
	assert.True(t, c.hasActive(1))
}

func TestCorrelator_FIFOSameName(t *testing.T) {
	c := newCorrelator()
	c.start(1, "Bash", "first", 100)
	c.start(1, "Bash", "second", 200)

	call, ok := c.complete(1, "Bash", 300, true, "")
	require.True(t, ok)
	assert.Equal(t, "first", call.Input, "oldest open call completes first")

	call, ok = c.complete(1, "Bash", 400, false, "")
	require.True(t, ok)
	assert.Equal(t, "second", call.Input)
	assert.False(t, c.hasActive(1))
}

func TestCorrelator_SameMillisecondStarts(t *testing.T) {
	c := newCorrelator()
	c.start(1, "Grep", "a", 100)
	c.start(1, "Grep", "b", 100)

	assert.Len(t, c.active(1), 2, "same-ms starts must stay distinct")
	_, ok := c.complete(1, "Grep", 150, true, "")
	require.True(t, ok)
	assert.Len(t, c.active(1), 1)
}

func TestCorrelator_ActiveSnapshots(t *testing.T) {
	c := newCorrelator()
	c.start(1, "Read", "", 100)
	c.start(2, "Write", "", 110)
	c.start(1, "Bash", "", 120)

	active := c.active(1)
	require.Len(t, active, 2)
	assert.Equal(t, "Read", active[0].Name, "oldest first")
	assert.Equal(t, "Bash", active[1].Name)

	all := c.activeAll()
	assert.Len(t, all[1], 2)
	assert.Len(t, all[2], 1)

	terms := c.terminals()
	assert.Contains(t, terms, 1)
	assert.Contains(t, terms, 2)
}

func TestCorrelator_Clear(t *testing.T) {
	c := newCorrelator()
	c.start(1, "Read", "", 100)
	c.start(2, "Read", "", 100)

	c.clear(1)
	assert.False(t, c.hasActive(1))
	assert.True(t, c.hasActive(2), "other terminals untouched")

	c.clear(1) // idempotent
	assert.False(t, c.hasActive(1))
}
