package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestAggregatorBatchesCounts(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&out, nil))
	agg := NewAggregator(logger, 300)

	for i := 0; i < 5; i++ {
		agg.Record("stream", "chunks_analyzed", slog.Int("terminal", 1))
	}
	agg.Record("stream", "bytes_ingested")

	if out.Len() != 0 {
		t.Fatalf("expected no output before flush, got %q", out.String())
	}

	agg.flush()
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 summary lines, got %d: %q", len(lines), out.String())
	}
	joined := out.String()
	if !strings.Contains(joined, `"count":5`) {
		t.Errorf("missing aggregated count of 5 in %q", joined)
	}
	if !strings.Contains(joined, `"event":"chunks_analyzed"`) {
		t.Errorf("missing event name in %q", joined)
	}
}

func TestAggregatorFlushResetsEntries(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&out, nil))
	agg := NewAggregator(logger, 300)

	agg.Record("stream", "chunks_analyzed")
	agg.flush()
	out.Reset()

	agg.flush()
	if out.Len() != 0 {
		t.Errorf("second flush should emit nothing, got %q", out.String())
	}
}

func TestAggregatorStopFlushesRemainder(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&out, nil))
	agg := NewAggregator(logger, 300)
	agg.Start()

	agg.Record("reaper", "stale_terminals_reaped")
	agg.Stop()

	if !strings.Contains(out.String(), "stale_terminals_reaped") {
		t.Errorf("Stop should flush pending entries, got %q", out.String())
	}
}

func TestAggregatorNilLoggerDrops(t *testing.T) {
	agg := NewAggregator(nil, 300)
	agg.Record("stream", "chunks_analyzed")
	agg.flush() // must not panic
}
