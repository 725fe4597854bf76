package statedb

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/asheshgoplani/termlens/internal/logging"
	"github.com/asheshgoplani/termlens/internal/stream"
)

var sinkLog = logging.ForComponent(logging.CompStateDB)

// Sink is an asynchronous stream.UsageSink backed by a StateDB. Records
// are queued and written by a background goroutine so the analyzer's
// fire-and-forget handoff returns immediately even when SQLite is slow.
// Writes are rate limited; when the queue fills, the oldest behavior is
// to drop the new record with a warning rather than block ingestion.
type Sink struct {
	db      *StateDB
	queue   chan stream.ToolUsageRecord
	limiter *rate.Limiter

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewSink starts a sink writing to db. queueSize <= 0 selects 256;
// writesPerSec <= 0 selects 50.
func NewSink(db *StateDB, queueSize int, writesPerSec float64) *Sink {
	if queueSize <= 0 {
		queueSize = 256
	}
	if writesPerSec <= 0 {
		writesPerSec = 50
	}
	s := &Sink{
		db:      db,
		queue:   make(chan stream.ToolUsageRecord, queueSize),
		limiter: rate.NewLimiter(rate.Limit(writesPerSec), 10),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s
}

// SaveToolUsage implements stream.UsageSink. Never blocks: a full queue
// drops the record with a warning.
func (s *Sink) SaveToolUsage(rec stream.ToolUsageRecord) error {
	select {
	case s.queue <- rec:
		return nil
	default:
		sinkLog.Warn("usage_queue_full",
			slog.String("tool", rec.ToolName))
		return nil
	}
}

func (s *Sink) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case rec := <-s.queue:
			s.write(rec)
		case <-s.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case rec := <-s.queue:
					s.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) write(rec stream.ToolUsageRecord) {
	_ = s.limiter.Wait(context.Background())
	row := UsageRow{
		SessionID:     rec.SessionID,
		ToolName:      rec.ToolName,
		Input:         rec.Input,
		ResultPreview: rec.ResultPreview,
		Success:       rec.Success,
		DurationMs:    rec.DurationMs,
		CreatedAt:     time.Now(),
	}
	if err := s.db.InsertUsage(row); err != nil {
		sinkLog.Warn("usage_write_failed",
			slog.String("tool", rec.ToolName),
			slog.String("error", err.Error()))
	}
}

// Close drains the queue and stops the writer. The underlying StateDB is
// not closed; the caller owns it.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}
