package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/asheshgoplani/termlens/internal/logging"
)

var streamLog = logging.ForComponent(logging.CompStream)

// Config tunes a new Analyzer. Zero values select defaults: a registry
// preloaded with DefaultPatterns, the heuristic classifier, a fresh bus,
// the standard buffer cap, a 30s reap interval, and no persistence sink.
type Config struct {
	BufferCap    int
	ReapInterval time.Duration
	Registry     *Registry
	Classifier   Classifier
	Bus          *Bus
	Sink         UsageSink
}

// Analyzer ingests raw terminal output chunks and derives structured
// events via pattern matching, while maintaining bounded per-terminal
// state. All state is in-memory; nothing survives a process restart.
type Analyzer struct {
	registry   *Registry
	classifier Classifier
	bus        *Bus
	sink       UsageSink
	state      *stateStore
	calls      *correlator

	reapInterval time.Duration
	reapMu       sync.Mutex
	reapStop     chan struct{}
	reapWG       sync.WaitGroup
}

// New creates an Analyzer from cfg.
func New(cfg Config) *Analyzer {
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = NewHeuristicClassifier()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(DefaultPatterns(classifier)...)
	}
	bus := cfg.Bus
	if bus == nil {
		bus = NewBus()
	}
	interval := cfg.ReapInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Analyzer{
		registry:     registry,
		classifier:   classifier,
		bus:          bus,
		sink:         cfg.Sink,
		state:        newStateStore(cfg.BufferCap),
		calls:        newCorrelator(),
		reapInterval: interval,
	}
}

// Bus returns the analyzer's event bus for subscription.
func (a *Analyzer) Bus() *Bus { return a.bus }

// Registry returns the analyzer's pattern registry.
func (a *Analyzer) Registry() *Registry { return a.registry }

// Analyze ingests one chunk for a terminal and returns the structured
// events recognized in it. The raw chunk is always mirrored on the
// stream:output channel, whether or not anything matched.
func (a *Analyzer) Analyze(terminalID int, chunk string, sessionID string) []Event {
	nowMs := time.Now().UnixMilli()

	a.state.appendOutput(terminalID, chunk)
	a.state.touch(terminalID, sessionID, len(chunk), nowMs)

	a.bus.Publish(ChannelRawOutput, Event{
		Kind:        KindRawOutput,
		TerminalID:  terminalID,
		TimestampMs: nowMs,
		Payload:     Payload{Raw: chunk},
	})

	// Strip once, lazily: only when some registered pattern wants the
	// stripped copy.
	stripped := ""
	strippedReady := false

	var events []Event
	for _, def := range a.registry.Snapshot() {
		subject := chunk
		if def.MatchAgainst == MatchStripped {
			if !strippedReady {
				stripped = StripANSI(chunk)
				strippedReady = true
			}
			subject = stripped
		}

		for _, m := range def.Regexp.FindAllStringSubmatch(subject, -1) {
			payload, ok := a.extract(def, m)
			if !ok {
				continue
			}
			ev := Event{
				Kind:        def.Kind,
				TerminalID:  terminalID,
				TimestampMs: nowMs,
				Payload:     payload,
			}
			if !a.processEvent(&ev) {
				continue
			}
			events = append(events, ev)
			a.bus.Publish(ev.Kind.BusChannel(), ev)
		}
	}

	logging.Aggregate(logging.CompStream, "chunks_analyzed",
		slog.Int("terminal", terminalID),
		slog.Int("events", len(events)))

	return events
}

// extract runs the pattern's extractor inside a recover guard so one
// malformed extractor cannot suppress the remaining patterns for the
// chunk.
func (a *Analyzer) extract(def PatternDefinition, m []string) (payload Payload, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			streamLog.Warn("extractor_panic",
				slog.String("pattern", def.Name),
				slog.Any("panic", r))
			payload, ok = Payload{}, false
		}
	}()

	if def.Extract == nil {
		return Payload{}, true
	}
	return def.Extract(m)
}

// processEvent applies the stateful handling for an event before it is
// published. Returns false when the event should be dropped (currently
// only a tool_end with no matching open call).
func (a *Analyzer) processEvent(ev *Event) bool {
	switch ev.Kind {
	case KindToolStart:
		a.calls.start(ev.TerminalID, ev.Payload.ToolName, ev.Payload.Input, ev.TimestampMs)
		a.state.update(ev.TerminalID, func(m *TerminalMetrics) { m.ToolCalls++ })

	case KindToolEnd:
		call, ok := a.calls.complete(ev.TerminalID, ev.Payload.ToolName, ev.TimestampMs,
			ev.Payload.Success, ev.Payload.ResultPreview)
		if !ok {
			// End with no open start: output may have been truncated
			// before we attached. Dropped without error.
			return false
		}
		ev.Payload.Input = call.Input
		a.persist(ev.TerminalID, call)

	case KindThinkingStart:
		if a.state.setThinking(ev.TerminalID) {
			a.state.update(ev.TerminalID, func(m *TerminalMetrics) { m.ThinkingBlocks++ })
		}

	case KindThinkingEnd:
		a.state.clearThinking(ev.TerminalID)

	case KindError:
		a.state.update(ev.TerminalID, func(m *TerminalMetrics) { m.Errors++ })

	case KindWarning:
		a.state.update(ev.TerminalID, func(m *TerminalMetrics) { m.Warnings++ })

	case KindTokensUpdate:
		a.state.update(ev.TerminalID, func(m *TerminalMetrics) {
			m.EstimatedTokens = ev.Payload.Tokens
		})
	}
	return true
}

// persist hands a completed call to the sink off the ingestion path. A
// slow or failing sink must never stall chunk processing.
func (a *Analyzer) persist(terminalID int, call ToolCall) {
	if a.sink == nil {
		return
	}
	metrics, _ := a.state.getMetrics(terminalID)
	rec := ToolUsageRecord{
		SessionID:     metrics.SessionID,
		ToolName:      call.Name,
		Input:         call.Input,
		ResultPreview: call.ResultPreview,
		Success:       call.Success,
		DurationMs:    call.DurationMs(),
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				streamLog.Error("sink_panic", slog.Any("panic", r))
			}
		}()
		if err := a.sink.SaveToolUsage(rec); err != nil {
			streamLog.Warn("tool_usage_persist_failed",
				slog.String("tool", rec.ToolName),
				slog.String("error", err.Error()))
		}
	}()
}

// AddCustomPattern registers a pattern, effective on the next Analyze
// call on any terminal.
func (a *Analyzer) AddCustomPattern(def PatternDefinition) {
	a.registry.Add(def)
}

// RemoveCustomPattern removes every pattern with the given name.
func (a *Analyzer) RemoveCustomPattern(name string) int {
	return a.registry.Remove(name)
}

// GetBuffer returns the terminal's retained output tail.
func (a *Analyzer) GetBuffer(terminalID int) string {
	return a.state.buffer(terminalID)
}

// ClearBuffer drops the terminal's retained output.
func (a *Analyzer) ClearBuffer(terminalID int) {
	a.state.clearBuffer(terminalID)
}

// SearchBuffer returns the buffer lines matching a regex pattern.
func (a *Analyzer) SearchBuffer(terminalID int, pattern string) ([]string, error) {
	return a.state.searchBuffer(terminalID, pattern)
}

// GetMetrics returns a copy of the terminal's metrics. When no token
// count has been observed yet, EstimatedTokens falls back to a coarse
// bytes/4 estimate.
func (a *Analyzer) GetMetrics(terminalID int) (TerminalMetrics, bool) {
	m, ok := a.state.getMetrics(terminalID)
	if !ok {
		return TerminalMetrics{}, false
	}
	if m.EstimatedTokens == 0 {
		m.EstimatedTokens = int(m.OutputBytes / 4)
	}
	return m, true
}

// GetAllMetrics returns metrics for every tracked terminal.
func (a *Analyzer) GetAllMetrics() []TerminalMetrics {
	out := a.state.allMetrics()
	for i := range out {
		if out[i].EstimatedTokens == 0 {
			out[i].EstimatedTokens = int(out[i].OutputBytes / 4)
		}
	}
	return out
}

// IsThinking reports whether the terminal is inside a thinking span.
func (a *Analyzer) IsThinking(terminalID int) bool {
	return a.state.isThinking(terminalID)
}

// GetActiveToolCalls returns the open tool calls for one terminal,
// oldest first.
func (a *Analyzer) GetActiveToolCalls(terminalID int) []ToolCall {
	return a.calls.active(terminalID)
}

// GetAllActiveToolCalls returns a snapshot of open calls per terminal.
func (a *Analyzer) GetAllActiveToolCalls() map[int][]ToolCall {
	return a.calls.activeAll()
}

// HasActiveToolCalls reports whether the terminal has any open call.
func (a *Analyzer) HasActiveToolCalls(terminalID int) bool {
	return a.calls.hasActive(terminalID)
}

// GetTrackedTerminalCount returns the number of terminals with any
// tracked state.
func (a *Analyzer) GetTrackedTerminalCount() int {
	tracked := a.state.terminals()
	for id := range a.calls.terminals() {
		tracked[id] = struct{}{}
	}
	return len(tracked)
}

// ClearTerminal removes every piece of state for a terminal, immediately
// and unconditionally. Safe to call for unknown terminals and safe to
// call twice.
func (a *Analyzer) ClearTerminal(terminalID int) {
	a.state.clearTerminal(terminalID)
	a.calls.clear(terminalID)
}

// Shutdown stops the reaper, clears all terminal state and detaches
// every bus subscriber.
func (a *Analyzer) Shutdown() {
	a.StopPeriodicCleanup()
	for id := range a.state.terminals() {
		a.state.clearTerminal(id)
	}
	for id := range a.calls.terminals() {
		a.calls.clear(id)
	}
	a.bus.Close()
}
