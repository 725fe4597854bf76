package stream

import (
	"log/slog"
	"time"

	"github.com/asheshgoplani/termlens/internal/logging"
)

var reaperLog = logging.ForComponent(logging.CompReaper)

// LiveIDsProvider reports which terminal ids the owning process still
// considers alive. Consulted only by the periodic cleanup sweep.
type LiveIDsProvider func() []int

// StartPeriodicCleanup installs a recurring sweep that removes all state
// for terminals absent from the provider's live set. A safety net
// against leaks from terminals that vanished without a clean close
// signal; event delivery does not depend on it. Calling it again
// replaces the previous sweep.
func (a *Analyzer) StartPeriodicCleanup(provider LiveIDsProvider) {
	if provider == nil {
		return
	}

	a.reapMu.Lock()
	defer a.reapMu.Unlock()
	a.stopReaperLocked()

	stop := make(chan struct{})
	a.reapStop = stop
	a.reapWG.Add(1)

	go func() {
		defer a.reapWG.Done()
		ticker := time.NewTicker(a.reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.CleanupStaleEntries(provider())
			case <-stop:
				return
			}
		}
	}()
}

// StopPeriodicCleanup cancels the sweep and drops the provider
// reference. Safe to call when no sweep is running.
func (a *Analyzer) StopPeriodicCleanup() {
	a.reapMu.Lock()
	defer a.reapMu.Unlock()
	a.stopReaperLocked()
}

func (a *Analyzer) stopReaperLocked() {
	if a.reapStop == nil {
		return
	}
	close(a.reapStop)
	a.reapStop = nil
	a.reapWG.Wait()
}

// CleanupStaleEntries removes metrics, buffer, thinking flag and open
// tool calls for every tracked terminal not present in live. Terminals
// in the live set are untouched.
func (a *Analyzer) CleanupStaleEntries(live []int) {
	alive := make(map[int]struct{}, len(live))
	for _, id := range live {
		alive[id] = struct{}{}
	}

	tracked := a.state.terminals()
	for id := range a.calls.terminals() {
		tracked[id] = struct{}{}
	}

	reaped := 0
	for id := range tracked {
		if _, ok := alive[id]; ok {
			continue
		}
		a.state.clearTerminal(id)
		a.calls.clear(id)
		reaped++
	}

	if reaped > 0 {
		reaperLog.Debug("stale_terminals_reaped",
			slog.Int("count", reaped),
			slog.Int("live", len(live)))
	}
}
