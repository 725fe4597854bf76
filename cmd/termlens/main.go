// termlens wraps a CLI coding agent in a pseudo-terminal, mirrors its
// output, and derives structured events (tool calls, thinking spans,
// errors, cost/token updates, sub-agent activity) from the raw stream.
// Completed tool calls are persisted to SQLite and all events are
// available over a WebSocket feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/termlens/internal/config"
	"github.com/asheshgoplani/termlens/internal/logging"
	"github.com/asheshgoplani/termlens/internal/statedb"
	"github.com/asheshgoplani/termlens/internal/stream"
	"github.com/asheshgoplani/termlens/internal/web"
)

const Version = "0.3.1"

// The wrapped command is the only terminal this process supervises.
const localTerminalID = 1

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("termlens", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to termlens.toml (default: ~/.termlens/termlens.toml)")
	dbPath := fs.String("db", "", "tool-usage database path (default: ~/.termlens/usage.db)")
	listen := fs.String("listen", "", "WebSocket event feed address (overrides config)")
	logDir := fs.String("log-dir", "", "log directory (overrides config)")
	debug := fs.Bool("debug", false, "enable debug logging")
	version := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *version {
		fmt.Println("termlens " + Version)
		return 0
	}
	cmdArgs := fs.Args()
	if len(cmdArgs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: termlens [flags] -- command [args...]")
		return 2
	}

	baseDir, err := config.DefaultDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "termlens: %v\n", err)
		return 1
	}
	if *configPath == "" {
		*configPath = filepath.Join(baseDir, config.ConfigFileName)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "termlens: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.Web.Listen = *listen
	}
	if *logDir != "" {
		cfg.Logging.Dir = *logDir
	}
	if *dbPath == "" {
		if cfg.Database.Path != "" {
			*dbPath = cfg.Database.Path
		} else {
			*dbPath = filepath.Join(baseDir, "usage.db")
		}
	}

	logging.Init(logging.Config{
		LogDir: cfg.Logging.Dir,
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Debug:  cfg.Logging.Debug || *debug,
	})
	defer logging.Shutdown()

	// On a crash, dump recent log history next to the config dir so the
	// context survives even when file logging is off.
	defer func() {
		if r := recover(); r != nil {
			_ = logging.DumpRingBuffer(filepath.Join(baseDir, "crash.log"))
			panic(r)
		}
	}()

	db, err := statedb.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "termlens: %v\n", err)
		return 1
	}
	defer db.Close()

	sink := statedb.NewSink(db, 0, 0)
	defer sink.Close()

	classifier := stream.NewHeuristicClassifier(cfg.Analyzer.ReservedNames...)
	registry := stream.NewRegistry(stream.DefaultPatterns(classifier)...)
	analyzer := stream.New(stream.Config{
		BufferCap:    cfg.BufferCap(),
		ReapInterval: cfg.ReapInterval(),
		Registry:     registry,
		Classifier:   classifier,
		Sink:         sink,
	})
	defer analyzer.Shutdown()

	mainLog := logging.ForComponent(logging.CompPTY)

	// Hot-reload custom patterns when the config file changes. Losing the
	// watch degrades to load-time patterns only, so warn and carry on.
	watcher, err := config.NewWatcher(*configPath, cfg, registry)
	if err != nil {
		mainLog.Warn("config_watch_unavailable", slog.String("error", err.Error()))
	} else if err := watcher.Start(); err != nil {
		mainLog.Warn("config_watch_unavailable", slog.String("error", err.Error()))
		watcher.Stop()
	} else {
		defer watcher.Stop()
	}

	// The wrapped command's terminal stays alive until its process
	// exits; once we stop feeding chunks the reaper may drop its state.
	analyzer.StartPeriodicCleanup(func() []int { return []int{localTerminalID} })

	sessionID := uuid.NewString()
	mainLog.Info("session_start",
		slog.String("session", sessionID),
		slog.String("command", cmdArgs[0]))

	var g errgroup.Group
	var feed *web.FeedServer
	if cfg.Web.Listen != "" {
		feed = web.NewFeedServer(cfg.Web.Listen, cfg.Web.Token, analyzer.Bus())
		g.Go(feed.Start)
	}

	exitCode := supervise(analyzer, sessionID, cmdArgs)

	if feed != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = feed.Stop(ctx)
		cancel()
	}
	if err := g.Wait(); err != nil {
		mainLog.Warn("event_feed_error", slog.String("error", err.Error()))
	}

	metrics, ok := analyzer.GetMetrics(localTerminalID)
	if ok {
		mainLog.Info("session_end",
			slog.String("session", sessionID),
			slog.Int("tool_calls", metrics.ToolCalls),
			slog.Int("errors", metrics.Errors),
			slog.Int64("output_bytes", metrics.OutputBytes))
	}
	return exitCode
}

// supervise runs the command under a PTY, mirroring output to stdout and
// feeding every chunk through the analyzer.
func supervise(analyzer *stream.Analyzer, sessionID string, cmdArgs []string) int {
	wrap := newPTYWrap(cmdArgs[0], cmdArgs[1:]...)
	output, err := wrap.start()
	if err != nil {
		fmt.Fprintf(os.Stderr, "termlens: start %s: %v\n", cmdArgs[0], err)
		return 1
	}

	buf := make([]byte, 4096)
	for {
		n, err := output.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			_, _ = os.Stdout.WriteString(chunk)
			analyzer.Analyze(localTerminalID, chunk, sessionID)
		}
		if err != nil {
			// EOF or PTY closed: the command is exiting.
			break
		}
	}

	return wrap.wait()
}
