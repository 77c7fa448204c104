// Command timer-watch watches the running ClickUp timer from a terminal.
//
// Usage:
//
//	timer-watch <command> [flags]
//
// Commands:
//
//	watch    Poll the current time entry and print transitions
//	test     Check credentials and team id once
//	replay   Print events from a recording file
//
// Examples:
//
//	# Watch with a config file, token from the environment
//	CLICKUP_API_TOKEN=pk_... timer-watch watch -config timer-watch.yaml
//
//	# Reload configuration of a running watcher
//	kill -HUP <pid>
//
//	# Show only state changes of a recording
//	timer-watch replay -kind state session.twrec
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	timerwatch "github.com/st-keller/timer-watch"
	"github.com/st-keller/timer-watch/config"
	"github.com/st-keller/timer-watch/recorder"
	"github.com/st-keller/timer-watch/registry"
	"github.com/st-keller/timer-watch/standard"
	"github.com/st-keller/timer-watch/timeentry"
	"github.com/st-keller/timer-watch/transport"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `timer-watch - running timer watcher for ClickUp

Usage:
  timer-watch <command> [flags]

Commands:
  watch    Poll the current time entry and print transitions
  test     Check credentials and team id once
  replay   Print events from a recording file

Use "timer-watch <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "watch":
		runWatch(args)
	case "test":
		runTest(args)
	case "replay":
		runReplay(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// loadConfig runs Load -> ApplyEnv -> Validate -> Normalize.
// A missing file is allowed when the environment supplies the credentials.
func loadConfig(path string) (*config.Config, error) {
	cfg := &config.Config{}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("config load failed: %w", err)
		}
		cfg = loaded
	}

	config.ApplyEnv(cfg, os.LookupEnv)

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

// ============================================================================
// WATCH
// ============================================================================

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (token/team may come from the environment)")
	recordPath := fs.String("record", "", "Record all events to this CBOR file (overrides recording.path)")
	verbose := fs.Bool("verbose", false, "Mirror the log window (raw responses, parser decisions) to stderr")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	if *recordPath != "" {
		cfg.Recording.Path = *recordPath
	}

	proc := standard.DetectProcess("timer-watch", version)
	log.Printf("🚀 Starting timer-watch %s (%s)", version, proc.RunMode)

	// --------------------
	// Sinks
	// --------------------

	sinks := registry.New()

	if err := sinks.Register("console", newConsole(os.Stdout, os.Stderr)); err != nil {
		log.Fatalf("❌ %v", err)
	}

	logs := standard.NewRecentLogs(cfg.Logs.MaxEntries)
	logs.SetMirror(*verbose)
	if err := sinks.Register("recent-logs", logs); err != nil {
		log.Fatalf("❌ %v", err)
	}

	var rec *recorder.FileRecorder
	if cfg.Recording.Path != "" {
		rec, err = recorder.NewFileRecorder(cfg.Recording.Path)
		if err != nil {
			log.Fatalf("❌ Failed to open recording: %v", err)
		}
		defer rec.Close()
		if err := sinks.Register("recorder", rec); err != nil {
			log.Fatalf("❌ %v", err)
		}
		log.Printf("📼 Recording events to %s", cfg.Recording.Path)
	}

	// --------------------
	// Watcher
	// --------------------

	w, err := timerwatch.New(cfg.Engine(), sinks)
	if err != nil {
		log.Fatalf("❌ Failed to create watcher: %v", err)
	}
	if rec != nil {
		rec.SetSessionSource(w.SessionID)
	}

	if err := w.StartPolling(cfg.Session()); err != nil {
		log.Fatalf("❌ Failed to start polling: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(sig)

	for s := range sig {
		switch s {
		case syscall.SIGHUP:
			w, cfg = reload(w, cfg, *configPath, rec)

		case syscall.SIGUSR1:
			dumpStatus(os.Stderr, proc, w, sinks, logs)

		default:
			log.Printf("👋 %s received, shutting down", s)
			w.StopPolling()
			return
		}
	}
}

// reload applies a changed configuration by stopping and restarting polling.
// On a config error the current session keeps running untouched.
func reload(w *timerwatch.Watcher, current *config.Config, path string, rec *recorder.FileRecorder) (*timerwatch.Watcher, *config.Config) {
	next, err := loadConfig(path)
	if err != nil {
		log.Printf("⚠️  Reload ignored: %v", err)
		return w, current
	}
	// The recorder stays open on the old path
	next.Recording.Path = current.Recording.Path

	if next.Engine() != current.Engine() {
		nw, err := timerwatch.New(next.Engine(), w.Sink())
		if err != nil {
			log.Printf("⚠️  Reload ignored: %v", err)
			return w, current
		}
		w.StopPolling()
		w = nw
		if rec != nil {
			rec.SetSessionSource(w.SessionID)
		}
	}

	if err := w.StartPolling(next.Session()); err != nil {
		log.Printf("⚠️  Reload failed to start polling: %v", err)
		return w, next
	}
	log.Printf("🔄 Configuration reloaded (session: %s)", w.SessionID())
	return w, next
}

func dumpStatus(out io.Writer, proc *standard.ProcessInfo, w *timerwatch.Watcher, sinks *registry.Registry, logs *standard.RecentLogs) {
	status := map[string]interface{}{
		"process":      proc.GetData(),
		"polling":      w.IsPolling(),
		"session_id":   w.SessionID(),
		"connectivity": w.GetConnectivity().GetData(),
		"sinks":        sinks.GetData(),
		"recent_logs":  logs.GetData(),
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		log.Printf("⚠️  Failed to encode status: %v", err)
	}
}

// ============================================================================
// TEST
// ============================================================================

func runTest(args []string) {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (token/team may come from the environment)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	engine := cfg.Engine()
	httpClient, err := transport.BuildHTTP2Client(transport.Options{
		Timeout: engine.RequestTimeout,
		CAPath:  engine.CAPath,
	})
	if err != nil {
		log.Fatalf("❌ Failed to build HTTP client: %v", err)
	}
	defer httpClient.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), engine.RequestTimeout+time.Second)
	defer cancel()

	err = timeentry.TestConnection(ctx, timeentry.Config{
		BaseURL:    engine.BaseURL,
		Credential: cfg.ClickUp.APIToken,
		AccountID:  cfg.ClickUp.TeamID,
		HTTP:       httpClient,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Connection successful")
}

// ============================================================================
// REPLAY
// ============================================================================

func runReplay(args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `timer-watch replay - Print events from a recording file

Usage:
  timer-watch replay [flags] <file.twrec>

Flags:
`)
		fs.PrintDefaults()
	}
	session := fs.String("session", "", "Only events of this session id")
	kind := fs.String("kind", "", "Only events of this kind (state, error, log)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: recording file path required")
		fs.Usage()
		os.Exit(1)
	}

	filter := recorder.Filter{SessionID: *session}
	if *kind != "" {
		k, err := parseKind(*kind)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		filter.Kind = &k
	}

	r, err := recorder.NewFilteredReader(fs.Arg(0), filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	for {
		ev, err := r.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(formatEvent(ev))
	}
}

func parseKind(s string) (recorder.Kind, error) {
	switch strings.ToLower(s) {
	case "state":
		return recorder.KindState, nil
	case "error":
		return recorder.KindError, nil
	case "log":
		return recorder.KindLog, nil
	default:
		return 0, fmt.Errorf("unknown kind %q (want state, error or log)", s)
	}
}

func formatEvent(ev recorder.Event) string {
	head := fmt.Sprintf("%s %-5s %s", ev.Timestamp.Format(time.RFC3339Nano), ev.Kind, shortID(ev.SessionID))
	if ev.Kind == recorder.KindState && ev.State != nil {
		return head + " " + describe(ev.State.Snapshot(), ev.State.ObservedAt)
	}
	return head + " " + ev.Message
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
