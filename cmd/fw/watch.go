package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edkit/filewatch/internal/journal"
	"github.com/edkit/filewatch/internal/logsink"
	"github.com/edkit/filewatch/internal/notify"
	"github.com/edkit/filewatch/internal/roots"
	"github.com/edkit/filewatch/internal/stream"
	"github.com/edkit/filewatch/internal/ui"
	"github.com/edkit/filewatch/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [roots...]",
	Short: "Watch workspace roots and report file events",
	Long: `Watch one or more workspace roots for file changes matching a glob
pattern.

Roots come from the command line or from a YAML manifest (--manifest) that
can list roots under a "roots:" key. Events are printed to stdout; add
--journal to persist them to SQLite and --serve to stream them over
WebSocket.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSlice("pattern", []string{"**/*"}, "glob patterns to watch (repeatable)")
	watchCmd.Flags().Bool("ignore-create", false, "suppress create events")
	watchCmd.Flags().Bool("ignore-change", false, "suppress change events")
	watchCmd.Flags().Bool("ignore-delete", false, "suppress delete events")
	watchCmd.Flags().String("manifest", "", "YAML manifest listing workspace roots")
	watchCmd.Flags().String("journal", "", "SQLite journal path for persisting events")
	watchCmd.Flags().String("serve", "", "address for the WebSocket event feed, e.g. :7070")
	watchCmd.Flags().String("log-file", "", "rotating log file for watcher errors (default stderr)")
	watchCmd.Flags().Duration("window", 50*time.Millisecond, "batch coalescing window")

	_ = viper.BindPFlag("pattern", watchCmd.Flags().Lookup("pattern"))
	_ = viper.BindPFlag("manifest", watchCmd.Flags().Lookup("manifest"))
	_ = viper.BindPFlag("journal", watchCmd.Flags().Lookup("journal"))
	_ = viper.BindPFlag("serve", watchCmd.Flags().Lookup("serve"))
	_ = viper.BindPFlag("log_file", watchCmd.Flags().Lookup("log-file"))
	_ = viper.BindPFlag("window", watchCmd.Flags().Lookup("window"))
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logsink.Stderr()
	if logFile := viper.GetString("log_file"); logFile != "" {
		logger = logsink.Rotating(logFile)
	}

	tracker, err := buildTracker(args)
	if err != nil {
		return err
	}
	rootList := tracker.Roots()
	if len(rootList) == 0 {
		return fmt.Errorf("no workspace roots: pass them as arguments or via --manifest")
	}

	service := notify.NewLocalServiceWithConfig(&notify.LocalConfig{
		Window: viper.GetDuration("window"),
		Logger: logger,
	})

	manager := watch.NewManager(service, watch.NewRegistry(), &watch.Config{Logger: logger})
	defer manager.Dispose()
	manager.Attach(ctx, tracker)

	for _, root := range rootList {
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := manager.WaitForConnection(waitCtx, root)
		cancel()
		if err != nil {
			fmt.Printf("%s %s (no connection: %v)\n", ui.RenderWarn("⚠"), root, err)
			continue
		}
		fmt.Printf("%s watching %s\n", ui.RenderPass("✓"), root)
	}

	var db *journal.DB
	if path := viper.GetString("journal"); path != "" {
		db, err = journal.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer db.Close()
		fmt.Printf("%s journal: %s\n", ui.RenderAccent("▸"), path)
	}

	var feed *stream.Server
	if addr := viper.GetString("serve"); addr != "" {
		feed = stream.NewServer(&stream.Config{Addr: addr, Logger: logger})
		if err := feed.Start(); err != nil {
			return fmt.Errorf("failed to start event feed: %w", err)
		}
		defer func() { _ = feed.Stop() }()
		fmt.Printf("%s event feed: ws://%s/ws\n", ui.RenderAccent("▸"), feed.Addr())
	}

	ignoreCreate, _ := cmd.Flags().GetBool("ignore-create")
	ignoreChange, _ := cmd.Flags().GetBool("ignore-change")
	ignoreDelete, _ := cmd.Flags().GetBool("ignore-delete")

	for _, pattern := range viper.GetStringSlice("pattern") {
		w, err := manager.CreateWatcher(ctx, pattern, ignoreCreate, ignoreChange, ignoreDelete)
		if err != nil {
			return fmt.Errorf("failed to create watcher for %s: %w", pattern, err)
		}
		wireWatcher(w, db, feed, logger.Printf)
		fmt.Printf("%s pattern: %s\n", ui.RenderAccent("▸"), pattern)
	}

	<-ctx.Done()
	fmt.Printf("\n%s shutting down\n", ui.RenderDim("·"))
	return nil
}

// buildTracker picks the root source: explicit args win, then the manifest.
func buildTracker(args []string) (roots.Tracker, error) {
	if len(args) > 0 {
		return roots.Static(args...), nil
	}
	if manifest := viper.GetString("manifest"); manifest != "" {
		return roots.NewManifestTracker(manifest)
	}
	return roots.Static(), nil
}

// wireWatcher fans one watcher's streams out to stdout, the journal, and the
// event feed.
func wireWatcher(w *watch.Watcher, db *journal.DB, feed *stream.Server, logf func(string, ...interface{})) {
	emit := func(kind, path, oldPath string) {
		switch kind {
		case "create":
			fmt.Printf("%s %s\n", ui.RenderPass("+"), path)
		case "change":
			fmt.Printf("%s %s\n", ui.RenderAccent("~"), path)
		case "delete":
			fmt.Printf("%s %s\n", ui.RenderFail("-"), path)
		case "rename":
			fmt.Printf("%s %s %s %s\n", ui.RenderWarn(">"), oldPath, ui.RenderDim("->"), path)
		}
		if db != nil {
			if err := db.Record(journal.Event{Kind: kind, Path: path, OldPath: oldPath}); err != nil {
				logf("failed to journal %s %s: %v", kind, path, err)
			}
		}
		if feed != nil {
			feed.Broadcast(stream.Message{Kind: kind, Path: path, OldPath: oldPath})
		}
	}

	w.OnCreate().Subscribe(func(path string) { emit("create", path, "") })
	w.OnChange().Subscribe(func(path string) { emit("change", path, "") })
	w.OnDelete().Subscribe(func(path string) { emit("delete", path, "") })
	w.OnRename().Subscribe(func(ev watch.RenameEvent) { emit("rename", ev.New, ev.Old) })
}
