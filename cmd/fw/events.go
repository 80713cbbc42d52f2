package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edkit/filewatch/internal/journal"
	"github.com/edkit/filewatch/internal/ui"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print recent events from a journal",
	Long: `Print the most recent events recorded by 'fw watch --journal'.

Events are listed newest first.`,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().String("journal", "", "SQLite journal path (required)")
	eventsCmd.Flags().Int("limit", 50, "maximum number of events to print")
	_ = eventsCmd.MarkFlagRequired("journal")
}

func runEvents(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("journal")
	limit, _ := cmd.Flags().GetInt("limit")

	db, err := journal.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer db.Close()

	events, err := db.Recent(limit)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if len(events) == 0 {
		fmt.Printf("%s no events recorded\n", ui.RenderDim("·"))
		return nil
	}

	for _, e := range events {
		stamp := ui.RenderDim(e.ObservedAt.Format("2006-01-02 15:04:05.000"))
		switch e.Kind {
		case "rename":
			fmt.Printf("%s %-7s %s -> %s\n", stamp, e.Kind, e.OldPath, e.Path)
		default:
			fmt.Printf("%s %-7s %s\n", stamp, e.Kind, e.Path)
		}
	}

	total, err := db.Count()
	if err == nil && total > len(events) {
		fmt.Printf("%s showing %d of %d events\n", ui.RenderDim("·"), len(events), total)
	}
	return nil
}
