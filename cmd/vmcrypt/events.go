package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sigreer/vmcrypt/internal/journal"
	"github.com/sigreer/vmcrypt/internal/version"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent registry and consolidation events",
	RunE:   runEvents,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vmcrypt %s (%s)\n", version.Version, version.SchemaNote)
	},
}

func init() {
	eventsCmd.Flags().Int("limit", 50, "Maximum number of events to show")
	eventsCmd.Flags().String("type", "", "Filter by event type")
	eventsCmd.Flags().String("mapper", "", "Filter by mapper name")
	eventsCmd.Flags().Bool("runs", false, "Show consolidation runs instead of events")
}

func runEvents(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.journal == nil {
		return errors.New("journal is disabled")
	}

	limit, _ := cmd.Flags().GetInt("limit")
	if runs, _ := cmd.Flags().GetBool("runs"); runs {
		return printRuns(a.journal, limit)
	}

	eventType, _ := cmd.Flags().GetString("type")
	mapper, _ := cmd.Flags().GetString("mapper")

	var events []*journal.Event
	switch {
	case mapper != "":
		events, err = a.journal.GetMapperEvents(mapper, limit)
	case eventType != "":
		events, err = a.journal.GetEventsByType(eventType, limit)
	default:
		events, err = a.journal.GetRecentEvents(limit)
	}
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No events found.")
		return nil
	}

	fmt.Printf("%-20s %-14s %-28s %-32s %s\n", "TIMESTAMP", "TYPE", "MAPPER", "DEVICE", "DETAILS")
	fmt.Println(strings.Repeat("-", 110))
	for _, e := range events {
		fmt.Printf("%-20s %-14s %-28s %-32s %s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.EventType,
			e.MapperName,
			orDash(e.DevPath),
			e.Details,
		)
	}
	return nil
}

func printRuns(db *journal.DB, limit int) error {
	runs, err := db.GetRecentRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No consolidation runs recorded.")
		return nil
	}

	fmt.Printf("%-20s %-16s %-10s %-8s %s\n", "STARTED", "AGO", "REGISTERED", "FAILED", "ERROR")
	fmt.Println(strings.Repeat("-", 80))
	for _, r := range runs {
		fmt.Printf("%-20s %-16s %-10d %-8d %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			humanize.Time(r.StartedAt),
			r.Registered,
			r.Failures,
			firstLine(r.Error),
		)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
