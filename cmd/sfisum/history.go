package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/sfisum/pkg/sfisum/config"
	"github.com/jamesainslie/sfisum/pkg/sfisum/history"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past runs",
	Long: `List previous generate, validate and refresh runs, newest first.

Each run records its directory, manifest, counts per finding category and
whether a new manifest was written.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a run",
	Long:  `Display a recorded run. The id may be shortened to any unique prefix.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old runs",
	Long:  `Remove runs older than history.retention_days.`,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of runs to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory() (*history.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, cfg, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, _, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if len(entries) == 0 {
		printInfo("No runs recorded yet.")
		printInfo("Run 'sfisum generate [dir]' to create a manifest.")
		return nil
	}

	fmt.Printf("\n%-8s  %-14s  %-12s  %-8s  %-6s  %s\n", "ID", "WHEN", "MODE", "FILES", "EVENTS", "DIRECTORY")
	fmt.Println(strings.Repeat("-", 80))
	for _, e := range entries {
		mode := e.Mode
		if e.Error != "" {
			mode += "!"
		}
		fmt.Printf("%-8s  %-14s  %-12s  %-8s  %-6d  %s\n",
			e.ShortID(),
			humanize.Time(e.Timestamp),
			mode,
			humanize.Comma(int64(e.Files)),
			e.Events,
			e.BasePath,
		)
	}
	fmt.Println(strings.Repeat("-", 80))
	fmt.Println("Use 'sfisum history show <id>' for details on a run.")
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, _, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Println("\nRun Details")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("ID:         %s\n", e.ID)
	fmt.Printf("Timestamp:  %s (%s)\n", e.Timestamp.Format("2006-01-02 15:04:05 MST"), humanize.Time(e.Timestamp))
	fmt.Printf("Mode:       %s\n", e.Mode)
	fmt.Printf("Hash:       %s\n", e.Algorithm)
	fmt.Printf("Directory:  %s\n", e.BasePath)
	if e.Manifest != "" {
		fmt.Printf("Manifest:   %s\n", e.Manifest)
	}
	fmt.Printf("Files:      %s (%s)\n", humanize.Comma(int64(e.Files)), types.FormatSize(e.TotalBytes))
	fmt.Printf("Hashed:     %s\n", humanize.Comma(int64(e.Hashed)))
	fmt.Printf("Elapsed:    %s\n", e.Elapsed.Round(1e6))
	fmt.Printf("Events:     %d (%d ok, %d warnings, %d errors)\n",
		e.Events, e.Totals.OK, e.Totals.Warnings, e.Totals.Errors)
	if e.SavedTo != "" {
		fmt.Printf("Saved:      %s\n", e.SavedTo)
	}
	if e.Error != "" {
		fmt.Printf("Error:      %s\n", e.Error)
	}

	if len(e.Counts) > 0 {
		keys := make([]string, 0, len(e.Counts))
		for k := range e.Counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Println("\nFindings:")
		fmt.Println(strings.Repeat("-", 60))
		for _, k := range keys {
			fmt.Printf("%-30s  %d\n", k, e.Counts[k])
		}
	}
	return nil
}

func runHistoryClean(cmd *cobra.Command, args []string) error {
	store, cfg, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	days := cfg.History.RetentionDays
	if days <= 0 {
		days = config.DefaultRetentionDays
	}
	printInfo("Removing runs older than %d days...", days)

	n, err := store.Cleanup(days)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	printInfo("Removed %d runs.", n)
	return nil
}
