package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"appusage/internal/app"
	"appusage/internal/infrastructure/logging"
	"appusage/internal/provider"
	"appusage/internal/types"
)

var (
	configPath string
	dbPath     string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "appusage",
		Short:         "App usage ingestion and pre-aggregation engine",
		Long:          "Ingests app foreground events, reconstructs usage sessions, and maintains per-hour per-app aggregates for fast statistics queries.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "database file path (overrides config)")

	root.AddCommand(newSyncCommand())
	root.AddCommand(newStatsCommand())
	root.AddCommand(newTopCommand())
	root.AddCommand(newMaintainCommand())

	return root
}

func loadConfig() (*app.Config, error) {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		config.Database.Path = dbPath
	}
	return config, nil
}

// eventDump is the JSON shape accepted by the sync command's --events file:
// a plain array of raw events as exported from a device.
type eventDump []types.RawEvent

// appDump is the JSON shape accepted by the sync command's --apps file.
type appDump []types.AppInfo

func newSyncCommand() *cobra.Command {
	var eventsFile, appsFile string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one ingestion cycle from an exported event dump",
		Long: `Runs one full sync cycle: reconcile the installed-app directory, fetch
events since the last checkpoint, persist them, reconstruct sessions, fold
them into hourly aggregates, and advance the checkpoint.

Events and apps are read from JSON dump files, standing in for the OS
providers of a live deployment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			var events eventDump
			if err := readJSONFile(eventsFile, &events); err != nil {
				return fmt.Errorf("failed to load events dump: %w", err)
			}
			var apps appDump
			if appsFile != "" {
				if err := readJSONFile(appsFile, &apps); err != nil {
					return fmt.Errorf("failed to load apps dump: %w", err)
				}
			}

			ctx := cmd.Context()
			engine, err := app.New(ctx, config,
				provider.NewStaticEventProvider(events),
				provider.NewStaticAppDirectory(apps),
				logging.NewDefaultLogger())
			if err != nil {
				return err
			}
			defer engine.Close()

			// On a denial the provider is asked for the permission and the
			// cycle reruns once on a grant.
			result, err := engine.Coordinator.RunCycleRequestingPermission(ctx)
			if err != nil {
				return err
			}

			color.Green("Sync cycle %s completed", result.CycleID)
			fmt.Printf("  window: %s .. %s\n",
				time.UnixMilli(result.WindowStart).Format(time.RFC3339),
				time.UnixMilli(result.WindowEnd).Format(time.RFC3339))
			fmt.Printf("  events: %d  sessions: %d  dates aggregated: %d\n",
				result.EventCount, result.SessionCount, len(result.DatesAggregated))
			if result.Directory != nil {
				fmt.Printf("  directory: +%d inserted, %d updated, %d resurrected, %d tombstoned\n",
					result.Directory.Inserted, result.Directory.Updated,
					result.Directory.Resurrected, result.Directory.Tombstoned)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&eventsFile, "events", "", "JSON file with raw events to ingest")
	cmd.Flags().StringVar(&appsFile, "apps", "", "JSON file with the installed-app list")
	cmd.MarkFlagRequired("events")

	return cmd
}

func newStatsCommand() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show hourly usage for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			if date == "" {
				date = time.Now().Format(types.DateFormat)
			}

			buckets, err := engine.Queries.GetHourlyUsageStats(cmd.Context(), date)
			if err != nil {
				return err
			}

			header := color.New(color.FgCyan, color.Bold)
			header.Printf("Hourly usage for %s\n", date)

			var dayTotal int64
			var peak int64
			for _, b := range buckets {
				dayTotal += b.TotalDuration
				if b.TotalDuration > peak {
					peak = b.TotalDuration
				}
			}

			for _, b := range buckets {
				bar := ""
				if peak > 0 {
					bar = strings.Repeat("█", int(b.TotalDuration*40/peak))
				}
				line := fmt.Sprintf("%02d:00  %-40s %s", b.Hour, bar, formatDuration(b.TotalDuration))
				if b.TotalDuration > 0 {
					fmt.Println(line)
				} else {
					color.New(color.Faint).Println(line)
				}
			}
			header.Printf("Total: %s\n", formatDuration(dayTotal))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "date to report (YYYY-MM-DD, default today)")
	return cmd
}

func newTopCommand() *cobra.Command {
	var date string
	var limit int

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the most used apps for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := app.New(cmd.Context(), config, nil, nil, logging.NewDefaultLogger())
			if err != nil {
				return err
			}
			defer engine.Close()

			if date == "" {
				date = time.Now().Format(types.DateFormat)
			}
			if limit <= 0 {
				limit = config.TopAppsLimit
			}

			apps, err := engine.Queries.GetDailyTopApps(cmd.Context(), date, limit)
			if err != nil {
				return err
			}

			color.New(color.FgCyan, color.Bold).Printf("Top apps for %s\n", date)
			if len(apps) == 0 {
				fmt.Println("  no usage recorded")
				return nil
			}
			for i, a := range apps {
				fmt.Printf("%2d. %-30s %10s  (%d sessions)\n",
					i+1, a.AppName, formatDuration(a.TotalDuration), a.UsageCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "date to report (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum apps to list (default from config)")
	return cmd
}

func newMaintainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Purge expired data and optimize the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.Maintenance.Run(cmd.Context())
			if err != nil {
				return err
			}

			color.Green("Maintenance completed in %v", result.Duration.Round(time.Millisecond))
			fmt.Printf("  raw events deleted:   %d\n", result.RawEventsDeleted)
			fmt.Printf("  hourly stats deleted: %d\n", result.HourlyStatsDeleted)
			fmt.Printf("  tombstones deleted:   %d\n", result.TombstonesDeleted)
			fmt.Printf("  optimized:            %t\n", result.Optimized)
			return nil
		},
	}
}

// openEngine wires the engine for read-only and maintenance commands, which
// never touch the providers.
func openEngine(ctx context.Context) (*app.App, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, config, nil, nil, logging.NewDefaultLogger())
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// formatDuration renders milliseconds as a compact h/m/s string.
func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d > 0:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	default:
		return "0s"
	}
}
