package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"webchat/internal/domain"
	"webchat/internal/stats"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	var (
		all       bool
		recent    int
		pruneDays int
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and detection outcome statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			fmt.Printf("webchat %s\n", version)
			fmt.Printf("  config:   %s\n", resolveConfigPath())
			fmt.Printf("  site:     %s\n", cfg.Site.Profile)
			fmt.Printf("  engine:   %s (headless=%v)\n", cfg.Browser.Engine, cfg.Browser.Headless)
			fmt.Printf("  detect:   poll=%s stable=%d min=%d timeout=%s\n",
				cfg.Detect.PollInterval(), cfg.Detect.StableTicks, cfg.Detect.MinLength, cfg.Detect.Timeout())

			if !cfg.Stats.Enabled {
				fmt.Println("\nTelemetry is disabled (stats.enabled=false).")
				return nil
			}
			if _, err := os.Stat(cfg.Stats.DBPath); err != nil {
				fmt.Println("\nNo telemetry recorded yet.")
				return nil
			}

			store, err := stats.NewSQLiteStore(cfg.Stats.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if pruneDays > 0 {
				n, err := store.Prune(ctx, time.Duration(pruneDays)*24*time.Hour)
				if err != nil {
					return fmt.Errorf("prune telemetry: %w", err)
				}
				fmt.Printf("\nPruned %d cycle(s) older than %d day(s).\n", n, pruneDays)
			}

			siteFilter := cfg.Site.Profile
			if all {
				siteFilter = ""
			}
			sum, err := store.Summary(ctx, siteFilter)
			if err != nil {
				return fmt.Errorf("read telemetry: %w", err)
			}
			printSummary(sum, siteFilter)

			if recent > 0 {
				recs, err := store.Recent(ctx, recent)
				if err != nil {
					return err
				}
				printRecent(recs)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include every site, not just the configured one")
	cmd.Flags().IntVar(&recent, "recent", 0, "also list the N most recent cycles")
	cmd.Flags().IntVar(&pruneDays, "prune", 0, "delete cycles older than this many days first")
	return cmd
}

func printSummary(sum stats.Summary, siteFilter string) {
	scope := siteFilter
	if scope == "" {
		scope = "all sites"
	}
	fmt.Printf("\nOutcomes (%s): %d cycles", scope, sum.Total)
	if !sum.Since.IsZero() {
		fmt.Printf(" since %s", sum.Since.Format(time.DateTime))
	}
	fmt.Println()
	if sum.Total == 0 {
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  KIND\tCOUNT\tSHARE\tAVG TIME\tAVG POLLS")
	for _, k := range sum.ByKind {
		fmt.Fprintf(tw, "  %s\t%d\t%.0f%%\t%s\t%.1f\n",
			k.Kind, k.Count, sum.Rate(k.Kind)*100, k.AvgElapsed.Round(100*time.Millisecond), k.AvgPolls)
	}
	tw.Flush()

	if r := sum.Rate(domain.KindTimeout) + sum.Rate(domain.KindPartial); r > 0.2 {
		fmt.Println("\nMany answers hit the deadline; consider raising detect.timeoutSeconds.")
	}
	if r := sum.Rate(domain.KindDegraded) + sum.Rate(domain.KindDegradedEmpty) + sum.Rate(domain.KindDegradedError); r > 0.2 {
		fmt.Println("\nMany answers fell back to page text; the site's selectors may be out of date.")
	}
}

func printRecent(recs []stats.Record) {
	fmt.Println("\nRecent cycles:")
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  TIME\tSITE\tKIND\tELAPSED\tPOLLS\tLENGTH")
	for _, r := range recs {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%d\t%d\n",
			r.CreatedAt.Format(time.DateTime), r.Site, r.Kind, r.Elapsed.Round(100*time.Millisecond), r.Polls, r.TextLength)
	}
	tw.Flush()
}
