// ABOUTME: rollup subcommands: weekly, monthly, batch, backfill, list
// ABOUTME: Generation is idempotent; --force re-synthesizes an unchanged window
package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harper/sitjournal/internal/core"
	"github.com/harper/sitjournal/internal/models"
)

var (
	rollupDate  string
	rollupForce bool
)

// NewRollupCmd creates the rollup command group
func NewRollupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Generate and read weekly and monthly summaries",
		Long: `Generate and read weekly and monthly practice summaries.

A week needs at least 3 analyzed, tracked reflections; a month needs at least
3 weekly summaries. Windows whose entries have not changed are left alone
unless --force is given.`,
	}

	weekly := &cobra.Command{
		Use:   "weekly",
		Short: "Summarize the week containing --date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollup(cmd, models.RollupWeekly)
		},
	}
	monthly := &cobra.Command{
		Use:   "monthly",
		Short: "Summarize the month containing --date from its weekly summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollup(cmd, models.RollupMonthly)
		},
	}
	for _, c := range []*cobra.Command{weekly, monthly} {
		c.Flags().StringVar(&rollupDate, "date", "", "Any day in the window (default: today)")
		c.Flags().BoolVar(&rollupForce, "force", false, "Re-synthesize even if unchanged")
	}

	cmd.AddCommand(weekly, monthly, newRollupBatchCmd(), newBackfillCmd(), newRollupListCmd())
	return cmd
}

func rollupDay(a *app) (time.Time, error) {
	d := a.pipeline.Deps()
	if rollupDate == "" {
		return d.Now(), nil
	}
	day, err := d.Calendar.ParseDay(rollupDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
	}
	return day, nil
}

func runRollup(cmd *cobra.Command, typ models.RollupType) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	day, err := rollupDay(a)
	if err != nil {
		return err
	}

	var res core.RollupResult
	if typ == models.RollupWeekly {
		res, err = a.pipeline.Rollups.GenerateWeekly(cmd.Context(), a.userID, day, rollupForce)
	} else {
		res, err = a.pipeline.Rollups.GenerateMonthly(cmd.Context(), a.userID, day, rollupForce)
	}
	if err != nil {
		return fmt.Errorf("%s rollup: %w", typ, err)
	}

	if jsonOutput() {
		return printJSON(cmd, res)
	}
	if res.Status == core.RollupSkipped {
		info(cmd, "Skipped: %s\n", res.Reason)
		return nil
	}
	printSummary(cmd, res.Summary)
	return nil
}

func printSummary(cmd *cobra.Command, s *models.RollupSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s to %s (%d entries)\n\n", strings.ToUpper(string(s.Type[:1]))+string(s.Type[1:]),
		s.DateRangeStart, s.DateRangeEnd, s.EntryCount)
	fmt.Fprintf(out, "%s\n\n", s.Summary)
	if len(s.KeyThemes) > 0 {
		fmt.Fprintf(out, "Themes:  %s\n", strings.Join(s.KeyThemes, ", "))
	}
	fmt.Fprintf(out, "Mood:    %s", s.MoodTrend)
	if s.AvgMoodScore != nil {
		fmt.Fprintf(out, " (avg %.2f)", *s.AvgMoodScore)
	}
	fmt.Fprintf(out, "\nSamatha: %s\n", s.SamathaTrend)
	if len(s.NotableEvents) > 0 {
		fmt.Fprintf(out, "Notable: %s\n", strings.Join(s.NotableEvents, "; "))
	}
}

func newRollupBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the monthly summary for every eligible user",
		Long:  `Run the monthly summary for every user with at least 3 weekly summaries in the month containing --date.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			day, err := rollupDay(a)
			if err != nil {
				return err
			}
			report, err := a.pipeline.Rollups.RunMonthlyBatch(cmd.Context(), day)
			if err != nil {
				return fmt.Errorf("monthly batch: %w", err)
			}
			if jsonOutput() {
				return printJSON(cmd, report)
			}
			info(cmd, "%s: %d eligible, %d written, %d skipped, %d failed\n",
				report.Month, report.Users, len(report.Written), len(report.Skipped), len(report.Failed))
			return nil
		},
	}
	cmd.Flags().StringVar(&rollupDate, "date", "", "Any day in the month (default: today)")
	return cmd
}

func newBackfillCmd() *cobra.Command {
	var reextract bool
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Rebuild every summary and the guidance from stored entries",
		Long: `Rebuild every weekly and monthly summary and the pre-sit guidance.

With --reextract every reflection is analyzed again first, which calls the
model once per entry.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report, err := a.pipeline.Backfill(cmd.Context(), a.userID, reextract)
			if jsonOutput() {
				if perr := printJSON(cmd, report); perr != nil {
					return perr
				}
				return err
			}
			if reextract {
				info(cmd, "Re-analyzed %d entries (%d failed)\n", report.Reextracted, report.ExtractFailed)
			}
			info(cmd, "Weeks written: %d, skipped: %d\n", len(report.WeeksWritten), len(report.WeeksSkipped))
			info(cmd, "Months written: %d\n", len(report.MonthsWritten))
			if len(report.FailedWindows) > 0 {
				info(cmd, "Failed windows: %s\n", strings.Join(report.FailedWindows, ", "))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&reextract, "reextract", false, "Analyze every reflection again first")
	return cmd
}

func newRollupListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list [weekly|monthly]",
		Short: "Show the most recent summaries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := models.RollupWeekly
			if len(args) == 1 {
				typ = models.RollupType(args[0])
			}
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			summaries, err := a.pipeline.Lookups.PracticeSummaries(cmd.Context(), a.userID, typ, limit)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(cmd, summaries)
			}
			if len(summaries) == 0 {
				info(cmd, "No %s summaries yet\n", typ)
				return nil
			}
			for i, s := range summaries {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				printSummary(cmd, s)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 4, "Number of summaries")
	return cmd
}
