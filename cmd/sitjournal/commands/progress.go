// ABOUTME: analyze, progress, and advance commands
// ABOUTME: Readiness is always recomputed from entries; advance refuses when criteria are unmet
package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/sitjournal/internal/core"
)

// NewAnalyzeCmd creates the analyze command
func NewAnalyzeCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "analyze <id>",
		Short: "Run signal extraction on one entry now",
		Long: `Run signal extraction on one entry in the foreground.

Entries are normally analyzed in the background after saving. Use this to
retry a failed extraction, or --force to re-analyze after editing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			entry, err := a.pipeline.GetEntry(cmd.Context(), a.userID, args[0])
			if err != nil {
				return fmt.Errorf("loading entry: %w", err)
			}
			res, err := a.pipeline.Extractor.ProcessEntry(cmd.Context(), entry.ID, force)
			if err != nil {
				return fmt.Errorf("analyzing entry: %w", err)
			}
			if jsonOutput() {
				return printJSON(cmd, res)
			}
			if res.Skipped {
				info(cmd, "Skipped: %s\n", res.Reason)
				return nil
			}
			info(cmd, "Analyzed %s: frontier skill %s, samatha %s\n",
				entry.ID, res.Signals.FrontierSkillInferred, res.Signals.OverallSamathaTendency)
			day, err := a.pipeline.Deps().Calendar.ParseDay(entry.EntryDate)
			if err != nil {
				return err
			}
			if err := a.pipeline.RecomputeAggregates(cmd.Context(), a.userID, day); err != nil {
				info(cmd, "Warning: summaries not fully refreshed: %v\n", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-analyze even if already analyzed")
	return cmd
}

// NewProgressCmd creates the progress command
func NewProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show current skill, streak, and readiness to advance",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			profile, err := a.pipeline.Lookups.UserProfile(ctx, a.userID)
			if err != nil {
				return err
			}
			stats, err := a.pipeline.Lookups.ProgressionStats(ctx, a.userID)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(cmd, map[string]any{"profile": profile, "progression": stats})
			}

			out := cmd.OutOrStdout()
			r := stats.Readiness
			fmt.Fprintf(out, "Skill %s: %s (%s)\n", profile.CurrentSkill.ID, profile.CurrentSkill.Name, profile.Cultivation)
			fmt.Fprintf(out, "Streak: %d day(s)   Days on skill: %d   Sessions: %d\n",
				profile.Stats.Streak, profile.Stats.CurrentSkillDays, profile.Stats.TotalSessions)
			fmt.Fprintf(out, "\nReadiness over the last %d tracked entries: %d%%\n", r.Window, r.ProgressPercent)
			fmt.Fprintf(out, "  marker sessions:   %d/%d\n", r.MarkerCount, core.MinMarkerSessions)
			fmt.Fprintf(out, "  strong samatha:    %d/%d\n", r.StrongSamathaCount, core.MinStrongSamatha)
			fmt.Fprintf(out, "  progression signal: %t\n", r.HasProgressionSignal)
			if r.Ready {
				fmt.Fprintf(out, "\nReady to advance to %s. Run: sitjournal advance %s\n", r.NextSkillID, profile.CurrentSkill.ID)
			} else if len(stats.Unmet) > 0 {
				fmt.Fprintf(out, "\nStill needed:\n  - %s\n", strings.Join(stats.Unmet, "\n  - "))
			}
			return nil
		},
	}
}

// NewAdvanceCmd creates the advance command
func NewAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <current-skill>",
		Short: "Move to the next skill when readiness criteria are met",
		Long: `Move to the next skill.

The current skill must be given so a stale view cannot skip a skill. The
criteria are re-checked against stored entries before anything changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			current, ok := a.pipeline.Deps().Catalog.NormalizeID(args[0])
			if !ok {
				return fmt.Errorf("unknown skill %q", args[0])
			}
			res, err := a.pipeline.Advance(cmd.Context(), a.userID, current)
			if err != nil {
				return fmt.Errorf("advancing: %w", err)
			}
			if jsonOutput() {
				return printJSON(cmd, res)
			}
			if !res.Advanced {
				msg := fmt.Sprintf("not advanced (%s): %s", res.Denial.Code, res.Denial.Reason)
				if len(res.Denial.Unmet) > 0 {
					msg += "; " + strings.Join(res.Denial.Unmet, "; ")
				}
				return fmt.Errorf("%s", msg)
			}
			next, _ := a.pipeline.Deps().Catalog.Get(res.NewSkillID)
			info(cmd, "Advanced from %s to %s: %s\n", res.PreviousSkillID, next.ID, next.Name)
			return nil
		},
	}
}
