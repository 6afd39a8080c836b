// ABOUTME: entry subcommands: add, list, show, edit, delete
// ABOUTME: Writes go through the pipeline so analysis and summaries follow automatically
package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/sitjournal/internal/core"
	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

var (
	entryFile    string
	entrySkill   string
	entryDate    string
	entryNoTrack bool

	listLimit int
	listType  string
	listFrom  string
	listTo    string
)

// NewEntryCmd creates the entry command group
func NewEntryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Write and manage journal entries",
		Long: `Write and manage journal entries.

Reflections are analyzed in the background once saved; weekly and monthly
summaries and pre-sit guidance are refreshed after every change.`,
	}
	cmd.AddCommand(newEntryAddCmd(), newEntryListCmd(), newEntryShowCmd(), newEntryEditCmd(), newEntryDeleteCmd())
	return cmd
}

func newEntryAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Add a post-sit reflection",
		Long: `Add a post-sit reflection from text, a file, or stdin.

Examples:
  sitjournal entry add "Counted to ten twice before drifting. Calmer at the end."
  sitjournal entry add --file tonight.md
  sitjournal entry add --date 2026-03-01 --skill 03 --no-track "Retreat day two"`,
		RunE: runEntryAdd,
	}
	cmd.Flags().StringVar(&entryFile, "file", "", "Read the reflection from a file")
	cmd.Flags().StringVar(&entrySkill, "skill", "", "Skill id (default: current skill)")
	cmd.Flags().StringVar(&entryDate, "date", "", "Backdate the entry (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&entryNoTrack, "no-track", false, "Do not count this entry toward advancement")
	return cmd
}

func runEntryAdd(cmd *cobra.Command, args []string) error {
	text, err := readText(entryFile, args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	track := !entryNoTrack
	entry, err := a.pipeline.CreateEntry(cmd.Context(), core.NewEntryInput{
		UserID:        a.userID,
		Type:          models.EntryReflect,
		Content:       text,
		SkillID:       entrySkill,
		TrackProgress: &track,
		EntryDate:     entryDate,
	})
	if err != nil {
		return fmt.Errorf("saving entry: %w", err)
	}

	if jsonOutput() {
		return printJSON(cmd, entry)
	}
	info(cmd, "Saved %s (%s, skill %s)\n", entry.ID, entry.EntryDate, entry.SkillID)
	if quiet {
		fmt.Fprintln(cmd.OutOrStdout(), entry.ID)
	}
	return nil
}

func newEntryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent entries",
		Long: `List recent entries, newest first.

Examples:
  sitjournal entry list
  sitjournal entry list --from 2026-03-01 --to 2026-03-07
  sitjournal entry list --type ask --format json`,
		RunE: runEntryList,
	}
	cmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum entries to show")
	cmd.Flags().StringVar(&listType, "type", "", "Only reflect or ask entries")
	cmd.Flags().StringVar(&listFrom, "from", "", "First day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&listTo, "to", "", "Last day (YYYY-MM-DD)")
	return cmd
}

func runEntryList(cmd *cobra.Command, args []string) error {
	if err := validatePositiveInt(listLimit, "limit"); err != nil {
		return err
	}
	if listType != "" && !models.EntryType(listType).Valid() {
		return fmt.Errorf("--type must be reflect or ask, got %q", listType)
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	entries, err := a.pipeline.ListEntries(cmd.Context(), a.userID, storage.EntryFilter{
		Type:        models.EntryType(listType),
		DateFrom:    listFrom,
		DateTo:      listTo,
		NewestFirst: true,
		Limit:       listLimit,
	})
	if err != nil {
		return fmt.Errorf("listing entries: %w", err)
	}

	if jsonOutput() {
		return printJSON(cmd, entries)
	}
	if len(entries) == 0 {
		info(cmd, "No entries found\n")
		return nil
	}

	now := a.pipeline.Deps().Now()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DATE\tTYPE\tSKILL\tANALYZED\tSUMMARY\tID\n")
	fmt.Fprintf(w, "----\t----\t-----\t--------\t-------\t--\n")
	for _, e := range entries {
		summary := e.Content
		if e.Signals != nil && e.Signals.Summary != "" {
			summary = e.Signals.Summary
		}
		analyzed := "-"
		if e.ProcessedAt != nil {
			analyzed = formatTime(*e.ProcessedAt, now)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.EntryDate, e.Type, e.SkillID, analyzed, truncate(summary, 50), e.ID)
	}
	_ = w.Flush()

	info(cmd, "\nTotal: %d entr%s\n", len(entries), plural(len(entries), "y", "ies"))
	return nil
}

func newEntryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one entry with its extracted signals",
		Args:  cobra.ExactArgs(1),
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
			if jsonOutput() {
				return printJSON(cmd, entry)
			}
			printEntry(cmd, entry)
			return nil
		},
	}
}

func printEntry(cmd *cobra.Command, e *models.Entry) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s  skill %s  %s\n\n", e.EntryDate, e.Type, e.SkillID, e.ID)
	fmt.Fprintf(out, "%s\n", e.Content)
	if !e.TrackProgress {
		fmt.Fprintf(out, "\n(not counted toward advancement)\n")
	}
	s := e.Signals
	if s == nil {
		fmt.Fprintf(out, "\nNot analyzed yet.\n")
		return
	}
	fmt.Fprintf(out, "\nSummary:  %s\n", s.Summary)
	fmt.Fprintf(out, "Samatha:  %s\n", s.OverallSamathaTendency)
	if s.MoodScore != nil {
		fmt.Fprintf(out, "Mood:     %d/5\n", *s.MoodScore)
	}
	for _, p := range s.SkillPhases {
		fmt.Fprintf(out, "Skill %s: markers %v, hindrances %v, samatha %s\n",
			p.SkillID, p.MarkersObserved, p.HindrancesObserved, p.SamathaTendency)
	}
	if len(s.ProgressionSignals) > 0 {
		fmt.Fprintf(out, "Progression signals: %v\n", s.ProgressionSignals)
	}
}

func newEntryEditCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "edit <id> [text]",
		Short: "Replace an entry's text",
		Long:  `Replace an entry's text. Extracted signals are kept; run "sitjournal analyze --force" to refresh them.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(file, args[1:], cmd.InOrStdin())
			if err != nil {
				return err
			}
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			entry, err := a.pipeline.EditEntry(cmd.Context(), a.userID, args[0], text)
			if err != nil {
				return fmt.Errorf("editing entry: %w", err)
			}
			if jsonOutput() {
				return printJSON(cmd, entry)
			}
			info(cmd, "Updated %s\n", entry.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Read the new text from a file")
	return cmd
}

func newEntryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entry and refresh the summaries it fed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.pipeline.DeleteEntry(cmd.Context(), a.userID, args[0]); err != nil {
				return fmt.Errorf("deleting entry: %w", err)
			}
			info(cmd, "Deleted %s\n", args[0])
			return nil
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
