// ABOUTME: reminders command: show today's reminder plan and change reminder times
// ABOUTME: Showing the plan runs a reschedule cycle so suppression is current
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/sitjournal/internal/core"
)

// NewRemindersCmd creates the reminders command
func NewRemindersCmd() *cobra.Command {
	var (
		meditation string
		journal    string
		journalOn  bool
		journalOff bool
	)
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Show or change daily reminders",
		Long: `Show today's reminder plan, or change reminder settings.

The journal reminder pauses after three days without journaling and resumes
once you write two days in a row.

Examples:
  sitjournal reminders
  sitjournal reminders --meditation 06:30 --journal 21:00
  sitjournal reminders --no-journal`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if journalOn && journalOff {
				return fmt.Errorf("--journal-enabled and --no-journal cannot be used together")
			}
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			var update core.ScheduleUpdate
			changed := false
			if cmd.Flags().Changed("meditation") {
				update.MeditationTime = &meditation
				changed = true
			}
			if cmd.Flags().Changed("journal") {
				update.JournalTime = &journal
				changed = true
			}
			if journalOn || journalOff {
				enabled := journalOn
				update.JournalEnabled = &enabled
				changed = true
			}
			if changed {
				if _, err := a.pipeline.Reminders.SetSchedule(ctx, a.userID, update); err != nil {
					return fmt.Errorf("saving reminders: %w", err)
				}
			}

			res, err := a.pipeline.Reminders.Reschedule(ctx, a.userID)
			if err != nil {
				return fmt.Errorf("planning reminders: %w", err)
			}
			if jsonOutput() {
				return printJSON(cmd, res)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Meditation: %s\n", res.Plan.MeditationAt)
			switch {
			case res.Plan.JournalReminder:
				fmt.Fprintf(out, "Journal:    %s\n", res.Plan.JournalAt)
			case res.Plan.Reason != "":
				fmt.Fprintf(out, "Journal:    off (%s)\n", res.Plan.Reason)
			default:
				fmt.Fprintf(out, "Journal:    off\n")
			}
			if res.Transitioned {
				info(cmd, "\nJournal reminders are now %s.\n", journalStateName(res.State.Suppressed()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&meditation, "meditation", "", "Meditation reminder time (HH:MM)")
	cmd.Flags().StringVar(&journal, "journal", "", "Journal reminder time (HH:MM)")
	cmd.Flags().BoolVar(&journalOn, "journal-enabled", false, "Turn journal reminders on")
	cmd.Flags().BoolVar(&journalOff, "no-journal", false, "Turn journal reminders off")
	return cmd
}

func journalStateName(suppressed bool) string {
	if suppressed {
		return "paused"
	}
	return "active"
}
