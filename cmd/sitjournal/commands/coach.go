// ABOUTME: guidance, nudges, and ask commands
// ABOUTME: The coaching surface shown before a sit and before writing
package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/sitjournal/internal/core"
	"github.com/harper/sitjournal/internal/models"
)

// NewGuidanceCmd creates the guidance command
func NewGuidanceCmd() *cobra.Command {
	var regenerate bool
	cmd := &cobra.Command{
		Use:   "guidance",
		Short: "Show pre-sit guidance for your frontier skill",
		Long: `Show the pre-sit guidance: reading near your frontier skill, recurring
hindrances and markers, and advice drawn from your own reflections.

Guidance is refreshed automatically after entries change; --regenerate forces
a rebuild now.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			var g *models.Guidance
			if regenerate {
				g, err = a.pipeline.Guidance.Regenerate(ctx, a.userID)
			} else {
				var profile core.UserProfile
				profile, err = a.pipeline.Lookups.UserProfile(ctx, a.userID)
				g = profile.Guidance
			}
			if err != nil {
				return fmt.Errorf("loading guidance: %w", err)
			}

			if jsonOutput() {
				return printJSON(cmd, g)
			}
			if g == nil {
				info(cmd, "No guidance yet. Write and analyze a few reflections first.\n")
				return nil
			}
			printGuidance(cmd, g)
			return nil
		},
	}
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "Rebuild the guidance now")
	return cmd
}

func printGuidance(cmd *cobra.Command, g *models.Guidance) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Frontier: %s %s\n", g.FrontierSkillID, g.FrontierSkillName)
	if g.SelfAdvice != "" {
		fmt.Fprintf(out, "\nFrom your own notes:\n  %s\n", g.SelfAdvice)
	}
	if len(g.RecurringHindrances) > 0 {
		fmt.Fprintf(out, "\nRecurring hindrances:\n")
		for _, h := range g.RecurringHindrances {
			fmt.Fprintf(out, "  %s (%dx)", h.Name, h.Count)
			if len(h.Conditions) > 0 {
				fmt.Fprintf(out, " when %s", strings.Join(h.Conditions, ", "))
			}
			fmt.Fprintln(out)
		}
	}
	if len(g.RecurringMarkers) > 0 {
		fmt.Fprintf(out, "\nRecurring markers:\n")
		for _, m := range g.RecurringMarkers {
			fmt.Fprintf(out, "  %s (%dx)\n", m.Name, m.Count)
		}
	}
	for _, r := range g.ReadingMaterial {
		fmt.Fprintf(out, "\n%s %s\n  %s\n", r.SkillID, r.SkillName, r.Excerpt)
	}
}

// NewNudgesCmd creates the nudges command
func NewNudgesCmd() *cobra.Command {
	var skill string
	cmd := &cobra.Command{
		Use:   "nudges",
		Short: "Show reflection prompts for tonight's entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			nudges, err := a.pipeline.Nudges.Generate(cmd.Context(), a.userID, skill)
			if err != nil {
				return fmt.Errorf("generating nudges: %w", err)
			}
			if jsonOutput() {
				return printJSON(cmd, nudges)
			}
			for _, n := range nudges {
				fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", n.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&skill, "skill", "", "Skill id (default: current skill)")
	return cmd
}

// NewAskCmd creates the ask command
func NewAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about your practice",
		Long: `Ask a question about your practice. The answer draws on your profile,
recent entries, and summaries. The question and answer are saved as an ask
entry, which never counts toward advancement.

Examples:
  sitjournal ask "Why do I keep getting sleepy around minute twenty?"
  echo "What should I focus on this week?" | sitjournal ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := readText("", args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.pipeline.Ask(cmd.Context(), a.userID, question)
			if err != nil {
				return fmt.Errorf("asking: %w", err)
			}
			if jsonOutput() {
				return printJSON(cmd, res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Answer)
			return nil
		},
	}
}
