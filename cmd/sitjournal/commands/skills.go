// ABOUTME: skills command: list the curriculum or show one skill in detail
package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/sitjournal/internal/catalog"
)

// NewSkillsCmd creates the skills command
func NewSkillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skills [id]",
		Short: "List the skill curriculum, or show one skill",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := catalog.Default()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				if jsonOutput() {
					return printJSON(cmd, cat.Cultivations())
				}
				for i, c := range cat.Cultivations() {
					if i > 0 {
						fmt.Fprintln(out)
					}
					fmt.Fprintf(out, "%s\n", c.Name)
					for _, s := range c.Skills {
						fmt.Fprintf(out, "  %s  %s\n", s.ID, s.Name)
					}
				}
				return nil
			}

			id, ok := cat.NormalizeID(args[0])
			if !ok {
				return fmt.Errorf("unknown skill %q", args[0])
			}
			s, _ := cat.Get(id)
			if jsonOutput() {
				return printJSON(cmd, s)
			}
			fmt.Fprintf(out, "%s %s (%s)\n\n", s.ID, s.Name, s.Cultivation)
			fmt.Fprintf(out, "Marker:     %s\n", s.Marker.Label)
			fmt.Fprintf(out, "Hindrance:  %s\n", s.Hindrance.Label)
			fmt.Fprintf(out, "Antidote:   %s\n", s.Antidote)
			fmt.Fprintf(out, "Insight:    %s\n", s.Insight)
			if len(s.Techniques) > 0 {
				fmt.Fprintf(out, "Techniques: %s\n", strings.Join(s.Techniques, "; "))
			}
			fmt.Fprintf(out, "Advance when: %s\n", s.AdvancementCriteria)
			if s.Reading != "" {
				fmt.Fprintf(out, "\n%s\n", s.Reading)
			}
			return nil
		},
	}
}
