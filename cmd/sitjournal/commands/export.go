// ABOUTME: export command writes a user's journal, summaries, and reminders to a file
// ABOUTME: Supports YAML for backups and Markdown for reading
package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export your journal to YAML or Markdown",
		Long: `Export all entries, extracted signals, summaries, and reminder settings.

Examples:
  sitjournal export
  sitjournal export --as markdown --output journal.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "yaml" && format != "markdown" {
				return fmt.Errorf("--as must be yaml or markdown, got %q", format)
			}
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if output == "" {
				ext := "yaml"
				if format == "markdown" {
					ext = "md"
				}
				output = fmt.Sprintf("sitjournal-%s-%s.%s", a.userID, time.Now().Format("20060102"), ext)
			}

			if format == "markdown" {
				err = a.store.ExportToMarkdown(cmd.Context(), a.userID, output)
			} else {
				err = a.store.ExportToYAML(cmd.Context(), a.userID, output)
			}
			if err != nil {
				return fmt.Errorf("exporting: %w", err)
			}
			info(cmd, "Exported to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "as", "yaml", "Export format: yaml or markdown")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: sitjournal-<user>-<date>.<ext>)")
	return cmd
}
