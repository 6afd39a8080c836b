// ABOUTME: Root command, global flags, and Execute for the sitjournal CLI
// ABOUTME: Subcommands share one app value opened lazily from config
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	verbose      bool
	quiet        bool
	outputFormat string
	userFlag     string
)

const banner = `
 ███████╗██╗████████╗
 ██╔════╝██║╚══██╔══╝
 ███████╗██║   ██║
 ╚════██║██║   ██║
 ███████║██║   ██║
 ╚══════╝╚═╝   ╚═╝  journal
`

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitjournal",
		Short: "Meditation journal with adaptive coaching",
		Long: banner + `
Keep a post-sit journal and get coaching that follows your practice.

Reflections are analyzed in the background for skill markers, hindrances,
and calm. From those signals sitjournal tracks readiness to advance, writes
weekly and monthly summaries, prepares pre-sit guidance, and suggests
reflection prompts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose && quiet {
				return fmt.Errorf("--verbose and --quiet are mutually exclusive")
			}
			switch outputFormat {
			case "auto", "table", "json":
			default:
				return fmt.Errorf("--format must be auto, table, or json; got %q", outputFormat)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print results")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "auto", "Output format: auto, table, or json")
	cmd.PersistentFlags().StringVar(&userFlag, "user", "", "Practitioner id (default: $SITJOURNAL_USER or \"me\")")

	cmd.AddCommand(
		NewEntryCmd(),
		NewAnalyzeCmd(),
		NewProgressCmd(),
		NewAdvanceCmd(),
		NewRollupCmd(),
		NewGuidanceCmd(),
		NewNudgesCmd(),
		NewRemindersCmd(),
		NewAskCmd(),
		NewSkillsCmd(),
		NewExportCmd(),
		NewServeCmd(),
		NewMCPCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
