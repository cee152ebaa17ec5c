package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every hydra subcommand, mirroring
// the teacher's internal/cli/root.go RootOptions (Verbose/Format)
// narrowed to Hydra's three output formats.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "sarif"
}

// ValidFormats are the --format values spec.md §6 allows.
var ValidFormats = []string{"text", "json", "sarif"}

// NewRootCommand builds the "hydra" root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "hydra",
		Short: "Hydra - static safety analyzer for Sui Move smart contracts",
		Long: `Hydra analyzes Sui Move module sources for reference-escape,
object-lifecycle, capability, shared-object, and denial-of-service
safety violations using a flow-sensitive abstract interpretation pass.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|sarif)")

	cmd.AddCommand(NewAnalyzeCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
