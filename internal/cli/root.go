// Package cli implements the akron command line, a debugging surface that
// compiles queries for inspection without touching a database.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// Output formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// RootOptions carries the global flags every subcommand sees.
type RootOptions struct {
	Verbose bool
	Format  string
}

// NewRootCommand builds the akron root command and wires its subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	root := &cobra.Command{
		Use:           "akron",
		Short:         "akron - one query interface over SQLite, MySQL, PostgreSQL and MongoDB",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.Format {
			case FormatText, FormatJSON:
				return nil
			default:
				return fmt.Errorf("invalid format %q: must be one of %s",
					opts.Format, strings.Join([]string{FormatText, FormatJSON}, ", "))
			}
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", FormatText, "output format (text|json)")

	root.AddCommand(NewCompileCommand(opts))

	return root
}
