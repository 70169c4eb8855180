// Package prizes implements the literary-prize reading-list commands.
package prizes

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/quartoworks/shelfmark/internal/cmdutil"
	"github.com/quartoworks/shelfmark/internal/cmdutil/output"
	"github.com/quartoworks/shelfmark/internal/prizes"
)

// AppContext is the slice of the application the prize commands need.
type AppContext interface {
	Prizes() (*prizes.Service, error)
	Delay() time.Duration
	OutputFormat() string
}

// NewCommand creates the prizes command with its subcommands.
func NewCommand(app AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prizes",
		GroupID: "management",
		Short:   "Build literary-prize reading lists",
		Long: `Prizes turns the embedded award rosters into reading-list collections:
one book per winner, tagged with the prize and year.

Supported prizes:
  nobel     Nobel Prize in Literature laureates, 1901 to date
  aquileo   Premio Aquileo J. Echeverría short-story winners`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newImportCommand(app))
	cmd.AddCommand(newListCommand(app))

	return cmd
}

// importFlags are shared by the prize import subcommands.
type importFlags struct {
	collection string
	dryRun     bool
	delay      time.Duration
}

func addImportFlags(cmd *cobra.Command, app AppContext, flags *importFlags) {
	cmd.Flags().StringVarP(&flags.collection, "collection", "c", "",
		"collection name for the reading list (default is the prize name)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false,
		"list what would be created without writing anything")
	cmd.Flags().DurationVar(&flags.delay, "delay", app.Delay(),
		"pause between winners")
}

func newImportCommand(app AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a prize roster as a reading-list collection",
		Long: `Import ensures the reading-list collection exists, then creates one book
item per winner that the library does not already hold. Winners whose
roster entry has no title get their most famous work identified by the
local model.

Books already in the collection are matched by title and author
substrings, so a different edition of the same work is not added twice.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newImportNobelCommand(app))
	cmd.AddCommand(newImportAquileoCommand(app))

	return cmd
}

func newImportNobelCommand(app AppContext) *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "nobel",
		Short: "Import the Nobel literature laureates",
		Example: `  shelfmark prizes import nobel            # create the reading list
  shelfmark prizes import nobel --dry-run  # preview it first`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImportNobel(cmd.Context(), app, flags)
		},
	}

	addImportFlags(cmd, app, &flags)

	return cmd
}

func runImportNobel(ctx context.Context, app AppContext, flags importFlags) error {
	svc, err := app.Prizes()
	if err != nil {
		return err
	}

	stats, err := svc.ImportNobel(ctx, prizes.ImportOptions{
		Collection: flags.collection,
		DryRun:     flags.dryRun,
		Delay:      flags.delay,
	})
	return cmdutil.RunSummary(app.OutputFormat(), stats, err)
}

func newImportAquileoCommand(app AppContext) *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "aquileo",
		Short: "Import the Aquileo J. Echeverría short-story winners",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImportAquileo(cmd.Context(), app, flags)
		},
	}

	addImportFlags(cmd, app, &flags)

	return cmd
}

func runImportAquileo(ctx context.Context, app AppContext, flags importFlags) error {
	svc, err := app.Prizes()
	if err != nil {
		return err
	}

	stats, err := svc.ImportAquileo(ctx, prizes.ImportOptions{
		Collection: flags.collection,
		DryRun:     flags.dryRun,
		Delay:      flags.delay,
	})
	return cmdutil.RunSummary(app.OutputFormat(), stats, err)
}

func newListCommand(app AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print an embedded prize roster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "nobel",
		Short: "Print the Nobel literature laureates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			laureates, err := prizes.Nobel()
			if err != nil {
				return err
			}
			return output.Write(output.DetectFormat(app.OutputFormat()), laureates)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "aquileo",
		Short: "Print the Aquileo J. Echeverría winners",
		RunE: func(cmd *cobra.Command, _ []string) error {
			winners, err := prizes.Aquileo()
			if err != nil {
				return err
			}
			return output.Write(output.DetectFormat(app.OutputFormat()), winners)
		},
	})

	return cmd
}
