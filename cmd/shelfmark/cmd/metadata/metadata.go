// Package metadata implements the metadata repair command.
package metadata

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/quartoworks/shelfmark/internal/cmdutil"
	"github.com/quartoworks/shelfmark/internal/enrich"
)

// AppContext is the slice of the application the metadata commands
// need.
type AppContext interface {
	Enrich() (*enrich.Service, error)
	Collection() string
	ItemType() string
	Delay() time.Duration
	OutputFormat() string
}

// NewCommand creates the metadata command with its subcommands.
func NewCommand(app AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "metadata",
		GroupID: "core",
		Short:   "Repair bibliographic metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newFixCommand(app))

	return cmd
}

func newFixCommand(app AppContext) *cobra.Command {
	var flags *cmdutil.PipelineFlags
	var dryRun bool
	var limit int

	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Correct and complete item fields with the local model",
		Long: `Fix scrubs placeholder values ("-", "n/a", "s.n.", and the like) from
each selected item and asks the local model to correct or complete the
bibliographic fields from search context.

Only a whitelist of fields can be rewritten; anything else the model
volunteers is ignored. Creators are replaced as a unit when the model
respells them.`,
		Example: `  shelfmark metadata fix --dry-run         # preview corrections
  shelfmark metadata fix --limit 20        # bounded repair run
  shelfmark metadata fix -c Q3JK9F2P      # one collection`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFix(cmd.Context(), app, flags, dryRun, limit)
		},
	}

	flags = cmdutil.AddPipelineFlags(cmd, app.Collection(), app.ItemType(), app.Delay())
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log corrections without writing them")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap how many items one run touches (0 = no cap)")

	return cmd
}

func runFix(ctx context.Context, app AppContext, flags *cmdutil.PipelineFlags, dryRun bool, limit int) error {
	svc, err := app.Enrich()
	if err != nil {
		return err
	}

	stats, err := svc.Metadata(ctx, enrich.MetadataOptions{
		Collection: flags.Collection,
		ItemType:   flags.ItemType,
		DryRun:     dryRun,
		Limit:      limit,
		Delay:      flags.Delay,
	})
	return cmdutil.RunSummary(app.OutputFormat(), stats, err)
}
