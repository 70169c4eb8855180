// Package enrich implements the relation-linking command.
package enrich

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/quartoworks/shelfmark/internal/cmdutil"
	"github.com/quartoworks/shelfmark/internal/enrich"
)

// AppContext is the slice of the application the enrich commands need.
type AppContext interface {
	Enrich() (*enrich.Service, error)
	Collection() string
	ItemType() string
	Delay() time.Duration
	OutputFormat() string
}

// NewCommand creates the enrich command with its subcommands.
func NewCommand(app AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "enrich",
		GroupID: "core",
		Short:   "Cross-item enrichment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newRelationsCommand(app))

	return cmd
}

func newRelationsCommand(app AppContext) *cobra.Command {
	var flags *cmdutil.PipelineFlags
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "relations",
		Short: "Link related items to each other",
		Long: `Relations classifies each selected item by genre and keywords, scores
every pair on shared authorship and vocabulary, and records related-item
links both ways for pairs that score high enough.

Classification failures degrade to the item's existing tags, so a flaky
model run still links what it can.`,
		Example: `  shelfmark enrich relations -c Q3JK9F2P  # link within a collection
  shelfmark enrich relations --dry-run     # preview the links`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRelations(cmd.Context(), app, flags, dryRun)
		},
	}

	flags = cmdutil.AddPipelineFlags(cmd, app.Collection(), app.ItemType(), app.Delay())
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log the links each item would receive without writing them")

	return cmd
}

func runRelations(ctx context.Context, app AppContext, flags *cmdutil.PipelineFlags, dryRun bool) error {
	svc, err := app.Enrich()
	if err != nil {
		return err
	}

	stats, err := svc.Relations(ctx, enrich.RelationOptions{
		Collection: flags.Collection,
		ItemType:   flags.ItemType,
		DryRun:     dryRun,
		Delay:      flags.Delay,
	})
	return cmdutil.RunSummary(app.OutputFormat(), stats, err)
}
