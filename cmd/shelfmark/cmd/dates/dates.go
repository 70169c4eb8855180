// Package dates implements the original-publication-date command.
package dates

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/quartoworks/shelfmark/internal/cmdutil"
	"github.com/quartoworks/shelfmark/internal/enrich"
)

// AppContext is the slice of the application the dates command needs.
type AppContext interface {
	Enrich() (*enrich.Service, error)
	Collection() string
	ItemType() string
	Delay() time.Duration
	OutputFormat() string
}

// NewCommand creates the dates command.
func NewCommand(app AppContext) *cobra.Command {
	var flags *cmdutil.PipelineFlags
	var overwrite bool

	cmd := &cobra.Command{
		Use:     "dates",
		GroupID: "core",
		Short:   "Research original publication dates",
		Long: `Dates researches when each selected work was first published and
records the year as an original-date line in the Extra field. The
edition date in the date field is left alone, so sorting by original
date becomes possible without losing the edition information.

Findings the model is not confident about are discarded rather than
written. Items that already record an original date are skipped unless
--overwrite re-researches them.`,
		Example: `  shelfmark dates                          # fill missing original dates
  shelfmark dates --overwrite              # re-research everything`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), app, flags, overwrite)
		},
	}

	flags = cmdutil.AddPipelineFlags(cmd, app.Collection(), app.ItemType(), app.Delay())
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "re-research items that already record an original date")

	return cmd
}

func run(ctx context.Context, app AppContext, flags *cmdutil.PipelineFlags, overwrite bool) error {
	svc, err := app.Enrich()
	if err != nil {
		return err
	}

	stats, err := svc.Dates(ctx, enrich.DateOptions{
		Collection: flags.Collection,
		ItemType:   flags.ItemType,
		Overwrite:  overwrite,
		Delay:      flags.Delay,
	})
	return cmdutil.RunSummary(app.OutputFormat(), stats, err)
}
