// Package abstracts implements the abstract-writing command.
package abstracts

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/quartoworks/shelfmark/internal/cmdutil"
	"github.com/quartoworks/shelfmark/internal/enrich"
)

// AppContext is the slice of the application the abstracts command
// needs.
type AppContext interface {
	Enrich() (*enrich.Service, error)
	Collection() string
	ItemType() string
	Delay() time.Duration
	OutputFormat() string
}

// NewCommand creates the abstracts command.
func NewCommand(app AppContext) *cobra.Command {
	var flags *cmdutil.PipelineFlags
	var overwrite, translate bool

	cmd := &cobra.Command{
		Use:     "abstracts",
		GroupID: "core",
		Short:   "Write Spanish abstracts with the local model",
		Long: `Abstracts asks the local model for a short, spoiler-free Spanish
abstract of each selected item and writes it into the abstract field.

Items that already have an abstract are skipped. --overwrite regenerates
them instead; --translate keeps them but rewrites the ones that are not
in Spanish.`,
		Example: `  shelfmark abstracts                      # fill empty abstracts
  shelfmark abstracts --overwrite          # regenerate all of them
  shelfmark abstracts --translate          # translate foreign ones`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), app, flags, overwrite, translate)
		},
	}

	flags = cmdutil.AddPipelineFlags(cmd, app.Collection(), app.ItemType(), app.Delay())
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "regenerate abstracts that are already filled")
	cmd.Flags().BoolVar(&translate, "translate", false, "rewrite existing abstracts that are not in Spanish")

	return cmd
}

func run(ctx context.Context, app AppContext, flags *cmdutil.PipelineFlags, overwrite, translate bool) error {
	svc, err := app.Enrich()
	if err != nil {
		return err
	}

	stats, err := svc.Abstracts(ctx, enrich.AbstractOptions{
		Collection: flags.Collection,
		ItemType:   flags.ItemType,
		Overwrite:  overwrite,
		Translate:  translate,
		Delay:      flags.Delay,
	})
	return cmdutil.RunSummary(app.OutputFormat(), stats, err)
}
