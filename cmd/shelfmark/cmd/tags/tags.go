// Package tags implements the subject-tag command.
package tags

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/quartoworks/shelfmark/internal/cmdutil"
	"github.com/quartoworks/shelfmark/internal/enrich"
)

// AppContext is the slice of the application the tags command needs.
type AppContext interface {
	Enrich() (*enrich.Service, error)
	Collection() string
	ItemType() string
	Delay() time.Duration
	OutputFormat() string
}

// NewCommand creates the tags command.
func NewCommand(app AppContext) *cobra.Command {
	var flags *cmdutil.PipelineFlags
	var overwrite bool

	cmd := &cobra.Command{
		Use:     "tags",
		GroupID: "core",
		Short:   "Generate subject tags with the local model",
		Long: `Tags asks the local model for subject tags and merges them into each
selected item.

Generated tags carry the "[AI] " prefix so they never mix with
hand-assigned ones, and existing tags are always preserved. Items that
already carry AI tags are skipped; --overwrite replaces their AI set
with a fresh one.`,
		Example: `  shelfmark tags                           # tag untagged items
  shelfmark tags --overwrite               # regenerate AI tags
  shelfmark tags -c Q3JK9F2P              # one collection`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), app, flags, overwrite)
		},
	}

	flags = cmdutil.AddPipelineFlags(cmd, app.Collection(), app.ItemType(), app.Delay())
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing AI tags with a fresh set")

	return cmd
}

func run(ctx context.Context, app AppContext, flags *cmdutil.PipelineFlags, overwrite bool) error {
	svc, err := app.Enrich()
	if err != nil {
		return err
	}

	stats, err := svc.Tags(ctx, enrich.TagOptions{
		Collection: flags.Collection,
		ItemType:   flags.ItemType,
		Overwrite:  overwrite,
		Delay:      flags.Delay,
	})
	return cmdutil.RunSummary(app.OutputFormat(), stats, err)
}
