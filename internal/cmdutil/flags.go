// Package cmdutil provides shared flags and output helpers for
// shelfmark commands.
package cmdutil

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/quartoworks/shelfmark/internal/cmdutil/output"
)

// PipelineFlags holds the selection and pacing flags shared by the
// enrichment pipelines.
type PipelineFlags struct {
	Collection string
	ItemType   string
	Delay      time.Duration
}

// AddPipelineFlags registers the shared pipeline flags on a command.
// The defaults come from the app configuration so ZOTERO_COLLECTION_KEY
// and friends keep working without flags.
func AddPipelineFlags(cmd *cobra.Command, collection, itemType string, delay time.Duration) *PipelineFlags {
	flags := &PipelineFlags{}

	cmd.Flags().StringVarP(&flags.Collection, "collection", "c", collection,
		"collection key to restrict the run to (empty = whole library)")
	cmd.Flags().StringVar(&flags.ItemType, "item-type", itemType,
		"item type to select")
	cmd.Flags().DurationVar(&flags.Delay, "delay", delay,
		"pause between items")

	return flags
}

// RunSummary prints a pipeline's closing counters in the configured
// output format and folds a formatting failure into the result. The
// run's own error always wins; a nil stats means the run aborted before
// counting anything, so there is nothing to print.
func RunSummary[T any](format string, stats *T, runErr error) error {
	if stats == nil {
		return runErr
	}
	if err := output.Write(output.DetectFormat(format), *stats); err != nil && runErr == nil {
		return err
	}
	return runErr
}
