// Package covers implements the cover image commands.
package covers

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/quartoworks/shelfmark/internal/cmdutil"
	"github.com/quartoworks/shelfmark/internal/covers"
)

// AppContext is the slice of the application the cover commands need.
type AppContext interface {
	Covers() (*covers.Service, error)
	Collection() string
	Delay() time.Duration
	OutputFormat() string
}

// NewCommand creates the covers command with its subcommands.
func NewCommand(app AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "covers",
		GroupID: "core",
		Short:   "Manage book cover images",
		Long: `Covers finds, embeds, and removes cover images for the books in the
library.

  fetch   attach a linked cover URL to books that lack a working one
  embed   store a compressed copy of each cover as a child note
  purge   delete cover attachments and embedded cover notes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newFetchCommand(app))
	cmd.AddCommand(newEmbedCommand(app))
	cmd.AddCommand(newPurgeCommand(app))

	return cmd
}

// coverFlags are shared by the three cover subcommands. The pipeline
// always targets books, so there is no item-type flag.
type coverFlags struct {
	collection string
	delay      time.Duration
}

func addCoverFlags(cmd *cobra.Command, app AppContext, flags *coverFlags) {
	cmd.Flags().StringVarP(&flags.collection, "collection", "c", app.Collection(),
		"collection key to restrict the run to (empty = whole library)")
	cmd.Flags().DurationVar(&flags.delay, "delay", app.Delay(),
		"pause between items")
}

func newFetchCommand(app AppContext) *cobra.Command {
	var flags coverFlags

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Attach cover image URLs to books",
		Long: `Fetch searches the web for each book's cover and attaches the best
candidate as a linked-URL attachment.

Google Books is tried first, then the image search engine. Candidate
URLs are verified to actually serve an image before they are attached.
Attachments that already exist are re-validated, and dead ones are
replaced.`,
		Example: `  shelfmark covers fetch                   # whole library
  shelfmark covers fetch -c Q3JK9F2P      # one collection
  shelfmark covers fetch --delay 3s       # slower pacing`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd.Context(), app, flags)
		},
	}

	addCoverFlags(cmd, app, &flags)

	return cmd
}

func runFetch(ctx context.Context, app AppContext, flags coverFlags) error {
	svc, err := app.Covers()
	if err != nil {
		return err
	}

	stats, err := svc.Fetch(ctx, covers.Options{
		Collection: flags.collection,
		Delay:      flags.delay,
	})
	return cmdutil.RunSummary(app.OutputFormat(), stats, err)
}

func newEmbedCommand(app AppContext) *cobra.Command {
	var flags coverFlags

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed compressed covers as notes",
		Long: `Embed downloads each book's cover, compresses it to fit the note size
budget, and stores it as a child note with an inline base64 image.

Books without a cover attachment are searched first. Existing embedded
covers are kept unless their note content is corrupted, in which case
they are regenerated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEmbed(cmd.Context(), app, flags)
		},
	}

	addCoverFlags(cmd, app, &flags)

	return cmd
}

func runEmbed(ctx context.Context, app AppContext, flags coverFlags) error {
	svc, err := app.Covers()
	if err != nil {
		return err
	}

	stats, err := svc.Embed(ctx, covers.Options{
		Collection: flags.collection,
		Delay:      flags.delay,
	})
	return cmdutil.RunSummary(app.OutputFormat(), stats, err)
}

func newPurgeCommand(app AppContext) *cobra.Command {
	var flags coverFlags

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete cover attachments and embedded cover notes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPurge(cmd.Context(), app, flags)
		},
	}

	addCoverFlags(cmd, app, &flags)

	return cmd
}

func runPurge(ctx context.Context, app AppContext, flags coverFlags) error {
	svc, err := app.Covers()
	if err != nil {
		return err
	}

	stats, err := svc.Purge(ctx, covers.Options{
		Collection: flags.collection,
		Delay:      flags.delay,
	})
	return cmdutil.RunSummary(app.OutputFormat(), stats, err)
}
