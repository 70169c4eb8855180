package app

import (
	"github.com/spf13/cobra"

	"github.com/quartoworks/shelfmark/cmd/shelfmark/cmd/abstracts"
	"github.com/quartoworks/shelfmark/cmd/shelfmark/cmd/covers"
	"github.com/quartoworks/shelfmark/cmd/shelfmark/cmd/dates"
	"github.com/quartoworks/shelfmark/cmd/shelfmark/cmd/doctor"
	"github.com/quartoworks/shelfmark/cmd/shelfmark/cmd/enrich"
	"github.com/quartoworks/shelfmark/cmd/shelfmark/cmd/metadata"
	"github.com/quartoworks/shelfmark/cmd/shelfmark/cmd/prizes"
	"github.com/quartoworks/shelfmark/cmd/shelfmark/cmd/research"
	"github.com/quartoworks/shelfmark/cmd/shelfmark/cmd/tags"
)

// NewCoversCommand creates the covers command with app dependencies.
func (a *App) NewCoversCommand() *cobra.Command {
	return covers.NewCommand(a)
}

// NewAbstractsCommand creates the abstracts command with app dependencies.
func (a *App) NewAbstractsCommand() *cobra.Command {
	return abstracts.NewCommand(a)
}

// NewTagsCommand creates the tags command with app dependencies.
func (a *App) NewTagsCommand() *cobra.Command {
	return tags.NewCommand(a)
}

// NewDatesCommand creates the dates command with app dependencies.
func (a *App) NewDatesCommand() *cobra.Command {
	return dates.NewCommand(a)
}

// NewMetadataCommand creates the metadata command with app dependencies.
func (a *App) NewMetadataCommand() *cobra.Command {
	return metadata.NewCommand(a)
}

// NewEnrichCommand creates the enrich command with app dependencies.
func (a *App) NewEnrichCommand() *cobra.Command {
	return enrich.NewCommand(a)
}

// NewPrizesCommand creates the prizes command with app dependencies.
func (a *App) NewPrizesCommand() *cobra.Command {
	return prizes.NewCommand(a)
}

// NewResearchCommand creates the research command with app dependencies.
func (a *App) NewResearchCommand() *cobra.Command {
	return research.NewCommand(a)
}

// NewDoctorCommand creates the doctor command with app dependencies.
func (a *App) NewDoctorCommand() *cobra.Command {
	return doctor.NewCommand(a)
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("shelfmark %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}
