package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/quartoworks/shelfmark/internal/cmdutil/output"
	"github.com/quartoworks/shelfmark/pkg/logging"
)

// Execute runs the shelfmark CLI with the given arguments. This is the
// main entry point called from main.go.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all
// subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "shelfmark",
		Short:   "Reference library enrichment CLI",
		Version: a.version,
		Long: `Shelfmark enriches a Zotero library with automation the web interface
does not offer: cover images, AI-written abstracts and subject tags,
original publication dates, metadata repair, related-item links,
literary-prize reading lists, and deep-research reports saved as notes.

Credentials and endpoints come from the environment or a .env file:
ZOTERO_USER_ID and ZOTERO_API_KEY are required, OLLAMA_URL and
GEMINI_API_KEY unlock the AI commands. Run "shelfmark doctor" to check
the setup.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{
		ID:    "core",
		Title: "Enrichment Commands:",
	})

	rootCmd.AddGroup(&cobra.Group{
		ID:    "management",
		Title: "Management Commands:",
	})

	rootCmd.PersistentFlags().StringVar(&a.config.ConfigFile, "config", "", "config file (default is $HOME/.shelfmark.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.config.Verbose, "verbose", "v", a.config.Verbose, "verbose output (shortcut for --log-level=debug)")
	rootCmd.PersistentFlags().BoolVarP(&a.config.Quiet, "quiet", "q", a.config.Quiet, "minimal output (shortcut for --log-level=warn)")
	rootCmd.PersistentFlags().BoolVar(&a.config.NoColor, "no-color", a.config.NoColor, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&a.config.Format, "format", "o", a.config.Format, "output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&a.config.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")

	// Match the version subcommand's first line
	rootCmd.SetVersionTemplate("shelfmark {{.Version}}\n")

	a.registerCommands(rootCmd)

	return rootCmd
}

// setupCommand runs before any command: it folds parsed flags back into
// the config, rebuilds the logger, and hangs it on the command context
// so the pipelines log through it.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	// These flags are defined in createRootCommand, so a lookup failure
	// is a programming error
	verbose := mustGetBool(cmd, "verbose")
	quiet := mustGetBool(cmd, "quiet")
	noColor := mustGetBool(cmd, "no-color")
	format := mustGetString(cmd, "format")
	logLevel := mustGetString(cmd, "log-level")

	if _, err := output.ParseFormat(format); err != nil {
		return err
	}

	a.config.UpdateFromFlags(verbose, quiet, noColor, format, logLevel)

	logger := NewLogger(a.config)
	a.logger = &logger

	cmd.SetContext(logging.WithLogger(cmd.Context(), a.logger))

	return nil
}

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Enrichment pipelines
	rootCmd.AddCommand(a.NewCoversCommand())
	rootCmd.AddCommand(a.NewAbstractsCommand())
	rootCmd.AddCommand(a.NewTagsCommand())
	rootCmd.AddCommand(a.NewDatesCommand())
	rootCmd.AddCommand(a.NewMetadataCommand())
	rootCmd.AddCommand(a.NewEnrichCommand())

	// Management commands
	rootCmd.AddCommand(a.NewPrizesCommand())
	rootCmd.AddCommand(a.NewResearchCommand())
	rootCmd.AddCommand(a.NewDoctorCommand())

	// Utility commands
	rootCmd.AddCommand(a.NewVersionCommand())
}

// ExitOnError prints an error and exits with status 1. It is meant for
// top-level error handling in main.go.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

// mustGetBool retrieves a boolean flag value or panics if the flag does
// not exist. Only for flags defined in this package.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag
// does not exist. Only for flags defined in this package.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
