// Package research implements the deep-research report commands.
package research

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quartoworks/shelfmark/internal/cmdutil"
	"github.com/quartoworks/shelfmark/internal/cmdutil/output"
	"github.com/quartoworks/shelfmark/internal/deepresearch"
	"github.com/quartoworks/shelfmark/internal/gemini"
	"github.com/quartoworks/shelfmark/pkg/constants"
)

// AppContext is the slice of the application the research commands
// need.
type AppContext interface {
	Research() (*deepresearch.Service, error)
	Gemini(ctx context.Context) (*gemini.Client, error)
	Collection() string
	ItemType() string
	Delay() time.Duration
	OutputFormat() string
}

// NewCommand creates the research command with its subcommands.
func NewCommand(app AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "research",
		GroupID: "management",
		Short:   "Generate deep-research reports",
		Long: `Research runs background deep-research jobs about each selected work
and its author, and saves the finished reports as child notes.

Jobs survive interruptions: every started job is recorded in the state
file, and "research resume" picks up where a crashed or cancelled run
left off. "research status" shows what is still in flight.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newReportCommand(app))
	cmd.AddCommand(newResumeCommand(app))
	cmd.AddCommand(newStatusCommand(app))
	cmd.AddCommand(newFollowUpCommand(app))
	cmd.AddCommand(newPurgeCommand(app))

	return cmd
}

func newReportCommand(app AppContext) *cobra.Command {
	var flags *cmdutil.PipelineFlags
	var preflight bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Research every item that lacks a report",
		Long: `Report starts a deep-research job for each selected item that does not
already carry a report note, streams the job to completion, and saves
the report as a child note.

--preflight verifies the configured key can see the research agent
before any job starts, failing fast instead of on the first item.`,
		Example: `  shelfmark research report -c Q3JK9F2P   # one collection
  shelfmark research report --preflight    # check the key first`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd.Context(), app, flags, preflight)
		},
	}

	flags = cmdutil.AddPipelineFlags(cmd, app.Collection(), app.ItemType(), app.Delay())
	cmd.Flags().BoolVar(&preflight, "preflight", false, "verify the API key and research agent before starting")

	return cmd
}

func runReport(ctx context.Context, app AppContext, flags *cmdutil.PipelineFlags, preflight bool) error {
	if preflight {
		gem, err := app.Gemini(ctx)
		if err != nil {
			return err
		}
		if err := gem.VerifyModel(ctx, constants.DeepResearchModel); err != nil {
			return err
		}
	}

	svc, err := app.Research()
	if err != nil {
		return err
	}

	stats, err := svc.Report(ctx, deepresearch.Options{
		Collection: flags.Collection,
		ItemType:   flags.ItemType,
		Delay:      flags.Delay,
	})
	return cmdutil.RunSummary(app.OutputFormat(), stats, err)
}

func newResumeCommand(app AppContext) *cobra.Command {
	var item string
	var restart bool
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "resume [KEY]",
		Short: "Finish recorded research jobs",
		Long: `Resume walks the recorded jobs, checks each interaction's live status,
and finishes the ones that are done: the report is saved as a note and
the state entry dropped. Failed jobs are dropped, or relaunched with
--restart. A KEY argument resumes just that job.`,
		Example: `  shelfmark research resume                          # all recorded jobs
  shelfmark research resume "El reino_Emmanuel Carrère"   # one job
  shelfmark research resume --restart                # relaunch failures`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) > 0 {
				key = args[0]
			}
			return runResume(cmd.Context(), app, key, item, restart, delay)
		},
	}

	cmd.Flags().StringVar(&item, "item", "", "item key to save the report to, bypassing the title search (needs KEY)")
	cmd.Flags().BoolVar(&restart, "restart", false, "relaunch failed jobs instead of dropping them")
	cmd.Flags().DurationVar(&delay, "delay", app.Delay(), "pause between jobs")

	return cmd
}

func runResume(ctx context.Context, app AppContext, key, item string, restart bool, delay time.Duration) error {
	svc, err := app.Research()
	if err != nil {
		return err
	}

	stats, err := svc.Resume(ctx, deepresearch.ResumeOptions{
		Key:     key,
		Item:    item,
		Restart: restart,
		Delay:   delay,
	})
	return cmdutil.RunSummary(app.OutputFormat(), stats, err)
}

// statusRow is one recorded job shaped for output.
type statusRow struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Status  string `json:"status"`
	Started string `json:"started"`
}

func newStatusCommand(app AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show recorded jobs and their live status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.Research()
			if err != nil {
				return err
			}

			sessions, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				cmd.Println("No research jobs recorded.")
				return nil
			}

			rows := make([]statusRow, 0, len(sessions))
			for _, s := range sessions {
				rows = append(rows, statusRow{
					Key:     s.Key,
					Title:   s.Title,
					Author:  s.Author,
					Status:  s.Status,
					Started: s.StartedAt.Format(time.RFC3339),
				})
			}
			return output.Write(output.DetectFormat(app.OutputFormat()), rows)
		},
	}
}

func newFollowUpCommand(app AppContext) *cobra.Command {
	var item string
	var save bool

	cmd := &cobra.Command{
		Use:   "followup KEY QUESTION...",
		Short: "Ask a follow-up question about a finished report",
		Long: `Followup asks one question in the context of a recorded research job
and prints the answer. With --save the exchange is also appended to the
item's report note.`,
		Example: `  shelfmark research followup "El reino_Emmanuel Carrère" ¿Qué dice sobre Renan?
  shelfmark research followup "El reino_Emmanuel Carrère" --save "¿Y sobre Pablo?"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFollowUp(cmd.Context(), cmd, app, args[0], strings.Join(args[1:], " "), item, save)
		},
	}

	cmd.Flags().StringVar(&item, "item", "", "item key to save the exchange to, bypassing the title search")
	cmd.Flags().BoolVar(&save, "save", false, "append the exchange to the report note")

	return cmd
}

func runFollowUp(ctx context.Context, cmd *cobra.Command, app AppContext, key, question, item string, save bool) error {
	svc, err := app.Research()
	if err != nil {
		return err
	}

	answer, err := svc.FollowUp(ctx, deepresearch.FollowUpOptions{
		Key:      key,
		Item:     item,
		Question: question,
		Save:     save,
	})
	if answer != "" {
		cmd.Println(answer)
	}
	return err
}

func newPurgeCommand(app AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop recorded jobs whose item no longer exists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.Research()
			if err != nil {
				return err
			}

			stats, err := svc.Purge(cmd.Context())
			return cmdutil.RunSummary(app.OutputFormat(), stats, err)
		},
	}
}
