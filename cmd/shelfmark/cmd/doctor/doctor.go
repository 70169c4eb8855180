// Package doctor implements the environment check command.
package doctor

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quartoworks/shelfmark/internal/cmdutil/output"
	"github.com/quartoworks/shelfmark/internal/deepresearch"
	"github.com/quartoworks/shelfmark/internal/gemini"
	"github.com/quartoworks/shelfmark/internal/ollama"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

// AppContext is the slice of the application the doctor command needs.
type AppContext interface {
	Zotero() (*zotero.Client, error)
	Ollama() *ollama.Client
	Gemini(ctx context.Context) (*gemini.Client, error)
	StatePath() string
	OutputFormat() string
}

// Check statuses. Only a failed check makes doctor exit non-zero;
// warnings cover the optional AI backends.
const (
	statusOK     = "ok"
	statusWarn   = "warn"
	statusFailed = "failed"
)

// check is one probe result shaped for output.
type check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// NewCommand creates the doctor command.
func NewCommand(app AppContext) *cobra.Command {
	return &cobra.Command{
		Use:     "doctor",
		GroupID: "management",
		Short:   "Check the environment setup",
		Long: `Doctor probes everything the commands depend on: the reference-manager
credentials, the local model endpoint, the research API key, and the
research state file.

The library check must pass; the AI backends only produce warnings,
since the commands that need them name the problem themselves.`,
		Example: `  shelfmark doctor                         # human-readable table
  shelfmark doctor -o json                # scriptable report`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), app)
		},
	}
}

func run(ctx context.Context, app AppContext) error {
	checks := []check{
		checkZotero(ctx, app),
		checkOllama(ctx, app),
		checkGemini(ctx, app),
		checkState(app),
	}

	if err := output.Write(output.DetectFormat(app.OutputFormat()), checks); err != nil {
		return err
	}

	failed := 0
	for _, c := range checks {
		if c.Status == statusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

// checkZotero verifies the credentials with a one-item listing, the
// cheapest call that exercises authentication.
func checkZotero(ctx context.Context, app AppContext) check {
	c := check{Name: "zotero"}

	zot, err := app.Zotero()
	if err != nil {
		c.Status = statusFailed
		c.Detail = err.Error()
		return c
	}

	if _, err := zot.Items(ctx, zotero.ItemQuery{Limit: 1}); err != nil {
		c.Status = statusFailed
		c.Detail = fmt.Sprintf("library probe failed: %v", err)
		return c
	}

	c.Status = statusOK
	c.Detail = "credentials accepted"
	return c
}

// checkOllama verifies the endpoint answers and the configured model is
// pulled.
func checkOllama(ctx context.Context, app AppContext) check {
	c := check{Name: "ollama"}

	llm := app.Ollama()
	models, err := llm.Models(ctx)
	if err != nil {
		c.Status = statusWarn
		c.Detail = fmt.Sprintf("endpoint unreachable: %v", err)
		return c
	}

	want := llm.Model()
	for _, model := range models {
		if model == want {
			c.Status = statusOK
			c.Detail = fmt.Sprintf("model %s available", want)
			return c
		}
	}

	c.Status = statusWarn
	c.Detail = fmt.Sprintf("model %s not in the local list (%d available)", want, len(models))
	return c
}

// checkGemini verifies the research key by listing the models it can
// see.
func checkGemini(ctx context.Context, app AppContext) check {
	c := check{Name: "gemini"}

	gem, err := app.Gemini(ctx)
	if err != nil {
		c.Status = statusWarn
		c.Detail = err.Error()
		return c
	}

	ids, err := gem.ListModels(ctx)
	if err != nil {
		c.Status = statusWarn
		c.Detail = fmt.Sprintf("key rejected: %v", err)
		return c
	}

	c.Status = statusOK
	c.Detail = fmt.Sprintf("key can see %d models", len(ids))
	return c
}

// checkState verifies the research state file parses. A missing file is
// fine; a corrupt one would block the research commands.
func checkState(app AppContext) check {
	c := check{Name: "state file"}

	state, err := deepresearch.LoadState(app.StatePath())
	if err != nil {
		c.Status = statusFailed
		c.Detail = err.Error()
		return c
	}

	c.Status = statusOK
	c.Detail = fmt.Sprintf("%s, %d recorded jobs", state.Path(), state.Len())
	return c
}
