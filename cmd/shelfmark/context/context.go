// Package context provides the application context interface for
// shelfmark commands.
//
// Command packages declare the narrow slice of this interface they
// actually need and accept that; the App struct from cmd/shelfmark/app
// satisfies all of them. MockContext satisfies the full interface, so
// one mock serves every command test.
//
// Usage in commands:
//
//	type AppContext interface {
//	    Prizes() (*prizes.Service, error)
//	    OutputFormat() string
//	}
//
//	func NewCommand(app AppContext) *cobra.Command { ... }
//
// Testing with the mock:
//
//	mock := &context.MockContext{
//	    PrizesFunc: func() (*prizes.Service, error) {
//	        return testService, nil
//	    },
//	}
//	cmd := prizes.NewCommand(mock)
package context

import (
	stdctx "context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quartoworks/shelfmark/internal/covers"
	"github.com/quartoworks/shelfmark/internal/deepresearch"
	"github.com/quartoworks/shelfmark/internal/enrich"
	"github.com/quartoworks/shelfmark/internal/gemini"
	"github.com/quartoworks/shelfmark/internal/ollama"
	"github.com/quartoworks/shelfmark/internal/prizes"
	"github.com/quartoworks/shelfmark/internal/websearch"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

// Context is the full application surface commands can draw on.
// Clients and services are created lazily; accessors that need
// credentials return an error when the environment lacks them, which is
// the one startup failure that aborts a command.
type Context interface {
	// Zotero returns the reference-manager client.
	Zotero() (*zotero.Client, error)

	// Ollama returns the local LLM client.
	Ollama() *ollama.Client

	// Search returns the web-search client.
	Search() *websearch.Client

	// Gemini returns the model-preflight client.
	Gemini(ctx stdctx.Context) (*gemini.Client, error)

	// Covers returns the cover pipeline service.
	Covers() (*covers.Service, error)

	// Enrich returns the AI enrichment service.
	Enrich() (*enrich.Service, error)

	// Prizes returns the reading-list import service.
	Prizes() (*prizes.Service, error)

	// Research returns the deep-research service with its state loaded.
	Research() (*deepresearch.Service, error)

	// StatePath returns the research state file path.
	StatePath() string

	// Logger returns the configured logger.
	Logger() *zerolog.Logger

	// OutputFormat returns the requested output format, empty for
	// auto-detection.
	OutputFormat() string

	// Collection returns the configured collection key scope, empty for
	// the whole library.
	Collection() string

	// ItemType returns the configured target item type.
	ItemType() string

	// Delay returns the configured pause between items.
	Delay() time.Duration

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
