// Package app wires configuration, logging, and the API clients for the
// shelfmark CLI. It centralizes dependency construction so commands can
// accept a narrow context interface instead of building clients
// themselves.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quartoworks/shelfmark/internal/covers"
	"github.com/quartoworks/shelfmark/internal/deepresearch"
	"github.com/quartoworks/shelfmark/internal/enrich"
	"github.com/quartoworks/shelfmark/internal/gemini"
	"github.com/quartoworks/shelfmark/internal/ollama"
	"github.com/quartoworks/shelfmark/internal/prizes"
	"github.com/quartoworks/shelfmark/internal/websearch"
	"github.com/quartoworks/shelfmark/pkg/errors"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

// App holds the shelfmark application with all its dependencies:
// version information, configuration, the logger, and lazily created
// API clients shared by the commands.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	// Configuration
	config *Config

	// Logger
	logger *zerolog.Logger

	// Clients, created on first use
	mu       sync.Mutex
	zot      *zotero.Client
	llm      *ollama.Client
	search   *websearch.Client
	research *deepresearch.Service
}

// New creates an App with the given version information. Configuration
// is loaded from the environment and config file; functional options
// can override it.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version string.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the requested output format, empty for
// auto-detection.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// Collection returns the configured collection key scope.
func (a *App) Collection() string {
	return a.config.CollectionKey
}

// ItemType returns the configured target item type.
func (a *App) ItemType() string {
	return a.config.ItemType
}

// Delay returns the configured pause between items.
func (a *App) Delay() time.Duration {
	return a.config.SearchDelay
}

// StatePath returns the research state file path.
func (a *App) StatePath() string {
	return a.config.StateFile
}

// Zotero returns the reference-manager client, creating it on first
// use. Missing credentials are the one configuration error that aborts
// a command outright.
func (a *App) Zotero() (*zotero.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.zoteroLocked()
}

func (a *App) zoteroLocked() (*zotero.Client, error) {
	if a.zot != nil {
		return a.zot, nil
	}

	if a.config.ZoteroUserID == "" {
		return nil, &errors.ValidationError{
			Field:   "ZOTERO_USER_ID",
			Message: "set it in the environment or a .env file",
		}
	}
	if a.config.ZoteroAPIKey == "" {
		return nil, errors.NewAuthenticationError("zotero", "api_key",
			"ZOTERO_API_KEY is not set", errors.ErrAPIKeyRequired)
	}

	zot, err := zotero.New(zotero.Config{
		UserID:      a.config.ZoteroUserID,
		APIKey:      a.config.ZoteroAPIKey,
		LibraryType: a.config.ZoteroLibraryType,
		BaseURL:     a.config.ZoteroBaseURL,
		Timeout:     a.config.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.zot = zot
	return zot, nil
}

// Ollama returns the local LLM client, creating it on first use. The
// client has working defaults, so construction cannot fail; an
// unreachable server surfaces on the first request.
func (a *App) Ollama() *ollama.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ollamaLocked()
}

func (a *App) ollamaLocked() *ollama.Client {
	if a.llm == nil {
		a.llm = ollama.New(ollama.Config{
			URL:         a.config.OllamaURL,
			Model:       a.config.OllamaModel,
			Temperature: a.config.OllamaTemperature,
			Timeout:     a.config.OllamaTimeout,
		})
	}
	return a.llm
}

// Search returns the web-search client, creating it on first use.
func (a *App) Search() *websearch.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.searchLocked()
}

func (a *App) searchLocked() *websearch.Client {
	if a.search == nil {
		a.search = websearch.New(websearch.Config{
			Timeout: a.config.RequestTimeout,
		})
	}
	return a.search
}

// Gemini returns a model-preflight client for the configured key.
func (a *App) Gemini(ctx context.Context) (*gemini.Client, error) {
	if a.config.GeminiAPIKey == "" {
		return nil, errors.NewAuthenticationError("gemini", "api_key",
			"GEMINI_API_KEY is not set", errors.ErrAPIKeyRequired)
	}
	return gemini.New(ctx, a.config.GeminiAPIKey)
}

// Covers returns the cover pipeline service.
func (a *App) Covers() (*covers.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	zot, err := a.zoteroLocked()
	if err != nil {
		return nil, err
	}
	fetch := covers.NewFetcher(a.config.RequestTimeout)
	return covers.NewService(zot, a.searchLocked(), fetch), nil
}

// Enrich returns the AI enrichment service.
func (a *App) Enrich() (*enrich.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	zot, err := a.zoteroLocked()
	if err != nil {
		return nil, err
	}
	return enrich.NewService(zot, a.ollamaLocked(), a.searchLocked()), nil
}

// Prizes returns the reading-list import service.
func (a *App) Prizes() (*prizes.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	zot, err := a.zoteroLocked()
	if err != nil {
		return nil, err
	}
	return prizes.NewService(zot, a.ollamaLocked()), nil
}

// Research returns the deep-research service, loading the state file on
// first use. An undecodable state file is an error rather than a silent
// restart, so recorded jobs are never forgotten by accident.
func (a *App) Research() (*deepresearch.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.research != nil {
		return a.research, nil
	}

	zot, err := a.zoteroLocked()
	if err != nil {
		return nil, err
	}
	if a.config.GeminiAPIKey == "" {
		return nil, errors.NewAuthenticationError("gemini", "api_key",
			"GEMINI_API_KEY is not set", errors.ErrAPIKeyRequired)
	}
	state, err := deepresearch.LoadState(a.config.StateFile)
	if err != nil {
		return nil, err
	}

	api := deepresearch.New(deepresearch.Config{
		APIKey: a.config.GeminiAPIKey,
	})
	a.research = deepresearch.NewService(zot, api, state)
	return a.research, nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}
