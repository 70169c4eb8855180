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

// MockContext implements Context for tests. Each method can be
// customized by setting the corresponding function field; nil fields
// return a default or zero value.
type MockContext struct {
	ZoteroFunc       func() (*zotero.Client, error)
	OllamaFunc       func() *ollama.Client
	SearchFunc       func() *websearch.Client
	GeminiFunc       func(ctx stdctx.Context) (*gemini.Client, error)
	CoversFunc       func() (*covers.Service, error)
	EnrichFunc       func() (*enrich.Service, error)
	PrizesFunc       func() (*prizes.Service, error)
	ResearchFunc     func() (*deepresearch.Service, error)
	StatePathFunc    func() string
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	CollectionFunc   func() string
	ItemTypeFunc     func() string
	DelayFunc        func() time.Duration
	VersionFunc      func() string
	CommitFunc       func() string
	DateFunc         func() string
	BuiltByFunc      func() string
}

var _ Context = (*MockContext)(nil)

// Zotero returns a client using the mock function or nil.
func (m *MockContext) Zotero() (*zotero.Client, error) {
	if m.ZoteroFunc != nil {
		return m.ZoteroFunc()
	}
	return nil, nil
}

// Ollama returns a client using the mock function or nil.
func (m *MockContext) Ollama() *ollama.Client {
	if m.OllamaFunc != nil {
		return m.OllamaFunc()
	}
	return nil
}

// Search returns a client using the mock function or nil.
func (m *MockContext) Search() *websearch.Client {
	if m.SearchFunc != nil {
		return m.SearchFunc()
	}
	return nil
}

// Gemini returns a client using the mock function or nil.
func (m *MockContext) Gemini(ctx stdctx.Context) (*gemini.Client, error) {
	if m.GeminiFunc != nil {
		return m.GeminiFunc(ctx)
	}
	return nil, nil
}

// Covers returns a service using the mock function or nil.
func (m *MockContext) Covers() (*covers.Service, error) {
	if m.CoversFunc != nil {
		return m.CoversFunc()
	}
	return nil, nil
}

// Enrich returns a service using the mock function or nil.
func (m *MockContext) Enrich() (*enrich.Service, error) {
	if m.EnrichFunc != nil {
		return m.EnrichFunc()
	}
	return nil, nil
}

// Prizes returns a service using the mock function or nil.
func (m *MockContext) Prizes() (*prizes.Service, error) {
	if m.PrizesFunc != nil {
		return m.PrizesFunc()
	}
	return nil, nil
}

// Research returns a service using the mock function or nil.
func (m *MockContext) Research() (*deepresearch.Service, error) {
	if m.ResearchFunc != nil {
		return m.ResearchFunc()
	}
	return nil, nil
}

// StatePath returns a path using the mock function or the empty string.
func (m *MockContext) StatePath() string {
	if m.StatePathFunc != nil {
		return m.StatePathFunc()
	}
	return ""
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *MockContext) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns a format using the mock function or "table".
func (m *MockContext) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "table"
}

// Collection returns a key using the mock function or the empty string.
func (m *MockContext) Collection() string {
	if m.CollectionFunc != nil {
		return m.CollectionFunc()
	}
	return ""
}

// ItemType returns a type using the mock function or "book".
func (m *MockContext) ItemType() string {
	if m.ItemTypeFunc != nil {
		return m.ItemTypeFunc()
	}
	return "book"
}

// Delay returns a pause using the mock function or zero.
func (m *MockContext) Delay() time.Duration {
	if m.DelayFunc != nil {
		return m.DelayFunc()
	}
	return 0
}

// Version returns a version using the mock function or "dev".
func (m *MockContext) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

// Commit returns a commit using the mock function or "unknown".
func (m *MockContext) Commit() string {
	if m.CommitFunc != nil {
		return m.CommitFunc()
	}
	return "unknown"
}

// Date returns a date using the mock function or "unknown".
func (m *MockContext) Date() string {
	if m.DateFunc != nil {
		return m.DateFunc()
	}
	return "unknown"
}

// BuiltBy returns a builder using the mock function or "unknown".
func (m *MockContext) BuiltBy() string {
	if m.BuiltByFunc != nil {
		return m.BuiltByFunc()
	}
	return "unknown"
}
