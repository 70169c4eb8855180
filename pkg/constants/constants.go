// Package constants provides shared constants used throughout the shelfmark codebase.
// This includes timeouts, limits, file permissions, and other configuration values
// that should be consistent across the application.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for requests to the reference-manager API
	DefaultHTTPTimeout = 10 * time.Second

	// ImageHTTPTimeout is the timeout for cover image downloads and search requests
	ImageHTTPTimeout = 8 * time.Second

	// OllamaTimeout is the default timeout for local model generation requests
	OllamaTimeout = 60 * time.Second

	// ResearchStreamTimeout is the per-connection timeout for deep-research streams;
	// background jobs can run for many minutes between reconnects
	ResearchStreamTimeout = 15 * time.Minute

	// ResearchRequestTimeout is the timeout for non-streaming interaction
	// calls; follow-up answers are generated synchronously
	ResearchRequestTimeout = 60 * time.Second

	// CommandTimeout is the default timeout for CLI commands
	CommandTimeout = 10 * time.Minute
)

// Delay and retry constants
const (
	// SearchDelay is the fixed pause between consecutive search or API calls,
	// keeping batch runs polite toward external services
	SearchDelay = 1 * time.Second

	// RateLimitRetryStep is the increment for fixed-step retry delays after
	// HTTP 429 responses: first wait one step, then two, then three
	RateLimitRetryStep = 10 * time.Second

	// MaxRateLimitRetries is the number of retries after rate-limit responses
	MaxRateLimitRetries = 3

	// MaxStreamReconnects is the reconnect budget for a broken research stream
	MaxStreamReconnects = 5

	// StreamReconnectDelay is the pause before re-attaching to a broken
	// research stream
	StreamReconnectDelay = 2 * time.Second
)

// Cover image constants
const (
	// MaxCoverB64Size is the ceiling for a base64-encoded embedded cover
	MaxCoverB64Size = 500000

	// MaxCoverWidth is the width covers are scaled down to before compression
	MaxCoverWidth = 600

	// CoverJPEGQuality is the starting JPEG quality for cover compression
	CoverJPEGQuality = 85

	// MinCoverJPEGQuality is the floor of the descending quality ladder
	MinCoverJPEGQuality = 20

	// CoverQualityStep is the decrement between quality attempts
	CoverQualityStep = 10

	// CoverScaleQuality is the JPEG quality used for the scale-down attempts
	CoverScaleQuality = 60
)

// Search constants
const (
	// MaxSearchResults caps how many web-search results are considered per query
	MaxSearchResults = 5

	// DateSearchResults caps results for original-date lookups, which need
	// fewer, more precise snippets
	DateSearchResults = 3

	// MinSnippetLength filters out search results with snippets shorter than this
	MinSnippetLength = 60
)

// Tagging constants
const (
	// AITagPrefix marks tags produced by a model, keeping them separable from
	// manually curated tags
	AITagPrefix = "[AI] "

	// MaxAITags caps how many model-generated tags an item may carry
	MaxAITags = 6
)

// Well-known child-object titles
const (
	// CoverAttachmentTitle is the title of the linked-URL cover attachment
	CoverAttachmentTitle = "Book Cover (Web)"

	// CoverNoteTitle is the title of the embedded base64 cover note
	CoverNoteTitle = "Book Cover (b64)"

	// ResearchNoteTitle is the title of the saved deep-research report note
	ResearchNoteTitle = "Deep Research Report"
)

// Model defaults
const (
	// DefaultOllamaModel is the local model used when OLLAMA_MODEL is unset
	DefaultOllamaModel = "minimax-m2:cloud"

	// DeepResearchModel is the agent used for background research jobs
	DeepResearchModel = "deep-research-pro-preview-12-2025"

	// FollowUpModel is the lightweight model used for follow-up questions
	FollowUpModel = "gemini-2.0-flash-lite"
)

// File and path constants
const (
	// StateFileName is the flat JSON file tracking in-flight research jobs
	StateFileName = "research_state.json"

	// DefaultConfigName is the config file searched for in $HOME and the cwd
	DefaultConfigName = ".shelfmark"
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644

	// SecureFilePermissions is for sensitive files like API keys (rw-------)
	SecureFilePermissions = 0600
)

// Format constants
const (
	// TimeFormatISO8601 is the ISO 8601 time format used in the state file
	TimeFormatISO8601 = time.RFC3339

	// TimeFormatFilename is the format used in generated filenames
	TimeFormatFilename = "20060102-150405"
)

// Paging constants
const (
	// DefaultPageSize is the page size for item listing requests
	DefaultPageSize = 100
)
