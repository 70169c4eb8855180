// Package deepresearch drives background research jobs over the Gemini
// interactions API and turns their output into library notes. Jobs are
// long-running and survive the process: every started interaction is
// recorded in a local state file until its report is safely saved, so an
// interrupted run can reattach to the stream or collect the finished
// result later.
//
// The genai SDK does not expose the interactions surface, so the client
// speaks the REST protocol directly: JSON calls for create/get and
// server-sent events for streaming.
package deepresearch

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/quartoworks/shelfmark/pkg/constants"
	"github.com/quartoworks/shelfmark/pkg/errors"
)

// DefaultBaseURL is the Gemini API root the interactions endpoints live
// under.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const interactionsPath = "/interactions"

// Interaction statuses as the API reports them. Both "succeeded" and
// "completed" appear in the wild for finished jobs.
const (
	StatusPending    = "pending"
	StatusRunning    = "running"
	StatusInProgress = "in_progress"
	StatusSucceeded  = "succeeded"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Interaction is a research job as the API reports it.
type Interaction struct {
	ID      string       `json:"id"`
	Status  string       `json:"status"`
	Outputs []Output     `json:"outputs,omitempty"`
	Error   *StatusError `json:"error,omitempty"`
}

// Done reports whether the job finished successfully.
func (in *Interaction) Done() bool {
	return in.Status == StatusSucceeded || in.Status == StatusCompleted
}

// Failed reports whether the job ended in failure.
func (in *Interaction) Failed() bool {
	return in.Status == StatusFailed
}

// ReportText returns the final output text, which carries the full report
// once the job is done.
func (in *Interaction) ReportText() string {
	if len(in.Outputs) == 0 {
		return ""
	}
	return in.Outputs[len(in.Outputs)-1].Text
}

// Output is one output block of an interaction.
type Output struct {
	Text string `json:"text"`
}

// StatusError is the error detail attached to a failed interaction or
// carried by an error event.
type StatusError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return e.Message
}

// Config parameterizes the interactions client. Zero values fall back to
// the package defaults.
type Config struct {
	APIKey        string
	BaseURL       string
	Agent         string        // deep-research agent for background jobs
	FollowUpModel string        // lightweight model for follow-up questions
	Timeout       time.Duration // non-streaming calls
	StreamTimeout time.Duration // per-connection cap on streams
}

// Client calls the interactions endpoints. It keeps two HTTP clients: a
// short-timeout one for JSON calls and a long-timeout one for streams,
// because a healthy stream stays open for minutes.
type Client struct {
	http          *resty.Client
	stream        *resty.Client
	agent         string
	followUpModel string
}

// New builds an interactions client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Agent == "" {
		cfg.Agent = constants.DeepResearchModel
	}
	if cfg.FollowUpModel == "" {
		cfg.FollowUpModel = constants.FollowUpModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = constants.ResearchRequestTimeout
	}
	if cfg.StreamTimeout == 0 {
		cfg.StreamTimeout = constants.ResearchStreamTimeout
	}

	newClient := func(timeout time.Duration) *resty.Client {
		return resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("x-goog-api-key", cfg.APIKey).
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout)
	}

	return &Client{
		http:          newClient(cfg.Timeout),
		stream:        newClient(cfg.StreamTimeout),
		agent:         cfg.Agent,
		followUpModel: cfg.FollowUpModel,
	}
}

// Agent returns the configured deep-research agent name.
func (c *Client) Agent() string {
	return c.agent
}

type createRequest struct {
	Input                 string       `json:"input"`
	Agent                 string       `json:"agent,omitempty"`
	Model                 string       `json:"model,omitempty"`
	Background            bool         `json:"background,omitempty"`
	Stream                bool         `json:"stream,omitempty"`
	AgentConfig           *agentConfig `json:"agent_config,omitempty"`
	PreviousInteractionID string       `json:"previous_interaction_id,omitempty"`
}

type agentConfig struct {
	Type              string `json:"type"`
	ThinkingSummaries string `json:"thinking_summaries,omitempty"`
}

// Start launches a background research job and returns its event stream.
// The first useful event is interaction.start, which carries the id the
// caller must persist before consuming anything else.
func (c *Client) Start(ctx context.Context, prompt string) (*Stream, error) {
	body := createRequest{
		Input:      prompt,
		Agent:      c.agent,
		Background: true,
		Stream:     true,
		AgentConfig: &agentConfig{
			Type:              "deep-research",
			ThinkingSummaries: "auto",
		},
	}

	res, err := c.stream.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetBody(body).
		SetDoNotParseResponse(true).
		Post(interactionsPath)
	return openStream(res, err, interactionsPath)
}

// Resume reattaches to a running job's event stream. A non-empty
// lastEventID asks the server to replay from just after that event.
func (c *Client) Resume(ctx context.Context, id, lastEventID string) (*Stream, error) {
	endpoint := interactionsPath + "/" + id
	req := c.stream.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetQueryParam("stream", "true").
		SetDoNotParseResponse(true)
	if lastEventID != "" {
		req.SetHeader("Last-Event-ID", lastEventID)
	}

	res, err := req.Get(endpoint)
	return openStream(res, err, endpoint)
}

// Get fetches the current snapshot of a job.
func (c *Client) Get(ctx context.Context, id string) (*Interaction, error) {
	endpoint := interactionsPath + "/" + id
	var out Interaction

	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(endpoint)
	if err != nil {
		return nil, &errors.APIError{Service: "gemini", Endpoint: endpoint, Message: "request failed", Err: err}
	}
	if res.IsError() {
		return nil, apiError(res, endpoint)
	}
	return &out, nil
}

// FollowUp asks one question in the context of a finished research job,
// chaining through previous_interaction_id on the lightweight model, and
// returns the answer text.
func (c *Client) FollowUp(ctx context.Context, previousID, question string) (string, error) {
	body := createRequest{
		Input:                 question,
		Model:                 c.followUpModel,
		PreviousInteractionID: previousID,
	}
	var out Interaction

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(interactionsPath)
	if err != nil {
		return "", &errors.APIError{Service: "gemini", Endpoint: interactionsPath, Message: "request failed", Err: err}
	}
	if res.IsError() {
		return "", apiError(res, interactionsPath)
	}

	answer := strings.TrimSpace(out.ReportText())
	if answer == "" {
		return "", &errors.APIError{Service: "gemini", Endpoint: interactionsPath, Message: "empty follow-up answer"}
	}
	return answer, nil
}

// openStream converts a raw streaming response into a Stream, translating
// connection and HTTP-level failures into API errors.
func openStream(res *resty.Response, err error, endpoint string) (*Stream, error) {
	if err != nil {
		return nil, &errors.APIError{Service: "gemini", Endpoint: endpoint, Message: "stream connect failed", Err: err}
	}
	if res.StatusCode() >= 400 {
		defer func() { _ = res.RawBody().Close() }()
		detail, _ := io.ReadAll(io.LimitReader(res.RawBody(), 2048))
		return nil, newAPIError(res.StatusCode(), endpoint, detail, res.Status())
	}
	return NewStream(res.RawBody()), nil
}

func apiError(res *resty.Response, endpoint string) error {
	return newAPIError(res.StatusCode(), endpoint, res.Body(), res.Status())
}

// newAPIError extracts the message from a Google-style error body
// ({"error": {"code", "message"}}), falling back to the raw body or the
// HTTP status line.
func newAPIError(statusCode int, endpoint string, body []byte, status string) error {
	message := ""
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		message = strings.TrimSpace(payload.Error.Message)
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
		if len(message) > 200 {
			message = message[:200]
		}
	}
	if message == "" {
		message = status
	}
	return &errors.APIError{
		Service:    "gemini",
		StatusCode: statusCode,
		Endpoint:   endpoint,
		Message:    message,
	}
}
