// Package ollama is a minimal client for a local Ollama server's generate
// endpoint. Completions run non-streaming; JSON-mode requests use the
// server-side format constraint and still pass through the recovery parser
// in this package, since models decorate their output anyway.
package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/quartoworks/shelfmark/pkg/constants"
	"github.com/quartoworks/shelfmark/pkg/errors"
	"github.com/quartoworks/shelfmark/pkg/logging"
)

// DefaultURL is where a stock Ollama install listens.
const DefaultURL = "http://localhost:11434"

// DefaultTemperature keeps the enrichment output factual.
const DefaultTemperature = 0.3

// Config holds the connection settings.
type Config struct {
	// URL of the Ollama server. Defaults to DefaultURL.
	URL string

	// Model to generate with. Defaults to constants.DefaultOllamaModel.
	Model string

	// Temperature for sampling. Defaults to DefaultTemperature.
	Temperature float64

	// Timeout bounds each request; generation is slow, so the default
	// is constants.OllamaTimeout.
	Timeout time.Duration

	// RetryStep scales the rate-limit backoff: attempt n sleeps
	// n*RetryStep. Defaults to constants.RateLimitRetryStep.
	RetryStep time.Duration
}

// Client talks to one Ollama server with one configured model.
type Client struct {
	http        *resty.Client
	model       string
	temperature float64
	retryStep   time.Duration
}

// New creates a client for the server described by cfg.
func New(cfg Config) *Client {
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	model := cfg.Model
	if model == "" {
		model = constants.DefaultOllamaModel
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.OllamaTimeout
	}
	retryStep := cfg.RetryStep
	if retryStep <= 0 {
		retryStep = constants.RateLimitRetryStep
	}

	http := resty.New()
	http.SetBaseURL(url)
	http.SetTimeout(timeout)

	return &Client{
		http:        http,
		model:       model,
		temperature: temperature,
		retryStep:   retryStep,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
	Format  string          `json:"format,omitempty"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Text     string `json:"text"`
}

// Generate returns the model's prose completion for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, "")
}

// GenerateJSON asks the server to constrain output to JSON and returns the
// raw completion text. Pair with DecodeJSON to parse it.
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, "json")
}

func (c *Client) generate(ctx context.Context, prompt, format string) (string, error) {
	const endpoint = "/api/generate"
	req := generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: c.temperature},
		Format:  format,
	}

	for attempt := 1; attempt <= constants.MaxRateLimitRetries; attempt++ {
		res, err := c.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(req).
			Post(endpoint)
		if err != nil {
			return "", &errors.APIError{Service: "ollama", Endpoint: endpoint, Message: "generate request failed", Err: err}
		}
		if res.StatusCode() == http.StatusTooManyRequests {
			wait := time.Duration(attempt) * c.retryStep
			logging.Ctx(ctx).Warn().Dur("wait", wait).Int("attempt", attempt).Msg("Ollama rate limited, backing off")
			if err := sleep(ctx, wait); err != nil {
				return "", err
			}
			continue
		}
		if res.IsError() {
			return "", c.statusError(res, endpoint)
		}

		var payload generateResponse
		if err := json.Unmarshal(res.Body(), &payload); err != nil {
			return "", errors.WrapParse("json", "generate response", err)
		}
		answer := strings.TrimSpace(payload.Response)
		if answer == "" {
			answer = strings.TrimSpace(payload.Text)
		}
		if answer == "" {
			return "", &errors.APIError{Service: "ollama", Endpoint: endpoint, Message: "empty completion"}
		}
		return answer, nil
	}
	return "", &errors.APIError{
		Service:    "ollama",
		Endpoint:   endpoint,
		StatusCode: http.StatusTooManyRequests,
		Message:    "still rate limited after " + strconv.Itoa(constants.MaxRateLimitRetries) + " attempts",
	}
}

// Models lists the model names the server has pulled.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	const endpoint = "/api/tags"
	res, err := c.http.R().SetContext(ctx).Get(endpoint)
	if err != nil {
		return nil, &errors.APIError{Service: "ollama", Endpoint: endpoint, Message: "listing models failed", Err: err}
	}
	if res.IsError() {
		return nil, c.statusError(res, endpoint)
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(res.Body(), &payload); err != nil {
		return nil, errors.WrapParse("json", "model listing", err)
	}
	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Verify checks that the server answers and has the configured model. A
// model configured without a tag matches any tagged variant of it.
func (c *Client) Verify(ctx context.Context) error {
	names, err := c.Models(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == c.model || strings.HasPrefix(name, c.model+":") {
			return nil
		}
	}
	return &errors.APIError{
		Service:    "ollama",
		StatusCode: http.StatusNotFound,
		Message:    "model " + c.model + " not found; pull it with 'ollama pull " + c.model + "'",
	}
}

// statusError turns an error response into an APIError, surfacing the
// server's own error message when it sends one.
func (c *Client) statusError(res *resty.Response, endpoint string) error {
	detail := ""
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(res.Body(), &payload) == nil {
		detail = payload.Error
		if detail == "" {
			detail = payload.Message
		}
	}
	if detail == "" && res.StatusCode() == http.StatusNotFound {
		detail = "model " + c.model + " not found; pull it with 'ollama pull " + c.model + "'"
	}
	if detail == "" {
		detail = strings.TrimSpace(string(res.Body()))
		if len(detail) > 200 {
			detail = detail[:200]
		}
	}
	if detail == "" {
		detail = res.Status()
	}
	return &errors.APIError{Service: "ollama", Endpoint: endpoint, StatusCode: res.StatusCode(), Message: detail}
}

// sleep pauses for the backoff interval, bailing out when the context ends.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
