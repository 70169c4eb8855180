// Package gemini checks Google AI Studio access before the research
// commands commit a key to a long-running job.
package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/quartoworks/shelfmark/pkg/errors"
)

// Client wraps the GenAI SDK for preflight checks: listing the models a
// key can see and probing for a specific one.
type Client struct {
	genai *genai.Client
}

// New builds an AI Studio client for the given key. There is no Vertex
// backend here; the research commands authenticate with a plain API key.
func New(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.NewAuthenticationError("gemini", "api_key", "GEMINI_API_KEY not set", errors.ErrAPIKeyRequired)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, errors.WrapAPI("gemini", 0, err)
	}
	return &Client{genai: client}, nil
}

// ListModels returns the IDs of every base model visible to the key,
// following pagination. A successful call doubles as proof the key works.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		config := &genai.ListModelsConfig{
			QueryBase: genai.Ptr(true),
			PageSize:  100,
		}
		if pageToken != "" {
			config.PageToken = pageToken
		}
		page, err := c.genai.Models.List(ctx, config)
		if err != nil {
			return nil, errors.WrapAPI("gemini", 0, err)
		}
		for _, model := range page.Items {
			ids = append(ids, ModelID(model.Name))
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return ids, nil
}

// VerifyModel probes for the named model with a direct Get. The name may
// be a bare ID or the full models/... resource name.
func (c *Client) VerifyModel(ctx context.Context, name string) error {
	resource := name
	if !strings.Contains(resource, "/") {
		resource = "models/" + resource
	}
	if _, err := c.genai.Models.Get(ctx, resource, &genai.GetModelConfig{}); err != nil {
		return &errors.APIError{
			Service:  "gemini",
			Endpoint: resource,
			Message:  "model " + ModelID(name) + " not available to this key",
			Err:      err,
		}
	}
	return nil
}

// ModelID strips the resource prefix from a model name
// ("models/gemini-2.0-flash" -> "gemini-2.0-flash").
func ModelID(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
