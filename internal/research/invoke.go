package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mengysun/DataParasite/internal/schema"
)

// reasoningModels are the models that accept a reasoning-effort hint.
// Other models silently ignore the hint, so the request omits it.
var reasoningModels = map[string]bool{
	"gpt-5":      true,
	"gpt-5-mini": true,
	"gpt-5.1":    true,
	"gpt-5.2":    true,
}

// Request describes one research call. Prompts arrive fully rendered;
// the client does no templating.
type Request struct {
	Model             string
	SystemPrompt      string
	UserPrompt        string
	Schema            *schema.Schema
	ReasoningEffort   string // low, medium, high
	SearchContextSize string // low, medium, high
}

// Invoke sends the request and interprets the response.
//
// The error return covers everything the caller should treat as the
// call itself blowing up: transport failures, non-2xx statuses, an
// unreadable envelope, or a payload that violates the declared schema.
// A nil error with Result.OK == false means the service answered but
// did not produce a usable payload; usage in that Result is still real
// and must be accounted for.
func (c *Client) Invoke(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(buildBody(req))
	if err != nil {
		return nil, fmt.Errorf("research: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("research: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("research: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("research: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("research: status %d: %s", resp.StatusCode, apiErrorMessage(data))
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("research: decode response: %w", err)
	}
	return interpret(&env, req.Schema)
}

// buildBody assembles the responses-API request payload.
func buildBody(req Request) map[string]any {
	body := map[string]any{
		"model": req.Model,
		"input": []map[string]string{
			{"role": "system", "content": req.SystemPrompt},
			{"role": "user", "content": req.UserPrompt},
		},
		"tools": []map[string]any{
			{"type": "web_search", "search_context_size": req.SearchContextSize},
		},
		"text": map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   "output_record",
				"strict": true,
				"schema": req.Schema.JSONSchema(),
			},
		},
	}
	if reasoningModels[req.Model] {
		body["reasoning"] = map[string]string{"effort": req.ReasoningEffort}
	}
	return body
}

// apiErrorMessage pulls the service's error message out of a failure
// body, falling back to a trimmed raw snippet.
func apiErrorMessage(data []byte) string {
	var failure struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &failure); err == nil && failure.Error.Message != "" {
		return failure.Error.Message
	}
	const max = 200
	s := string(bytes.TrimSpace(data))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
