// Package research performs the remote half of an enrichment: one
// structured-output request per entity against an OpenAI-compatible
// responses endpoint, with web search enabled so the model can ground
// its answer.
//
// Design goals:
//
//   - Keep a tiny, explicit API (Invoke).
//   - One attempt per item, no retries and no per-call deadline; the
//     batch layer owns pacing and the caller owns cancellation via ctx.
//   - Report token and search-tool usage from the response trace, never
//     from assumptions about the request.
//   - Be easy to test by injecting a custom RoundTripper.
package research

import (
	"net/http"
	"strings"
)

// DefaultBaseURL is the production endpoint prefix.
const DefaultBaseURL = "https://api.openai.com/v1"

// Config configures the research client. APIKey is mandatory in
// production use; BaseURL and Transport exist for tests and proxies.
type Config struct {
	// BaseURL is the API prefix. When empty, DefaultBaseURL is used.
	BaseURL string

	// APIKey is sent as a bearer token on every request.
	APIKey string

	// Transport is an optional custom RoundTripper. When nil,
	// http.DefaultTransport is used.
	Transport http.RoundTripper
}

// Client issues structured research requests. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient constructs a Client from Config, applying defaults for
// zero values.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		// No Timeout on purpose: a deep-research call can legitimately
		// run for minutes, and the batch has no per-call deadline.
		httpClient: &http.Client{Transport: transport},
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     cfg.APIKey,
	}
}
