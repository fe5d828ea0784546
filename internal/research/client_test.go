// internal/research/client_test.go
//
// These tests exercise the research client against a stub responses
// endpoint, focusing on:
//   - Request construction: prompts, tools, schema format, reasoning hint.
//   - Interpretation of completed, incomplete, and payload-less replies.
//   - Usage extraction, including the search-call trace.
//   - Error propagation for transport, HTTP, and schema failures.

package research

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mengysun/DataParasite/internal/schema"
)

func testSchema() *schema.Schema {
	return schema.New([]schema.Entry{
		{Name: "ceo", Tag: "string"},
		{Name: "founded_year", Tag: "optional-int"},
	})
}

func testRequest(model string) Request {
	return Request{
		Model:             model,
		SystemPrompt:      "You are a careful research assistant.",
		UserPrompt:        "Find the CEO of Acme.",
		Schema:            testSchema(),
		ReasoningEffort:   "medium",
		SearchContextSize: "medium",
	}
}

const happyEnvelope = `{
	"id": "resp_123",
	"status": "completed",
	"output": [
		{"type": "reasoning"},
		{"type": "web_search_call", "action": {"type": "search", "query": "Acme CEO"}},
		{"type": "web_search_call", "action": {"type": "open_page", "url": "https://acme.example"}},
		{"type": "web_search_call", "action": {"type": "search", "query": "Acme founded"}},
		{"type": "message", "content": [{"type": "output_text", "text": "{\"ceo\":\"Jane Doe\",\"founded_year\":1990}"}]}
	],
	"usage": {
		"input_tokens": 1200,
		"output_tokens": 300,
		"input_tokens_details": {"cached_tokens": 100}
	}
}`

// TestInvoke_Success verifies the full happy path: request shape, auth
// header, payload decoding, and usage extraction from the trace.
func TestInvoke_Success(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &gotBody); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		io.WriteString(w, happyEnvelope)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	res, err := c.Invoke(context.Background(), testRequest("gpt-4o-mini"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if gotPath != "/responses" {
		t.Fatalf("path = %q; want /responses", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Fatalf("model = %v", gotBody["model"])
	}
	if _, hasReasoning := gotBody["reasoning"]; hasReasoning {
		t.Fatalf("gpt-4o-mini should not carry a reasoning hint")
	}
	tools := gotBody["tools"].([]any)
	tool := tools[0].(map[string]any)
	if tool["type"] != "web_search" || tool["search_context_size"] != "medium" {
		t.Fatalf("tool = %v", tool)
	}
	format := gotBody["text"].(map[string]any)["format"].(map[string]any)
	if format["type"] != "json_schema" || format["strict"] != true {
		t.Fatalf("format = %v", format)
	}
	if _, ok := format["schema"].(map[string]any); !ok {
		t.Fatalf("format.schema missing: %v", format)
	}

	if !res.OK {
		t.Fatalf("OK = false; err = %q", res.Err)
	}
	if res.ResponseID != "resp_123" {
		t.Fatalf("ResponseID = %q", res.ResponseID)
	}
	if res.Fields["ceo"] != "Jane Doe" || res.Fields["founded_year"] != int64(1990) {
		t.Fatalf("Fields = %#v", res.Fields)
	}
	u := res.Usage
	if u.InputTokens != 1200 || u.OutputTokens != 300 || u.CachedTokens != 100 {
		t.Fatalf("usage = %+v", u)
	}
	// Two of the three web_search_call items are search actions.
	if u.WebSearchCalls != 2 {
		t.Fatalf("WebSearchCalls = %d; want 2", u.WebSearchCalls)
	}
}

// TestInvoke_ReasoningHint verifies the hint is attached exactly for
// the reasoning model family.
func TestInvoke_ReasoningHint(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		model string
		want  bool
	}{
		{"gpt-5", true},
		{"gpt-5-mini", true},
		{"gpt-5.1", true},
		{"gpt-5.2", true},
		{"gpt-4o", false},
		{"o3-deep-research", false},
	} {
		var gotBody map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			json.Unmarshal(data, &gotBody)
			io.WriteString(w, happyEnvelope)
		}))
		c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
		if _, err := c.Invoke(context.Background(), testRequest(tc.model)); err != nil {
			t.Fatalf("%s: Invoke: %v", tc.model, err)
		}
		srv.Close()

		hint, has := gotBody["reasoning"]
		if has != tc.want {
			t.Fatalf("%s: reasoning hint present=%v; want %v", tc.model, has, tc.want)
		}
		if tc.want {
			if eff := hint.(map[string]any)["effort"]; eff != "medium" {
				t.Fatalf("%s: effort = %v", tc.model, eff)
			}
		}
	}
}

// TestInvoke_IncompleteStatus verifies a non-terminal status yields a
// usable-but-failed Result with real usage and the generic diagnostic.
func TestInvoke_IncompleteStatus(t *testing.T) {
	t.Parallel()

	env := strings.Replace(happyEnvelope, `"status": "completed"`, `"status": "incomplete"`, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, env)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	res, err := c.Invoke(context.Background(), testRequest("gpt-4o-mini"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.OK {
		t.Fatalf("OK = true for incomplete status")
	}
	if res.Err != "incomplete or no parsed payload" {
		t.Fatalf("Err = %q", res.Err)
	}
	if res.Fields != nil {
		t.Fatalf("Fields = %#v; want nil", res.Fields)
	}
	if res.Usage.InputTokens != 1200 || res.Usage.WebSearchCalls != 2 {
		t.Fatalf("failed call lost its usage: %+v", res.Usage)
	}
}

// TestInvoke_NoPayload verifies a completed response without any
// output_text is a failed Result, not an error.
func TestInvoke_NoPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"id": "resp_9",
			"status": "completed",
			"output": [{"type": "web_search_call", "action": {"type": "search"}}],
			"usage": {"input_tokens": 50, "output_tokens": 0}
		}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	res, err := c.Invoke(context.Background(), testRequest("gpt-4o-mini"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.OK || res.Err != "incomplete or no parsed payload" {
		t.Fatalf("res = %+v", res)
	}
	if res.Usage.WebSearchCalls != 1 || res.Usage.InputTokens != 50 {
		t.Fatalf("usage = %+v", res.Usage)
	}
}

// TestInvoke_SchemaViolation verifies a payload that decodes as JSON
// but breaks the schema is an error, not a failed Result.
func TestInvoke_SchemaViolation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"id": "resp_7",
			"status": "completed",
			"output": [{"type": "message", "content": [{"type": "output_text", "text": "{\"ceo\":\"Jane\",\"founded_year\":\"nineteen-ninety\"}"}]}],
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	if _, err := c.Invoke(context.Background(), testRequest("gpt-4o-mini")); err == nil {
		t.Fatalf("Invoke succeeded on schema-violating payload")
	}
}

// TestInvoke_HTTPError verifies non-2xx statuses surface the service's
// error message.
func TestInvoke_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": {"message": "invalid api key"}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "bad"})
	_, err := c.Invoke(context.Background(), testRequest("gpt-4o-mini"))
	if err == nil {
		t.Fatalf("Invoke succeeded on 401")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "invalid api key") {
		t.Fatalf("err = %v", err)
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

// TestInvoke_TransportError verifies transport failures propagate.
func TestInvoke_TransportError(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{BaseURL: "http://127.0.0.1:0", APIKey: "k", Transport: failingTransport{}})
	if _, err := c.Invoke(context.Background(), testRequest("gpt-4o-mini")); err == nil {
		t.Fatalf("Invoke succeeded with failing transport")
	}
}

// TestInvoke_StatusDefaultsToCompleted verifies an envelope without a
// status field is treated as completed.
func TestInvoke_StatusDefaultsToCompleted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"output": [{"type": "message", "content": [{"type": "output_text", "text": "{\"ceo\":\"Jane\",\"founded_year\":null}"}]}],
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	res, err := c.Invoke(context.Background(), testRequest("gpt-4o-mini"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.OK {
		t.Fatalf("OK = false; err = %q", res.Err)
	}
	if res.ResponseID != "N/A" {
		t.Fatalf("ResponseID = %q; want N/A", res.ResponseID)
	}
	if res.Fields["founded_year"] != nil {
		t.Fatalf("founded_year = %#v; want nil", res.Fields["founded_year"])
	}
}

func TestCountSearchCalls_MalformedActionSkipped(t *testing.T) {
	t.Parallel()

	items := []outputItem{
		{Type: "web_search_call", Action: json.RawMessage(`{"type":"search"}`)},
		{Type: "web_search_call", Action: json.RawMessage(`"not-an-object"`)},
		{Type: "web_search_call", Action: json.RawMessage(`{broken`)},
		{Type: "web_search_call"},
		{Type: "message"},
	}
	if got := countSearchCalls(items); got != 1 {
		t.Fatalf("countSearchCalls = %d; want 1", got)
	}
}
