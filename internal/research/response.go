package research

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/mengysun/DataParasite/internal/pricing"
	"github.com/mengysun/DataParasite/internal/schema"
)

// Result is the interpreted outcome of one research call. Usage is
// populated from the response envelope whether or not the call was
// usable, because tokens were spent either way.
type Result struct {
	OK         bool
	ResponseID string
	Fields     map[string]any // decoded payload, nil unless OK
	Usage      pricing.Usage
	Err        string // diagnostic when !OK
}

// envelope mirrors the slice of the responses-API reply we consume.
type envelope struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output []outputItem `json:"output"`
	Usage  usagePayload `json:"usage"`
}

type outputItem struct {
	Type    string          `json:"type"`
	Action  json.RawMessage `json:"action"`
	Content []contentPart   `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usagePayload struct {
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	InputTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
}

// interpret turns a decoded envelope into a Result. A payload that is
// present but violates the schema is an error (the call produced
// garbage); a missing payload or non-terminal status is a Result with
// OK false (the call answered, unusably).
func interpret(env *envelope, s *schema.Schema) (*Result, error) {
	res := &Result{
		ResponseID: env.ID,
		Usage: pricing.Usage{
			InputTokens:    env.Usage.InputTokens,
			OutputTokens:   env.Usage.OutputTokens,
			CachedTokens:   env.Usage.InputTokensDetails.CachedTokens,
			WebSearchCalls: countSearchCalls(env.Output),
		},
	}
	if res.ResponseID == "" {
		res.ResponseID = "N/A"
	}
	status := env.Status
	if status == "" {
		status = "completed"
	}

	var fields map[string]any
	if text := outputText(env.Output); text != "" {
		decoded, err := s.DecodeJSON([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("research: %w", err)
		}
		fields = decoded
	}

	if status == "completed" && fields != nil {
		res.OK = true
		res.Fields = fields
		return res, nil
	}
	res.Err = "incomplete or no parsed payload"
	return res, nil
}

// outputText concatenates the output_text parts of all message items,
// in order.
func outputText(items []outputItem) string {
	var text string
	for _, it := range items {
		if it.Type != "message" {
			continue
		}
		for _, part := range it.Content {
			if part.Type == "output_text" {
				text += part.Text
			}
		}
	}
	return text
}

// countSearchCalls counts executed search actions in the tool-call
// trace. Telemetry extraction must never fail the call, so malformed
// action blocks are logged and skipped.
func countSearchCalls(items []outputItem) int {
	n := 0
	for _, it := range items {
		if it.Type != "web_search_call" || len(it.Action) == 0 {
			continue
		}
		var action struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(it.Action, &action); err != nil {
			log.Printf("could not extract tool usage: %v", err)
			continue
		}
		if action.Type == "search" {
			n++
		}
	}
	return n
}
