// Package pricing computes the dollar cost of one model call from its token
// and tool usage. The price table is plain data passed in at construction so
// the accountant stays independently testable; nothing in here does I/O.
package pricing

// Usage is the per-call consumption reported by the research service. All
// counts are non-negative; the zero value means "nothing consumed".
type Usage struct {
	InputTokens    int
	OutputTokens   int
	CachedTokens   int
	WebSearchCalls int
}

// Prices holds one model's rates: USD per 1,000,000 tokens for input, cached
// and output, and USD per 1,000 calls for web search.
type Prices struct {
	Input  float64
	Cached float64
	Output float64
	Search float64
}

// Table maps a model name to its prices.
type Table map[string]Prices

// DefaultTable returns the built-in price table. Rates mirror the published
// per-model pricing at the time of writing.
func DefaultTable() Table {
	return Table{
		"gpt-5":                 {Input: 1.25, Cached: 0.125, Output: 10.00, Search: 10.00},
		"gpt-5-mini":            {Input: 0.25, Cached: 0.025, Output: 2.00, Search: 10.00},
		"gpt-5.1":               {Input: 1.25, Cached: 0.125, Output: 10.00, Search: 10.00},
		"gpt-5.2":               {Input: 1.75, Cached: 0.175, Output: 14.00, Search: 10.00},
		"gpt-4.1":               {Input: 2.00, Cached: 0.50, Output: 8.00, Search: 10.00},
		"gpt-4.1-mini":          {Input: 0.40, Cached: 0.10, Output: 1.60, Search: 10.00},
		"gpt-4o":                {Input: 2.50, Cached: 1.25, Output: 10.00, Search: 10.00},
		"gpt-4o-mini":           {Input: 0.15, Cached: 0.075, Output: 0.60, Search: 10.00},
		"o3-deep-research":      {Input: 10.00, Cached: 2.50, Output: 40.00, Search: 10.00},
		"o4-mini-deep-research": {Input: 2.00, Cached: 0.50, Output: 8.00, Search: 10.00},
	}
}

// FallbackModel is the model whose prices apply when a name is not in the
// table. Lookups never fail; unknown models silently bill at these rates.
const FallbackModel = "gpt-4o-mini"

// Accountant prices calls against a fixed table.
type Accountant struct {
	table    Table
	fallback string
}

// NewAccountant builds an Accountant over the given table. An empty fallback
// model defaults to FallbackModel.
func NewAccountant(table Table, fallback string) *Accountant {
	if fallback == "" {
		fallback = FallbackModel
	}
	return &Accountant{table: table, fallback: fallback}
}

// Cost returns the dollar cost of one call. Input tokens already served from
// cache are billed at the cached rate; the remainder at the input rate.
func (a *Accountant) Cost(model string, u Usage) float64 {
	p, ok := a.table[model]
	if !ok {
		p = a.table[a.fallback]
	}
	billable := u.InputTokens - u.CachedTokens
	if billable < 0 {
		billable = 0
	}
	return float64(billable)/1e6*p.Input +
		float64(u.CachedTokens)/1e6*p.Cached +
		float64(u.OutputTokens)/1e6*p.Output +
		float64(u.WebSearchCalls)/1e3*p.Search
}
