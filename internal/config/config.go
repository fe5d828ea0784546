// Package config defines the task configuration model for an enrichment
// run. A task config is a YAML document that declares what to extract
// (output_schema), which CSV columns feed the prompt (csv_column_mapping),
// which of those are mandatory (required_columns), and the prompt pair
// sent to the model.
//
// Design goals:
//
//  1. Order fidelity: output_schema and csv_column_mapping are mappings
//     whose declaration order is meaningful (it fixes column order in the
//     remote schema and the final projection), so both are decoded from
//     yaml.Node rather than a Go map.
//  2. One load, immutable after: Load fully resolves the document into a
//     TaskConfig; nothing re-reads the file mid-run.
//  3. Lint, don't guess: structural problems surface as Issues from
//     Validate, not as per-row failures hours into a batch.
//
// Example:
//
//	output_schema:
//	  ceo: string
//	  founded_year: optional-int
//	csv_column_mapping:
//	  Company: company
//	  Country: country
//	required_columns: [Company]
//	prompt_system: You are a careful research assistant.
//	prompt_user: Find the CEO of {company} ({country}).
//	default_model: gpt-4o-mini
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mengysun/DataParasite/internal/pricing"
	"github.com/mengysun/DataParasite/internal/schema"
)

// MappingEntry binds one CSV column to the prompt variable it populates.
type MappingEntry struct {
	Column string // CSV header name
	Var    string // placeholder name in prompt_user
}

// ExportSpec selects an optional post-run destination for the stamped
// records and run artifacts. The zero value means no export.
type ExportSpec struct {
	Kind     string   `yaml:"kind"`     // none | postgres | sqlite | kafka | s3
	DSN      string   `yaml:"dsn"`      // postgres connection string or sqlite path
	Table    string   `yaml:"table"`    // postgres/sqlite destination table
	Brokers  []string `yaml:"brokers"`  // kafka bootstrap brokers
	Topic    string   `yaml:"topic"`    // kafka topic
	Endpoint string   `yaml:"endpoint"` // s3 endpoint host:port
	Bucket   string   `yaml:"bucket"`   // s3 bucket
}

// TaskConfig is the fully resolved task description. Loaded once before
// the batch starts and treated as read-only afterwards.
type TaskConfig struct {
	Schema          *schema.Schema
	ColumnMapping   []MappingEntry
	RequiredColumns []string
	PromptSystem    string
	PromptUser      string
	DefaultModel    string
	Export          ExportSpec
}

type rawConfig struct {
	OutputSchema     yaml.Node  `yaml:"output_schema"`
	CSVColumnMapping yaml.Node  `yaml:"csv_column_mapping"`
	RequiredColumns  []string   `yaml:"required_columns"`
	PromptSystem     string     `yaml:"prompt_system"`
	PromptUser       string     `yaml:"prompt_user"`
	DefaultModel     string     `yaml:"default_model"`
	Export           ExportSpec `yaml:"export"`
}

// Load reads and resolves a task config file. It fails on YAML that does
// not parse or on schema/mapping blocks that are not flat mappings of
// scalars; semantic problems are left to Validate.
func Load(path string) (*TaskConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse resolves a task config from raw YAML bytes.
func Parse(data []byte) (*TaskConfig, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	entries, err := scalarPairs(&raw.OutputSchema, "output_schema")
	if err != nil {
		return nil, err
	}
	schemaEntries := make([]schema.Entry, len(entries))
	for i, p := range entries {
		schemaEntries[i] = schema.Entry{Name: p[0], Tag: p[1]}
	}

	pairs, err := scalarPairs(&raw.CSVColumnMapping, "csv_column_mapping")
	if err != nil {
		return nil, err
	}
	mapping := make([]MappingEntry, len(pairs))
	for i, p := range pairs {
		mapping[i] = MappingEntry{Column: p[0], Var: p[1]}
	}

	model := raw.DefaultModel
	if model == "" {
		model = pricing.FallbackModel
	}

	return &TaskConfig{
		Schema:          schema.New(schemaEntries),
		ColumnMapping:   mapping,
		RequiredColumns: raw.RequiredColumns,
		PromptSystem:    raw.PromptSystem,
		PromptUser:      raw.PromptUser,
		DefaultModel:    model,
		Export:          raw.Export,
	}, nil
}

// scalarPairs flattens a YAML mapping node into ordered (key, value)
// string pairs. An absent block yields no pairs; anything other than a
// flat scalar mapping is an error.
func scalarPairs(n *yaml.Node, block string) ([][2]string, error) {
	if n.Kind == 0 || n.Tag == "!!null" {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: expected a mapping, got %s", block, nodeKind(n))
	}
	pairs := make([][2]string, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%s: entry %q must map a scalar to a scalar", block, k.Value)
		}
		pairs = append(pairs, [2]string{k.Value, v.Value})
	}
	return pairs, nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "a sequence"
	case yaml.ScalarNode:
		return "a scalar"
	case yaml.MappingNode:
		return "a mapping"
	default:
		return "an unsupported node"
	}
}

// Vars returns the prompt variable names in mapping order.
func (c *TaskConfig) Vars() []string {
	vars := make([]string, len(c.ColumnMapping))
	for i, m := range c.ColumnMapping {
		vars[i] = m.Var
	}
	return vars
}

// Columns returns the mapped CSV column names in mapping order.
func (c *TaskConfig) Columns() []string {
	cols := make([]string, len(c.ColumnMapping))
	for i, m := range c.ColumnMapping {
		cols[i] = m.Column
	}
	return cols
}
