// This file adds a lightweight linter for TaskConfig values. It performs
// static checks over a loaded config and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"

	"github.com/mengysun/DataParasite/internal/pricing"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a TaskConfig.
//
// Path is a dotted path into the config (e.g. "output_schema",
// "csv_column_mapping.Company"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error in contexts that expect one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue in the slice is severity error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static validation of a loaded TaskConfig.
//
// It does not mutate the config. Callers decide whether warnings are
// fatal. The one hard invariant: every placeholder referenced by
// prompt_user must be bound by csv_column_mapping, so a bad template
// fails the run up front instead of failing every row.
func Validate(c *TaskConfig) []Issue {
	var issues []Issue

	if c.Schema == nil || c.Schema.Len() == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output_schema",
			Message:  "output_schema must declare at least one field",
		})
	}
	if len(c.ColumnMapping) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "csv_column_mapping",
			Message:  "csv_column_mapping must bind at least one CSV column",
		})
	}
	if strings.TrimSpace(c.PromptUser) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "prompt_user",
			Message:  "prompt_user must not be empty",
		})
	}
	if strings.TrimSpace(c.PromptSystem) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "prompt_system",
			Message:  "prompt_system is empty; the model will run without role framing",
		})
	}

	issues = append(issues, validateMapping(c)...)
	issues = append(issues, validatePlaceholders(c)...)
	issues = append(issues, validateRequired(c)...)
	issues = append(issues, validateModel(c.DefaultModel)...)
	issues = append(issues, validateExport(c.Export)...)

	return issues
}

// validateMapping flags duplicate bindings inside csv_column_mapping.
func validateMapping(c *TaskConfig) []Issue {
	var issues []Issue
	byVar := map[string]string{}
	for _, m := range c.ColumnMapping {
		if prev, dup := byVar[m.Var]; dup {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "csv_column_mapping." + m.Column,
				Message:  fmt.Sprintf("variable %q already bound to column %q; the later binding wins", m.Var, prev),
			})
			continue
		}
		byVar[m.Var] = m.Column
	}
	return issues
}

// validatePlaceholders cross-checks prompt templates against the mapping.
func validatePlaceholders(c *TaskConfig) []Issue {
	var issues []Issue

	bound := map[string]bool{}
	for _, m := range c.ColumnMapping {
		bound[m.Var] = true
	}

	referenced := map[string]bool{}
	for _, name := range Placeholders(c.PromptUser) {
		referenced[name] = true
		if !bound[name] {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "prompt_user",
				Message:  fmt.Sprintf("placeholder {%s} is not bound by csv_column_mapping", name),
			})
		}
	}
	for _, m := range c.ColumnMapping {
		if !referenced[m.Var] {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "csv_column_mapping." + m.Column,
				Message:  fmt.Sprintf("variable %q is never referenced by prompt_user", m.Var),
			})
		}
	}

	// The system prompt is sent verbatim; placeholders there are almost
	// always a template pasted into the wrong key.
	if names := Placeholders(c.PromptSystem); len(names) > 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "prompt_system",
			Message:  fmt.Sprintf("prompt_system contains placeholders %v but is not templated; they will be sent as-is", names),
		})
	}

	return issues
}

// validateRequired checks required_columns against the mapping. A
// required column outside the mapping is legal (the emptiness check
// reads the raw row) but usually a typo.
func validateRequired(c *TaskConfig) []Issue {
	var issues []Issue
	mapped := map[string]bool{}
	for _, m := range c.ColumnMapping {
		mapped[m.Column] = true
	}
	for _, col := range c.RequiredColumns {
		if !mapped[col] {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "required_columns",
				Message:  fmt.Sprintf("column %q is required but not present in csv_column_mapping", col),
			})
		}
	}
	return issues
}

// validateModel warns when the default model has no price entry.
func validateModel(model string) []Issue {
	if _, ok := pricing.DefaultTable()[model]; !ok {
		return []Issue{{
			Severity: SeverityWarning,
			Path:     "default_model",
			Message:  fmt.Sprintf("model %q has no price entry; costs will use %s rates", model, pricing.FallbackModel),
		}}
	}
	return nil
}

// validateExport checks that the export block names a known kind and
// carries the settings that kind needs.
func validateExport(e ExportSpec) []Issue {
	var issues []Issue
	missing := func(field, hint string) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "export." + field,
			Message:  fmt.Sprintf("export kind %q requires %s", e.Kind, hint),
		})
	}
	switch e.Kind {
	case "", "none":
	case "postgres":
		if e.DSN == "" {
			missing("dsn", "a connection string")
		}
		if e.Table == "" {
			missing("table", "a destination table")
		}
	case "sqlite":
		if e.DSN == "" {
			missing("dsn", "a database path")
		}
		if e.Table == "" {
			missing("table", "a destination table")
		}
	case "kafka":
		if len(e.Brokers) == 0 {
			missing("brokers", "at least one broker address")
		}
		if e.Topic == "" {
			missing("topic", "a topic name")
		}
	case "s3":
		if e.Endpoint == "" {
			missing("endpoint", "an endpoint address")
		}
		if e.Bucket == "" {
			missing("bucket", "a bucket name")
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "export.kind",
			Message:  fmt.Sprintf("unknown export kind %q (want none, postgres, sqlite, kafka, or s3)", e.Kind),
		})
	}
	return issues
}
