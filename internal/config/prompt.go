package config

import (
	"fmt"
	"strings"
)

// RenderPrompt substitutes {name} placeholders in a prompt template with
// values from vars. Doubled braces escape a literal brace. An unclosed,
// stray, or unbound placeholder is an error; Validate catches unbound
// placeholders at load time so this should not fire mid-run.
func RenderPrompt(template string, vars map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(template))
	for i := 0; i < len(template); {
		switch c := template[i]; c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			name := template[i+1 : i+1+end]
			v, ok := vars[name]
			if !ok {
				return "", fmt.Errorf("unbound placeholder %q", name)
			}
			b.WriteString(v)
			i += end + 2
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", fmt.Errorf("stray %q at offset %d", "}", i)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// Placeholders lists the distinct placeholder names referenced by a
// template, in order of first appearance. Malformed templates yield the
// names found before the defect; RenderPrompt reports the defect itself.
func Placeholders(template string) []string {
	var names []string
	seen := map[string]bool{}
	for i := 0; i < len(template); {
		if template[i] != '{' {
			i++
			continue
		}
		if i+1 < len(template) && template[i+1] == '{' {
			i += 2
			continue
		}
		end := strings.IndexByte(template[i+1:], '}')
		if end < 0 {
			break
		}
		name := template[i+1 : i+1+end]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		i += end + 2
	}
	return names
}
