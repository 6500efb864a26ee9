package attack

import (
	"regexp"
	"sort"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// RenderedPrompt is one concrete prompt produced from a template plus
// a binding of parameter values. For a multi-turn attack, Turns holds
// every rendered user turn in order and Prompt is the first turn.
type RenderedPrompt struct {
	Prompt string
	Turns  []string
	Params map[string]string
}

// renderTemplate substitutes {{name}} placeholders with the bound
// values. Placeholders with no binding are left untouched so that a
// missing parameter is visible in the output rather than silently
// blanked.
func renderTemplate(template string, params map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if val, ok := params[name]; ok {
			return val
		}
		return match
	})
}

// Expand produces every prompt variant of the definition: the
// Cartesian product over its parameter value lists. Parameter names
// are iterated in sorted order and values in declaration order, so
// the expansion order is deterministic. A definition with no
// parameters yields exactly one prompt.
func Expand(def Definition) []RenderedPrompt {
	if len(def.Parameters) == 0 {
		return []RenderedPrompt{render(def, map[string]string{})}
	}

	names := make([]string, 0, len(def.Parameters))
	for name := range def.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []map[string]string{{}}
	for _, name := range names {
		values := def.Parameters[name]
		if len(values) == 0 {
			continue
		}
		next := make([]map[string]string, 0, len(combos)*len(values))
		for _, combo := range combos {
			for _, val := range values {
				extended := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					extended[k] = v
				}
				extended[name] = val
				next = append(next, extended)
			}
		}
		combos = next
	}

	out := make([]RenderedPrompt, 0, len(combos))
	for _, combo := range combos {
		out = append(out, render(def, combo))
	}
	return out
}

// render binds one parameter combination to the definition's prompt
// and, for multi-turn attacks, to every turn template.
func render(def Definition, params map[string]string) RenderedPrompt {
	rp := RenderedPrompt{
		Prompt: renderTemplate(def.PromptTemplate, params),
		Params: params,
	}
	for _, turn := range def.TurnTemplates {
		rp.Turns = append(rp.Turns, renderTemplate(turn, params))
	}
	return rp
}
