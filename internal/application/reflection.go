package application

import (
	"slices"
	"strings"
)

// Reflection holds the sections of the chairman's self-reflection.
type Reflection struct {
	Critique              string
	Comparison            string
	SuggestedSystemPrompt string
	SuggestedQuery        string
}

// ParseReflection splits a self-reflection into its headed sections. Each
// section runs from its header to the next header found in the text, in
// text order. Text with none of the headers becomes the critique.
func ParseReflection(text string) Reflection {
	type section struct {
		offset int
		header string
		dst    *string
	}

	var out Reflection
	candidates := []section{
		{header: HeaderCritique, dst: &out.Critique},
		{header: HeaderComparison, dst: &out.Comparison},
		{header: HeaderSuggestedSystemPrompt, dst: &out.SuggestedSystemPrompt},
		{header: HeaderSuggestedQuery, dst: &out.SuggestedQuery},
	}

	found := candidates[:0]
	for _, c := range candidates {
		if idx := strings.Index(text, c.header); idx >= 0 {
			c.offset = idx
			found = append(found, c)
		}
	}

	if len(found) == 0 {
		out.Critique = strings.TrimSpace(text)
		return out
	}

	slices.SortFunc(found, func(a, b section) int { return a.offset - b.offset })
	for i, s := range found {
		end := len(text)
		if i+1 < len(found) {
			end = found[i+1].offset
		}
		*s.dst = strings.TrimSpace(text[s.offset+len(s.header) : end])
	}
	return out
}
