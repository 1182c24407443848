// Package message renders target message templates for accepted candidates.
package message

import (
	"sort"
	"strings"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// Render substitutes {identifier} and {<field>} placeholders in template with
// the candidate's values. Unknown placeholders are left untouched. An empty
// template renders the fields one per line in name order.
func Render(template string, candidate crawler.CandidateItem) string {
	if strings.TrimSpace(template) == "" {
		return fallback(candidate)
	}
	pairs := []string{"{identifier}", candidate.Identifier}
	for _, name := range fieldNames(candidate) {
		pairs = append(pairs, "{"+name+"}", candidate.Fields[name])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Purify strips characters chat clients treat as markup.
func Purify(text string) string {
	return strings.ReplaceAll(text, "#", "-")
}

func fallback(candidate crawler.CandidateItem) string {
	lines := make([]string, 0, len(candidate.Fields)+1)
	for _, name := range fieldNames(candidate) {
		if v := candidate.Fields[name]; v != "" {
			lines = append(lines, v)
		}
	}
	lines = append(lines, candidate.Identifier)
	return strings.Join(lines, "\n")
}

func fieldNames(candidate crawler.CandidateItem) []string {
	names := make([]string, 0, len(candidate.Fields))
	for name := range candidate.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
