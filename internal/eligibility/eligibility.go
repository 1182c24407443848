// Package eligibility decides which discovered candidates are worth publishing.
package eligibility

import (
	"sort"
	"strings"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// Rejection reasons that are not rule fields.
const (
	ReasonApplyFlag      = "easy_apply"
	ReasonLanguage       = "language"
	ReasonBlockedKeyword = "blocked_keyword"
)

// Criteria is everything a candidate is judged against.
type Criteria struct {
	Rules             []crawler.EligibilityRule
	Language          string
	ApplyFlagRequired bool
	// BlockedKeywords are checked against every field after Rules pass.
	BlockedKeywords []string
}

// CriteriaFor builds Criteria from a target plus global blocked keywords.
func CriteriaFor(target crawler.CrawlTarget, blocked []string) Criteria {
	return Criteria{
		Rules:             target.Rules,
		Language:          target.Language,
		ApplyFlagRequired: target.ApplyFlagRequired,
		BlockedKeywords:   blocked,
	}
}

// Decision is the outcome of Evaluate. Reason is empty when Eligible.
type Decision struct {
	Eligible bool
	Reason   string
}

// Evaluate checks, in order, the apply flag, the language and each rule,
// stopping at the first failure. An empty Criteria.Language disables the
// language check.
func Evaluate(candidate crawler.CandidateItem, criteria Criteria) Decision {
	if criteria.ApplyFlagRequired && !candidate.ApplyFlag {
		return reject(ReasonApplyFlag)
	}
	if criteria.Language != "" && !sameLanguage(candidate.Language, criteria.Language) {
		return reject(ReasonLanguage)
	}
	for _, rule := range criteria.Rules {
		if containsFold(candidate.Field(string(rule.Field)), rule.Keyword) {
			return reject(string(rule.Field))
		}
	}
	if len(criteria.BlockedKeywords) > 0 && hasBlockedKeyword(candidate, criteria.BlockedKeywords) {
		return reject(ReasonBlockedKeyword)
	}
	return Decision{Eligible: true}
}

func reject(reason string) Decision {
	return Decision{Eligible: false, Reason: reason}
}

func containsFold(text, keyword string) bool {
	if keyword == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

func sameLanguage(got, want string) bool {
	return strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want))
}

func hasBlockedKeyword(candidate crawler.CandidateItem, blocked []string) bool {
	names := make([]string, 0, len(candidate.Fields))
	for name := range candidate.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, keyword := range blocked {
		for _, name := range names {
			if containsFold(candidate.Fields[name], keyword) {
				return true
			}
		}
	}
	return false
}
