package rules

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/chatrelay/internal/textnorm"
)

// EmptyRestrictionPolicy decides what an empty restriction cell means.
type EmptyRestrictionPolicy string

const (
	// EmptyRestrictionSkip treats an empty restriction as vacuously
	// satisfied: a rule with fewer than three restrictions still fires.
	EmptyRestrictionSkip EmptyRestrictionPolicy = "skip"
	// EmptyRestrictionCancel treats any empty restriction as "rule never
	// fires". Historical deployments of the rule sheet used this reading.
	EmptyRestrictionCancel EmptyRestrictionPolicy = "cancel"
)

// OriginMatchPolicy decides how a chat name is matched against rule origins.
type OriginMatchPolicy string

const (
	// OriginMatchExact requires the normalized names to be equal. Preferred:
	// one group's name being a substring of another's cannot cause fan-out.
	OriginMatchExact OriginMatchPolicy = "exact"
	// OriginMatchContains accepts a rule whose origin field contains the
	// chat name as a substring, matching the original sheet's behaviour.
	OriginMatchContains OriginMatchPolicy = "contains"
)

// RestrictionOnePolicy decides how the first restriction cell is evaluated.
type RestrictionOnePolicy string

const (
	// RestrictionOneFullPhrase requires the whole cell as a substring.
	RestrictionOneFullPhrase RestrictionOnePolicy = "full_phrase"
	// RestrictionOneAnyWord splits the cell on whitespace and accepts the
	// message if any single word is present in the body.
	RestrictionOneAnyWord RestrictionOnePolicy = "any_word"
)

// Policy selects one matching variant per deployment. The variants are
// genuinely divergent readings of the rule sheet, so the choice is explicit
// configuration rather than a hard-coded default.
type Policy struct {
	EmptyRestriction EmptyRestrictionPolicy
	OriginMatch      OriginMatchPolicy
	RestrictionOne   RestrictionOnePolicy
}

// DefaultPolicy is the strict variant: skip empty cells, exact origin
// match, full-phrase restrictions.
func DefaultPolicy() Policy {
	return Policy{
		EmptyRestriction: EmptyRestrictionSkip,
		OriginMatch:      OriginMatchExact,
		RestrictionOne:   RestrictionOneFullPhrase,
	}
}

// Validate reports an unknown policy value.
func (p Policy) Validate() error {
	switch p.EmptyRestriction {
	case EmptyRestrictionSkip, EmptyRestrictionCancel:
	default:
		return fmt.Errorf("unknown empty_restriction policy %q", p.EmptyRestriction)
	}
	switch p.OriginMatch {
	case OriginMatchExact, OriginMatchContains:
	default:
		return fmt.Errorf("unknown origin_match policy %q", p.OriginMatch)
	}
	switch p.RestrictionOne {
	case RestrictionOneFullPhrase, RestrictionOneAnyWord:
	default:
		return fmt.Errorf("unknown restriction_1 policy %q", p.RestrictionOne)
	}
	return nil
}

// Matcher evaluates inbound messages against a rule Set under one Policy.
type Matcher struct {
	policy Policy
}

// NewMatcher returns a Matcher for the given policy.
func NewMatcher(policy Policy) *Matcher {
	return &Matcher{policy: policy}
}

// Match returns the first rule in row order whose origin matches the chat
// name and whose present restrictions are all satisfied by the message
// body. Later rules for the same origin are not evaluated once one matches.
func (m *Matcher) Match(set *Set, originName, body string) (Rule, bool) {
	normOrigin := textnorm.Normalize(originName)
	normBody := textnorm.Normalize(body)

	for _, rule := range set.Rules() {
		if !m.originMatches(rule, normOrigin) {
			continue
		}
		if m.restrictionsSatisfied(rule, normBody) {
			return rule, true
		}
	}
	return Rule{}, false
}

func (m *Matcher) originMatches(rule Rule, normOrigin string) bool {
	if m.policy.OriginMatch == OriginMatchContains {
		return normOrigin != "" && strings.Contains(rule.normOrigin, normOrigin)
	}
	return rule.normOrigin == normOrigin
}

func (m *Matcher) restrictionsSatisfied(rule Rule, normBody string) bool {
	for i, restriction := range rule.normRestrictions {
		if restriction == "" {
			if m.policy.EmptyRestriction == EmptyRestrictionCancel {
				return false
			}
			continue
		}
		if i == 0 && m.policy.RestrictionOne == RestrictionOneAnyWord {
			if !anyWordContained(normBody, restriction) {
				return false
			}
			continue
		}
		if !strings.Contains(normBody, restriction) {
			return false
		}
	}
	return true
}

func anyWordContained(body, keywords string) bool {
	for _, word := range strings.Fields(keywords) {
		if strings.Contains(body, word) {
			return true
		}
	}
	return false
}
