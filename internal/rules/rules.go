// Package rules holds the forwarding rule table: loading it from the rule
// file, keeping an immutable active snapshot, and matching inbound messages
// against it.
package rules

import (
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/chatrelay/internal/textnorm"
)

// MaxRestrictions is the number of restriction columns in the rule file.
const MaxRestrictions = 3

// RawRecord is one row of the rule file before validation. Row is the
// 1-based data row number (header excluded), used in logs and tie-breaks.
type RawRecord struct {
	Origin       string
	Target       string
	Restrictions [MaxRestrictions]string
	Row          int
}

// Rule is a validated forwarding rule. Normalized fields are derived once
// when the snapshot is built; the raw fields are kept for display.
type Rule struct {
	Origin       string
	Target       string
	Restrictions []string
	Row          int

	normOrigin       string
	normRestrictions []string
}

// NormOrigin returns the normalized origin group name.
func (r Rule) NormOrigin() string { return r.normOrigin }

// Set is an immutable snapshot of the active rule table. A new Set replaces
// the previous one atomically on reload; it is never mutated after Build.
type Set struct {
	rules []Rule
}

// Build validates raw records into a Set, preserving row order. Records
// missing an origin or target after trimming are dropped with a warning.
func Build(records []RawRecord) *Set {
	rules := make([]Rule, 0, len(records))
	for _, rec := range records {
		origin := strings.TrimSpace(rec.Origin)
		target := strings.TrimSpace(rec.Target)
		if origin == "" || target == "" {
			slog.Warn("dropping rule with missing origin or target",
				"row", rec.Row, "origin", origin, "target", target)
			continue
		}

		r := Rule{
			Origin:           origin,
			Target:           target,
			Restrictions:     make([]string, 0, MaxRestrictions),
			Row:              rec.Row,
			normOrigin:       textnorm.Normalize(origin),
			normRestrictions: make([]string, 0, MaxRestrictions),
		}
		for _, restriction := range rec.Restrictions {
			r.Restrictions = append(r.Restrictions, strings.TrimSpace(restriction))
			r.normRestrictions = append(r.normRestrictions, textnorm.Normalize(restriction))
		}
		rules = append(rules, r)
	}
	return &Set{rules: rules}
}

// Rules returns the rules in row order. Callers must not mutate the slice.
func (s *Set) Rules() []Rule {
	if s == nil {
		return nil
	}
	return s.rules
}

// Len returns the number of active rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}
