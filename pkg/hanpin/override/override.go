// Package override applies priority-ordered user rules on top of
// resolver output. The highest-priority matching rule wins per
// character position; disagreements at the same effective rank become
// explicit conflict records instead of being resolved by iteration
// order.
package override

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cognicore/hanpin/pkg/hanpin/hantext"
	"github.com/cognicore/hanpin/pkg/hanpin/resolve"
	"github.com/cognicore/hanpin/pkg/hanpin/resource"
	"github.com/cognicore/hanpin/pkg/hanpin/segment"
)

// AppliedRule records a rule application that actually changed a
// decision.
type AppliedRule struct {
	RuleID     string `json:"rule_id"`
	TokenStart int    `json:"token_start"`
	TokenEnd   int    `json:"token_end"`
	TokenText  string `json:"token_text"`
	TargetChar string `json:"target_char"`
	Occurrence string `json:"occurrence"`
	Choose     string `json:"choose"`
}

// Conflict records two overrides disagreeing on the same position. The
// earlier-applied (higher effective priority) value is retained.
type Conflict struct {
	Type           string `json:"type"`
	Token          string `json:"token"`
	TokenStart     int    `json:"token_start"`
	TokenEnd       int    `json:"token_end"`
	Char           string `json:"char"`
	OffsetInToken  int    `json:"offset_in_token"`
	ExistingRuleID string `json:"existing_rule_id"`
	ExistingChoose string `json:"existing_choose"`
	NewRuleID      string `json:"new_rule_id"`
	NewChoose      string `json:"new_choose"`
}

// SortRules returns a copy in the deterministic application order:
// priority descending, then rule id ascending. Storage order never
// participates.
func SortRules(rules []resource.Rule) []resource.Rule {
	sorted := make([]resource.Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// Apply runs every rule over the tokens, mutating the decision side
// table. It returns applied-rule records, conflicts, and warnings (for
// occurrence selectors that matched nothing).
func Apply(
	tokens []segment.Token,
	decisions map[resolve.Key][]*resolve.Decision,
	rules []resource.Rule,
) ([]AppliedRule, []Conflict, []string) {
	var applied []AppliedRule
	var conflicts []Conflict
	var warnings []string

	// Group tokens by owning span, preserving first-appearance order so
	// the applied/conflict trail is deterministic.
	var spanOrder []string
	bySpan := make(map[string][]segment.Token)
	for _, tok := range tokens {
		if _, seen := bySpan[tok.SpanID]; !seen {
			spanOrder = append(spanOrder, tok.SpanID)
		}
		bySpan[tok.SpanID] = append(bySpan[tok.SpanID], tok)
	}

	for _, rule := range SortRules(rules) {
		target := rule.Target.Char
		choose := hantext.Normalize(rule.Choose)

		for _, spanID := range spanOrder {
			spanTokens := bySpan[spanID]
			for i, tok := range spanTokens {
				if !strings.Contains(tok.Text, target) {
					continue
				}
				var prev, next *segment.Token
				if i > 0 {
					prev = &spanTokens[i-1]
				}
				if i+1 < len(spanTokens) {
					next = &spanTokens[i+1]
				}
				if !Matches(rule, tok, prev, next) {
					continue
				}

				decs := decisions[resolve.KeyOf(tok)]
				if len(decs) == 0 {
					continue
				}

				var positions []int
				for _, d := range decs {
					if d.Char == target {
						positions = append(positions, d.Offset)
					}
				}
				if len(positions) == 0 {
					continue
				}

				applyAt := func(pos int) {
					dec := decs[pos]
					if dec.Char != target {
						return
					}
					if dec.Chosen == choose {
						// Idempotent reaffirmation: stamp this rule so a
						// lower-priority rule cannot overwrite the value later.
						dec.Notes = append(dec.Notes, "override_reaffirm:"+rule.ID)
						dec.Provenance = resolve.ByOverride
						dec.RuleID = rule.ID
						return
					}
					if dec.Provenance == resolve.ByOverride && dec.RuleID != "" && dec.RuleID != rule.ID {
						dec.Conflict = true
						conflicts = append(conflicts, Conflict{
							Type:           "override_conflict",
							Token:          tok.Text,
							TokenStart:     tok.Start,
							TokenEnd:       tok.End,
							Char:           target,
							OffsetInToken:  pos,
							ExistingRuleID: dec.RuleID,
							ExistingChoose: dec.Chosen,
							NewRuleID:      rule.ID,
							NewChoose:      choose,
						})
						return
					}
					dec.Chosen = choose
					dec.Provenance = resolve.ByOverride
					dec.RuleID = rule.ID
					dec.NeedsReview = false
					applied = append(applied, AppliedRule{
						RuleID:     rule.ID,
						TokenStart: tok.Start,
						TokenEnd:   tok.End,
						TokenText:  tok.Text,
						TargetChar: target,
						Occurrence: rule.Target.Occurrence.String(),
						Choose:     choose,
					})
				}

				occ := rule.Target.Occurrence
				switch {
				case occ.All:
					for _, pos := range positions {
						applyAt(pos)
					}
				case occ.N >= 1:
					if occ.N <= len(positions) {
						applyAt(positions[occ.N-1])
					} else {
						warnings = append(warnings, fmt.Sprintf(
							"override_occurrence_out_of_range: rule=%s token=%q char=%q occurrence=%d matches=%d",
							rule.ID, tok.Text, target, occ.N, len(positions)))
					}
				}
			}
		}
	}

	return applied, conflicts, warnings
}

// Matches reports whether a rule's criteria hold for tok and its
// neighbors. A criterion that names a missing neighbor fails.
func Matches(rule resource.Rule, tok segment.Token, prev, next *segment.Token) bool {
	if rule.Match.Self != nil && !matchPart(rule.Match.Self, tok) {
		return false
	}
	if rule.Match.Prev != nil {
		if prev == nil || !matchPart(rule.Match.Prev, *prev) {
			return false
		}
	}
	if rule.Match.Next != nil {
		if next == nil || !matchPart(rule.Match.Next, *next) {
			return false
		}
	}
	return true
}

func matchPart(p *resource.MatchPart, tok segment.Token) bool {
	if p.Text != nil && *p.Text != tok.Text {
		return false
	}
	if p.TextIn != nil && !contains(p.TextIn, tok.Text) {
		return false
	}
	if re := p.CompiledRegex(); re != nil && !re.MatchString(tok.Text) {
		return false
	}
	if p.UPOSIn != nil && !contains(p.UPOSIn, tok.UPOS) {
		return false
	}
	if p.XPOSIn != nil && !contains(p.XPOSIn, tok.XPOS) {
		return false
	}
	if p.NERIn != nil && !contains(p.NERIn, tok.NER) {
		return false
	}
	for _, ch := range p.Contains {
		if ch != "" && !strings.Contains(tok.Text, ch) {
			return false
		}
	}
	return true
}

func contains(vals []string, s string) bool {
	for _, v := range vals {
		if v == s {
			return true
		}
	}
	return false
}
