package resource

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Occurrence selects which occurrences of the target character a rule
// applies to: either the Nth one (1-based) or every one.
type Occurrence struct {
	All bool
	N   int
}

// UnmarshalJSON accepts either the literal "all" or a positive integer.
func (o *Occurrence) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "all" {
			return fmt.Errorf("occurrence: unknown selector %q", s)
		}
		*o = Occurrence{All: true}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("occurrence: want \"all\" or integer: %w", err)
	}
	*o = Occurrence{N: n}
	return nil
}

// MarshalJSON emits "all" or the index.
func (o Occurrence) MarshalJSON() ([]byte, error) {
	if o.All {
		return json.Marshal("all")
	}
	return json.Marshal(o.N)
}

func (o Occurrence) String() string {
	if o.All {
		return "all"
	}
	return fmt.Sprintf("%d", o.N)
}

// MatchPart is one criterion bundle matched against a single token.
// Nil pointer/slice fields mean the criterion is absent.
type MatchPart struct {
	Text     *string  `json:"text,omitempty"`
	TextIn   []string `json:"text_in,omitempty"`
	Regex    *string  `json:"regex,omitempty"`
	UPOSIn   []string `json:"upos_in,omitempty"`
	XPOSIn   []string `json:"xpos_in,omitempty"`
	NERIn    []string `json:"ner_in,omitempty"`
	Contains []string `json:"contains,omitempty"`

	re *regexp.Regexp
}

// CompiledRegex returns the compiled regex criterion, or nil when the
// rule has none.
func (p *MatchPart) CompiledRegex() *regexp.Regexp {
	return p.re
}

// Match addresses the matched token and its optional neighbors within
// the same Han span.
type Match struct {
	Self *MatchPart `json:"self,omitempty"`
	Prev *MatchPart `json:"prev,omitempty"`
	Next *MatchPart `json:"next,omitempty"`
}

// Target names the character a rule rewrites and which occurrences.
type Target struct {
	Char       string     `json:"char"`
	Occurrence Occurrence `json:"occurrence"`
}

// Rule is one user override, immutable per run.
type Rule struct {
	ID          string         `json:"id"`
	Priority    int            `json:"priority"`
	Description string         `json:"description,omitempty"`
	Match       Match          `json:"match"`
	Target      Target         `json:"target"`
	Choose      string         `json:"choose"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Compile precompiles every regex criterion. A rule with an invalid
// regex is rejected as a whole.
func (r *Rule) Compile() error {
	for _, part := range []*MatchPart{r.Match.Self, r.Match.Prev, r.Match.Next} {
		if part == nil || part.Regex == nil {
			continue
		}
		re, err := regexp.Compile(*part.Regex)
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
		part.re = re
	}
	return nil
}

// Valid reports whether the rule carries the minimum it needs to apply.
func (r *Rule) Valid() bool {
	return r.ID != "" && r.Target.Char != "" && r.Choose != ""
}
