package override

import (
	"strings"
	"testing"

	"github.com/cognicore/hanpin/pkg/hanpin/resolve"
	"github.com/cognicore/hanpin/pkg/hanpin/resource"
	"github.com/cognicore/hanpin/pkg/hanpin/segment"
)

func strp(s string) *string { return &s }

func hanToken(spanID string, idx, start int, text, upos string) segment.Token {
	return segment.Token{
		SpanID: spanID,
		Index:  idx,
		Start:  start,
		End:    start + len(text),
		Text:   text,
		UPOS:   upos,
		XPOS:   "NN",
		NER:    "O",
	}
}

func decisionsFor(tok segment.Token, chosen map[int]string) []*resolve.Decision {
	runes := []rune(tok.Text)
	decs := make([]*resolve.Decision, len(runes))
	for i, ch := range runes {
		c := chosen[i]
		if c == "" {
			c = "x" // placeholder reading
		}
		conf := 1.0
		decs[i] = &resolve.Decision{
			Char:       string(ch),
			Offset:     i,
			Candidates: []string{c},
			Chosen:     c,
			Provenance: resolve.ByCharBase,
			Confidence: &conf,
		}
	}
	return decs
}

func TestSortRulesPriorityThenID(t *testing.T) {
	rules := []resource.Rule{
		{ID: "b", Priority: 10},
		{ID: "a", Priority: 10},
		{ID: "z", Priority: 99},
	}
	sorted := SortRules(rules)
	got := []string{sorted[0].ID, sorted[1].ID, sorted[2].ID}
	if got[0] != "z" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("order = %v", got)
	}
	// input untouched
	if rules[0].ID != "b" {
		t.Fatal("SortRules mutated its input")
	}
}

func TestApplySimpleOverride(t *testing.T) {
	tok := hanToken("S0", 0, 0, "银行", "NOUN")
	decs := map[resolve.Key][]*resolve.Decision{
		resolve.KeyOf(tok): decisionsFor(tok, map[int]string{0: "yín", 1: "xíng"}),
	}
	rules := []resource.Rule{{
		ID:       "r1",
		Priority: 10,
		Match:    resource.Match{Self: &resource.MatchPart{Text: strp("银行")}},
		Target:   resource.Target{Char: "行", Occurrence: resource.Occurrence{All: true}},
		Choose:   "háng",
	}}

	applied, conflicts, warnings := Apply([]segment.Token{tok}, decs, rules)
	if len(applied) != 1 || len(conflicts) != 0 || len(warnings) != 0 {
		t.Fatalf("applied=%v conflicts=%v warnings=%v", applied, conflicts, warnings)
	}
	d := decs[resolve.KeyOf(tok)][1]
	if d.Chosen != "háng" || d.Provenance != resolve.ByOverride || d.RuleID != "r1" {
		t.Fatalf("decision = %+v", d)
	}
	if d.NeedsReview {
		t.Fatal("override must clear needs_review")
	}
	if applied[0].Occurrence != "all" {
		t.Fatalf("occurrence string = %q", applied[0].Occurrence)
	}
}

func TestApplyPriorityWinsRegardlessOfStorageOrder(t *testing.T) {
	tok := hanToken("S0", 0, 0, "行", "NOUN")
	decs := map[resolve.Key][]*resolve.Decision{
		resolve.KeyOf(tok): decisionsFor(tok, map[int]string{0: "xíng"}),
	}
	// Low priority stored first.
	rules := []resource.Rule{
		{
			ID: "low", Priority: 1,
			Target: resource.Target{Char: "行", Occurrence: resource.Occurrence{All: true}},
			Choose: "xíng",
		},
		{
			ID: "high", Priority: 100,
			Target: resource.Target{Char: "行", Occurrence: resource.Occurrence{All: true}},
			Choose: "háng",
		},
	}

	_, conflicts, _ := Apply([]segment.Token{tok}, decs, rules)
	d := decs[resolve.KeyOf(tok)][0]
	if d.Chosen != "háng" || d.RuleID != "high" {
		t.Fatalf("decision = %+v", d)
	}
	// The low rule disagreed with the already-overridden value.
	if len(conflicts) != 1 || conflicts[0].ExistingRuleID != "high" || conflicts[0].NewRuleID != "low" {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	if !d.Conflict {
		t.Fatal("decision must be marked conflicted")
	}
}

func TestApplyReaffirmationBlocksLaterRules(t *testing.T) {
	tok := hanToken("S0", 0, 0, "行", "NOUN")
	decs := map[resolve.Key][]*resolve.Decision{
		resolve.KeyOf(tok): decisionsFor(tok, map[int]string{0: "háng"}),
	}
	rules := []resource.Rule{
		{
			ID: "agree", Priority: 100,
			Target: resource.Target{Char: "行", Occurrence: resource.Occurrence{All: true}},
			Choose: "háng", // same value the resolver chose
		},
		{
			ID: "disagree", Priority: 1,
			Target: resource.Target{Char: "行", Occurrence: resource.Occurrence{All: true}},
			Choose: "xíng",
		},
	}

	applied, conflicts, _ := Apply([]segment.Token{tok}, decs, rules)
	d := decs[resolve.KeyOf(tok)][0]
	if d.Chosen != "háng" || d.RuleID != "agree" {
		t.Fatalf("decision = %+v", d)
	}
	if len(applied) != 0 {
		t.Fatalf("reaffirmation must not appear as applied: %+v", applied)
	}
	if len(conflicts) != 1 {
		t.Fatalf("later disagreement must be a conflict: %+v", conflicts)
	}
	var found bool
	for _, n := range d.Notes {
		if n == "override_reaffirm:agree" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing reaffirmation note: %v", d.Notes)
	}
}

func TestApplyNthOccurrence(t *testing.T) {
	tok := hanToken("S0", 0, 0, "行行好", "VERB")
	decs := map[resolve.Key][]*resolve.Decision{
		resolve.KeyOf(tok): decisionsFor(tok, map[int]string{0: "xíng", 1: "xíng", 2: "hǎo"}),
	}
	rules := []resource.Rule{{
		ID: "second", Priority: 10,
		Target: resource.Target{Char: "行", Occurrence: resource.Occurrence{N: 2}},
		Choose: "háng",
	}}

	applied, _, warnings := Apply([]segment.Token{tok}, decs, rules)
	if len(applied) != 1 || len(warnings) != 0 {
		t.Fatalf("applied=%v warnings=%v", applied, warnings)
	}
	ds := decs[resolve.KeyOf(tok)]
	if ds[0].Chosen != "xíng" || ds[1].Chosen != "háng" {
		t.Fatalf("wrong occurrence targeted: %q %q", ds[0].Chosen, ds[1].Chosen)
	}
}

func TestApplyOccurrenceOutOfRangeWarns(t *testing.T) {
	tok := hanToken("S0", 0, 0, "行", "NOUN")
	decs := map[resolve.Key][]*resolve.Decision{
		resolve.KeyOf(tok): decisionsFor(tok, map[int]string{0: "xíng"}),
	}
	rules := []resource.Rule{{
		ID: "oob", Priority: 10,
		Target: resource.Target{Char: "行", Occurrence: resource.Occurrence{N: 3}},
		Choose: "háng",
	}}

	applied, _, warnings := Apply([]segment.Token{tok}, decs, rules)
	if len(applied) != 0 {
		t.Fatalf("nothing should apply: %+v", applied)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "override_occurrence_out_of_range") {
		t.Fatalf("warnings = %v", warnings)
	}
	if decs[resolve.KeyOf(tok)][0].Chosen != "xíng" {
		t.Fatal("decision must be untouched")
	}
}

func TestApplyNeighborMatch(t *testing.T) {
	a := hanToken("S0", 0, 0, "中国", "PROPN")
	b := hanToken("S0", 1, a.End, "银行", "NOUN")
	decs := map[resolve.Key][]*resolve.Decision{
		resolve.KeyOf(a): decisionsFor(a, map[int]string{0: "zhōng", 1: "guó"}),
		resolve.KeyOf(b): decisionsFor(b, map[int]string{0: "yín", 1: "xíng"}),
	}
	rules := []resource.Rule{{
		ID: "after-china", Priority: 10,
		Match: resource.Match{
			Self: &resource.MatchPart{Contains: []string{"行"}},
			Prev: &resource.MatchPart{Text: strp("中国")},
		},
		Target: resource.Target{Char: "行", Occurrence: resource.Occurrence{All: true}},
		Choose: "háng",
	}}

	applied, _, _ := Apply([]segment.Token{a, b}, decs, rules)
	if len(applied) != 1 || applied[0].TokenText != "银行" {
		t.Fatalf("applied = %+v", applied)
	}
	if decs[resolve.KeyOf(b)][1].Chosen != "háng" {
		t.Fatal("neighbor-matched token not overridden")
	}
}

func TestApplyMissingNeighborFails(t *testing.T) {
	tok := hanToken("S0", 0, 0, "银行", "NOUN")
	decs := map[resolve.Key][]*resolve.Decision{
		resolve.KeyOf(tok): decisionsFor(tok, map[int]string{0: "yín", 1: "xíng"}),
	}
	rules := []resource.Rule{{
		ID: "needs-prev", Priority: 10,
		Match: resource.Match{
			Prev: &resource.MatchPart{Text: strp("中国")},
		},
		Target: resource.Target{Char: "行", Occurrence: resource.Occurrence{All: true}},
		Choose: "háng",
	}}

	applied, _, _ := Apply([]segment.Token{tok}, decs, rules)
	if len(applied) != 0 {
		t.Fatalf("rule naming a missing neighbor must not match: %+v", applied)
	}
}

func TestApplyNormalizesChoose(t *testing.T) {
	tok := hanToken("S0", 0, 0, "行", "NOUN")
	decs := map[resolve.Key][]*resolve.Decision{
		resolve.KeyOf(tok): decisionsFor(tok, map[int]string{0: "xíng"}),
	}
	rules := []resource.Rule{{
		ID: "latin-g", Priority: 10,
		Target: resource.Target{Char: "行", Occurrence: resource.Occurrence{All: true}},
		Choose: "hánɡ", // IPA script g
	}}

	Apply([]segment.Token{tok}, decs, rules)
	if got := decs[resolve.KeyOf(tok)][0].Chosen; got != "háng" {
		t.Fatalf("chosen = %q, want normalized háng", got)
	}
}

func TestMatchesUPOSAndNER(t *testing.T) {
	tok := hanToken("S0", 0, 0, "银行", "NOUN")
	rule := resource.Rule{Match: resource.Match{
		Self: &resource.MatchPart{UPOSIn: []string{"NOUN", "PROPN"}, NERIn: []string{"O"}},
	}}
	if !Matches(rule, tok, nil, nil) {
		t.Fatal("expected match")
	}
	rule.Match.Self.NERIn = []string{"ORG"}
	if Matches(rule, tok, nil, nil) {
		t.Fatal("NER mismatch should fail")
	}
}

func TestMatchesRegex(t *testing.T) {
	tok := hanToken("S0", 0, 0, "银行", "NOUN")
	rule := resource.Rule{Match: resource.Match{
		Self: &resource.MatchPart{Regex: strp("^银.$")},
	}}
	if err := rule.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !Matches(rule, tok, nil, nil) {
		t.Fatal("regex should match")
	}
}
