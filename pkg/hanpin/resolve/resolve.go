// Package resolve assigns a pinyin reading to every character of every
// token, layering whole-word lookup, single-candidate characters, and
// statistical polyphone disambiguation with confidence gating.
package resolve

import (
	"fmt"
	"strings"

	"github.com/cognicore/hanpin/pkg/hanpin/hantext"
	"github.com/cognicore/hanpin/pkg/hanpin/resource"
	"github.com/cognicore/hanpin/pkg/hanpin/segment"
)

// Provenance names which layer produced a decision. The set is closed:
// adding a kind is a breaking, explicit change.
type Provenance string

const (
	ByWord        Provenance = "word"
	ByCharBase    Provenance = "char_base"
	ByPolyphone   Provenance = "polyphone_disambig"
	ByOverride    Provenance = "override"
	ByDoubleCheck Provenance = "advisory_double_check"
	ByUser        Provenance = "user"
	ByFallback    Provenance = "fallback"
	ByUnknown     Provenance = "unknown"
)

// Decision is the per-character record of one run. The resolver creates
// it; the override engine and the double-check step may mutate it.
type Decision struct {
	Char        string     `json:"char"`
	Offset      int        `json:"offset_in_token"` // rune index within the token
	Candidates  []string   `json:"candidates"`
	Chosen      string     `json:"chosen"`
	Provenance  Provenance `json:"resolved_by"`
	Confidence  *float64   `json:"confidence"`
	RuleID      string     `json:"rule_id,omitempty"`
	NeedsReview bool       `json:"needs_review"`
	Conflict    bool       `json:"conflict"`
	Notes       []string   `json:"notes,omitempty"`
}

// Key addresses one token's decision list by its byte offsets in the
// original text. Decisions live in a side table keyed this way rather
// than on the tokens themselves.
type Key struct {
	Start int
	End   int
}

// KeyOf returns the decision key for a token.
func KeyOf(tok segment.Token) Key {
	return Key{Start: tok.Start, End: tok.End}
}

// Resolver resolves tokens against a read-only resource set.
type Resolver struct {
	words      map[string]string
	charBase   map[string][]string
	disambig   map[string]resource.DisambigEntry
	thresholds resource.Thresholds
}

// New builds a resolver. The combined word dictionary (lexicon over
// word map) is derived once here.
func New(res *resource.Set) *Resolver {
	return &Resolver{
		words:      res.CombinedWords(),
		charBase:   res.CharBase,
		disambig:   res.Disambig,
		thresholds: res.Thresholds,
	}
}

// Token resolves one token. It returns the token's pinyin, one decision
// per character, and any alignment warnings.
func (r *Resolver) Token(tok segment.Token) (string, []*Decision, []string) {
	var warnings []string
	runes := []rune(tok.Text)

	if entry, ok := r.words[tok.Text]; ok {
		syllables := strings.Fields(entry)
		if len(syllables) == len(runes) {
			decisions := make([]*Decision, len(runes))
			for i, ch := range runes {
				conf := 1.0
				decisions[i] = &Decision{
					Char:       string(ch),
					Offset:     i,
					Candidates: []string{syllables[i]},
					Chosen:     syllables[i],
					Provenance: ByWord,
					Confidence: &conf,
				}
			}
			return hantext.NormalizeWord(entry), decisions, warnings
		}
		warnings = append(warnings, fmt.Sprintf(
			"word_pinyin_alignment_mismatch: token=%q syllables=%d chars=%d",
			tok.Text, len(syllables), len(runes)))
	}

	decisions := make([]*Decision, 0, len(runes))
	out := ""
	for i, ch := range runes {
		dec := r.char(string(ch), i, tok.UPOS, tok.NER)
		decisions = append(decisions, dec)
		out += dec.Chosen
	}
	return out, decisions, warnings
}

// char resolves a single character outside any word entry.
func (r *Resolver) char(ch string, offset int, upos, ner string) *Decision {
	cands := r.charBase[ch]

	if len(cands) == 0 {
		conf := 0.0
		return &Decision{
			Char:        ch,
			Offset:      offset,
			Candidates:  []string{},
			Chosen:      ch, // pass-through
			Provenance:  ByUnknown,
			Confidence:  &conf,
			NeedsReview: true,
			Notes:       []string{"char_not_in_char_base"},
		}
	}

	if len(cands) == 1 {
		conf := 1.0
		return &Decision{
			Char:       ch,
			Offset:     offset,
			Candidates: cands,
			Chosen:     cands[0],
			Provenance: ByCharBase,
			Confidence: &conf,
		}
	}

	best, conf, confident := r.pick(ch, upos, ner)
	chosen := best
	prov := ByPolyphone
	if chosen == "" {
		chosen = cands[0]
		prov = ByFallback
	}
	dec := &Decision{
		Char:        ch,
		Offset:      offset,
		Candidates:  cands,
		Chosen:      chosen,
		Provenance:  prov,
		Confidence:  conf,
		NeedsReview: !confident,
	}
	if !confident {
		dec.Notes = append(dec.Notes, "low_confidence_or_low_support")
	}
	return dec
}

// pick consults the polyphone statistics table. It returns the chosen
// reading (empty when even the table has nothing), the reported
// probability when known, and whether the context clears every
// confidence threshold.
func (r *Resolver) pick(ch, upos, ner string) (string, *float64, bool) {
	item, ok := r.disambig[ch]
	if !ok {
		return "", nil, false
	}

	declared := func() string {
		if item.Default != "" {
			return item.Default
		}
		if len(item.Candidates) > 0 {
			return item.Candidates[0]
		}
		return ""
	}

	key := fmt.Sprintf("pos=%s|ner=%s", upos, ner)
	ctx, ok := item.Contexts[key]
	if !ok || ctx.Best == "" {
		return declared(), nil, false
	}

	confident := ctx.N >= r.thresholds.MinSupport &&
		ctx.P >= r.thresholds.MinProb &&
		(ctx.P-ctx.P2) >= r.thresholds.MinMargin

	var conf *float64
	if ctx.PKnown {
		p := ctx.P
		conf = &p
	}
	return ctx.Best, conf, confident
}
