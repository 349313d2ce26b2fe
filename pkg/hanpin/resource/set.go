// Package resource holds the read-only inputs of a conversion run and
// the adapters that load them from their heterogeneous on-disk shapes.
// Resolution logic only ever sees the in-memory structures defined
// here; file format quirks stay inside the adapters.
package resource

// Thresholds gate polyphone disambiguation confidence.
type Thresholds struct {
	MinSupport int64   `json:"min_support"`
	MinProb    float64 `json:"min_prob"`
	MinMargin  float64 `json:"min_margin"`
}

// DefaultThresholds returns the gating defaults used when the stats
// file declares none.
func DefaultThresholds() Thresholds {
	return Thresholds{MinSupport: 5, MinProb: 0.85, MinMargin: 0.15}
}

// Context holds the statistics for one polyphone in one POS/NER context.
type Context struct {
	Best   string
	P      float64
	P2     float64
	N      int64
	PKnown bool // whether p was present in the source data
}

// DisambigEntry is the statistics record for one polyphonic character.
type DisambigEntry struct {
	Char       string
	Default    string
	Candidates []string
	Contexts   map[string]Context // key: "pos=<UPOS>|ner=<NER>"
}

// Set bundles every resource a run consumes. A Set is loaded once and
// must not be mutated afterwards; concurrent runs share it read-only.
type Set struct {
	Words               map[string]string   // word → space-separated toned syllables
	Lexicon             map[string]string   // same shape, wins over Words
	CharBase            map[string][]string // char → ordered candidates
	PolyphoneCandidates map[string][]string
	Disambig            map[string]DisambigEntry
	Thresholds          Thresholds
	Rules               []Rule
}

// CombinedWords merges the word map and the lexicon, with lexicon
// entries taking precedence on key collision.
func (s *Set) CombinedWords() map[string]string {
	merged := make(map[string]string, len(s.Words)+len(s.Lexicon))
	for w, p := range s.Words {
		merged[w] = p
	}
	for w, p := range s.Lexicon {
		merged[w] = p
	}
	return merged
}
