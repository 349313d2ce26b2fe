// Package span partitions input text into typed, contiguous spans.
// Han spans go on to tokenization and resolution; protected spans are
// preserved verbatim in the output.
package span

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cognicore/hanpin/pkg/hanpin/hantext"
)

// Type distinguishes Han spans from protected ones.
type Type string

const (
	Han       Type = "han"
	Protected Type = "protected"
)

// Kind classifies a protected span.
type Kind string

const (
	KindNone   Kind = ""
	KindURL    Kind = "url"
	KindLatin  Kind = "latin"
	KindNumber Kind = "number"
	KindSpace  Kind = "space"
	KindPunct  Kind = "punct"
	KindOther  Kind = "other"
)

// WordLike reports whether a protected span of this kind should be
// separated from adjacent Han pinyin by a space.
func (k Kind) WordLike() bool {
	return k == KindURL || k == KindLatin || k == KindNumber
}

// Span is one contiguous slice of the input text. Start and End are
// byte offsets; spans produced by Split cover the input exactly with
// no gaps or overlaps.
type Span struct {
	ID    string `json:"span_id"`
	Type  Type   `json:"type"`
	Kind  Kind   `json:"kind,omitempty"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Split scans text left to right and emits spans. At each position the
// first matching rule wins: URL, Han run, whitespace run, Latin run,
// number run, single punctuation/symbol, single other codepoint. Each
// run rule is maximal-munch.
func Split(text string) []Span {
	var spans []Span
	idx := 0

	push := func(t Type, k Kind, start, end int) {
		if start >= end {
			return
		}
		spans = append(spans, Span{
			ID:    fmt.Sprintf("S%d", idx),
			Type:  t,
			Kind:  k,
			Start: start,
			End:   end,
			Text:  text[start:end],
		})
		idx++
	}

	i := 0
	n := len(text)
	for i < n {
		if end, ok := matchURL(text, i); ok {
			push(Protected, KindURL, i, end)
			i = end
			continue
		}

		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case hantext.IsHan(r):
			j := scanRun(text, i+size, hantext.IsHan)
			push(Han, KindNone, i, j)
			i = j
		case hantext.IsSpace(r):
			j := scanRun(text, i+size, hantext.IsSpace)
			push(Protected, KindSpace, i, j)
			i = j
		case hantext.IsASCIILetter(r):
			j := scanRun(text, i+size, isLatinBody)
			push(Protected, KindLatin, i, j)
			i = j
		case hantext.IsASCIIDigit(r):
			j := scanRun(text, i+size, isNumberBody)
			push(Protected, KindNumber, i, j)
			i = j
		case hantext.IsPunctOrSymbol(r):
			push(Protected, KindPunct, i, i+size)
			i += size
		default:
			push(Protected, KindOther, i, i+size)
			i += size
		}
	}

	return spans
}

// scanRun extends a run starting at byte offset j while keep holds.
func scanRun(text string, j int, keep func(rune) bool) int {
	for j < len(text) {
		r, size := utf8.DecodeRuneInString(text[j:])
		if !keep(r) {
			break
		}
		j += size
	}
	return j
}

func isLatinBody(r rune) bool {
	return hantext.IsASCIILetter(r) || hantext.IsASCIIDigit(r) || r == '_' || r == '-'
}

func isNumberBody(r rune) bool {
	return hantext.IsASCIIDigit(r) || r == '.' || r == '%'
}

// matchURL matches http:// or https:// at byte offset start followed by
// at least one non-whitespace codepoint, returning the end byte offset
// of the maximal non-whitespace run.
func matchURL(text string, start int) (int, bool) {
	rest := text[start:]
	var schemeLen int
	switch {
	case hasPrefixFold(rest, "https://"):
		schemeLen = len("https://")
	case hasPrefixFold(rest, "http://"):
		schemeLen = len("http://")
	default:
		return 0, false
	}
	end := scanRun(text, start+schemeLen, func(r rune) bool { return !hantext.IsSpace(r) })
	if end == start+schemeLen {
		return 0, false
	}
	return end, true
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// Validate checks the cover invariant: spans are contiguous,
// non-overlapping, and concatenate to exactly text.
func Validate(text string, spans []Span) error {
	pos := 0
	var sb strings.Builder
	for _, sp := range spans {
		if sp.Start != pos {
			return fmt.Errorf("span %s starts at %d, want %d", sp.ID, sp.Start, pos)
		}
		if sp.End <= sp.Start {
			return fmt.Errorf("span %s is empty", sp.ID)
		}
		if sp.Text != text[sp.Start:sp.End] {
			return fmt.Errorf("span %s text does not match offsets", sp.ID)
		}
		sb.WriteString(sp.Text)
		pos = sp.End
	}
	if sb.String() != text {
		return fmt.Errorf("span concatenation does not reproduce input")
	}
	return nil
}
