// Package compose reassembles resolved pinyin and protected spans into
// the final output text.
package compose

import (
	"strings"

	"github.com/cognicore/hanpin/pkg/hanpin/resolve"
	"github.com/cognicore/hanpin/pkg/hanpin/segment"
	"github.com/cognicore/hanpin/pkg/hanpin/span"
)

// Stitch walks spans in original order. Han spans become their tokens'
// pinyin joined by single spaces; protected spans pass through
// verbatim. With wordLikeSpacing on, one space is inserted between Han
// output and an adjacent url/latin/number span unless a side already
// ends or begins with whitespace.
func Stitch(
	spans []span.Span,
	tokens []segment.Token,
	pinyin map[resolve.Key]string,
	wordLikeSpacing bool,
) string {
	bySpan := make(map[string][]segment.Token)
	for _, tok := range tokens {
		bySpan[tok.SpanID] = append(bySpan[tok.SpanID], tok)
	}

	hanOutput := func(spanID string) string {
		parts := make([]string, 0, len(bySpan[spanID]))
		for _, tok := range bySpan[spanID] {
			parts = append(parts, pinyin[resolve.KeyOf(tok)])
		}
		return strings.Join(parts, " ")
	}

	var out []string
	prevKind := span.KindNone
	prevWasHan := false

	for _, sp := range spans {
		if sp.Type == span.Han {
			if wordLikeSpacing && len(out) > 0 && !prevWasHan && prevKind.WordLike() {
				if !endsWithSpace(out[len(out)-1]) {
					out = append(out, " ")
				}
			}
			out = append(out, hanOutput(sp.ID))
			prevKind = span.KindNone
			prevWasHan = true
			continue
		}

		if wordLikeSpacing && len(out) > 0 && prevWasHan && sp.Kind.WordLike() {
			if !endsWithSpace(out[len(out)-1]) && !startsWithSpace(sp.Text) {
				out = append(out, " ")
			}
		}
		out = append(out, sp.Text)
		prevKind = sp.Kind
		prevWasHan = false
	}

	return strings.Join(out, "")
}

func endsWithSpace(s string) bool {
	return strings.HasSuffix(s, " ") || strings.HasSuffix(s, "\t") || strings.HasSuffix(s, "\n")
}

func startsWithSpace(s string) bool {
	return strings.HasPrefix(s, " ") || strings.HasPrefix(s, "\t") || strings.HasPrefix(s, "\n")
}
