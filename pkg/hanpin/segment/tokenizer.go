package segment

import (
	"context"
	"strings"

	"github.com/cognicore/hanpin/pkg/hanpin/span"
)

// Meta records how tokenization went for the diagnostic report.
type Meta struct {
	Used         bool         `json:"used"`
	Error        string       `json:"error,omitempty"`
	InvalidSpans []string     `json:"invalid_spans,omitempty"`
	Warnings     []string     `json:"warnings,omitempty"`
	Request      *TagRequest  `json:"request,omitempty"`
	Response     *TagResponse `json:"response,omitempty"`
}

// Tokenizer produces tokens for Han spans. Without a tagger it runs
// Forward Maximum Matching; with one, advisory output is validated per
// span and only valid spans keep their advisory tokens.
type Tokenizer struct {
	fmm    *FMM
	tagger Tagger
}

// NewTokenizer builds a tokenizer over the combined word dictionary.
func NewTokenizer(words map[string]string) *Tokenizer {
	return &Tokenizer{fmm: NewFMM(words)}
}

// SetTagger assigns the optional advisory collaborator.
func (t *Tokenizer) SetTagger(tagger Tagger) {
	t.tagger = tagger
}

// Run tokenizes every Han span in spans. It always returns a complete
// token set; advisory failures are recorded in the returned Meta and
// the affected spans fall back to Forward Maximum Matching.
func (t *Tokenizer) Run(ctx context.Context, spans []span.Span) ([]Token, Meta) {
	var hanSpans []span.Span
	for _, sp := range spans {
		if sp.Type == span.Han {
			hanSpans = append(hanSpans, sp)
		}
	}

	if t.tagger == nil || len(hanSpans) == 0 {
		return t.fallbackAll(hanSpans), Meta{Used: false}
	}

	req := TagRequest{
		SchemaVersion: 1,
		Task:          "segment_and_tag",
		Tagset:        Tagset{UPOS: "UDv2", XPOS: "CTB", NER: "CoNLL"},
	}
	for _, sp := range hanSpans {
		req.Spans = append(req.Spans, TagSpan{SpanID: sp.ID, Text: sp.Text})
	}
	meta := Meta{Used: true, Request: &req}

	resp, err := t.tagger.SegmentAndTag(ctx, req)
	if err != nil {
		meta.Error = "advisory segment_and_tag: " + err.Error()
		return t.fallbackAll(hanSpans), meta
	}
	meta.Response = &resp
	meta.Warnings = resp.Warnings

	bySpanID := make(map[string][]TaggedToken, len(resp.Spans))
	for _, s := range resp.Spans {
		bySpanID[s.SpanID] = s.Tokens
	}

	var tokens []Token
	for _, sp := range hanSpans {
		tagged := bySpanID[sp.ID]
		if !validTokens(tagged, sp.Text) {
			meta.InvalidSpans = append(meta.InvalidSpans, sp.ID)
			tokens = append(tokens, t.fallbackSpan(sp)...)
			continue
		}
		cursor := sp.Start
		for idx, tt := range tagged {
			end := cursor + len(tt.Text)
			tokens = append(tokens, Token{
				SpanID: sp.ID,
				Index:  idx,
				Start:  cursor,
				End:    end,
				Text:   tt.Text,
				UPOS:   tt.UPOS,
				XPOS:   tt.XPOS,
				NER:    tt.NER,
			})
			cursor = end
		}
	}
	return tokens, meta
}

// validTokens checks one span's advisory tokens: every token carries
// non-empty text, an in-inventory UPOS and NER, a non-empty XPOS, and
// the token texts concatenate to exactly the span text.
func validTokens(tagged []TaggedToken, spanText string) bool {
	if len(tagged) == 0 {
		return false
	}
	var sb strings.Builder
	for _, tt := range tagged {
		if tt.Text == "" || tt.XPOS == "" {
			return false
		}
		if !ValidUPOS(tt.UPOS) || !ValidNER(tt.NER) {
			return false
		}
		sb.WriteString(tt.Text)
	}
	return sb.String() == spanText
}

func (t *Tokenizer) fallbackAll(hanSpans []span.Span) []Token {
	var tokens []Token
	for _, sp := range hanSpans {
		tokens = append(tokens, t.fallbackSpan(sp)...)
	}
	return tokens
}

func (t *Tokenizer) fallbackSpan(sp span.Span) []Token {
	pieces := t.fmm.Segment(sp.Text)
	tokens := make([]Token, 0, len(pieces))
	cursor := sp.Start
	for idx, piece := range pieces {
		end := cursor + len(piece)
		tokens = append(tokens, Token{
			SpanID: sp.ID,
			Index:  idx,
			Start:  cursor,
			End:    end,
			Text:   piece,
			UPOS:   FallbackUPOS,
			XPOS:   FallbackXPOS,
			NER:    FallbackNER,
		})
		cursor = end
	}
	return tokens
}
