// Package review gathers decisions that need attention and runs the
// optional advisory double-check over them. The double-check is a
// single batched exchange, consulted once, validated before any of its
// advice is applied, and never a prerequisite for producing output.
package review

import (
	"context"
	"fmt"

	"github.com/cognicore/hanpin/pkg/hanpin/hantext"
	"github.com/cognicore/hanpin/pkg/hanpin/resolve"
	"github.com/cognicore/hanpin/pkg/hanpin/segment"
	"github.com/cognicore/hanpin/pkg/hanpin/span"
)

// Item is one decision flagged for review.
type Item struct {
	SpanID      string   `json:"span_id"`
	TokenIndex  int      `json:"token_index"`
	TokenText   string   `json:"token_text"`
	TokenStart  int      `json:"token_start"`
	TokenEnd    int      `json:"token_end"`
	CharOffset  int      `json:"char_offset_in_token"`
	Char        string   `json:"char"`
	Candidates  []string `json:"candidates"`
	Chosen      string   `json:"chosen"`
	Confidence  *float64 `json:"confidence"`
	NeedsReview bool     `json:"needs_review"`
	Conflict    bool     `json:"conflict"`
}

// Collect returns every decision whose needs_review or conflict flag is
// set, or whose known confidence sits below threshold.
func Collect(
	tokens []segment.Token,
	decisions map[resolve.Key][]*resolve.Decision,
	threshold float64,
) []Item {
	var items []Item
	for _, tok := range tokens {
		for _, d := range decisions[resolve.KeyOf(tok)] {
			lowConf := d.Confidence != nil && *d.Confidence < threshold
			if !d.NeedsReview && !d.Conflict && !lowConf {
				continue
			}
			items = append(items, Item{
				SpanID:      tok.SpanID,
				TokenIndex:  tok.Index,
				TokenText:   tok.Text,
				TokenStart:  tok.Start,
				TokenEnd:    tok.End,
				CharOffset:  d.Offset,
				Char:        d.Char,
				Candidates:  d.Candidates,
				Chosen:      d.Chosen,
				Confidence:  d.Confidence,
				NeedsReview: d.NeedsReview,
				Conflict:    d.Conflict,
			})
		}
	}
	return items
}

// CheckRequest is the batched double-check request: full tokenized
// context plus the review items.
type CheckRequest struct {
	SchemaVersion int         `json:"schema_version"`
	Task          string      `json:"task"`
	Text          string      `json:"text"`
	Spans         []CheckSpan `json:"spans"`
	Items         []CheckItem `json:"items"`
}

// CheckSpan carries one Han span and its tagged tokens for context.
type CheckSpan struct {
	SpanID string                `json:"span_id"`
	Text   string                `json:"text"`
	Tokens []segment.TaggedToken `json:"tokens"`
}

// CheckItem is one decision under review.
type CheckItem struct {
	SpanID     string   `json:"span_id"`
	TokenIndex int      `json:"token_index"`
	CharOffset int      `json:"char_offset_in_token"`
	Char       string   `json:"char"`
	Candidates []string `json:"candidates"`
	Current    string   `json:"current"`
}

// CheckResponse is the advisory double-check response.
type CheckResponse struct {
	Items []CheckResult `json:"items"`
}

// CheckResult is the advice for one item. Recommended may be empty;
// NeedsUser defers the decision to a human instead of forcing one.
type CheckResult struct {
	SpanID      string `json:"span_id"`
	TokenIndex  int    `json:"token_index"`
	CharOffset  int    `json:"char_offset_in_token"`
	Char        string `json:"char,omitempty"`
	Recommended string `json:"recommended,omitempty"`
	NeedsUser   bool   `json:"needs_user,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Checker is the optional advisory double-check collaborator.
type Checker interface {
	DoubleCheck(ctx context.Context, req CheckRequest) (CheckResponse, error)
}

// AppliedCheck records a recommendation that overwrote a decision.
type AppliedCheck struct {
	SpanID      string `json:"span_id"`
	TokenIndex  int    `json:"token_index"`
	CharOffset  int    `json:"char_offset_in_token"`
	Char        string `json:"char"`
	Recommended string `json:"recommended"`
	Reason      string `json:"reason,omitempty"`
}

// UserItem records an item the advisory side handed back to the user.
type UserItem struct {
	SpanID      string   `json:"span_id"`
	TokenIndex  int      `json:"token_index"`
	CharOffset  int      `json:"char_offset_in_token"`
	Char        string   `json:"char"`
	Candidates  []string `json:"candidates"`
	Recommended string   `json:"recommended,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// Meta records how the double-check went for the diagnostic report.
type Meta struct {
	Used      bool           `json:"used"`
	Error     string         `json:"error,omitempty"`
	Request   *CheckRequest  `json:"request,omitempty"`
	Response  *CheckResponse `json:"response,omitempty"`
	Applied   []AppliedCheck `json:"applied,omitempty"`
	NeedsUser []UserItem     `json:"needs_user,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// RunDoubleCheck sends the review items to the checker exactly once
// and applies validated advice to the decision side table. It is
// skipped entirely (Used=false) when there is no checker or nothing to
// review. Items referencing unknown tokens or out-of-range offsets are
// skipped with a warning.
func RunDoubleCheck(
	ctx context.Context,
	checker Checker,
	text string,
	spans []span.Span,
	tokens []segment.Token,
	decisions map[resolve.Key][]*resolve.Decision,
	items []Item,
) Meta {
	if checker == nil || len(items) == 0 {
		return Meta{Used: false}
	}

	bySpan := make(map[string][]segment.Token)
	for _, tok := range tokens {
		bySpan[tok.SpanID] = append(bySpan[tok.SpanID], tok)
	}

	req := CheckRequest{
		SchemaVersion: 1,
		Task:          "double_check",
		Text:          text,
	}
	for _, sp := range spans {
		if sp.Type != span.Han {
			continue
		}
		cs := CheckSpan{SpanID: sp.ID, Text: sp.Text}
		for _, tok := range bySpan[sp.ID] {
			cs.Tokens = append(cs.Tokens, segment.TaggedToken{
				Text: tok.Text, UPOS: tok.UPOS, XPOS: tok.XPOS, NER: tok.NER,
			})
		}
		req.Spans = append(req.Spans, cs)
	}
	for _, it := range items {
		req.Items = append(req.Items, CheckItem{
			SpanID:     it.SpanID,
			TokenIndex: it.TokenIndex,
			CharOffset: it.CharOffset,
			Char:       it.Char,
			Candidates: it.Candidates,
			Current:    it.Chosen,
		})
	}
	meta := Meta{Used: true, Request: &req}

	resp, err := checker.DoubleCheck(ctx, req)
	if err != nil {
		meta.Error = "advisory double_check: " + err.Error()
		return meta
	}
	meta.Response = &resp

	tokByAddr := make(map[string]segment.Token, len(tokens))
	for _, tok := range tokens {
		tokByAddr[addr(tok.SpanID, tok.Index)] = tok
	}

	for _, res := range resp.Items {
		tok, ok := tokByAddr[addr(res.SpanID, res.TokenIndex)]
		if !ok {
			meta.Warnings = append(meta.Warnings, fmt.Sprintf(
				"double_check_item_token_not_found:%s:%d", res.SpanID, res.TokenIndex))
			continue
		}
		decs := decisions[resolve.KeyOf(tok)]
		if res.CharOffset < 0 || res.CharOffset >= len(decs) {
			meta.Warnings = append(meta.Warnings, fmt.Sprintf(
				"double_check_item_char_offset_oob:%s:%d:%d", res.SpanID, res.TokenIndex, res.CharOffset))
			continue
		}
		dec := decs[res.CharOffset]
		if res.Char != "" && dec.Char != res.Char {
			meta.Warnings = append(meta.Warnings, fmt.Sprintf(
				"double_check_item_char_mismatch:%s:%d:%d:expected=%s:got=%s",
				res.SpanID, res.TokenIndex, res.CharOffset, dec.Char, res.Char))
		}

		if res.NeedsUser {
			dec.NeedsReview = true
			dec.Notes = append(dec.Notes, "advisory_double_check_needs_user")
			meta.NeedsUser = append(meta.NeedsUser, UserItem{
				SpanID:      res.SpanID,
				TokenIndex:  res.TokenIndex,
				CharOffset:  res.CharOffset,
				Char:        dec.Char,
				Candidates:  dec.Candidates,
				Recommended: hantext.Normalize(res.Recommended),
				Reason:      res.Reason,
			})
			continue
		}

		if res.Recommended != "" {
			recommended := hantext.Normalize(res.Recommended)
			dec.Chosen = recommended
			dec.Provenance = resolve.ByDoubleCheck
			dec.NeedsReview = false
			if res.Reason != "" {
				dec.Notes = append(dec.Notes, "advisory_reason:"+res.Reason)
			}
			meta.Applied = append(meta.Applied, AppliedCheck{
				SpanID:      res.SpanID,
				TokenIndex:  res.TokenIndex,
				CharOffset:  res.CharOffset,
				Char:        dec.Char,
				Recommended: recommended,
				Reason:      res.Reason,
			})
		}
	}

	return meta
}

func addr(spanID string, tokenIndex int) string {
	return fmt.Sprintf("%s#%d", spanID, tokenIndex)
}
