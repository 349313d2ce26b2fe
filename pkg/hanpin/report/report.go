// Package report assembles the diagnostic trail of a run: every span,
// token, and per-character decision, plus advisory metadata and
// whatever still needs attention.
package report

import (
	"github.com/oklog/ulid/v2"

	"github.com/cognicore/hanpin/pkg/hanpin/override"
	"github.com/cognicore/hanpin/pkg/hanpin/resolve"
	"github.com/cognicore/hanpin/pkg/hanpin/review"
	"github.com/cognicore/hanpin/pkg/hanpin/segment"
	"github.com/cognicore/hanpin/pkg/hanpin/span"
)

// SchemaVersion identifies the report shape.
const SchemaVersion = 1

// TokenReport is one token with its resolved pinyin and decision trail.
type TokenReport struct {
	segment.Token
	Pinyin        string             `json:"pinyin"`
	CharDecisions []resolve.Decision `json:"char_decisions"`
}

// Report is the full diagnostic record of one run.
type Report struct {
	SchemaVersion       int                    `json:"schema_version"`
	RunID               string                 `json:"run_id"`
	Text                string                 `json:"text"`
	Spans               []span.Span            `json:"spans"`
	Tokens              []TokenReport          `json:"tokens"`
	AdvisoryTagging     segment.Meta           `json:"advisory_tagging"`
	AdvisoryDoubleCheck review.Meta            `json:"advisory_double_check"`
	NeedsReviewItems    []review.Item          `json:"needs_review_items"`
	Unresolved          bool                   `json:"unresolved"`
	AppliedOverrides    []override.AppliedRule `json:"applied_overrides"`
	Conflicts           []override.Conflict    `json:"conflicts"`
	Warnings            []string               `json:"warnings"`
}

// Input bundles everything Build needs.
type Input struct {
	Text             string
	Spans            []span.Span
	Tokens           []segment.Token
	Decisions        map[resolve.Key][]*resolve.Decision
	Pinyin           map[resolve.Key]string
	TaggingMeta      segment.Meta
	CheckMeta        review.Meta
	NeedsReviewItems []review.Item
	AppliedOverrides []override.AppliedRule
	Conflicts        []override.Conflict
	Warnings         []string
}

// Build assembles the report. The run id is a fresh ULID. The
// unresolved flag is set when review items remain and no clean
// double-check pass examined them.
func Build(in Input) Report {
	tokens := make([]TokenReport, 0, len(in.Tokens))
	for _, tok := range in.Tokens {
		key := resolve.KeyOf(tok)
		tr := TokenReport{
			Token:  tok,
			Pinyin: in.Pinyin[key],
		}
		for _, d := range in.Decisions[key] {
			tr.CharDecisions = append(tr.CharDecisions, *d)
		}
		tokens = append(tokens, tr)
	}

	unresolved := len(in.NeedsReviewItems) > 0 &&
		!(in.CheckMeta.Used && in.CheckMeta.Error == "")

	return Report{
		SchemaVersion:       SchemaVersion,
		RunID:               ulid.Make().String(),
		Text:                in.Text,
		Spans:               in.Spans,
		Tokens:              tokens,
		AdvisoryTagging:     in.TaggingMeta,
		AdvisoryDoubleCheck: in.CheckMeta,
		NeedsReviewItems:    in.NeedsReviewItems,
		Unresolved:          unresolved,
		AppliedOverrides:    in.AppliedOverrides,
		Conflicts:           in.Conflicts,
		Warnings:            in.Warnings,
	}
}
