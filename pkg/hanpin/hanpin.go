// Package hanpin converts mixed Han/Latin/digit text into pinyin with
// tone marks, resolving polyphonic characters through layered decision
// logic and optional advisory collaborators.
package hanpin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cognicore/hanpin/pkg/hanpin/compose"
	"github.com/cognicore/hanpin/pkg/hanpin/internalerr"
	"github.com/cognicore/hanpin/pkg/hanpin/override"
	"github.com/cognicore/hanpin/pkg/hanpin/report"
	"github.com/cognicore/hanpin/pkg/hanpin/resolve"
	"github.com/cognicore/hanpin/pkg/hanpin/resource"
	"github.com/cognicore/hanpin/pkg/hanpin/review"
	"github.com/cognicore/hanpin/pkg/hanpin/segment"
	"github.com/cognicore/hanpin/pkg/hanpin/span"
)

// DefaultReviewThreshold is the confidence below which a resolved
// decision is still collected for review.
const DefaultReviewThreshold = 0.85

// Options configures an Engine. The zero value of the optional fields
// keeps word-like spacing on, uses the default review threshold, and
// runs without advisory collaborators.
type Options struct {
	Resources *resource.Set

	// Tagger and Checker are the optional advisory collaborators for
	// segmentation/tagging and second-opinion disambiguation.
	Tagger  segment.Tagger
	Checker review.Checker

	// DisableWordLikeSpacing turns off the space inserted between Han
	// pinyin and adjacent latin/number/url spans.
	DisableWordLikeSpacing bool

	// ReviewThreshold overrides DefaultReviewThreshold when positive.
	ReviewThreshold float64

	// Trace, when set, receives each pipeline stage as indented JSON.
	Trace io.Writer
}

// Result is the outcome of one conversion run.
type Result struct {
	Output string
	Report report.Report
}

// Engine runs the conversion pipeline. It is safe for concurrent use:
// each Convert call owns its span/token/decision state and the resource
// set is read-only.
type Engine struct {
	opts      Options
	resolver  *resolve.Resolver
	tokenizer *segment.Tokenizer
	threshold float64
}

// New builds an Engine from opts. Resources are required.
func New(opts Options) (*Engine, error) {
	if opts.Resources == nil {
		return nil, fmt.Errorf("%w: resources required", internalerr.ErrInvalidConfig)
	}
	threshold := opts.ReviewThreshold
	if threshold <= 0 {
		threshold = DefaultReviewThreshold
	}
	tokenizer := segment.NewTokenizer(opts.Resources.CombinedWords())
	if opts.Tagger != nil {
		tokenizer.SetTagger(opts.Tagger)
	}
	return &Engine{
		opts:      opts,
		resolver:  resolve.New(opts.Resources),
		tokenizer: tokenizer,
		threshold: threshold,
	}, nil
}

// Convert runs the full pipeline over text. Advisory failures never
// prevent output; the deterministic fallback path covers them. ctx
// bounds the (at most two) advisory calls.
func (e *Engine) Convert(ctx context.Context, text string) (*Result, error) {
	spans := span.Split(text)
	e.trace("spans", spans)

	tokens, tagMeta := e.tokenizer.Run(ctx, spans)
	e.trace("tokens", map[string]any{"meta": tagMeta, "tokens": tokens})

	decisions := make(map[resolve.Key][]*resolve.Decision, len(tokens))
	pinyin := make(map[resolve.Key]string, len(tokens))
	var warnings []string
	for _, tok := range tokens {
		py, decs, w := e.resolver.Token(tok)
		key := resolve.KeyOf(tok)
		pinyin[key] = py
		decisions[key] = decs
		warnings = append(warnings, w...)
	}
	if e.opts.Trace != nil {
		type resolved struct {
			Token  string `json:"token"`
			Pinyin string `json:"pinyin"`
		}
		var stage []resolved
		for _, tok := range tokens {
			stage = append(stage, resolved{Token: tok.Text, Pinyin: pinyin[resolve.KeyOf(tok)]})
		}
		e.trace("resolution", stage)
	}

	applied, conflicts, overrideWarnings := override.Apply(tokens, decisions, e.opts.Resources.Rules)
	warnings = append(warnings, overrideWarnings...)
	e.trace("overrides", map[string]any{"applied": applied, "conflicts": conflicts})

	items := review.Collect(tokens, decisions, e.threshold)
	e.trace("review_items", items)

	checkMeta := review.RunDoubleCheck(ctx, e.opts.Checker, text, spans, tokens, decisions, items)
	e.trace("double_check", checkMeta)

	// Overrides and double-check mutate decisions; rebuild token pinyin.
	for _, tok := range tokens {
		key := resolve.KeyOf(tok)
		joined := ""
		for _, d := range decisions[key] {
			joined += d.Chosen
		}
		pinyin[key] = joined
	}

	output := compose.Stitch(spans, tokens, pinyin, !e.opts.DisableWordLikeSpacing)
	e.trace("output", output)

	itemsAfter := review.Collect(tokens, decisions, e.threshold)

	rep := report.Build(report.Input{
		Text:             text,
		Spans:            spans,
		Tokens:           tokens,
		Decisions:        decisions,
		Pinyin:           pinyin,
		TaggingMeta:      tagMeta,
		CheckMeta:        checkMeta,
		NeedsReviewItems: itemsAfter,
		AppliedOverrides: applied,
		Conflicts:        conflicts,
		Warnings:         warnings,
	})

	return &Result{Output: output, Report: rep}, nil
}

func (e *Engine) trace(stage string, data any) {
	if e.opts.Trace == nil {
		return
	}
	fmt.Fprintf(e.opts.Trace, "--- %s ---\n", stage)
	enc := json.NewEncoder(e.opts.Trace)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}
