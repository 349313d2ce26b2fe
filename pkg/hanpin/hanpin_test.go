package hanpin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/cognicore/hanpin/pkg/hanpin/internalerr"
	"github.com/cognicore/hanpin/pkg/hanpin/resource"
	"github.com/cognicore/hanpin/pkg/hanpin/review"
	"github.com/cognicore/hanpin/pkg/hanpin/segment"
)

func testResources() *resource.Set {
	return &resource.Set{
		Words: map[string]string{
			"细说": "xì shuō",
			"银行": "yín háng",
			"行长": "háng zhǎng",
		},
		CharBase: map[string][]string{
			"细": {"xì"},
			"说": {"shuō", "shuì"},
			"银": {"yín"},
			"行": {"háng", "xíng"},
			"长": {"cháng", "zhǎng"},
			"你": {"nǐ"},
			"好": {"hǎo", "hào"},
		},
		Disambig: map[string]resource.DisambigEntry{
			"好": {
				Char:       "好",
				Default:    "hǎo",
				Candidates: []string{"hǎo", "hào"},
				Contexts: map[string]resource.Context{
					"pos=X|ner=O": {Best: "hǎo", P: 0.97, P2: 0.03, N: 5000, PKnown: true},
				},
			},
		},
		Thresholds: resource.DefaultThresholds(),
	}
}

func mustEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	eng, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	return eng
}

func TestNewRequiresResources(t *testing.T) {
	_, err := New(Options{})
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("err = %v", err)
	}
}

func TestConvertWordLookup(t *testing.T) {
	eng := mustEngine(t, Options{Resources: testResources()})
	res, err := eng.Convert(context.Background(), "细说银行")
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "xìshuō yínháng" {
		t.Fatalf("output = %q", res.Output)
	}
	if res.Report.Unresolved {
		t.Fatal("clean run must not be unresolved")
	}
	if res.Report.SchemaVersion != 1 || res.Report.RunID == "" {
		t.Fatalf("report header = %+v", res.Report)
	}
	if len(res.Report.Tokens) != 2 {
		t.Fatalf("tokens = %+v", res.Report.Tokens)
	}
}

func TestConvertMixedTextSpacing(t *testing.T) {
	eng := mustEngine(t, Options{Resources: testResources()})
	res, err := eng.Convert(context.Background(), "细说OpenAI")
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "xìshuō OpenAI" {
		t.Fatalf("output = %q", res.Output)
	}

	eng = mustEngine(t, Options{Resources: testResources(), DisableWordLikeSpacing: true})
	res, err = eng.Convert(context.Background(), "细说OpenAI")
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "xìshuōOpenAI" {
		t.Fatalf("output = %q", res.Output)
	}
}

func TestConvertEmptyAndNonHan(t *testing.T) {
	eng := mustEngine(t, Options{Resources: testResources()})

	res, err := eng.Convert(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "" || res.Report.Unresolved {
		t.Fatalf("result = %+v", res)
	}

	res, err = eng.Convert(context.Background(), "plain ascii v2.0")
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "plain ascii v2.0" {
		t.Fatalf("output = %q", res.Output)
	}
}

func TestConvertPolyphoneDisambiguation(t *testing.T) {
	eng := mustEngine(t, Options{Resources: testResources()})
	res, err := eng.Convert(context.Background(), "好")
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "hǎo" {
		t.Fatalf("output = %q", res.Output)
	}
	if res.Report.Unresolved {
		t.Fatal("confident polyphone pick must not be unresolved")
	}
}

func TestConvertOverrideApplies(t *testing.T) {
	set := testResources()
	set.Rules = []resource.Rule{{
		ID:       "hao4",
		Priority: 100,
		Target:   resource.Target{Char: "好", Occurrence: resource.Occurrence{All: true}},
		Choose:   "hào",
	}}
	eng := mustEngine(t, Options{Resources: set})
	res, err := eng.Convert(context.Background(), "好")
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "hào" {
		t.Fatalf("output = %q", res.Output)
	}
	if len(res.Report.AppliedOverrides) != 1 || res.Report.AppliedOverrides[0].RuleID != "hao4" {
		t.Fatalf("applied = %+v", res.Report.AppliedOverrides)
	}
}

func TestConvertUnknownCharUnresolved(t *testing.T) {
	eng := mustEngine(t, Options{Resources: testResources()})
	res, err := eng.Convert(context.Background(), "龘")
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "龘" {
		t.Fatalf("unknown char must pass through, got %q", res.Output)
	}
	if !res.Report.Unresolved || len(res.Report.NeedsReviewItems) != 1 {
		t.Fatalf("report = %+v", res.Report)
	}
}

type stubChecker struct {
	resp review.CheckResponse
	err  error
}

func (s *stubChecker) DoubleCheck(ctx context.Context, req review.CheckRequest) (review.CheckResponse, error) {
	if s.err != nil {
		return review.CheckResponse{}, s.err
	}
	// Recommend keeping the current value for every item.
	var out review.CheckResponse
	for _, it := range req.Items {
		rec := it.Current
		if rec == it.Char {
			// unknown char: no pinyin to confirm
			continue
		}
		out.Items = append(out.Items, review.CheckResult{
			SpanID:      it.SpanID,
			TokenIndex:  it.TokenIndex,
			CharOffset:  it.CharOffset,
			Char:        it.Char,
			Recommended: rec,
			Reason:      "confirmed",
		})
	}
	if s.resp.Items != nil {
		return s.resp, nil
	}
	return out, nil
}

func TestConvertDoubleCheckClearsUnresolved(t *testing.T) {
	set := testResources()
	// no disambig entry: 说 alone falls back and needs review
	eng := mustEngine(t, Options{Resources: set, Checker: &stubChecker{}})
	res, err := eng.Convert(context.Background(), "说")
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "shuō" {
		t.Fatalf("output = %q", res.Output)
	}
	if !res.Report.AdvisoryDoubleCheck.Used {
		t.Fatal("checker should have been consulted")
	}
	if res.Report.Unresolved {
		t.Fatal("clean double-check pass must clear the unresolved flag")
	}
}

func TestConvertDoubleCheckErrorLeavesUnresolved(t *testing.T) {
	eng := mustEngine(t, Options{
		Resources: testResources(),
		Checker:   &stubChecker{err: errors.New("down")},
	})
	res, err := eng.Convert(context.Background(), "说")
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "shuō" {
		t.Fatalf("advisory failure must not block output, got %q", res.Output)
	}
	if !res.Report.Unresolved || res.Report.AdvisoryDoubleCheck.Error == "" {
		t.Fatalf("report = %+v", res.Report)
	}
}

type stubTagger struct {
	resp segment.TagResponse
}

func (s *stubTagger) SegmentAndTag(ctx context.Context, req segment.TagRequest) (segment.TagResponse, error) {
	return s.resp, nil
}

func TestConvertAdvisoryTaggingFlowsIntoResolution(t *testing.T) {
	set := testResources()
	set.Disambig["长"] = resource.DisambigEntry{
		Char:       "长",
		Candidates: []string{"cháng", "zhǎng"},
		Contexts: map[string]resource.Context{
			"pos=NOUN|ner=O": {Best: "zhǎng", P: 0.96, P2: 0.04, N: 800, PKnown: true},
		},
	}
	eng := mustEngine(t, Options{
		Resources: set,
		Tagger: &stubTagger{resp: segment.TagResponse{Spans: []segment.TaggedSpan{{
			SpanID: "S0",
			Tokens: []segment.TaggedToken{{Text: "长", UPOS: "NOUN", XPOS: "NN", NER: "O"}},
		}}}},
	})
	res, err := eng.Convert(context.Background(), "长")
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "zhǎng" {
		t.Fatalf("output = %q", res.Output)
	}
	if !res.Report.AdvisoryTagging.Used {
		t.Fatal("tagging meta should record the consultation")
	}
}

func TestConvertIdempotentModuloRunID(t *testing.T) {
	eng := mustEngine(t, Options{Resources: testResources()})
	text := "细说银行行长，好！v2.0"

	a, err := eng.Convert(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	b, err := eng.Convert(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	if a.Output != b.Output {
		t.Fatalf("outputs differ: %q vs %q", a.Output, b.Output)
	}

	a.Report.RunID = ""
	b.Report.RunID = ""
	aj, _ := json.Marshal(a.Report)
	bj, _ := json.Marshal(b.Report)
	if !reflect.DeepEqual(aj, bj) {
		t.Fatalf("reports differ:\n%s\n%s", aj, bj)
	}
}

func TestConvertTrace(t *testing.T) {
	var buf bytes.Buffer
	eng := mustEngine(t, Options{Resources: testResources(), Trace: &buf})
	if _, err := eng.Convert(context.Background(), "细说"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, stage := range []string{"--- spans ---", "--- tokens ---", "--- resolution ---", "--- output ---"} {
		if !strings.Contains(out, stage) {
			t.Fatalf("trace missing %q:\n%s", stage, out)
		}
	}
}
