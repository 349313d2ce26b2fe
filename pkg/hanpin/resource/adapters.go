package resource

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cognicore/hanpin/pkg/hanpin/hantext"
	"github.com/cognicore/hanpin/pkg/hanpin/internalerr"
)

// Filenames are the default resource file names inside a data dir.
type Filenames struct {
	Words     string
	CharBase  string
	Polyphone string
	Disambig  string
	Overrides string
	Lexicon   string
}

// DefaultFilenames returns the conventional file layout.
func DefaultFilenames() Filenames {
	return Filenames{
		Words:     "word.json",
		CharBase:  "char_base.json",
		Polyphone: "polyphone.json",
		Disambig:  "polyphone_disambig.json",
		Overrides: "overrides.json",
		Lexicon:   "lexicon.json",
	}
}

// Load reads every resource from dir using the default file names.
// Words, char base and the two polyphone files are required; overrides
// and lexicon are optional. Malformed individual entries are skipped,
// an unreadable required file aborts the load.
func Load(dir string) (*Set, error) {
	return LoadNamed(dir, DefaultFilenames())
}

// LoadNamed is Load with explicit file names.
func LoadNamed(dir string, names Filenames) (*Set, error) {
	words, err := LoadWords(filepath.Join(dir, names.Words))
	if err != nil {
		return nil, fmt.Errorf("load words: %w", required(err))
	}
	charBase, err := LoadCharBase(filepath.Join(dir, names.CharBase))
	if err != nil {
		return nil, fmt.Errorf("load char base: %w", required(err))
	}
	polyphone, err := LoadPolyphoneCandidates(filepath.Join(dir, names.Polyphone))
	if err != nil {
		return nil, fmt.Errorf("load polyphone candidates: %w", required(err))
	}
	disambig, thresholds, err := LoadDisambig(filepath.Join(dir, names.Disambig))
	if err != nil {
		return nil, fmt.Errorf("load polyphone stats: %w", required(err))
	}
	rules, err := LoadRules(filepath.Join(dir, names.Overrides))
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	lexicon, err := LoadLexicon(filepath.Join(dir, names.Lexicon))
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}

	return &Set{
		Words:               words,
		Lexicon:             lexicon,
		CharBase:            charBase,
		PolyphoneCandidates: polyphone,
		Disambig:            disambig,
		Thresholds:          thresholds,
		Rules:               rules,
	}, nil
}

// LoadWords reads the word dictionary: one JSON object per line with
// "word" and "pinyin" fields, tolerating surrounding array brackets and
// trailing commas. Only Han-only keys are kept.
func LoadWords(path string) (map[string]string, error) {
	out := make(map[string]string)
	err := eachPseudoRecord(path, func(line string) {
		var rec struct {
			Word   string `json:"word"`
			Pinyin string `json:"pinyin"`
		}
		if json.Unmarshal([]byte(line), &rec) != nil {
			return
		}
		if rec.Word == "" || !hantext.IsHanString(rec.Word) {
			return
		}
		out[rec.Word] = hantext.Normalize(rec.Pinyin)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadCharBase reads the per-character candidate table, same
// line-delimited shape as the word dictionary.
func LoadCharBase(path string) (map[string][]string, error) {
	out := make(map[string][]string)
	err := eachPseudoRecord(path, func(line string) {
		var rec struct {
			Char   string   `json:"char"`
			Pinyin []string `json:"pinyin"`
		}
		if json.Unmarshal([]byte(line), &rec) != nil {
			return
		}
		if rec.Char == "" || rec.Pinyin == nil {
			return
		}
		cands := make([]string, len(rec.Pinyin))
		for i, p := range rec.Pinyin {
			cands[i] = hantext.Normalize(p)
		}
		out[rec.Char] = cands
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadPolyphoneCandidates reads the polyphone candidate list, a plain
// JSON array of {char, pinyin} records.
func LoadPolyphoneCandidates(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Char   string   `json:"char"`
		Pinyin []string `json:"pinyin"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(raw))
	for _, rec := range raw {
		if rec.Char == "" || rec.Pinyin == nil {
			continue
		}
		cands := make([]string, len(rec.Pinyin))
		for i, p := range rec.Pinyin {
			cands[i] = hantext.Normalize(p)
		}
		out[rec.Char] = cands
	}
	return out, nil
}

// LoadDisambig reads the polyphone statistics file, an
// object-with-items shape carrying global thresholds. Numeric fields
// are coerced tolerantly: a malformed value becomes 0, never an error.
func LoadDisambig(path string) (map[string]DisambigEntry, Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Thresholds{}, err
	}
	var raw struct {
		Items      []map[string]any `json:"items"`
		Thresholds map[string]any   `json:"thresholds"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, Thresholds{}, err
	}

	out := make(map[string]DisambigEntry, len(raw.Items))
	for _, item := range raw.Items {
		ch := asString(item["char"])
		if ch == "" {
			continue
		}
		entry := DisambigEntry{
			Char:       ch,
			Default:    hantext.Normalize(asString(item["default"])),
			Candidates: normalizeAll(asStringSlice(item["candidates"])),
			Contexts:   map[string]Context{},
		}
		if ctxs, ok := item["contexts"].(map[string]any); ok {
			for key, v := range ctxs {
				cv, ok := v.(map[string]any)
				if !ok {
					continue
				}
				p, pKnown := asFloat(cv["p"])
				p2, _ := asFloat(cv["p2"])
				n, _ := asInt(cv["n"])
				entry.Contexts[key] = Context{
					Best:   hantext.Normalize(asString(cv["best"])),
					P:      p,
					P2:     p2,
					N:      n,
					PKnown: pKnown,
				}
			}
		}
		out[ch] = entry
	}

	th := DefaultThresholds()
	if v, ok := asInt(raw.Thresholds["min_support"]); ok {
		th.MinSupport = v
	}
	if v, ok := asFloat(raw.Thresholds["min_prob"]); ok {
		th.MinProb = v
	}
	if v, ok := asFloat(raw.Thresholds["min_margin"]); ok {
		th.MinMargin = v
	}
	return out, th, nil
}

// LoadRules reads the override rules file. A missing file is created
// empty so interactive sessions can append to it later. Rules missing
// their essentials or carrying an invalid regex are skipped.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if werr := WriteRules(path, nil); werr != nil {
			return nil, werr
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw struct {
		Rules []Rule `json:"rules"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	var rules []Rule
	for i := range raw.Rules {
		r := raw.Rules[i]
		if !r.Valid() {
			continue
		}
		if err := r.Compile(); err != nil {
			continue
		}
		r.Choose = hantext.Normalize(r.Choose)
		rules = append(rules, r)
	}
	return rules, nil
}

// WriteRules persists the rules file in its on-disk envelope.
func WriteRules(path string, rules []Rule) error {
	envelope := struct {
		SchemaVersion int    `json:"schema_version"`
		Rules         []Rule `json:"rules"`
	}{SchemaVersion: 1, Rules: rules}
	if envelope.Rules == nil {
		envelope.Rules = []Rule{}
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// LoadLexicon reads the lexicon, accepting either an
// object-with-items shape or a flat word→pinyin map. A missing file
// yields an empty lexicon.
func LoadLexicon(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make(map[string]string)

	var withItems struct {
		Items []struct {
			Word   string `json:"word"`
			Pinyin string `json:"pinyin"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &withItems); err == nil && withItems.Items != nil {
		for _, it := range withItems.Items {
			if it.Word != "" && hantext.IsHanString(it.Word) && it.Pinyin != "" {
				out[it.Word] = hantext.Normalize(it.Pinyin)
			}
		}
		return out, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("%w: lexicon shape", internalerr.ErrInvalidInput)
	}
	for w, p := range flat {
		if w != "" && hantext.IsHanString(w) && p != "" {
			out[w] = hantext.Normalize(p)
		}
	}
	return out, nil
}

// required marks a missing required resource file.
func required(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", internalerr.ErrResourceMissing, err)
	}
	return err
}

// eachPseudoRecord feeds every data line of a line-delimited pseudo
// array (optional "[", "]" lines, trailing commas) to fn.
func eachPseudoRecord(path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line == "[" || line == "]" {
			continue
		}
		line = strings.TrimSuffix(line, ",")
		fn(line)
	}
	return sc.Err()
}

func normalizeAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = hantext.Normalize(s)
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
