package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/hanpin/internal/llm"
	"github.com/cognicore/hanpin/pkg/hanpin"
	"github.com/cognicore/hanpin/pkg/hanpin/config"
	"github.com/cognicore/hanpin/pkg/hanpin/resource"
	"github.com/cognicore/hanpin/pkg/hanpin/store"
	"github.com/cognicore/hanpin/pkg/hanpin/store/sqlite"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML config file (optional)")
		dataDir     = flag.String("data-dir", "", "Directory containing the resource files")
		reportPath  = flag.String("report", "", "Write the run report JSON to this path")
		noSpacing   = flag.Bool("no-word-like-spacing", false, "Do not insert spaces around latin/number/url spans")
		ollamaModel = flag.String("ollama-model", "", "Use Ollama for segment+tag and double-check")
		ollamaHost  = flag.String("ollama-host", "", "Ollama host URL")
		noCheck     = flag.Bool("no-double-check", false, "Disable the advisory double-check step")
		interactive = flag.Bool("interactive", false, "Prompt for unresolved readings and write override rules")
		debug       = flag.Bool("debug", false, "Print intermediate pipeline stages to stderr")
		historyDB   = flag.String("history-db", "", "SQLite run-history database (optional)")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *ollamaModel != "" {
		cfg.Advisory.Model = *ollamaModel
	}
	if *ollamaHost != "" {
		cfg.Advisory.Host = *ollamaHost
	}
	if *historyDB != "" {
		cfg.HistoryDB = *historyDB
	}

	text := flag.Arg(0)
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatal(err)
		}
		text = string(data)
	}

	ctx := context.Background()

	opts := hanpin.Options{
		DisableWordLikeSpacing: *noSpacing || !cfg.SpacingEnabled(),
		ReviewThreshold:        cfg.ReviewThreshold,
	}
	if *debug {
		opts.Trace = os.Stderr
	}
	if cfg.Advisory.Model != "" {
		client := &llm.Client{
			Host:  cfg.Advisory.Host,
			Model: cfg.Advisory.Model,
			HTTPClient: &http.Client{
				Timeout: time.Duration(cfg.Advisory.TimeoutSeconds) * time.Second,
			},
		}
		opts.Tagger = client
		if cfg.Advisory.DoubleCheckEnabled() && !*noCheck {
			opts.Checker = client
		}
	}

	result, err := runOnce(ctx, cfg.DataDir, opts, text)
	if err != nil {
		log.Fatal(err)
	}

	if *interactive && len(result.Report.NeedsReviewItems) > 0 {
		if err := authorOverrides(cfg.DataDir, text, result); err != nil {
			log.Fatal(err)
		}
		// Rerun so the output reflects the new rules.
		result, err = runOnce(ctx, cfg.DataDir, opts, text)
		if err != nil {
			log.Fatal(err)
		}
	}

	fmt.Print(result.Output)
	if !strings.HasSuffix(result.Output, "\n") {
		fmt.Println()
	}

	if *reportPath != "" {
		if err := writeReport(*reportPath, result); err != nil {
			log.Fatal(err)
		}
	}

	if cfg.HistoryDB != "" {
		if err := saveHistory(ctx, cfg.HistoryDB, text, result); err != nil {
			log.Fatal(err)
		}
	}
}

func runOnce(ctx context.Context, dataDir string, opts hanpin.Options, text string) (*hanpin.Result, error) {
	res, err := resource.Load(dataDir)
	if err != nil {
		return nil, err
	}
	opts.Resources = res
	engine, err := hanpin.New(opts)
	if err != nil {
		return nil, err
	}
	return engine.Convert(ctx, text)
}

func writeReport(path string, result *hanpin.Result) error {
	data, err := json.MarshalIndent(result.Report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func saveHistory(ctx context.Context, dbPath, input string, result *hanpin.Result) error {
	st, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	reportJSON, err := json.Marshal(result.Report)
	if err != nil {
		return err
	}
	return st.SaveRun(ctx, store.RunRecord{
		ID:               result.Report.RunID,
		CreatedAt:        time.Now().UTC(),
		Input:            input,
		Output:           result.Output,
		ReportJSON:       reportJSON,
		Unresolved:       result.Report.Unresolved,
		AppliedOverrides: len(result.Report.AppliedOverrides),
		Conflicts:        len(result.Report.Conflicts),
	})
}

// authorOverrides walks the outstanding review items, prompts for a
// reading, and appends an override rule per answer to the data dir's
// rules file.
func authorOverrides(dataDir, text string, result *hanpin.Result) error {
	path := filepath.Join(dataDir, resource.DefaultFilenames().Overrides)
	rules, err := resource.LoadRules(path)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	changed := false

	for _, item := range result.Report.NeedsReviewItems {
		if len(item.Candidates) == 0 {
			continue
		}
		ctxText := contextAround(text, item.TokenStart, item.TokenEnd, 12)
		fmt.Println("\n---")
		fmt.Printf("context: %s\n", ctxText)
		fmt.Printf("token: %q [%d,%d)\n", item.TokenText, item.TokenStart, item.TokenEnd)
		fmt.Printf("char: %q offset=%d\n", item.Char, item.CharOffset)
		defaultIdx := 0
		for i, c := range item.Candidates {
			mark := " "
			if c == item.Chosen {
				mark = "*"
				defaultIdx = i
			}
			fmt.Printf("  %s%d) %s\n", mark, i+1, c)
		}

		picked, ok := promptChoice(reader, len(item.Candidates), defaultIdx)
		if !ok {
			continue
		}
		choose := item.Candidates[picked]

		occurrence := countRunes(item.TokenText, item.Char, item.CharOffset)
		tokenText := item.TokenText
		rid := "override_" + ulid.Make().String()
		rules = append(rules, resource.Rule{
			ID:          rid,
			Priority:    100000,
			Description: fmt.Sprintf("user override: %s(%s)=%s", item.Char, tokenText, choose),
			Match:       resource.Match{Self: &resource.MatchPart{Text: &tokenText}},
			Target: resource.Target{
				Char:       item.Char,
				Occurrence: resource.Occurrence{N: occurrence},
			},
			Choose: choose,
			Meta: map[string]any{
				"created_at": time.Now().UTC().Format("2006-01-02"),
				"source":     "user",
				"example":    ctxText,
			},
		})
		changed = true
		fmt.Printf("wrote override: %s\n", rid)
	}

	if !changed {
		return nil
	}
	return resource.WriteRules(path, rules)
}

func promptChoice(reader *bufio.Reader, n, defaultIdx int) (int, bool) {
	for {
		fmt.Printf("Choose 1-%d (default %d, enter=default, s=skip): ", n, defaultIdx+1)
		line, err := reader.ReadString('\n')
		if err != nil {
			return 0, false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "" {
			return defaultIdx, true
		}
		if answer == "s" {
			return 0, false
		}
		v, err := strconv.Atoi(answer)
		if err != nil {
			continue
		}
		if v >= 1 && v <= n {
			return v - 1, true
		}
	}
}

// countRunes returns how many occurrences of char appear in token up to
// and including rune offset.
func countRunes(token, char string, offset int) int {
	count := 0
	for i, r := range []rune(token) {
		if i > offset {
			break
		}
		if string(r) == char {
			count++
		}
	}
	return count
}

// contextAround returns the text surrounding [start,end) padded by pad
// runes on each side, respecting rune boundaries.
func contextAround(text string, start, end, pad int) string {
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	left := start
	for i := 0; i < pad && left > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:left])
		left -= size
	}
	right := end
	for i := 0; i < pad && right < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[right:])
		right += size
	}
	return text[left:right]
}
