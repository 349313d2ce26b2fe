package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/cognicore/hanpin/pkg/hanpin/store/sqlite"
)

func main() {
	var (
		dbPath = flag.String("db", "", "Run-history database path (required)")
		runID  = flag.String("run", "", "Dump one run's report JSON by id")
		limit  = flag.Int("limit", 20, "Number of recent runs to list")
	)
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("--db required")
	}

	ctx := context.Background()
	st, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	if *runID != "" {
		rec, err := st.GetRun(ctx, *runID)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(string(rec.ReportJSON))
		return
	}

	runs, err := st.RecentRuns(ctx, *limit)
	if err != nil {
		log.Fatal(err)
	}
	for _, run := range runs {
		status := "ok"
		if run.Unresolved {
			status = "unresolved"
		}
		fmt.Printf("%s  %s  %-10s  overrides=%d conflicts=%d  %s\n",
			run.ID,
			run.CreatedAt.Format("2006-01-02 15:04:05"),
			status,
			run.AppliedOverrides,
			run.Conflicts,
			oneLine(run.Input, 40))
	}
}

func oneLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]) + "…"
	}
	return s
}
