package detect

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/noperator/remnant/pkg/config"
	"github.com/noperator/remnant/pkg/dataset"
	"github.com/noperator/remnant/pkg/extract"
	"github.com/noperator/remnant/pkg/logging"
	"github.com/noperator/remnant/pkg/pool"
)

// Report is the result of scanning one target against the feature store.
type Report struct {
	Target     string        `json:"target"`
	Matches    []Match       `json:"matches"`
	Candidates int           `json:"candidate_vulnerabilities"`
	Functions  int           `json:"retained_functions"`
	Compared   time.Duration `json:"-"`

	// ComparedSeconds is the cumulative time spent in line-set
	// comparisons, summed across workers. Wall-clock scan time is lower
	// under concurrency.
	ComparedSeconds float64 `json:"compared_seconds"`
}

// Scanner drives a full scan: search-space reduction, then the matcher over
// every surviving (vulnerability, function) pair.
type Scanner struct {
	store       *dataset.Store
	matcher     *Matcher
	concurrency int
	logger      *slog.Logger
}

func NewScanner(store *dataset.Store, cfg config.DetectorConfig, concurrency int) *Scanner {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Scanner{
		store:       store,
		matcher:     NewMatcher(cfg),
		concurrency: concurrency,
		logger:      logging.NewLoggerFromEnv(),
	}
}

type indexResult struct {
	matches []Match
	elapsed time.Duration
}

// Scan matches the target's extracted functions against every candidate
// vulnerability. Work is partitioned by vulnerability index; each index is
// independent, so they fan out across the worker pool.
func (s *Scanner) Scan(ctx context.Context, target string, funcs map[string]*extract.FunctionRecord, hashTable map[string][]string) (*Report, error) {
	reduction := Reduce(s.store, funcs, hashTable, s.logger)

	candidates := make([]string, 0, reduction.Indices.Len())
	for idx := range s.store.Signatures {
		if reduction.Indices.Contains(idx) {
			candidates = append(candidates, idx)
		}
	}
	sort.Strings(candidates)

	funcKeys := make([]string, 0, len(reduction.Funcs))
	for key := range reduction.Funcs {
		funcKeys = append(funcKeys, key)
	}
	sort.Strings(funcKeys)

	wp := pool.NewWorkerPool[string, indexResult](s.concurrency)
	results, err := wp.ProcessItems(ctx, candidates,
		pool.ProcessFunc[string, indexResult](func(ctx context.Context, idx string) (indexResult, error) {
			return s.scanIndex(ctx, idx, funcKeys, reduction.Funcs), nil
		}), "match")
	if err != nil {
		return nil, err
	}

	report := &Report{
		Target:     target,
		Matches:    []Match{},
		Candidates: len(candidates),
		Functions:  len(reduction.Funcs),
	}
	for _, res := range results {
		report.Matches = append(report.Matches, res.matches...)
		report.Compared += res.elapsed
	}
	report.ComparedSeconds = report.Compared.Seconds()

	sort.Slice(report.Matches, func(i, j int) bool {
		a, b := report.Matches[i], report.Matches[j]
		if a.VulnIndex != b.VulnIndex {
			return a.VulnIndex < b.VulnIndex
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Function < b.Function
	})

	s.logger.Info("scan complete",
		"component", "scanner",
		"target", target,
		"candidates", report.Candidates,
		"functions", report.Functions,
		"matches", len(report.Matches),
		"compared_s", report.ComparedSeconds)
	return report, nil
}

func (s *Scanner) scanIndex(ctx context.Context, idx string, funcKeys []string, funcs map[string]*extract.FunctionRecord) indexResult {
	sig := s.store.Signatures[idx]
	label := s.store.IdxToVersion[idx]

	var res indexResult
	start := time.Now()
	for _, key := range funcKeys {
		select {
		case <-ctx.Done():
			res.elapsed = time.Since(start)
			return res
		default:
		}
		if match := s.matcher.Match(sig, key, funcs[key]); match != nil {
			match.Label = label
			s.logger.Info("vulnerable clone detected",
				"component", "scanner",
				"idx", idx,
				"label", label,
				"function", match.Function,
				"path", match.Path,
				"basis", match.Basis,
				"similarity", match.Similarity)
			res.matches = append(res.matches, *match)
		}
	}
	res.elapsed = time.Since(start)
	return res
}
