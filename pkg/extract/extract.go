package extract

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/noperator/remnant/pkg/abstract"
	"github.com/noperator/remnant/pkg/config"
	"github.com/noperator/remnant/pkg/logging"
	"github.com/noperator/remnant/pkg/normalize"
	"github.com/noperator/remnant/pkg/tags"
)

// Extractor walks a source tree and produces a FunctionRecord for every
// function a tagger can span. Files run through a bounded worker group; the
// tagger may shell out per file, so the bound also caps subprocess fan-out.
type Extractor struct {
	opts       config.ExtractConfig
	tagger     tags.Tagger
	abstractor *abstract.Abstractor
	logger     *slog.Logger
}

// Result is the outcome of extracting one target tree. Funcs is keyed by
// the serialized FunctionKey. Unreadable counts files no configured
// encoding could decode; Failed counts files the tagger rejected. Both are
// recovered conditions, not errors.
type Result struct {
	Target     string
	Funcs      map[string]*FunctionRecord
	Files      int
	Unreadable int
	Failed     int
}

func New(opts config.ExtractConfig, tagger tags.Tagger) *Extractor {
	return &Extractor{
		opts:       opts,
		tagger:     tagger,
		abstractor: abstract.New(tagger),
		logger:     logging.NewLoggerFromEnv(),
	}
}

// Extract processes every recognized source file under root. The returned
// error covers tree-walk failures only; per-file anomalies are counted on
// the Result and logged.
func (e *Extractor) Extract(ctx context.Context, root string) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("no target path %q", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && e.recognized(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	result := &Result{
		Target: filepath.Base(filepath.Clean(root)),
		Funcs:  make(map[string]*FunctionRecord),
		Files:  len(files),
	}

	concurrency := e.opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	e.logger.Info("extracting functions",
		"component", "extractor",
		"root", root,
		"files", len(files),
		"concurrency", concurrency)

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, path := range files {
		path := path
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			funcs, status := e.extractFile(root, path)
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case fileUnreadable:
				result.Unreadable++
			case fileFailed:
				result.Failed++
			}
			for key, rec := range funcs {
				result.Funcs[key] = rec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Info("extraction finished",
		"component", "extractor",
		"functions", len(result.Funcs),
		"unreadable", result.Unreadable,
		"failed", result.Failed)
	return result, nil
}

type fileStatus int

const (
	fileOK fileStatus = iota
	fileUnreadable
	fileFailed
)

func (e *Extractor) extractFile(root, path string) (map[string]*FunctionRecord, fileStatus) {
	data, err := os.ReadFile(path)
	if err != nil {
		e.logger.Warn("unreadable file", "component", "extractor", "path", path, "error", err)
		return nil, fileUnreadable
	}

	text, ok := decodeText(data, e.opts.Encodings)
	if !ok {
		e.logger.Warn("no usable encoding", "component", "extractor", "path", path)
		return nil, fileUnreadable
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	tagList, err := e.tagger.Extract(ext, []byte(text))
	if err != nil {
		e.logger.Warn("tagger failed, skipping file",
			"component", "extractor",
			"path", path,
			"error", err)
		return nil, fileFailed
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")

	lines := strings.Split(text, "\n")
	funcs := make(map[string]*FunctionRecord)
	for _, tag := range tagList {
		if tag.Kind != tags.KindFunction || tag.EndLine <= 0 {
			continue
		}
		start, end := tag.Line, tag.EndLine
		if start < 1 || end > len(lines) || start > end {
			continue
		}

		key := FunctionKey{Name: tag.Name, Path: segments}
		funcs[key.String()] = e.buildRecord(lines[start-1:end], ext)
	}
	return funcs, fileOK
}

// buildRecord computes the three representations of a function body. An
// empty body yields a record with empty representations so that downstream
// lookups by key never miss.
func (e *Extractor) buildRecord(rawLines []string, ext string) *FunctionRecord {
	rec := &FunctionRecord{
		Raw:  []string{},
		Norm: []string{},
		Abst: []string{},
	}

	rawBody := strings.Join(rawLines, "\n")
	absBody := e.abstractor.Abstract(rawBody, ext)
	if rawBody == "" || absBody == "" {
		rec.Hash = normalize.HashBody(rec.Norm)
		return rec
	}

	rec.Raw = append(rec.Raw, rawLines...)
	for _, line := range strings.Split(normalize.RemoveComment(rawBody), "\n") {
		rec.Norm = append(rec.Norm, normalize.Line(line))
	}
	for _, line := range strings.Split(normalize.RemoveComment(absBody), "\n") {
		rec.Abst = append(rec.Abst, normalize.Line(line))
	}
	rec.Hash = normalize.HashBody(rec.Norm)
	return rec
}

func (e *Extractor) recognized(path string) bool {
	for _, ext := range e.opts.Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
