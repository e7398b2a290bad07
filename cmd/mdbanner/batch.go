package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	mdbanner "github.com/alnah/go-mdbanner"
	"github.com/alnah/go-mdbanner/internal/hints"
)

// File permission constants.
const (
	dirPermissions  = 0o750 // rwxr-x---: owner full, group read+execute
	filePermissions = 0o644 // rw-r--r--: owner read+write, others read
)

// Sentinel errors for batch operations.
var (
	ErrNoNotes            = errors.New("no notes to process")
	ErrWriteOutput        = errors.New("failed to write output file")
	ErrInvalidWorkerCount = errors.New("invalid worker count")
)

// NoteResult holds the outcome of a single note.
type NoteResult struct {
	Doc         string
	OutputPath  string
	BannerError string // error class of the banner, "" when it rendered
	Err         error
	Duration    time.Duration
}

// noteJob produces the output bytes of one note and its banner error class.
type noteJob func(ctx context.Context, doc string) ([]byte, string, error)

// renderView opens doc, waits for its banner and serializes the view with
// images inlined. The view is closed before returning.
func renderView(ctx context.Context, eng *mdbanner.Engine, doc string, width float64) (string, string, error) {
	id, err := eng.OpenView(ctx, doc, width)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = eng.CloseView(id) }()

	if err := eng.Wait(ctx); err != nil {
		return "", "", err
	}
	st, err := eng.State(id)
	if err != nil {
		return "", "", err
	}
	out, err := eng.ViewHTML(id, true)
	if err != nil {
		return "", "", err
	}
	return out, st.ErrorClass, nil
}

// runBatch runs render or export over the selected notes.
func runBatch(ctx context.Context, name string, args []string, env *Environment) error {
	f, positional, err := parseBatchFlags(name, args, env.Stderr)
	if err != nil {
		return err
	}

	envCfg := loadEnvConfig()
	warnUnknownEnvVars(env.Stderr)

	if err := validateWorkers(f.workers); err != nil {
		return err
	}
	timeout, err := resolveTimeout(f.timeout, envCfg)
	if err != nil {
		return err
	}
	workers := f.workers
	if workers == 0 {
		workers = envCfg.Workers
	}
	workers = mdbanner.ResolvePoolSize(workers)

	eng, logger, err := openEngine(&f.common, &f.settings, envCfg, env)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = eng.Close() }()

	docs, err := selectNotes(eng, positional)
	if err != nil {
		return err
	}

	var (
		ext = ".html"
		job noteJob
	)
	switch name {
	case "export":
		page, err := mdbanner.ParsePageSize(pick(f.pageSize, envCfg.PageSize))
		if err != nil {
			return err
		}
		pool := env.Exporters(workers, timeout, page)
		defer func() { _ = pool.Close() }()

		ext = ".pdf"
		job = func(ctx context.Context, doc string) ([]byte, string, error) {
			htmlContent, class, err := renderView(ctx, eng, doc, f.width)
			if err != nil {
				return nil, "", err
			}
			x := pool.Acquire()
			defer pool.Release(x)
			pdf, err := x.ToPDF(ctx, htmlContent)
			return pdf, class, err
		}
	default:
		job = func(ctx context.Context, doc string) ([]byte, string, error) {
			htmlContent, class, err := renderView(ctx, eng, doc, f.width)
			return []byte(htmlContent), class, err
		}
	}

	if f.common.verbose {
		fmt.Fprintf(env.Stderr, "%s: %d notes, %d workers\n", name, len(docs), workers)
	}

	outDir := pick(f.output, envCfg.OutputDir)
	results := processBatch(ctx, docs, workers, timeout, func(doc string) string {
		return outputPath(eng.Root(), outDir, doc, ext)
	}, job)

	failed := printResults(results, f.common.quiet, f.common.verbose, env)
	if failed > 0 {
		return fmt.Errorf("%d of %d notes failed: %w", failed, len(results), firstError(results))
	}
	return nil
}

// processBatch runs job over docs with at most workers in flight. Every
// note is attempted; failures are recorded in its result.
func processBatch(ctx context.Context, docs []string, workers int, timeout time.Duration, out func(string) string, job noteJob) []NoteResult {
	results := make([]NoteResult, len(docs))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, doc := range docs {
		g.Go(func() error {
			results[i] = processNote(ctx, doc, out(doc), timeout, job)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// processNote runs job for one note and writes its output.
func processNote(ctx context.Context, doc, outPath string, timeout time.Duration, job noteJob) (result NoteResult) {
	start := time.Now()
	result = NoteResult{Doc: doc, OutputPath: outPath}
	defer func() { result.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, class, err := job(ctx, doc)
	result.BannerError = class
	if err != nil {
		result.Err = err
		return result
	}

	if err := os.MkdirAll(filepath.Dir(outPath), dirPermissions); err != nil {
		result.Err = fmt.Errorf("%w: creating output directory: %w", ErrWriteOutput, err)
		return result
	}
	// #nosec G306 -- rendered notes are meant to be readable
	if err := os.WriteFile(outPath, data, filePermissions); err != nil {
		result.Err = fmt.Errorf("%w: %w", ErrWriteOutput, err)
		return result
	}
	return result
}

// selectNotes resolves positional args (vault-relative notes or folders)
// to notes. No args selects every note of the vault.
func selectNotes(eng *mdbanner.Engine, args []string) ([]string, error) {
	all, err := eng.Notes()
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		if len(all) == 0 {
			return nil, fmt.Errorf("%w: vault %s has no notes", ErrNoNotes, eng.Root())
		}
		return all, nil
	}

	seen := make(map[string]bool)
	var docs []string
	for _, arg := range args {
		want := strings.TrimPrefix(path.Clean(filepath.ToSlash(arg)), "./")
		matched := false
		for _, doc := range all {
			if doc == want || want == "." || strings.HasPrefix(doc, want+"/") {
				matched = true
				if !seen[doc] {
					seen[doc] = true
					docs = append(docs, doc)
				}
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: %s", mdbanner.ErrNoteNotFound, arg)
		}
	}
	return docs, nil
}

// outputPath maps a note to its output file: next to the note when outDir
// is empty, otherwise mirrored under outDir.
func outputPath(root, outDir, doc, ext string) string {
	rel := strings.TrimSuffix(doc, path.Ext(doc)) + ext
	if outDir == "" {
		outDir = root
	}
	return filepath.Join(outDir, filepath.FromSlash(rel))
}

// validateWorkers checks that the worker count is within valid bounds.
func validateWorkers(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d (must be >= 0, 0 means auto)", ErrInvalidWorkerCount, n)
	}
	if n > mdbanner.MaxPoolSize {
		return fmt.Errorf("%w: %d (maximum is %d)", ErrInvalidWorkerCount, n, mdbanner.MaxPoolSize)
	}
	return nil
}

// ResultSummary holds the count of succeeded and failed notes.
type ResultSummary struct {
	Succeeded int
	Failed    int
	Degraded  int // written, but the banner is in its error state
}

// countResults tallies results.
func countResults(results []NoteResult) ResultSummary {
	var summary ResultSummary
	for _, r := range results {
		switch {
		case r.Err != nil:
			summary.Failed++
		case r.BannerError != "":
			summary.Degraded++
			summary.Succeeded++
		default:
			summary.Succeeded++
		}
	}
	return summary
}

func firstError(results []NoteResult) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// printResults writes per-note lines and a summary. It returns the number
// of failed notes.
func printResults(results []NoteResult, quiet, verbose bool, env *Environment) int {
	summary := countResults(results)

	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(env.Stderr, "FAILED %s: %v\n", r.Doc, r.Err)
			continue
		}
		if r.BannerError != "" {
			fmt.Fprintf(env.Stderr, "warning: %s: banner %s%s\n", r.Doc, r.BannerError, hints.ForBanner(r.BannerError))
		}

		if quiet {
			continue
		}

		if verbose {
			fmt.Fprintf(env.Stdout, "%s -> %s (%v)\n", r.Doc, r.OutputPath, r.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(env.Stdout, "Created %s\n", r.OutputPath)
		}
	}

	if !quiet && len(results) > 1 {
		fmt.Fprintf(env.Stdout, "\n%d succeeded, %d failed", summary.Succeeded, summary.Failed)
		if summary.Degraded > 0 {
			fmt.Fprintf(env.Stdout, " (%d with banner errors)", summary.Degraded)
		}
		fmt.Fprintln(env.Stdout)
	}

	return summary.Failed
}

// runRender renders notes to self-contained HTML files.
func runRender(ctx context.Context, args []string, env *Environment) error {
	return runBatch(ctx, "render", args, env)
}

// runExport prints notes to PDF through headless Chrome.
func runExport(ctx context.Context, args []string, env *Environment) error {
	return runBatch(ctx, "export", args, env)
}
