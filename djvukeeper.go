// Package djvukeeper catalogs DjVu scanned-document archives and converts
// multi-file ("indirect") documents into single-file ("bundled") ones.
//
// The bundling workflow is the heart of the package: dump the component
// listing, back everything up to a zip archive, run the external
// conversion tool, then atomically-as-possible swap the bundled candidate
// onto the original path with timestamps preserved. Every destructive
// step is preceded by a verified backup and each step is self-checking,
// so an interrupted attempt can simply be re-run.
//
// Usage:
//
//	k, err := djvukeeper.New(cfg, logger)
//	defer k.Close()
//	res, err := k.Bundle(ctx, "b/b3/AB1951-Suenninghausen.djvu", djvukeeper.BundleOptions{})
package djvukeeper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/genwiki/djvukeeper/djvu"
	"github.com/genwiki/djvukeeper/internal/bundle"
	"github.com/genwiki/djvukeeper/internal/catalog"
	"github.com/genwiki/djvukeeper/internal/pack"
	"github.com/genwiki/djvukeeper/internal/shell"
	"github.com/genwiki/djvukeeper/internal/store"
)

// Keeper is the main orchestrator: catalog store, scanner, and the
// bundling core share its configuration and shell runner.
type Keeper struct {
	store  *store.Store
	runner shell.Runner
	logger *slog.Logger
	config *Config
}

// New creates a Keeper. Opens the SQLite catalog database.
func New(cfg *Config, logger *slog.Logger) (*Keeper, error) {
	return NewWithRunner(cfg, shell.ExecRunner{}, logger)
}

// NewWithRunner creates a Keeper with an explicit shell runner; used by
// tests to substitute the DjVuLibre tools.
func NewWithRunner(cfg *Config, runner shell.Runner, logger *slog.Logger) (*Keeper, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = shell.ExecRunner{}
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	return &Keeper{
		store:  s,
		runner: runner,
		logger: logger,
		config: cfg,
	}, nil
}

// Close closes the catalog database.
func (k *Keeper) Close() error {
	return k.store.Close()
}

// Store returns the underlying catalog store (testing, admin).
func (k *Keeper) Store() *store.Store {
	return k.store
}

func (k *Keeper) bundleConfig() bundle.Config {
	return bundle.Config{
		ImagesRoot:     k.config.ImagesRoot,
		BackupDir:      k.config.BackupDir,
		DumpCommand:    k.config.DumpCommand,
		ConvertCommand: k.config.ConvertCommand,
		FinalizeDelay:  k.config.FinalizeDelay,
		ContainerName:  k.config.ContainerName,
		DBPath:         k.config.DBPath,
	}
}

// ScanResult is the outcome of a catalog scan.
type ScanResult struct {
	Documents    int      `json:"documents"`
	Pages        int      `json:"pages"`
	Errors       []string `json:"errors,omitempty"`
	ErrorPercent float64  `json:"error_percent"`
	Committed    bool     `json:"committed"`
}

// Scan catalogs the images tree and commits the result to the database,
// unless the error percentage exceeds the configured threshold; a partial
// or broken run must never clobber a good catalog.
func (k *Keeper) Scan(ctx context.Context, limit int) (*ScanResult, error) {
	sc := catalog.New(catalog.Config{
		ImagesRoot:  k.config.ImagesRoot,
		DumpCommand: k.config.DumpCommand,
		Concurrency: k.config.ScanConcurrency,
	}, k.runner, k.logger)

	res, err := sc.Scan(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := &ScanResult{Documents: len(res.Files), Errors: res.Errors}
	for _, f := range res.Files {
		out.Pages += f.PageCount
	}
	if len(res.Files) > 0 {
		out.ErrorPercent = float64(len(res.Errors)) / float64(len(res.Files)) * 100
	} else if len(res.Errors) > 0 {
		out.ErrorPercent = 100
	}

	if out.ErrorPercent > k.config.MaxErrorPercent {
		k.logger.Warn("scan: error threshold exceeded, not committing",
			"error_percent", out.ErrorPercent, "limit", k.config.MaxErrorPercent)
		return out, fmt.Errorf("%w: %.1f%% > %.1f%%",
			ErrTooManyErrors, out.ErrorPercent, k.config.MaxErrorPercent)
	}

	if err := k.store.ReplaceCatalog(ctx, res.Files); err != nil {
		return out, fmt.Errorf("commit catalog: %w", err)
	}
	out.Committed = true
	k.logger.Info("scan: catalog committed",
		"documents", out.Documents, "pages", out.Pages, "errors", len(res.Errors))
	return out, nil
}

// BundleOptions controls one bundling invocation.
type BundleOptions struct {
	// UpdateDB adds the database update step to generated scripts.
	UpdateDB bool
}

// BundleResult reports one bundling attempt.
type BundleResult struct {
	DocumentPath string           `json:"path"`
	BundledPath  string           `json:"bundled_path,omitempty"`
	BackupPath   string           `json:"backup_path,omitempty"`
	Problems     []bundle.Problem `json:"problems,omitempty"`
	Message      string           `json:"message"`
}

// loadFile resolves a document for bundling: preferring the catalog
// record, falling back to a bare on-disk probe for documents the catalog
// has not seen yet.
func (k *Keeper) loadFile(ctx context.Context, relPath string) (*djvu.File, error) {
	file, err := k.store.GetFile(ctx, relPath)
	if err == nil {
		return file, nil
	}
	fullPath := filepath.Join(k.config.ImagesRoot, relPath)
	if _, statErr := os.Stat(fullPath); statErr != nil {
		return nil, fmt.Errorf("document not found: %s: %w", relPath, err)
	}
	return &djvu.File{Document: djvu.Document{Path: relPath}}, nil
}

// Bundle converts one indirect document to bundled format: backup,
// convert, finalize, then propagate the bundled flag to the catalog.
// A halt with recorded problems returns ErrBundlingFailed together with
// the result carrying the problem list.
func (k *Keeper) Bundle(ctx context.Context, relPath string, opts BundleOptions) (*BundleResult, error) {
	file, err := k.loadFile(ctx, relPath)
	if err != nil {
		return nil, err
	}

	result := &BundleResult{DocumentPath: relPath}
	logID, err := k.store.StartBundleLog(ctx, relPath)
	if err != nil {
		return nil, fmt.Errorf("bundle log: %w", err)
	}

	op := bundle.New(file, k.bundleConfig(), k.runner, k.logger)

	backupPath, err := op.CreateBackup(ctx)
	if err != nil {
		k.finishLog(ctx, logID, store.StatusFailed, len(op.Problems), err.Error())
		return nil, err
	}
	result.BackupPath = backupPath

	bundledPath, err := op.Convert(ctx)
	if err != nil {
		// Fatal: the originals are untouched, finalization never runs.
		k.finishLog(ctx, logID, store.StatusFailed, len(op.Problems), err.Error())
		return nil, err
	}

	op.Finalize(ctx, backupPath, bundledPath)
	result.Problems = op.Problems

	if len(op.Problems) > 0 {
		result.Message = bundle.Summary(op.Problems)
		k.finishLog(ctx, logID, store.StatusFailed, len(op.Problems), result.Message)
		return result, fmt.Errorf("%w: %d problem(s) for %s", ErrBundlingFailed, len(op.Problems), relPath)
	}

	result.BundledPath = op.FullPath()
	if st, err := os.Stat(op.FullPath()); err == nil {
		if err := k.store.MarkBundled(ctx, relPath, st.Size()); err != nil {
			k.logger.Warn("bundle: catalog update failed", "path", relPath, "error", err)
		}
	}

	result.Message = fmt.Sprintf("Successfully bundled %s", relPath)
	if cmd := op.DockerCommand(); cmd != "" {
		result.Message += "\n\nTo update the wiki run:\n" + cmd
	}
	k.finishLog(ctx, logID, store.StatusOK, 0, result.Message)
	return result, nil
}

func (k *Keeper) finishLog(ctx context.Context, id, status string, problems int, message string) {
	if err := k.store.FinishBundleLog(ctx, id, status, problems, message); err != nil {
		k.logger.Warn("bundle: log update failed", "id", id, "error", err)
	}
}

// GenerateScript emits the idempotent out-of-process bundling script for
// one document without executing anything.
func (k *Keeper) GenerateScript(ctx context.Context, relPath string, opts BundleOptions) (string, error) {
	file, err := k.loadFile(ctx, relPath)
	if err != nil {
		return "", err
	}
	op := bundle.New(file, k.bundleConfig(), k.runner, k.logger)
	return op.Script(ctx, bundle.ScriptOptions{UpdateDB: opts.UpdateDB})
}

// CheckPackage validates a packaged archive against the page metadata
// carried in its own YAML index, returning every finding.
func (k *Keeper) CheckPackage(ctx context.Context, packagePath string) ([]bundle.Problem, error) {
	indexName := pack.IndexName(packagePath)
	data, err := pack.Read(packagePath, indexName)
	if err != nil {
		return nil, fmt.Errorf("load package index: %w", err)
	}
	file, err := djvu.Unmarshal(data)
	if err != nil {
		return nil, err
	}

	op := bundle.New(file, k.bundleConfig(), k.runner, k.logger)
	op.CheckPackage(packagePath)
	return op.Problems, nil
}

// Stats holds catalog counts.
type Stats struct {
	Documents int `json:"documents"`
	Bundled   int `json:"bundled"`
	Pages     int `json:"pages"`
}

// Stats returns current catalog statistics.
func (k *Keeper) Stats(ctx context.Context) (*Stats, error) {
	total, bundled, err := k.store.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	pages, err := k.store.CountPages(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Documents: total, Bundled: bundled, Pages: pages}, nil
}
