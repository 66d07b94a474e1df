// Package bundle converts a multi-file ("indirect") DjVu document into a
// single-file ("bundled") one without risking data loss.
//
// One Operation covers one attempt: dump the component listing, write a
// backup zip, run djvmcvt, then finalize by removing the parts and moving
// the candidate onto the original path with its timestamps preserved.
// Failures during finalization are recorded as Problems rather than
// raised, so a halted attempt leaves the filesystem recoverable and the
// whole operation can simply be re-run.
package bundle

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/genwiki/djvukeeper/djvu"
	"github.com/genwiki/djvukeeper/internal/shell"
)

// Config carries the paths and tool names for bundling operations.
type Config struct {
	// ImagesRoot is the directory holding the hash-bucket image tree.
	ImagesRoot string
	// BackupDir receives the per-document backup zip archives.
	BackupDir string
	// DumpCommand lists a document's components. Default: djvudump.
	DumpCommand string
	// ConvertCommand builds the bundled file. Default: djvmcvt.
	ConvertCommand string
	// FinalizeDelay is the pause between sync and timestamp restore.
	// Network mounts have been seen to drop metadata writes issued
	// immediately after a large data write. Default: 1s.
	FinalizeDelay time.Duration
	// ContainerName, when set, enables the MediaWiki refresh step in
	// generated scripts (docker exec <name> php maintenance/...).
	ContainerName string
	// DBPath, when set, enables the database update step in generated
	// scripts.
	DBPath string
}

func (c *Config) defaults() {
	if c.DumpCommand == "" {
		c.DumpCommand = "djvudump"
	}
	if c.ConvertCommand == "" {
		c.ConvertCommand = "djvmcvt"
	}
	if c.FinalizeDelay <= 0 {
		c.FinalizeDelay = time.Second
	}
}

// Operation is one bundling attempt for one document. It owns the backup
// and candidate paths for the duration of the attempt and accumulates
// Problems instead of raising; only usage errors and conversion failures
// surface as returned errors.
type Operation struct {
	Doc      *djvu.File
	Problems []Problem

	cfg      Config
	runner   shell.Runner
	logger   *slog.Logger
	fullPath string
	dir      string
	basename string
	stem     string

	dumpLog string
	dumped  bool
}

// New creates an Operation for doc.
func New(doc *djvu.File, cfg Config, runner shell.Runner, logger *slog.Logger) *Operation {
	cfg.defaults()
	if runner == nil {
		runner = shell.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	fullPath := filepath.Join(cfg.ImagesRoot, doc.Path)
	return &Operation{
		Doc:      doc,
		cfg:      cfg,
		runner:   runner,
		logger:   logger,
		fullPath: fullPath,
		dir:      filepath.Dir(fullPath),
		basename: filepath.Base(fullPath),
		stem:     djvu.Stem(fullPath),
	}
}

// FullPath returns the on-disk path of the document's index file.
func (o *Operation) FullPath() string { return o.fullPath }

// BundledPath returns the candidate output path for the bundled file. The
// suffix keeps it from ever colliding with the original.
func (o *Operation) BundledPath() string {
	return filepath.Join(o.dir, o.stem+"_bundled.djvu")
}

// BackupPath returns the backup archive path for this document.
func (o *Operation) BackupPath() string {
	return filepath.Join(o.cfg.BackupDir, o.stem+".zip")
}

// IncompleteBundling reports whether a prior attempt was interrupted
// between conversion and finalization: both the original index file and
// the candidate bundled file exist at once.
func (o *Operation) IncompleteBundling() bool {
	return exists(o.fullPath) && exists(o.BundledPath())
}

func (o *Operation) addProblem(kind Kind, path, format string, args ...any) {
	p := Problem{Kind: kind, Message: fmt.Sprintf(format, args...), Path: path}
	o.Problems = append(o.Problems, p)
	o.logger.Warn("bundle: problem recorded", "kind", string(kind), "message", p.Message, "path", path)
}

var partPattern = regexp.MustCompile(`^\s+(.+\.(djvu|djbz))\s+->`)

// ParseParts extracts component filenames from djvudump output. Matched
// names are relative to the document's directory, not full paths.
func ParseParts(dump string) []string {
	var parts []string
	for _, line := range strings.Split(dump, "\n") {
		if m := partPattern.FindStringSubmatch(line); m != nil {
			parts = append(parts, m[1])
		}
	}
	return parts
}

// Dump runs the dump command against the document and caches its output.
// Missing file or non-zero exit records a problem and yields "".
func (o *Operation) Dump(ctx context.Context) string {
	o.dumped = true
	o.dumpLog = ""
	if !exists(o.fullPath) {
		o.addProblem(KindStep, o.fullPath, "File not found: %s", o.fullPath)
		return ""
	}
	res, err := o.runner.Run(ctx, o.cfg.DumpCommand, o.fullPath)
	if err != nil {
		o.addProblem(KindStep, o.fullPath, "%s failed: %v", o.cfg.DumpCommand, err)
		return ""
	}
	if res.ExitCode != 0 {
		o.addProblem(KindStep, o.fullPath, "%s failed\n%s", o.cfg.DumpCommand, res.Stderr)
		return ""
	}
	o.dumpLog = res.Stdout
	return o.dumpLog
}

// PartFiles returns the component filenames of the document, dumping on
// first use and reusing the cached listing afterwards.
//
// Without a cached listing, a candidate file sitting next to the original
// signals a half-completed earlier migration: dumping now would describe
// a document that is about to vanish, so the listing comes back empty and
// the removal step treats its work as already done.
func (o *Operation) PartFiles(ctx context.Context) []string {
	if o.dumped {
		return ParseParts(o.dumpLog)
	}
	if o.IncompleteBundling() {
		return nil
	}
	o.Dump(ctx)
	return ParseParts(o.dumpLog)
}

// CreateBackup writes a zip archive of the index file and every component
// part before anything destructive happens. Parts listed by the dump but
// missing on disk are recorded as problems; the archive still contains
// whatever was found.
func (o *Operation) CreateBackup(ctx context.Context) (string, error) {
	if o.Doc.Bundled {
		return "", fmt.Errorf("%w: %s", ErrAlreadyBundled, o.Doc.Path)
	}

	parts := o.PartFiles(ctx)
	backupPath := o.BackupPath()
	if err := os.MkdirAll(o.cfg.BackupDir, 0o755); err != nil {
		return "", fmt.Errorf("bundle: create backup dir: %w", err)
	}

	f, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("bundle: create backup %s: %w", backupPath, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	if err := addToZip(zw, o.fullPath, o.basename); err != nil {
		zw.Close()
		return "", fmt.Errorf("bundle: backup index file: %w", err)
	}
	for _, part := range parts {
		partPath := filepath.Join(o.dir, part)
		if !exists(partPath) {
			o.addProblem(KindMissingPart, partPath, "missing %s", partPath)
			continue
		}
		if err := addToZip(zw, partPath, part); err != nil {
			zw.Close()
			return "", fmt.Errorf("bundle: backup part %s: %w", part, err)
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("bundle: close backup %s: %w", backupPath, err)
	}

	o.logger.Info("bundle: backup created", "path", backupPath, "parts", len(parts))
	return backupPath, nil
}

// Convert invokes the conversion tool to build the bundled candidate.
// Purely additive: the original document is never touched. Any failure is
// fatal for the attempt; proceeding to component deletion after a failed
// conversion would destroy data with no valid replacement.
func (o *Operation) Convert(ctx context.Context) (string, error) {
	outputPath := o.BundledPath()
	res, err := o.runner.Run(ctx, o.cfg.ConvertCommand, "-b", o.fullPath, outputPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConvertFailed, err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%w: %s exit %d: %s", ErrConvertFailed, o.cfg.ConvertCommand, res.ExitCode, res.Stderr)
	}
	if !exists(outputPath) {
		return "", fmt.Errorf("%w: bundled file not created: %s", ErrConvertFailed, outputPath)
	}
	o.logger.Info("bundle: converted", "path", outputPath)
	return outputPath, nil
}

func addToZip(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
