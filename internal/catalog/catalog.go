// Package catalog scans the images tree and extracts per-document and
// per-page metadata by parsing djvudump output.
//
// The images tree uses the MediaWiki hash-bucket layout:
// <root>/<a>/<ab>/<Name>.djvu, with an indirect document's component
// files sitting next to its index file. A scan classifies every .djvu
// file as either a document (index or bundled) or a component part, and
// produces one djvu.File per document.
package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/genwiki/djvukeeper/djvu"
	"github.com/genwiki/djvukeeper/internal/shell"
)

// Config configures a catalog scan.
type Config struct {
	// ImagesRoot is the directory holding the hash-bucket image tree.
	ImagesRoot string
	// DumpCommand extracts document structure. Default: djvudump.
	DumpCommand string
	// Concurrency bounds parallel dump invocations. Default: 4.
	Concurrency int
}

func (c *Config) defaults() {
	if c.DumpCommand == "" {
		c.DumpCommand = "djvudump"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// Result is the outcome of one scan. Errors are collected, not raised:
// the caller applies its error-percentage gate before committing.
type Result struct {
	Files  []*djvu.File
	Errors []string
}

// Scanner walks the images tree and builds catalog records.
type Scanner struct {
	cfg    Config
	runner shell.Runner
	logger *slog.Logger
}

// New creates a Scanner.
func New(cfg Config, runner shell.Runner, logger *slog.Logger) *Scanner {
	cfg.defaults()
	if runner == nil {
		runner = shell.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{cfg: cfg, runner: runner, logger: logger}
}

// dumpInfo is the parsed structure of one .djvu file.
type dumpInfo struct {
	path    string
	ind     bool // FORM:DJVM indirect index
	bundled bool // FORM:DJVM bundled
	parts   []string
	pages   []pageInfo
}

// pageInfo is one page extracted from dump output.
type pageInfo struct {
	name   string
	width  int
	height int
	dpi    int
}

// Scan walks the tree, dumps every candidate file, and assembles the
// document records. Processing stops once limit pages have been seen
// (limit <= 0 means no limit).
func (sc *Scanner) Scan(ctx context.Context, limit int) (*Result, error) {
	start := time.Now()
	res := &Result{}

	var candidates []string
	err := filepath.WalkDir(sc.cfg.ImagesRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("walk %s: %v", path, err))
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".djvu") {
			return nil
		}
		// Candidate files left behind by interrupted bundling are not
		// documents, the finalizer owns them.
		if strings.HasSuffix(path, "_bundled.djvu") {
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: walk %s: %w", sc.cfg.ImagesRoot, err)
	}
	sort.Strings(candidates)

	// Dump everything in parallel; classification needs the full set
	// before documents can be told apart from component parts.
	var mu sync.Mutex
	dumps := make(map[string]*dumpInfo, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sc.cfg.Concurrency)
	for _, path := range candidates {
		path := path
		g.Go(func() error {
			info, derr := sc.dump(gctx, path)
			mu.Lock()
			defer mu.Unlock()
			if derr != nil {
				res.Errors = append(res.Errors, derr.Error())
				return nil
			}
			dumps[path] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Every file referenced as a part of an indirect index is a
	// component, never a document of its own.
	partOf := make(map[string]bool)
	for _, info := range dumps {
		if !info.ind {
			continue
		}
		dir := filepath.Dir(info.path)
		for _, part := range info.parts {
			partOf[filepath.Join(dir, part)] = true
		}
	}

	total := 0
	for _, path := range candidates {
		info, ok := dumps[path]
		if !ok || partOf[path] {
			continue
		}
		file, pages := sc.assemble(info, dumps)
		res.Files = append(res.Files, file)
		total += pages
		if limit > 0 && total > limit {
			break
		}
	}

	sc.logger.Info("catalog: scan complete",
		"documents", len(res.Files), "pages", total,
		"errors", len(res.Errors), "elapsed", time.Since(start))
	return res, nil
}

var (
	formPattern = regexp.MustCompile(`FORM:DJVM \[\d+\]`)
	dirmPattern = regexp.MustCompile(`DIRM \[\d+\]\s+Document directory \((\w+)`)
	pagePattern = regexp.MustCompile(`FORM:DJVU \[\d+\](?:\s+\{([^}]+)\})?`)
	infoPattern = regexp.MustCompile(`INFO \[\d+\]\s+DjVu (\d+)x(\d+), v\d+, (\d+) dpi`)
)

// dump runs the dump command on one file and parses its structure.
func (sc *Scanner) dump(ctx context.Context, path string) (*dumpInfo, error) {
	out, err := sc.runner.Run(ctx, sc.cfg.DumpCommand, path)
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", path, err)
	}
	if out.ExitCode != 0 {
		return nil, fmt.Errorf("dump %s: exit %d: %s", path, out.ExitCode, strings.TrimSpace(out.Stderr))
	}
	return parseDump(path, out.Stdout), nil
}

// parseDump interprets djvudump output for one file.
func parseDump(path, dump string) *dumpInfo {
	info := &dumpInfo{path: path}

	if formPattern.MatchString(dump) {
		if m := dirmPattern.FindStringSubmatch(dump); m != nil && m[1] == "bundled" {
			info.bundled = true
		} else {
			info.ind = true
		}
	}

	// Component listing of an indirect index.
	for _, line := range strings.Split(dump, "\n") {
		if m := partArrowPattern.FindStringSubmatch(line); m != nil {
			info.parts = append(info.parts, m[1])
		}
	}

	// Page sections: FORM:DJVU headers with a following INFO chunk.
	pageStarts := pagePattern.FindAllStringSubmatchIndex(dump, -1)
	for i, loc := range pageStarts {
		end := len(dump)
		if i+1 < len(pageStarts) {
			end = pageStarts[i+1][0]
		}
		section := dump[loc[0]:end]
		p := pageInfo{}
		if loc[2] >= 0 {
			p.name = dump[loc[2]:loc[3]]
		}
		if m := infoPattern.FindStringSubmatch(section); m != nil {
			p.width, _ = strconv.Atoi(m[1])
			p.height, _ = strconv.Atoi(m[2])
			p.dpi, _ = strconv.Atoi(m[3])
		}
		info.pages = append(info.pages, p)
	}

	return info
}

var partArrowPattern = regexp.MustCompile(`^\s+(.+\.(djvu|djbz))\s+->`)

// assemble builds the catalog record for one document. For an indirect
// index the page metadata comes from each component's own dump; for a
// bundled file it comes from the file's page sections directly.
func (sc *Scanner) assemble(info *dumpInfo, dumps map[string]*dumpInfo) (*djvu.File, int) {
	relPath, err := filepath.Rel(sc.cfg.ImagesRoot, info.path)
	if err != nil {
		relPath = info.path
	}

	// Anything without an indirect index is self-contained on disk,
	// which is what the bundled flag asserts.
	file := &djvu.File{
		Document: djvu.Document{
			Path:    relPath,
			Bundled: !info.ind,
		},
	}
	if st, err := os.Stat(info.path); err == nil {
		file.FileSize = st.Size()
		file.ISODate = st.ModTime().UTC().Format(time.RFC3339)
	}

	if info.ind {
		dir := filepath.Dir(info.path)
		pageIndex := 0
		for _, part := range info.parts {
			// Shared shape dictionaries are components but not pages.
			if strings.HasSuffix(part, ".djbz") {
				continue
			}
			pageIndex++
			page := djvu.NewPage(relPath, part, pageIndex)
			partPath := filepath.Join(dir, part)
			if st, err := os.Stat(partPath); err == nil {
				file.DirPages++
				page.FileSize = st.Size()
				page.ISODate = st.ModTime().UTC().Format(time.RFC3339)
			} else {
				page.ErrorMsg = fmt.Sprintf("missing %s", partPath)
			}
			if pd, ok := dumps[partPath]; ok && len(pd.pages) > 0 {
				page.Width = pd.pages[0].width
				page.Height = pd.pages[0].height
				page.DPI = pd.pages[0].dpi
			}
			file.Pages = append(file.Pages, page)
		}
		file.PageCount = pageIndex
	} else {
		for i, p := range info.pages {
			page := djvu.NewPage(relPath, p.name, i+1)
			page.Width = p.width
			page.Height = p.height
			page.DPI = p.dpi
			file.Pages = append(file.Pages, page)
		}
		file.PageCount = len(info.pages)
	}

	return file, file.PageCount
}
