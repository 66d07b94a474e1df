// Command djvukeeper catalogs DjVu archives and bundles indirect
// documents into single files.
//
// Usage:
//
//	djvukeeper -config djvukeeper.yaml -scan           # catalog the images tree
//	djvukeeper -db catalog.db -images images -stats    # show catalog stats
//	djvukeeper -bundle b/b3/Doc.djvu                   # bundle one document
//	djvukeeper -bundle b/b3/Doc.djvu -script           # print the bundling script
//	djvukeeper -check packages/Doc.zip                 # validate packaged output
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/genwiki/djvukeeper"
)

func main() {
	configPath := flag.String("config", "", "path to djvukeeper.yaml config file")
	dbPath := flag.String("db", "", "path to SQLite catalog database")
	imagesRoot := flag.String("images", "", "path to the images tree")
	backupDir := flag.String("backup", "", "path to the backup directory")
	doScan := flag.Bool("scan", false, "scan the images tree and update the catalog")
	limit := flag.Int("limit", 0, "max pages to process during a scan (0 = no limit)")
	bundlePath := flag.String("bundle", "", "relative path of a document to bundle")
	script := flag.Bool("script", false, "print the bundling script instead of executing")
	updateDB := flag.Bool("update-db", false, "add a database update step to generated scripts")
	sleep := flag.Duration("sleep", 0, "settle delay before timestamp restore (0 = default)")
	checkPath := flag.String("check", "", "validate a packaged archive and exit")
	showStats := flag.Bool("stats", false, "show catalog stats and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(*configPath, *dbPath, *imagesRoot, *backupDir, *sleep)
	if err != nil {
		logger.Error("djvukeeper: config", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, logger, cfg, options{
		scan:       *doScan,
		limit:      *limit,
		bundlePath: *bundlePath,
		script:     *script,
		updateDB:   *updateDB,
		checkPath:  *checkPath,
		stats:      *showStats,
	}); err != nil {
		logger.Error("djvukeeper: fatal", "error", err)
		os.Exit(1)
	}
}

type options struct {
	scan       bool
	limit      int
	bundlePath string
	script     bool
	updateDB   bool
	checkPath  string
	stats      bool
}

func run(ctx context.Context, logger *slog.Logger, cfg *djvukeeper.Config, opts options) error {
	k, err := djvukeeper.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer k.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	switch {
	case opts.scan:
		res, err := k.Scan(ctx, opts.limit)
		if res != nil {
			enc.Encode(res)
		}
		return err

	case opts.bundlePath != "" && opts.script:
		text, err := k.GenerateScript(ctx, opts.bundlePath, djvukeeper.BundleOptions{UpdateDB: opts.updateDB})
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil

	case opts.bundlePath != "":
		res, err := k.Bundle(ctx, opts.bundlePath, djvukeeper.BundleOptions{})
		if res != nil {
			fmt.Println(res.Message)
		}
		return err

	case opts.checkPath != "":
		problems, err := k.CheckPackage(ctx, opts.checkPath)
		if err != nil {
			return err
		}
		if len(problems) == 0 {
			fmt.Println("No errors found")
			return nil
		}
		enc.Encode(problems)
		return fmt.Errorf("%d validation problem(s)", len(problems))

	case opts.stats:
		stats, err := k.Stats(ctx)
		if err != nil {
			return err
		}
		return enc.Encode(stats)

	default:
		fmt.Fprintln(os.Stderr, "usage: djvukeeper [-config <file>] -scan | -bundle <path> [-script] | -check <package> | -stats")
		return nil
	}
}

func resolveConfig(configPath, dbPath, imagesRoot, backupDir string, sleep time.Duration) (*djvukeeper.Config, error) {
	cfg := &djvukeeper.Config{}
	if configPath != "" {
		loaded, err := djvukeeper.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if imagesRoot != "" {
		cfg.ImagesRoot = imagesRoot
	}
	if backupDir != "" {
		cfg.BackupDir = backupDir
	}
	if sleep > 0 {
		cfg.FinalizeDelay = sleep
	}
	return cfg, nil
}
