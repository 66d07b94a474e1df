package bundle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

// ScriptOptions controls optional trailing steps of a generated script.
type ScriptOptions struct {
	// UpdateDB appends an update_database step (requires Config.DBPath).
	UpdateDB bool
}

// DockerCommand returns the MediaWiki metadata refresh command for this
// document, or "" when no container is configured.
func (o *Operation) DockerCommand() string {
	if o.cfg.ContainerName == "" {
		return ""
	}
	return fmt.Sprintf(
		"docker exec %s php maintenance/refreshImageMetadata.php --force --mime=image/vnd.djvu --start=%s --end=%s",
		o.cfg.ContainerName, o.basename, o.basename)
}

// Script generates a standalone POSIX shell script that performs the full
// bundling sequence out of process. Every step checks its postcondition
// first and logs "skipping" when the work is already done, so the script
// converges to the same end state however often it is re-run after a
// partial failure. Captured timestamps survive across invocations in a
// marker file next to the document.
func (o *Operation) Script(ctx context.Context, opts ScriptOptions) (string, error) {
	parts := o.PartFiles(ctx)

	quotedParts := make([]string, 0, len(parts))
	partRemovals := make([]string, 0, len(parts))
	for _, part := range parts {
		quotedParts = append(quotedParts, shQuote(part))
		partRemovals = append(partRemovals, "rm -f "+shQuote(filepath.Join(o.dir, part)))
	}

	data := scriptData{
		DocumentPath: o.Doc.Path,
		FullPath:     o.fullPath,
		Dir:          o.dir,
		BackupFile:   o.BackupPath(),
		BundledFile:  o.BundledPath(),
		Basename:     o.basename,
		Stem:         o.stem,
		Generated:    time.Now().Format(time.RFC3339),
		PartFiles:    quotedParts,
		PartRemovals: partRemovals,
		DockerCmd:    o.DockerCommand(),
	}
	if opts.UpdateDB && o.cfg.DBPath != "" {
		data.DBPath = o.cfg.DBPath
	}

	var b strings.Builder
	if err := scriptTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("bundle: generate script: %w", err)
	}
	return b.String(), nil
}

type scriptData struct {
	DocumentPath string
	FullPath     string
	Dir          string
	BackupFile   string
	BundledFile  string
	Basename     string
	Stem         string
	Generated    string
	PartFiles    []string
	PartRemovals []string
	DockerCmd    string
	DBPath       string
}

// shQuote single-quotes s for safe interpolation into a shell script.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

var scriptTemplate = template.Must(template.New("bundling").Funcs(template.FuncMap{
	"quote": shQuote,
}).Parse(`#!/bin/sh
# DjVu bundling script - {{.DocumentPath}}
# Generated: {{.Generated}}
# IDEMPOTENT: safe to re-run if any step fails

set -e

# ============================================================================
# CONFIGURATION
# ============================================================================

DJVU_PATH={{quote .DocumentPath}}
FULL_PATH={{quote .FullPath}}
DJVU_DIR={{quote .Dir}}
BACKUP_FILE={{quote .BackupFile}}
BUNDLED_FILE={{quote .BundledFile}}
TIMESTAMP_FILE="$DJVU_DIR/.{{.Stem}}_timestamps"

# ============================================================================
# UTILITIES
# ============================================================================

log() { echo "[$(date '+%H:%M:%S')] $1"; }
error() { echo "[ERROR] $1" >&2; exit 1; }

# ============================================================================
# STEPS (each is idempotent)
# ============================================================================

backup_original() {
    [ -f "$BACKUP_FILE" ] && { log "Backup exists, skipping"; return 0; }

    log "Creating backup..."
    [ -f "$FULL_PATH" ] || error "Source file missing"

    cd "$DJVU_DIR"
    zip -j "$BACKUP_FILE" {{quote .Basename}}{{range .PartFiles}} \
        {{.}}{{end}}

    [ -f "$BACKUP_FILE" ] || error "Backup creation failed"
    log "OK backup: $BACKUP_FILE"
}

save_timestamps() {
    [ -f "$TIMESTAMP_FILE" ] && { log "Timestamps saved, skipping"; return 0; }

    log "Saving timestamps..."
    stat -c "%X %Y" "$FULL_PATH" > "$TIMESTAMP_FILE" 2>/dev/null || \
        stat -f "%a %m" "$FULL_PATH" > "$TIMESTAMP_FILE"
    log "OK timestamps saved"
}

bundle_djvu() {
    [ -f "$BUNDLED_FILE" ] && { log "Already bundled, skipping"; return 0; }

    log "Converting to bundled format..."
    [ -f "$FULL_PATH" ] || error "Source file missing"

    djvmcvt -b "$FULL_PATH" "$BUNDLED_FILE"
    [ -f "$BUNDLED_FILE" ] || error "Bundling failed"
    log "OK created: $BUNDLED_FILE"
}

cleanup_originals() {
    [ ! -f "$FULL_PATH" ] && { log "Originals removed, skipping"; return 0; }

    log "Removing originals..."
    [ -f "$BACKUP_FILE" ] || error "No backup, cannot remove originals"
    [ -f "$BUNDLED_FILE" ] || error "No bundled file, cannot remove originals"

    rm -f "$FULL_PATH"
    {{range .PartRemovals}}{{.}}
    {{end}}log "OK originals removed"
}

finalize_bundled() {
    [ -f "$FULL_PATH" ] && [ ! -f "$BUNDLED_FILE" ] && {
        log "Already in place, skipping"
        return 0
    }

    log "Moving bundled file..."
    [ -f "$BUNDLED_FILE" ] || error "Bundled file missing"

    mv "$BUNDLED_FILE" "$FULL_PATH"
    sync; sleep 1
    log "OK moved to: $FULL_PATH"
}

restore_timestamps() {
    [ ! -f "$TIMESTAMP_FILE" ] && { log "No timestamps to restore"; return 0; }

    log "Restoring timestamps..."
    read ATIME MTIME < "$TIMESTAMP_FILE"
    touch -a -d "@$ATIME" "$FULL_PATH"
    touch -m -d "@$MTIME" "$FULL_PATH"
    rm -f "$TIMESTAMP_FILE"
    log "OK timestamps restored"
}
{{if .DockerCmd}}
refresh_mediawiki() {
    log "Refreshing MediaWiki..."
    {{.DockerCmd}}
    log "OK MediaWiki refreshed"
}
{{end}}{{if .DBPath}}
update_database() {
    [ -f "$FULL_PATH" ] || error "Missing file for DB update"
    log "Updating database..."
    FILESIZE=$(stat -c%s "$FULL_PATH" 2>/dev/null || stat -f%z "$FULL_PATH")
    sqlite3 {{quote .DBPath}} "UPDATE djvu SET bundled=1, filesize=$FILESIZE WHERE path='$DJVU_PATH';"
    log "OK DB updated: bundled=1, size=$FILESIZE"
}
{{end}}
# ============================================================================
# MAIN
# ============================================================================

main() {
    log "Starting bundling: $DJVU_PATH"

    backup_original
    save_timestamps
    bundle_djvu
    cleanup_originals
    finalize_bundled
    restore_timestamps
{{if .DockerCmd}}    refresh_mediawiki
{{end}}{{if .DBPath}}    update_database
{{end}}    log "COMPLETE: $DJVU_PATH"
}

main "$@"
`))
