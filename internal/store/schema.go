package store

// Schema is the complete catalog schema.
const Schema = `
-- One row per scanned DjVu document
CREATE TABLE IF NOT EXISTS djvu (
    path              TEXT PRIMARY KEY,
    page_count        INTEGER NOT NULL DEFAULT 0,
    bundled           INTEGER NOT NULL DEFAULT 0,
    iso_date          TEXT NOT NULL DEFAULT '',
    filesize          INTEGER NOT NULL DEFAULT 0,
    package_filesize  INTEGER NOT NULL DEFAULT 0,
    package_iso_date  TEXT NOT NULL DEFAULT '',
    dir_pages         INTEGER NOT NULL DEFAULT 0
);

-- One row per page within a document
CREATE TABLE IF NOT EXISTS page (
    page_key    TEXT PRIMARY KEY,
    path        TEXT NOT NULL DEFAULT '',
    page_index  INTEGER NOT NULL,
    valid       INTEGER NOT NULL DEFAULT 0,
    iso_date    TEXT NOT NULL DEFAULT '',
    filesize    INTEGER NOT NULL DEFAULT 0,
    width       INTEGER NOT NULL DEFAULT 0,
    height      INTEGER NOT NULL DEFAULT 0,
    dpi         INTEGER NOT NULL DEFAULT 0,
    djvu_path   TEXT NOT NULL,
    error_msg   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_page_djvu ON page(djvu_path, page_index);

-- Bundling attempt log (observability)
CREATE TABLE IF NOT EXISTS bundle_log (
    id             TEXT PRIMARY KEY,
    djvu_path      TEXT NOT NULL,
    status         TEXT NOT NULL,
    problem_count  INTEGER NOT NULL DEFAULT 0,
    message        TEXT NOT NULL DEFAULT '',
    started_at     INTEGER NOT NULL,
    finished_at    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_bundle_log_path ON bundle_log(djvu_path, started_at DESC);
`
