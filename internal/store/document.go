package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/genwiki/djvukeeper/djvu"
)

// ErrNotFound is returned when a document path has no catalog record.
var ErrNotFound = errors.New("store: record not found")

// UpsertDocument inserts or replaces a document record.
func (s *Store) UpsertDocument(ctx context.Context, d *djvu.Document) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO djvu (path, page_count, bundled, iso_date, filesize,
		package_filesize, package_iso_date, dir_pages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
		page_count=excluded.page_count, bundled=excluded.bundled,
		iso_date=excluded.iso_date, filesize=excluded.filesize,
		package_filesize=excluded.package_filesize,
		package_iso_date=excluded.package_iso_date,
		dir_pages=excluded.dir_pages`,
		d.Path, d.PageCount, d.Bundled, d.ISODate, d.FileSize,
		d.PackageFileSize, d.PackageISODate, d.DirPages,
	)
	return err
}

// GetDocument retrieves a document by its logical path.
func (s *Store) GetDocument(ctx context.Context, path string) (*djvu.Document, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT path, page_count, bundled, iso_date, filesize,
		package_filesize, package_iso_date, dir_pages
		FROM djvu WHERE path = ?`, path)

	d := &djvu.Document{}
	err := row.Scan(&d.Path, &d.PageCount, &d.Bundled, &d.ISODate, &d.FileSize,
		&d.PackageFileSize, &d.PackageISODate, &d.DirPages)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDocuments returns up to limit document records ordered by path.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]*djvu.Document, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT path, page_count, bundled, iso_date, filesize,
		package_filesize, package_iso_date, dir_pages
		FROM djvu ORDER BY path LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*djvu.Document
	for rows.Next() {
		d := &djvu.Document{}
		if err := rows.Scan(&d.Path, &d.PageCount, &d.Bundled, &d.ISODate,
			&d.FileSize, &d.PackageFileSize, &d.PackageISODate, &d.DirPages); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// MarkBundled flips a document's bundled flag and records its new size
// after a successful bundling. A missing record is an error: bundling a
// document the catalog does not know about means the catalog is stale.
func (s *Store) MarkBundled(ctx context.Context, path string, filesize int64) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE djvu SET bundled = 1, filesize = ? WHERE path = ?`,
		filesize, path)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: no database record for path %s", ErrNotFound, path)
	}
	return nil
}

// CountDocuments returns total and bundled document counts.
func (s *Store) CountDocuments(ctx context.Context) (total, bundled int, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(bundled), 0) FROM djvu`).Scan(&total, &bundled)
	return total, bundled, err
}
