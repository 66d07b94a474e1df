package store

import (
	"context"
	"fmt"

	"github.com/genwiki/djvukeeper/djvu"
)

// UpsertPage inserts or replaces a page record.
func (s *Store) UpsertPage(ctx context.Context, p *djvu.Page) error {
	if p.PageKey == "" {
		p.PageKey = djvu.PageKey(p.DocumentPath, p.PageIndex)
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO page (page_key, path, page_index, valid, iso_date,
		filesize, width, height, dpi, djvu_path, error_msg)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_key) DO UPDATE SET
		path=excluded.path, page_index=excluded.page_index,
		valid=excluded.valid, iso_date=excluded.iso_date,
		filesize=excluded.filesize, width=excluded.width,
		height=excluded.height, dpi=excluded.dpi,
		djvu_path=excluded.djvu_path, error_msg=excluded.error_msg`,
		p.PageKey, p.Path, p.PageIndex, p.Valid, p.ISODate,
		p.FileSize, p.Width, p.Height, p.DPI, p.DocumentPath, p.ErrorMsg,
	)
	return err
}

// PagesFor returns the pages of one document ordered by page index.
func (s *Store) PagesFor(ctx context.Context, documentPath string) ([]djvu.Page, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT page_key, path, page_index, valid, iso_date, filesize,
		width, height, dpi, djvu_path, error_msg
		FROM page WHERE djvu_path = ? ORDER BY page_index`, documentPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []djvu.Page
	for rows.Next() {
		var p djvu.Page
		if err := rows.Scan(&p.PageKey, &p.Path, &p.PageIndex, &p.Valid,
			&p.ISODate, &p.FileSize, &p.Width, &p.Height, &p.DPI,
			&p.DocumentPath, &p.ErrorMsg); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// GetFile loads a document together with its pages.
func (s *Store) GetFile(ctx context.Context, path string) (*djvu.File, error) {
	doc, err := s.GetDocument(ctx, path)
	if err != nil {
		return nil, err
	}
	pages, err := s.PagesFor(ctx, path)
	if err != nil {
		return nil, err
	}
	return &djvu.File{Document: *doc, Pages: pages}, nil
}

// ReplaceCatalog replaces the whole catalog with the given files in one
// transaction. Used by the scan commit path after the error-percentage
// gate has passed; a failed transaction leaves the previous catalog
// untouched.
func (s *Store) ReplaceCatalog(ctx context.Context, files []*djvu.File) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM page`); err != nil {
		return fmt.Errorf("store: clear pages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM djvu`); err != nil {
		return fmt.Errorf("store: clear documents: %w", err)
	}

	docStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO djvu (path, page_count, bundled, iso_date, filesize,
		package_filesize, package_iso_date, dir_pages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer docStmt.Close()

	pageStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO page (page_key, path, page_index, valid, iso_date,
		filesize, width, height, dpi, djvu_path, error_msg)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer pageStmt.Close()

	for _, f := range files {
		d := f.Document
		if _, err := docStmt.ExecContext(ctx, d.Path, d.PageCount, d.Bundled,
			d.ISODate, d.FileSize, d.PackageFileSize, d.PackageISODate, d.DirPages); err != nil {
			return fmt.Errorf("store: insert %s: %w", d.Path, err)
		}
		for i := range f.Pages {
			p := &f.Pages[i]
			if p.PageKey == "" {
				p.PageKey = djvu.PageKey(p.DocumentPath, p.PageIndex)
			}
			if _, err := pageStmt.ExecContext(ctx, p.PageKey, p.Path, p.PageIndex,
				p.Valid, p.ISODate, p.FileSize, p.Width, p.Height, p.DPI,
				p.DocumentPath, p.ErrorMsg); err != nil {
				return fmt.Errorf("store: insert page %s: %w", p.PageKey, err)
			}
		}
	}

	return tx.Commit()
}

// CountPages returns the total number of page records.
func (s *Store) CountPages(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM page`).Scan(&count)
	return count, err
}
