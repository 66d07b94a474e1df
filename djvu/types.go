// Package djvu holds the shared catalog types for DjVu documents and their
// pages. A Document describes one scanned document as known to the catalog;
// a File is a Document together with its per-page records, and round-trips
// to the YAML index file carried inside packaged archives.
package djvu

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RestrictedMarker flags locked/restricted content in component filenames.
// Pages whose source filename carries it are anonymised and marked invalid.
const RestrictedMarker = "gesperrtes"

// Document is one scanned DjVu document as recorded in the catalog.
//
// Bundled=false means the document is stored as one index file plus N
// component part files on disk; Bundled=true means a single self-contained
// file. The flag flips to true exactly once, after a successful bundling.
type Document struct {
	Path            string `yaml:"path" json:"path"`
	PageCount       int    `yaml:"page_count" json:"page_count"`
	Bundled         bool   `yaml:"bundled" json:"bundled"`
	ISODate         string `yaml:"iso_date,omitempty" json:"iso_date,omitempty"`
	FileSize        int64  `yaml:"filesize,omitempty" json:"filesize,omitempty"`
	PackageFileSize int64  `yaml:"package_filesize,omitempty" json:"package_filesize,omitempty"`
	PackageISODate  string `yaml:"package_iso_date,omitempty" json:"package_iso_date,omitempty"`
	DirPages        int    `yaml:"dir_pages,omitempty" json:"dir_pages,omitempty"`
}

// Page is one page within a document.
type Page struct {
	Path         string `yaml:"path" json:"path"`
	PageIndex    int    `yaml:"page_index" json:"page_index"`
	Valid        bool   `yaml:"valid" json:"valid"`
	ISODate      string `yaml:"iso_date,omitempty" json:"iso_date,omitempty"`
	FileSize     int64  `yaml:"filesize,omitempty" json:"filesize,omitempty"`
	Width        int    `yaml:"width,omitempty" json:"width,omitempty"`
	Height       int    `yaml:"height,omitempty" json:"height,omitempty"`
	DPI          int    `yaml:"dpi,omitempty" json:"dpi,omitempty"`
	DocumentPath string `yaml:"djvu_path,omitempty" json:"djvu_path,omitempty"`
	PageKey      string `yaml:"page_key,omitempty" json:"page_key,omitempty"`
	ErrorMsg     string `yaml:"error_msg,omitempty" json:"error_msg,omitempty"`
}

// NewPage creates a page record for a component filename, applying the
// restricted-content rule: a filename containing RestrictedMarker is
// replaced with "?" and the page marked invalid.
func NewPage(documentPath, filename string, pageIndex int) Page {
	valid := true
	if filename == "" || strings.Contains(filename, RestrictedMarker) {
		filename = "?"
		valid = false
	}
	return Page{
		Path:         filename,
		PageIndex:    pageIndex,
		Valid:        valid,
		DocumentPath: documentPath,
		PageKey:      PageKey(documentPath, pageIndex),
	}
}

// PageKey builds the composite key for a page. Documents in this corpus
// never exceed 9999 pages, so four digits keep keys sortable.
func PageKey(documentPath string, pageIndex int) string {
	return fmt.Sprintf("%s#%04d", documentPath, pageIndex)
}

// PNGName returns the rendered-page filename for this page, derived from
// the owning document's stem.
func (p *Page) PNGName() string {
	stem := Stem(p.DocumentPath)
	return fmt.Sprintf("%s_page_%04d.png", stem, p.PageIndex)
}

// Stem returns the base filename of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// File is a Document with its page records attached.
type File struct {
	Document `yaml:",inline"`
	Pages    []Page `yaml:"pages,omitempty" json:"pages,omitempty"`
}

// PageByIndex returns the page with the given 1-based index, or nil.
func (f *File) PageByIndex(pageIndex int) *Page {
	for i := range f.Pages {
		if f.Pages[i].PageIndex == pageIndex {
			return &f.Pages[i]
		}
	}
	return nil
}

// Marshal serialises the file to YAML, the format of the package index.
func (f *File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}

// Unmarshal parses a YAML package index.
func Unmarshal(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("djvu: parse index: %w", err)
	}
	return f, nil
}

// Save writes the YAML index to path.
func (f *File) Save(path string) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a YAML index from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// Sample returns a fixture document used for tests and schema examples.
func Sample() *File {
	return &File{
		Document: Document{
			Path:            "b/b3/AB1951-Suenninghausen.djvu",
			PageCount:       4,
			Bundled:         false,
			ISODate:         "2009-06-02T07:17:55+00:00",
			FileSize:        85,
			PackageFileSize: 409600,
			PackageISODate:  "2026-01-02T04:59:07+00:00",
			DirPages:        5,
		},
		Pages: []Page{
			{
				Path:         "s_455_0001.djvu",
				PageIndex:    1,
				Valid:        true,
				ISODate:      "2009-06-02T07:17:55+00:00",
				FileSize:     66327,
				Width:        2829,
				Height:       4194,
				DPI:          216,
				DocumentPath: "b/b3/AB1951-Suenninghausen.djvu",
				PageKey:      "b/b3/AB1951-Suenninghausen.djvu#0001",
			},
		},
	}
}
