// Package pack reads packaged archives (zip or tar) produced by the
// conversion pipeline and decodes image dimensions for validation.
//
// Packaging output is consumed, never written, by this module: a package
// is one archive per document holding the rendered page PNGs and a single
// YAML metadata index named after the document stem.
package pack

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"
)

// IsArchive reports whether path exists and opens as a supported archive.
func IsArchive(path string) bool {
	members, err := List(path)
	return err == nil && members != nil
}

// IndexName returns the metadata index filename expected inside the
// archive at path: the archive stem with a .yaml extension.
func IndexName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".yaml"
}

// List returns the member names of the archive at path.
func List(path string) ([]string, error) {
	switch ext(path) {
	case ".zip":
		return listZip(path)
	case ".tar":
		return listTar(path)
	default:
		return nil, fmt.Errorf("pack: unsupported archive format: %s", path)
	}
}

// Read returns the bytes of one archive member.
func Read(path, member string) ([]byte, error) {
	switch ext(path) {
	case ".zip":
		return readZip(path, member)
	case ".tar":
		return readTar(path, member)
	default:
		return nil, fmt.Errorf("pack: unsupported archive format: %s", path)
	}
}

// ImageSize decodes the dimensions of an image buffer without decoding
// the full pixel data.
func ImageSize(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("pack: decode image: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func listZip(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("pack: open zip: %w", err)
	}
	defer r.Close()

	members := make([]string, 0, len(r.File))
	for _, f := range r.File {
		members = append(members, f.Name)
	}
	return members, nil
}

func readZip(path, member string) ([]byte, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("pack: open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("pack: open member %s: %w", member, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("pack: member %s not found in %s", member, path)
}

func listTar(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pack: open tar: %w", err)
	}
	defer f.Close()

	var members []string
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pack: read tar: %w", err)
		}
		if hdr.Typeflag == tar.TypeReg {
			members = append(members, hdr.Name)
		}
	}
	return members, nil
}

func readTar(path, member string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pack: open tar: %w", err)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pack: read tar: %w", err)
		}
		if hdr.Name == member {
			return io.ReadAll(tr)
		}
	}
	return nil, fmt.Errorf("pack: member %s not found in %s", member, path)
}
