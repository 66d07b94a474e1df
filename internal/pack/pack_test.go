package pack

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, path string, members map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	for name, data := range members {
		zw, err := w.Create(name)
		if err != nil {
			t.Fatalf("member %s: %v", name, err)
		}
		if _, err := zw.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func writeTar(t *testing.T, path string, members map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	w := tar.NewWriter(f)
	for name, data := range members {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}
		if err := w.WriteHeader(hdr); err != nil {
			t.Fatalf("header %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestIndexName(t *testing.T) {
	if got := IndexName("/srv/packages/AB1951.zip"); got != "AB1951.yaml" {
		t.Errorf("got %q", got)
	}
	if got := IndexName("doc.tar"); got != "doc.yaml" {
		t.Errorf("got %q", got)
	}
}

func TestZipListAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.zip")
	writeZip(t, path, map[string][]byte{
		"doc.yaml":          []byte("path: doc.djvu\n"),
		"doc_page_0001.png": []byte("img"),
	})

	members, err := List(path)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members: %v", members)
	}
	data, err := Read(path, "doc.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "path: doc.djvu\n" {
		t.Errorf("data: %q", data)
	}
	if _, err := Read(path, "missing.png"); err == nil {
		t.Error("expected error for missing member")
	}
	if !IsArchive(path) {
		t.Error("zip not recognised as archive")
	}
}

func TestTarListAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.tar")
	writeTar(t, path, map[string][]byte{
		"doc.yaml":          []byte("path: doc.djvu\n"),
		"doc_page_0001.png": []byte("img"),
	})

	members, err := List(path)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members: %v", members)
	}
	data, err := Read(path, "doc_page_0001.png")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "img" {
		t.Errorf("data: %q", data)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := List("doc.rar"); err == nil {
		t.Error("expected error for unsupported format")
	}
	if IsArchive("doc.rar") {
		t.Error("unsupported format recognised as archive")
	}
}

func TestCorruptZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.zip")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := List(path); err == nil {
		t.Error("expected error for corrupt zip")
	}
	if IsArchive(path) {
		t.Error("corrupt zip recognised as archive")
	}
}

func TestImageSize(t *testing.T) {
	var b bytes.Buffer
	if err := png.Encode(&b, image.NewRGBA(image.Rect(0, 0, 120, 80))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	w, h, err := ImageSize(b.Bytes())
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if w != 120 || h != 80 {
		t.Errorf("got %dx%d", w, h)
	}
	if _, _, err := ImageSize([]byte("garbage")); err == nil {
		t.Error("expected decode error")
	}
}
