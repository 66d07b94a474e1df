package bundle

import (
	"archive/zip"
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/genwiki/djvukeeper/djvu"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var b bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if err := png.Encode(&b, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return b.Bytes()
}

func writePackage(t *testing.T, path string, members map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, data := range members {
		zw, err := w.Create(name)
		if err != nil {
			t.Fatalf("create member %s: %v", name, err)
		}
		if _, err := zw.Write(data); err != nil {
			t.Fatalf("write member %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close package: %v", err)
	}
}

func checkFixture(t *testing.T) (*testFixture, string) {
	t.Helper()
	f := newFixture(t)
	f.op.Doc.Pages = []djvu.Page{
		{PageIndex: 1, Valid: true, Width: 100, Height: 150},
		{PageIndex: 2, Valid: true, Width: 100, Height: 150},
	}
	pkg := filepath.Join(f.dir, "AB1951-Suenninghausen.zip")
	return f, pkg
}

func goodMembers(t *testing.T) map[string][]byte {
	t.Helper()
	index, err := djvu.Sample().Marshal()
	if err != nil {
		t.Fatalf("marshal index: %v", err)
	}
	return map[string][]byte{
		"AB1951-Suenninghausen_page_0001.png": pngBytes(t, 100, 150),
		"AB1951-Suenninghausen_page_0002.png": pngBytes(t, 100, 150),
		"AB1951-Suenninghausen.yaml":          index,
	}
}

func TestCheckPackageClean(t *testing.T) {
	f, pkg := checkFixture(t)
	writePackage(t, pkg, goodMembers(t))

	f.op.CheckPackage(pkg)
	if len(f.op.Problems) != 0 {
		t.Fatalf("problems: %s", Summary(f.op.Problems))
	}
}

func TestCheckPackageMissing(t *testing.T) {
	f, pkg := checkFixture(t)
	f.op.CheckPackage(pkg)
	if len(f.op.Problems) != 1 || f.op.Problems[0].Kind != KindValidation {
		t.Fatalf("problems: %v", f.op.Problems)
	}
	if !strings.Contains(f.op.Problems[0].Message, "was not created") {
		t.Errorf("message: %q", f.op.Problems[0].Message)
	}
}

func TestCheckPackageNotArchive(t *testing.T) {
	f, pkg := checkFixture(t)
	if err := os.WriteFile(pkg, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.op.CheckPackage(pkg)
	if len(f.op.Problems) != 1 {
		t.Fatalf("problems: %v", f.op.Problems)
	}
	if !strings.Contains(f.op.Problems[0].Message, "not a valid archive") {
		t.Errorf("message: %q", f.op.Problems[0].Message)
	}
}

func TestCheckPackageMissingIndex(t *testing.T) {
	f, pkg := checkFixture(t)
	members := goodMembers(t)
	delete(members, "AB1951-Suenninghausen.yaml")
	writePackage(t, pkg, members)

	f.op.CheckPackage(pkg)
	if len(f.op.Problems) != 1 {
		t.Fatalf("problems: %s", Summary(f.op.Problems))
	}
	if !strings.Contains(f.op.Problems[0].Message, "found 0") {
		t.Errorf("message: %q", f.op.Problems[0].Message)
	}
}

func TestCheckPackageDimensionMismatch(t *testing.T) {
	f, pkg := checkFixture(t)
	members := goodMembers(t)
	members["AB1951-Suenninghausen_page_0002.png"] = pngBytes(t, 90, 140)
	writePackage(t, pkg, members)

	f.op.CheckPackage(pkg)
	// Width and height each get their own record.
	if len(f.op.Problems) != 2 {
		t.Fatalf("problems: %s", Summary(f.op.Problems))
	}
	for _, p := range f.op.Problems {
		if p.Kind != KindValidation {
			t.Errorf("kind: %s", p.Kind)
		}
		if p.Path != "AB1951-Suenninghausen_page_0002.png" {
			t.Errorf("path: %s", p.Path)
		}
	}
}

func TestCheckPackageUnknownPage(t *testing.T) {
	f, pkg := checkFixture(t)
	members := goodMembers(t)
	members["AB1951-Suenninghausen_page_0007.png"] = pngBytes(t, 100, 150)
	writePackage(t, pkg, members)

	f.op.CheckPackage(pkg)
	if len(f.op.Problems) != 1 {
		t.Fatalf("problems: %s", Summary(f.op.Problems))
	}
	if !strings.Contains(f.op.Problems[0].Message, "page 7 not in metadata") {
		t.Errorf("message: %q", f.op.Problems[0].Message)
	}
}

func TestCheckPackageCorruptPNG(t *testing.T) {
	f, pkg := checkFixture(t)
	members := goodMembers(t)
	members["AB1951-Suenninghausen_page_0001.png"] = []byte("garbage")
	writePackage(t, pkg, members)

	f.op.CheckPackage(pkg)
	if len(f.op.Problems) != 1 {
		t.Fatalf("problems: %s", Summary(f.op.Problems))
	}
	if !strings.Contains(f.op.Problems[0].Message, "Failed to read/validate") {
		t.Errorf("message: %q", f.op.Problems[0].Message)
	}
}
