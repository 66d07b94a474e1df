package store

import (
	"context"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/genwiki/djvukeeper/djvu"
)

func TestDocumentRoundTrip(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()
	src := djvu.Sample()

	if err := s.UpsertDocument(ctx, &src.Document); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.GetDocument(ctx, src.Path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *got != src.Document {
		t.Errorf("document mismatch:\n got %+v\nwant %+v", *got, src.Document)
	}

	// Second upsert updates in place.
	src.PageCount = 7
	if err := s.UpsertDocument(ctx, &src.Document); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err = s.GetDocument(ctx, src.Path)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if got.PageCount != 7 {
		t.Errorf("page_count: got %d, want 7", got.PageCount)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s := OpenMemory(t)
	_, err := s.GetDocument(context.Background(), "nope/missing.djvu")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err: got %v, want ErrNotFound", err)
	}
}

func TestListDocuments(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()
	for _, path := range []string{"c/doc3.djvu", "a/doc1.djvu", "b/doc2.djvu"} {
		if err := s.UpsertDocument(ctx, &djvu.Document{Path: path}); err != nil {
			t.Fatalf("upsert %s: %v", path, err)
		}
	}
	docs, err := s.ListDocuments(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 3 || docs[0].Path != "a/doc1.djvu" || docs[2].Path != "c/doc3.djvu" {
		t.Errorf("docs: %+v", docs)
	}

	docs, err = s.ListDocuments(ctx, 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("limited: got %d docs", len(docs))
	}
}

func TestMarkBundled(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()
	src := djvu.Sample()
	if err := s.UpsertDocument(ctx, &src.Document); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.MarkBundled(ctx, src.Path, 123456); err != nil {
		t.Fatalf("mark: %v", err)
	}
	got, err := s.GetDocument(ctx, src.Path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Bundled || got.FileSize != 123456 {
		t.Errorf("got bundled=%v filesize=%d", got.Bundled, got.FileSize)
	}
}

func TestMarkBundledMissingRecord(t *testing.T) {
	s := OpenMemory(t)
	err := s.MarkBundled(context.Background(), "nope/missing.djvu", 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err: got %v, want ErrNotFound", err)
	}
}

func TestPagesAndGetFile(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()
	src := djvu.Sample()
	if err := s.UpsertDocument(ctx, &src.Document); err != nil {
		t.Fatalf("upsert doc: %v", err)
	}
	// Out of order on purpose; PagesFor must sort by index.
	p2 := djvu.NewPage(src.Path, "s_455_0002.djvu", 2)
	p1 := src.Pages[0]
	for _, p := range []*djvu.Page{&p2, &p1} {
		if err := s.UpsertPage(ctx, p); err != nil {
			t.Fatalf("upsert page: %v", err)
		}
	}

	f, err := s.GetFile(ctx, src.Path)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if len(f.Pages) != 2 {
		t.Fatalf("pages: got %d, want 2", len(f.Pages))
	}
	if f.Pages[0].PageIndex != 1 || f.Pages[1].PageIndex != 2 {
		t.Errorf("order: %d, %d", f.Pages[0].PageIndex, f.Pages[1].PageIndex)
	}
	if f.Pages[0] != p1 {
		t.Errorf("page mismatch:\n got %+v\nwant %+v", f.Pages[0], p1)
	}
}

func TestUpsertPageFillsKey(t *testing.T) {
	s := OpenMemory(t)
	p := &djvu.Page{DocumentPath: "a/doc.djvu", PageIndex: 3, Path: "p3.djvu", Valid: true}
	if err := s.UpsertPage(context.Background(), p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if p.PageKey != "a/doc.djvu#0003" {
		t.Errorf("key: %q", p.PageKey)
	}
}

func TestReplaceCatalog(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	old := &djvu.Document{Path: "old/doc.djvu"}
	if err := s.UpsertDocument(ctx, old); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := s.ReplaceCatalog(ctx, []*djvu.File{djvu.Sample()}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	if _, err := s.GetDocument(ctx, "old/doc.djvu"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale record survived replace: %v", err)
	}
	total, _, err := s.CountDocuments(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 {
		t.Errorf("total: got %d, want 1", total)
	}
	pages, err := s.CountPages(ctx)
	if err != nil {
		t.Fatalf("count pages: %v", err)
	}
	if pages != 1 {
		t.Errorf("pages: got %d, want 1", pages)
	}
}

func TestReplaceCatalogRollsBackOnDuplicate(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	keep := &djvu.Document{Path: "keep/doc.djvu"}
	if err := s.UpsertDocument(ctx, keep); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Duplicate primary key inside the batch aborts the transaction.
	dup := []*djvu.File{
		{Document: djvu.Document{Path: "x/doc.djvu"}},
		{Document: djvu.Document{Path: "x/doc.djvu"}},
	}
	if err := s.ReplaceCatalog(ctx, dup); err == nil {
		t.Fatal("expected constraint error")
	}

	if _, err := s.GetDocument(ctx, "keep/doc.djvu"); err != nil {
		t.Errorf("previous catalog lost after failed replace: %v", err)
	}
}

func TestCountDocuments(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()
	for i, d := range []*djvu.Document{
		{Path: "a/doc1.djvu"},
		{Path: "b/doc2.djvu", Bundled: true},
		{Path: "c/doc3.djvu", Bundled: true},
	} {
		if err := s.UpsertDocument(ctx, d); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	total, bundled, err := s.CountDocuments(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 3 || bundled != 2 {
		t.Errorf("got total=%d bundled=%d", total, bundled)
	}
}

func TestBundleLog(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	id, err := s.StartBundleLog(ctx, "b/b3/doc.djvu")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if id == "" {
		t.Fatal("empty log id")
	}

	entries, err := s.BundleLogFor(ctx, "b/b3/doc.djvu")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != StatusStarted {
		t.Fatalf("entries: %+v", entries)
	}

	if err := s.FinishBundleLog(ctx, id, StatusFailed, 2, "Found 2 error(s)"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	entries, err = s.BundleLogFor(ctx, "b/b3/doc.djvu")
	if err != nil {
		t.Fatalf("query again: %v", err)
	}
	e := entries[0]
	if e.Status != StatusFailed || e.ProblemCount != 2 || e.FinishedAt == 0 {
		t.Errorf("entry: %+v", e)
	}
}
