package docservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/checksum"
	"github.com/starford/dossier/internal/testutil"
)

func newService(t *testing.T) (*Service, string) {
	t.Helper()
	root, store := testutil.TestRoot(t)
	db := testutil.TestDB(t)
	return NewService(store, db), root
}

func TestUploadAndList(t *testing.T) {
	svc, root := newService(t)
	ctx := context.Background()

	info, err := svc.Upload(ctx, "lot1/cps.pdf", strings.NewReader("pdf bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Path != "lot1/cps.pdf" || info.Name != "cps.pdf" || info.Size != 9 {
		t.Errorf("info = %+v", info)
	}
	if _, err := os.Stat(filepath.Join(root, "lot1", "cps.pdf")); err != nil {
		t.Fatal(err)
	}

	items, err := svc.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Path != "lot1/cps.pdf" || items[0].Indexed {
		t.Errorf("items = %+v", items)
	}
}

func TestListMarksIndexed(t *testing.T) {
	root, store := testutil.TestRoot(t)
	db := testutil.TestDB(t)
	svc := NewService(store, db)
	ctx := context.Background()

	if _, err := svc.Upload(ctx, "a.pdf", strings.NewReader("a")); err != nil {
		t.Fatal(err)
	}
	sum, err := checksum.File(filepath.Join(root, "a.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.PutFile(ctx, "a.pdf", sum); err != nil {
		t.Fatal(err)
	}
	items, err := svc.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || !items[0].Indexed {
		t.Errorf("items = %+v", items)
	}
}

func TestUploadRejects(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := map[string]string{
		"empty":       "",
		"traversal":   "../escape.pdf",
		"unsupported": "notes.txt",
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Upload(ctx, p, strings.NewReader("x"))
			if !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestUploadNormalisesBackslashes(t *testing.T) {
	svc, root := newService(t)
	if _, err := svc.Upload(context.Background(), `dossier\sub\cps.pdf`, strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "dossier", "sub", "cps.pdf")); err != nil {
		t.Fatal(err)
	}
}

func TestDelete(t *testing.T) {
	svc, root := newService(t)
	ctx := context.Background()
	if _, err := svc.Upload(ctx, "lot1/cps.pdf", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, "lot1"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "lot1")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("directory still present: %v", err)
	}
	if err := svc.Delete(ctx, "lot1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestMove(t *testing.T) {
	svc, root := newService(t)
	ctx := context.Background()
	for _, p := range []string{"a.pdf", "b.pdf"} {
		if _, err := svc.Upload(ctx, p, strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
	}

	if err := svc.Move(ctx, "a.pdf", "archive/a.pdf"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "archive", "a.pdf")); err != nil {
		t.Fatal(err)
	}
	if err := svc.Move(ctx, "b.pdf", "archive/a.pdf"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("overwrite err = %v", err)
	}
	if err := svc.Move(ctx, "gone.pdf", "c.pdf"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestOpen(t *testing.T) {
	svc, root := newService(t)
	ctx := context.Background()
	if _, err := svc.Upload(ctx, "cps.pdf", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	abs, err := svc.Open(ctx, "cps.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if abs != filepath.Join(root, "cps.pdf") {
		t.Errorf("abs = %q", abs)
	}
	if _, err := svc.Open(ctx, "missing.pdf"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestStats(t *testing.T) {
	svc, root := newService(t)
	ctx := context.Background()
	for _, p := range []string{"a.pdf", "b.docx"} {
		if _, err := svc.Upload(ctx, p, strings.NewReader("12345")); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(filepath.Join(root, "a.pdf"), old, old); err != nil {
		t.Fatal(err)
	}

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalDocuments != 2 || st.AddedThisWeek != 1 || st.UsedBytes != 10 || st.LastModifiedFile != "b.docx" {
		t.Errorf("stats = %+v", st)
	}
}
