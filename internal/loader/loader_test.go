package loader

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/starford/dossier/internal/apperr"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_Unsupported(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "notes.txt"))
	if !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestSupported(t *testing.T) {
	for _, p := range []string{"a.pdf", "b.DOCX", "c.xls", "d.xlsx", "e.pptx"} {
		if !Supported(p) {
			t.Errorf("%s should be supported", p)
		}
	}
	for _, p := range []string{"a.md", "b.doc", "c"} {
		if Supported(p) {
			t.Errorf("%s should not be supported", p)
		}
	}
	if !HasMetadata("x.PDF") || HasMetadata("x.docx") {
		t.Error("only pdf carries metadata")
	}
}

func TestLoad_DOCX(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cps.docx")
	writeZip(t, p, map[string]string{
		"word/document.xml": `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Préambule</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Marché </w:t></w:r><w:r><w:t>1208/E/DPL/2008</w:t></w:r></w:p>
</w:body></w:document>`,
	})
	pages, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(pages) != 1 || pages[0].Number != 0 || pages[0].Source != p {
		t.Fatalf("pages = %+v", pages)
	}
	if pages[0].Text != "Préambule\n\nMarché 1208/E/DPL/2008" {
		t.Errorf("text = %q", pages[0].Text)
	}
}

func TestLoad_PPTXSlideOrder(t *testing.T) {
	p := filepath.Join(t.TempDir(), "deck.pptx")
	slide := func(s string) string {
		return `<p:sld xmlns:p="p" xmlns:a="a"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + s + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	writeZip(t, p, map[string]string{
		"ppt/slides/slide10.xml":           slide("dix"),
		"ppt/slides/slide2.xml":            slide("deux"),
		"ppt/slides/slide1.xml":            slide("un"),
		"ppt/slides/_rels/slide1.xml.rels": "<Relationships/>",
	})
	pages, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var got []string
	for i, pg := range pages {
		if pg.Number != i {
			t.Errorf("page %d numbered %d", i, pg.Number)
		}
		got = append(got, pg.Text)
	}
	if strings.Join(got, ",") != "un,deux,dix" {
		t.Errorf("slides = %v", got)
	}
}

func TestLoad_XLSX(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bordereau.xlsx")
	f := excelize.NewFile()
	if err := f.SetCellValue("Sheet1", "A1", "Article"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "B1", "Prix"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "A2", "Terrassement"); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAs(p); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	pages, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("pages = %d", len(pages))
	}
	if pages[0].Text != "Sheet1\nArticle\tPrix\nTerrassement" {
		t.Errorf("text = %q", pages[0].Text)
	}
}

func TestLoad_CorruptDOCX(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.docx")
	if err := os.WriteFile(p, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for corrupt docx")
	}
}
