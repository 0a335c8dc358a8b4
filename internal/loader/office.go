package loader

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/dossier/internal/models"
)

// loadDOCX reads word/document.xml as a single page, one paragraph per block.
func loadDOCX(p string) ([]models.Page, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		text, err := zipText(f)
		if err != nil {
			return nil, err
		}
		return []models.Page{{Source: p, Number: 0, Text: text}}, nil
	}
	return nil, errors.New("docx: word/document.xml not found")
}

// loadPPTX returns one page per slide, in slide order.
func loadPPTX(p string) ([]models.Page, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		dir, name := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(name, "slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{n: n, f: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	pages := make([]models.Page, 0, len(slides))
	for i, s := range slides {
		text, err := zipText(s.f)
		if err != nil {
			return nil, err
		}
		pages = append(pages, models.Page{Source: p, Number: i, Text: text})
	}
	return pages, nil
}

func zipText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return xmlText(rc)
}

// xmlText collects the character data of every <t> element and ends a block
// at every closing <p>. Namespaces are ignored so WordprocessingML (w:) and
// DrawingML (a:) share the walk.
func xmlText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b      strings.Builder
		inText bool
		para   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(para.String()); s != "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(s)
		}
		para.Reset()
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteString("\t")
			case "br":
				para.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	flush()
	return b.String(), nil
}
