package loader

import (
	"github.com/ledongthuc/pdf"

	"github.com/starford/dossier/internal/models"
)

func loadPDF(path string) ([]models.Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pages := make([]models.Page, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, err
		}
		pages = append(pages, models.Page{Source: path, Number: i - 1, Text: text})
	}
	return pages, nil
}
