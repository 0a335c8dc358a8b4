package loader

import (
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/starford/dossier/internal/models"
)

// loadXLSX returns one page per sheet. Cells are tab separated, rows newline
// separated, and the sheet name heads the page.
func loadXLSX(path string) ([]models.Page, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.Page
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, err
		}
		pages = append(pages, models.Page{Source: path, Number: i, Text: sheetText(sheet, rows)})
	}
	return pages, nil
}

// loadXLS handles the legacy BIFF workbook format.
func loadXLS(path string) ([]models.Page, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		var rows [][]string
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				continue
			}
			var cells []string
			for c := row.FirstCol(); c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		pages = append(pages, models.Page{Source: path, Number: i, Text: sheetText(sheet.Name, rows)})
	}
	return pages, nil
}

func sheetText(name string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(name)
	for _, row := range rows {
		line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
		if line == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}
