// Package report renders the per-run comparison workbook.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/pmprecos/comparador/internal/feed"
	"github.com/pmprecos/comparador/internal/scraper"
)

const (
	sheetName   = "Comparador"
	summaryName = "Resumo"
)

// fixedHeaders precede the three columns added per store.
var fixedHeaders = []string{"ID", "Title", "Ref", "Feed Price"}

// Builder assembles one workbook, products side by side with every
// store's price, delta versus the feed price, and a product link.
type Builder struct {
	file       *excelize.File
	storeNames []string
	row        int

	headerStyle   int
	percentStyle  int
	gainStyle     int
	lossStyle     int
	missingStyle  int
	linkStyle     int
	wrapStyle     int
}

// NewBuilder prepares the sheet and header row for the given stores, in
// the order they should appear.
func NewBuilder(storeNames []string) (*Builder, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	b := &Builder{file: f, storeNames: storeNames, row: 1}
	if err := b.makeStyles(); err != nil {
		return nil, err
	}
	if err := b.writeHeaders(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Builder) makeStyles() error {
	var err error
	if b.headerStyle, err = b.file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	}); err != nil {
		return err
	}
	percent := "0.0%"
	if b.percentStyle, err = b.file.NewStyle(&excelize.Style{
		CustomNumFmt: &percent,
		Alignment:    &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	}); err != nil {
		return err
	}
	if b.gainStyle, err = b.file.NewStyle(&excelize.Style{
		CustomNumFmt: &percent,
		Alignment:    &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Fill:         excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"C6EFCE"}},
	}); err != nil {
		return err
	}
	if b.lossStyle, err = b.file.NewStyle(&excelize.Style{
		CustomNumFmt: &percent,
		Alignment:    &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Fill:         excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFC7CE"}},
	}); err != nil {
		return err
	}
	if b.missingStyle, err = b.file.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"F0F0F0"}},
	}); err != nil {
		return err
	}
	if b.linkStyle, err = b.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "0563C1", Underline: "single"},
	}); err != nil {
		return err
	}
	if b.wrapStyle, err = b.file.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "center", WrapText: true},
	}); err != nil {
		return err
	}
	return nil
}

func (b *Builder) writeHeaders() error {
	headers := append([]string{}, fixedHeaders...)
	for _, name := range b.storeNames {
		headers = append(headers,
			name+" Price",
			name+" Diff%",
			name+" Link")
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := b.file.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
		if err := b.file.SetCellStyle(sheetName, cell, cell, b.headerStyle); err != nil {
			return err
		}
	}

	widths := []struct {
		col   string
		width float64
	}{{"A", 14}, {"B", 60}, {"C", 20}, {"D", 14}}
	for _, w := range widths {
		if err := b.file.SetColWidth(sheetName, w.col, w.col, w.width); err != nil {
			return err
		}
	}
	col := 5
	for range b.storeNames {
		for offset, width := range []float64{16, 10, 18} {
			name, err := excelize.ColumnNumberToName(col + offset)
			if err != nil {
				return err
			}
			if err := b.file.SetColWidth(sheetName, name, name, width); err != nil {
				return err
			}
		}
		col += 3
	}
	return nil
}

// AddProduct appends one feed product and its per-store outcomes. A nil
// or not-found entry in results renders as a grey "--" pair.
func (b *Builder) AddProduct(product feed.Product, results map[string]*scraper.SearchResult) error {
	b.row++

	set := func(col int, value any, style int) error {
		cell, err := excelize.CoordinatesToCellName(col, b.row)
		if err != nil {
			return err
		}
		if err := b.file.SetCellValue(sheetName, cell, value); err != nil {
			return err
		}
		if style != 0 {
			return b.file.SetCellStyle(sheetName, cell, cell, style)
		}
		return nil
	}

	if err := set(1, product.ID, 0); err != nil {
		return err
	}
	if err := set(2, product.Title, b.wrapStyle); err != nil {
		return err
	}
	if err := set(3, product.RefRaw, 0); err != nil {
		return err
	}
	if err := set(4, product.PriceText, 0); err != nil {
		return err
	}

	col := 5
	for _, name := range b.storeNames {
		result := results[name]
		if result == nil || result.PriceText == "" {
			if err := set(col, "--", b.missingStyle); err != nil {
				return err
			}
			if err := set(col+1, "", b.missingStyle); err != nil {
				return err
			}
		} else {
			if err := set(col, result.PriceText, 0); err != nil {
				return err
			}
			if err := b.writeDiff(col+1, product.PriceNum, result.PriceNum); err != nil {
				return err
			}
			if err := b.writeLink(col+2, result.URL); err != nil {
				return err
			}
		}
		col += 3
	}
	return nil
}

// writeDiff is (store - feed) / feed: positive means the store charges
// more than the feed price.
func (b *Builder) writeDiff(col int, feedPrice, storePrice *float64) error {
	cell, err := excelize.CoordinatesToCellName(col, b.row)
	if err != nil {
		return err
	}
	if feedPrice == nil || storePrice == nil || *feedPrice == 0 {
		return b.file.SetCellValue(sheetName, cell, "N/A")
	}
	diff := (*storePrice - *feedPrice) / *feedPrice
	if err := b.file.SetCellValue(sheetName, cell, diff); err != nil {
		return err
	}
	style := b.percentStyle
	if diff > 0 {
		style = b.gainStyle
	} else if diff < 0 {
		style = b.lossStyle
	}
	return b.file.SetCellStyle(sheetName, cell, cell, style)
}

func (b *Builder) writeLink(col int, url string) error {
	if url == "" {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(col, b.row)
	if err != nil {
		return err
	}
	if err := b.file.SetCellValue(sheetName, cell, "View product"); err != nil {
		return err
	}
	if err := b.file.SetCellHyperLink(sheetName, cell, url, "External"); err != nil {
		return err
	}
	return b.file.SetCellStyle(sheetName, cell, cell, b.linkStyle)
}

// StoreSummary is one store's run totals for the summary sheet.
type StoreSummary struct {
	Store       string
	Searches    int
	CacheHits   int
	Found       int
	NotFound    int
	Errors      int
	HitRate     float64
	SuccessRate float64
}

// AddSummary appends a sheet with per-store run totals.
func (b *Builder) AddSummary(summaries []StoreSummary) error {
	if _, err := b.file.NewSheet(summaryName); err != nil {
		return err
	}
	headers := []string{"Store", "Searches", "Cache Hits", "Found", "Not Found", "Errors", "Hit Rate", "Success Rate"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := b.file.SetCellValue(summaryName, cell, h); err != nil {
			return err
		}
		if err := b.file.SetCellStyle(summaryName, cell, cell, b.headerStyle); err != nil {
			return err
		}
	}
	for row, s := range summaries {
		values := []any{s.Store, s.Searches, s.CacheHits, s.Found, s.NotFound, s.Errors, s.HitRate, s.SuccessRate}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := b.file.SetCellValue(summaryName, cell, v); err != nil {
				return err
			}
			if col >= 6 {
				if err := b.file.SetCellStyle(summaryName, cell, cell, b.percentStyle); err != nil {
					return err
				}
			}
		}
	}
	return b.file.SetColWidth(summaryName, "A", "A", 16)
}

// Save freezes the header row and writes the workbook to path.
func (b *Builder) Save(path string) error {
	if err := b.file.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	if err := b.file.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return b.file.Close()
}
