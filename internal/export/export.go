// Package export renders a caller-supplied list of favorite articles as a
// downloadable file.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"github.com/AbbuRehan-SD/news-summarizer/internal/news"
)

// ErrNoFavorites is returned when the request carries no articles.
var ErrNoFavorites = errors.New("no favorites provided")

var header = []string{"Title", "Summary", "Source", "URL"}

const sheet = "Favorites"

// Decode reads a JSON article list. A missing body, or one holding only an
// empty value such as null, [], {} or "", is ErrNoFavorites.
func Decode(r io.Reader) ([]news.Article, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoFavorites
		}
		return nil, fmt.Errorf("decoding favorites: %w", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding favorites: %w", err)
	}
	if isEmpty(v) {
		return nil, ErrNoFavorites
	}

	var articles []news.Article
	if err := json.Unmarshal(raw, &articles); err != nil {
		return nil, fmt.Errorf("decoding favorites: %w", err)
	}
	return articles, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case string:
		return t == ""
	case float64:
		return t == 0
	case bool:
		return !t
	}
	return false
}

func row(a news.Article) []string {
	return []string{a.Title, a.Summary, a.Source, a.URL}
}

// CSV writes articles as CSV with a header row.
func CSV(w io.Writer, articles []news.Article) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, a := range articles {
		if err := cw.Write(row(a)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// XLSX writes articles as a single-sheet workbook with a header row.
func XLSX(w io.Writer, articles []news.Article) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if err := setRow(f, 1, header); err != nil {
		return err
	}
	for i, a := range articles {
		if err := setRow(f, i+2, row(a)); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "B", 60); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// Page layout in points, measured up from the bottom edge.
const (
	pdfTop        = 800
	pdfBottom     = 100
	pdfTitleX     = 30
	pdfFieldX     = 40
	pdfLineGap    = 20
	pdfArticleGap = 40
)

// PDF writes articles as a numbered A4 listing, one title line followed by
// indented summary, source and URL lines per article.
func PDF(w io.Writer, articles []news.Article) error {
	pdf := renderPDF(articles)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("writing pdf: %w", err)
	}
	return nil
}

func renderPDF(articles []news.Article) *fpdf.Fpdf {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	_, height := pdf.GetPageSize()
	draw := func(x, y float64, s string) {
		pdf.Text(x, height-y, tr(s))
	}

	pdf.AddPage()
	y := float64(pdfTop)
	for i, a := range articles {
		draw(pdfTitleX, y, fmt.Sprintf("%d. %s", i+1, a.Title))
		y -= pdfLineGap
		draw(pdfFieldX, y, "Summary: "+a.Summary)
		y -= pdfLineGap
		draw(pdfFieldX, y, "Source: "+a.Source)
		y -= pdfLineGap
		draw(pdfFieldX, y, "URL: "+a.URL)
		y -= pdfArticleGap
		if y < pdfBottom && i < len(articles)-1 {
			pdf.AddPage()
			y = pdfTop
		}
	}
	return pdf
}

func setRow(f *excelize.File, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("writing row %d: %w", n, err)
	}
	return nil
}
