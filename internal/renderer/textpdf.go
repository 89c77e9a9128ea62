package renderer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/samvad-hq/report-enhancer/internal/domain"
)

// TextPDF renders the article as a plain text PDF. It is the last resort when
// the HTML rasterizer is unavailable.
func TextPDF(article *domain.ArticleResult, sourceURL string) ([]byte, error) {
	if !article.Valid() {
		return nil, fmt.Errorf("article has no usable text")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = "Article"
	}
	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, tr(title), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "I", 9)
	if day := article.PublishedDay(); day != "" {
		pdf.CellFormat(0, 5, tr("Published: "+day), "", 1, "L", false, 0, "")
	}
	if len(article.Authors) > 0 {
		pdf.CellFormat(0, 5, tr("Authors: "+strings.Join(article.Authors, ", ")), "", 1, "L", false, 0, "")
	}
	if sourceURL != "" {
		pdf.MultiCell(0, 5, tr("Source: "+sourceURL), "", "L", false)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	for _, p := range strings.Split(article.Text, "\n\n") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		pdf.MultiCell(0, 5, tr(p), "", "L", false)
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write text pdf: %w", err)
	}
	return buf.Bytes(), nil
}
