package converters

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	pdfFont       = "go"
	pdfMonoFont   = "gomono"
	pdfBodySize   = 11
	pdfLineHeight = 6
)

var pdfHeadingSizes = map[int]float64{1: 20, 2: 16, 3: 14, 4: 12, 5: 12, 6: 12}

// pdfFonts are embedded as UTF-8 TrueType fonts. The Go fonts cover Latin,
// Greek and Cyrillic; glyphs outside WGL4 (CJK among them) render blank.
var pdfFonts = []struct {
	family, style string
	ttf           []byte
}{
	{pdfFont, "", goregular.TTF},
	{pdfFont, "B", gobold.TTF},
	{pdfFont, "I", goitalic.TTF},
	{pdfFont, "BI", gobolditalic.TTF},
	{pdfMonoFont, "", gomono.TTF},
	{pdfMonoFont, "B", gomonobold.TTF},
	{pdfMonoFont, "I", gomonoitalic.TTF},
	{pdfMonoFont, "BI", gomonobolditalic.TTF},
}

// ToPDF renders markdown as an A4 PDF.
func ToPDF(markdown string) ([]byte, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, ErrEmptyContent
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(true, 20)
	for _, f := range pdfFonts {
		doc.AddUTF8FontFromBytes(f.family, f.style, f.ttf)
	}
	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("failed to load pdf fonts: %w", err)
	}
	doc.AddPage()

	for _, b := range ParseMarkdown(markdown) {
		switch b.Kind {
		case BlockHeading:
			size := pdfHeadingSizes[b.Level]
			doc.Ln(2)
			doc.SetFont(pdfFont, "B", size)
			doc.MultiCell(0, size*0.5, b.PlainText(), "", "L", false)
			doc.Ln(1)
		case BlockListItem:
			indent := 5 * float64(b.Depth+1)
			doc.SetX(doc.GetX() + indent)
			doc.SetFont(pdfFont, "", pdfBodySize)
			prefix := "- "
			if b.Ordered {
				prefix = fmt.Sprintf("%d. ", b.Number)
			}
			doc.MultiCell(0, pdfLineHeight, prefix+b.PlainText(), "", "L", false)
		case BlockCode:
			doc.SetFont(pdfMonoFont, "", pdfBodySize-1)
			doc.SetFillColor(240, 240, 240)
			doc.MultiCell(0, pdfLineHeight-1, b.Code, "", "L", true)
			doc.Ln(2)
		case BlockRule:
			y := doc.GetY() + 2
			left, _, right, _ := doc.GetMargins()
			w, _ := doc.GetPageSize()
			doc.Line(left, y, w-right, y)
			doc.Ln(5)
		default:
			style := ""
			if b.Kind == BlockQuote {
				style = "I"
			}
			doc.SetFont(pdfFont, style, pdfBodySize)
			writeRuns(doc, b.Runs, style)
			doc.Ln(pdfLineHeight + 2)
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// writeRuns flows styled runs inline with Write so bold and italic spans stay
// on the same line.
func writeRuns(doc *fpdf.Fpdf, runs []Run, base string) {
	for _, r := range runs {
		style := base
		family := pdfFont
		if r.Bold && !strings.Contains(style, "B") {
			style += "B"
		}
		if r.Italic && !strings.Contains(style, "I") {
			style += "I"
		}
		if r.Code {
			family = pdfMonoFont
		}
		doc.SetFont(family, style, pdfBodySize)
		doc.Write(pdfLineHeight, r.Text)
	}
}
