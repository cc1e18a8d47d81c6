package converters

import (
	"bytes"
	"fmt"
	"strings"

	godocx "github.com/fumiama/go-docx"
)

// half-points
var headingSizes = map[int]string{1: "36", 2: "30", 3: "26", 4: "24", 5: "22", 6: "22"}

// ToDOCX renders markdown as a Word document.
func ToDOCX(markdown string) ([]byte, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, ErrEmptyContent
	}

	doc := godocx.New().WithDefaultTheme()
	for _, b := range ParseMarkdown(markdown) {
		switch b.Kind {
		case BlockHeading:
			para := doc.AddParagraph()
			size := headingSizes[b.Level]
			for _, r := range b.Runs {
				para.AddText(r.Text).Bold().Size(size)
			}
		case BlockListItem:
			para := doc.AddParagraph()
			para.AddText(strings.Repeat("    ", b.Depth) + bullet(b))
			addRuns(para, b.Runs)
		case BlockCode:
			for _, line := range strings.Split(b.Code, "\n") {
				doc.AddParagraph().AddText(line).Color("444444").Size("20")
			}
		case BlockRule:
			doc.AddParagraph().AddText(strings.Repeat("_", 40)).Color("808080")
		case BlockQuote:
			para := doc.AddParagraph()
			for _, r := range b.Runs {
				styled(para.AddText(r.Text), r).Italic().Color("555555")
			}
		default:
			addRuns(doc.AddParagraph(), b.Runs)
		}
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write docx: %w", err)
	}
	return buf.Bytes(), nil
}

func addRuns(para *godocx.Paragraph, runs []Run) {
	for _, r := range runs {
		styled(para.AddText(r.Text), r)
	}
}

func styled(run *godocx.Run, r Run) *godocx.Run {
	if r.Bold {
		run.Bold()
	}
	if r.Italic {
		run.Italic()
	}
	if r.Code {
		run.Color("444444")
	}
	return run
}

func bullet(b Block) string {
	if b.Ordered {
		return fmt.Sprintf("%d. ", b.Number)
	}
	return "• "
}
