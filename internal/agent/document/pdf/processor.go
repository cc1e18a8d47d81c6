package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/elearning-factory/internal/agent/document"
	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

const maxPageWorkers = 4

// Analyzer extracts the text layer of PDFs locally. It is used when no cloud
// layout analyzer is configured; scanned PDFs without a text layer yield
// empty content.
type Analyzer struct {
	logger logger.Logger
}

func NewAnalyzer(log logger.Logger) *Analyzer {
	return &Analyzer{
		logger: log.Named("pdf"),
	}
}

func (a *Analyzer) AnalyzeDocument(ctx context.Context, in document.DocumentInput, opts document.AnalyzeOptions) (*document.AnalyzeResult, error) {
	if models.NormalizeMIME(in.MIMEType) != "application/pdf" {
		return nil, fmt.Errorf("%s: %w", in.Name, document.ErrUnsupportedDocument)
	}

	reader := bytes.NewReader(in.Bytes)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := pdfReader.NumPage()
	pages := make([]string, numPages)

	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxPageWorkers)

	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return ctx.Err()
			}

			page := pdfReader.Page(pageNum)
			if page.V.IsNull() {
				return nil
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				return fmt.Errorf("failed to get text from page %d: %w", pageNum, err)
			}
			pages[pageNum-1] = cleanText(text)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	parts := make([]string, 0, numPages)
	for i, text := range pages {
		if text == "" {
			continue
		}
		if opts.OutputFormat == document.OutputMarkdown && numPages > 1 {
			text = fmt.Sprintf("<!-- page %d -->\n%s", i+1, text)
		}
		parts = append(parts, text)
	}

	a.logger.Debug("PDF text extracted",
		logger.String("file", in.Name),
		logger.Int("pages", numPages),
		logger.Int("pagesWithText", len(parts)),
	)

	return &document.AnalyzeResult{
		Content: strings.Join(parts, "\n\n"),
		Pages:   numPages,
	}, nil
}

// cleanText trims trailing spaces on every line and drops runs of blank lines.
func cleanText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
