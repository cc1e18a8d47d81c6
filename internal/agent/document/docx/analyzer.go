// Package docx reads the text of Word documents locally.
package docx

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	godocx "github.com/fumiama/go-docx"

	"github.com/feichai0017/elearning-factory/internal/agent/document"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

// MIMEType is the media type of .docx files.
const MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

type Analyzer struct {
	logger logger.Logger
}

func NewAnalyzer(log logger.Logger) *Analyzer {
	return &Analyzer{logger: log.Named("docx")}
}

func (a *Analyzer) AnalyzeDocument(ctx context.Context, in document.DocumentInput, opts document.AnalyzeOptions) (*document.AnalyzeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := godocx.Parse(bytes.NewReader(in.Bytes), int64(len(in.Bytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse docx: %w", err)
	}

	var parts []string
	for _, item := range doc.Document.Body.Items {
		s, ok := item.(fmt.Stringer)
		if !ok {
			continue
		}
		if text := strings.TrimSpace(s.String()); text != "" {
			parts = append(parts, text)
		}
	}

	a.logger.Debug("DOCX text extracted",
		logger.String("file", in.Name),
		logger.Int("blocks", len(parts)),
	)

	return &document.AnalyzeResult{
		Content: strings.Join(parts, "\n\n"),
		Pages:   1,
	}, nil
}
