package docx

import (
	"bytes"
	"context"
	"testing"

	godocx "github.com/fumiama/go-docx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/elearning-factory/internal/agent/document"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

func TestAnalyzeDocument(t *testing.T) {
	doc := godocx.New().WithDefaultTheme()
	doc.AddParagraph().AddText("Installation steps")
	doc.AddParagraph().AddText("Run the installer")

	var buf bytes.Buffer
	_, err := doc.WriteTo(&buf)
	require.NoError(t, err)

	a := NewAnalyzer(logger.NewTestLogger())
	res, err := a.AnalyzeDocument(context.Background(), document.DocumentInput{
		Name:     "guide.docx",
		MIMEType: MIMEType,
		Bytes:    buf.Bytes(),
	}, document.AnalyzeOptions{})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Installation steps")
	assert.Contains(t, res.Content, "Run the installer")
}

func TestAnalyzeDocumentInvalid(t *testing.T) {
	a := NewAnalyzer(logger.NewTestLogger())
	_, err := a.AnalyzeDocument(context.Background(), document.DocumentInput{Bytes: []byte("nope")}, document.AnalyzeOptions{})
	assert.Error(t, err)
}
