package pptx

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/elearning-factory/internal/agent/document"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

func slideXML(paragraphs ...string) string {
	var body string
	for _, p := range paragraphs {
		body += fmt.Sprintf(`<a:p><a:r><a:t>%s</a:t></a:r></a:p>`, p)
	}
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
<p:cSld><p:spTree><p:sp><p:txBody>` + body + `</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
}

func buildDeck(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestAnalyzeDocument(t *testing.T) {
	deck := buildDeck(t, map[string]string{
		"[Content_Types].xml":              `<Types/>`,
		"ppt/slides/slide10.xml":           slideXML("Wrap up"),
		"ppt/slides/slide2.xml":            slideXML("Install", "Run setup.exe"),
		"ppt/slides/slide1.xml":            slideXML("Welcome"),
		"ppt/slides/slide3.xml":            slideXML(),
		"ppt/slides/_rels/slide1.xml.rels": `<Relationships/>`,
	})

	a := NewAnalyzer(logger.NewTestLogger())
	res, err := a.AnalyzeDocument(context.Background(), document.DocumentInput{
		Name:     "deck.pptx",
		MIMEType: MIMEType,
		Bytes:    deck,
	}, document.AnalyzeOptions{})
	require.NoError(t, err)

	assert.Equal(t, "## Slide 1\n\nWelcome\n\n## Slide 2\n\nInstall\nRun setup.exe\n\n## Slide 10\n\nWrap up", res.Content)
	assert.Equal(t, 4, res.Pages)
}

func TestAnalyzeDocumentInvalid(t *testing.T) {
	a := NewAnalyzer(logger.NewTestLogger())

	_, err := a.AnalyzeDocument(context.Background(), document.DocumentInput{Bytes: []byte("nope")}, document.AnalyzeOptions{})
	assert.Error(t, err)

	noSlides := buildDeck(t, map[string]string{"[Content_Types].xml": `<Types/>`})
	_, err = a.AnalyzeDocument(context.Background(), document.DocumentInput{Name: "empty.pptx", Bytes: noSlides}, document.AnalyzeOptions{})
	assert.Error(t, err)
}
