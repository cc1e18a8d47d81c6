package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedAnalyzer string

func (n namedAnalyzer) AnalyzeDocument(ctx context.Context, in DocumentInput, opts AnalyzeOptions) (*AnalyzeResult, error) {
	return &AnalyzeResult{Content: string(n)}, nil
}

func TestRouter(t *testing.T) {
	r := NewRouter(namedAnalyzer("cloud")).
		Handle(namedAnalyzer("docx"), "application/vnd.openxmlformats-officedocument.wordprocessingml.document")

	res, err := r.AnalyzeDocument(context.Background(), DocumentInput{MIMEType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"}, AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "docx", res.Content)

	res, err = r.AnalyzeDocument(context.Background(), DocumentInput{MIMEType: "application/pdf"}, AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cloud", res.Content)
}

func TestRouterWithoutFallback(t *testing.T) {
	r := NewRouter(nil)
	assert.True(t, r.Empty())

	_, err := r.AnalyzeDocument(context.Background(), DocumentInput{Name: "a.ppt", MIMEType: "application/vnd.ms-powerpoint"}, AnalyzeOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedDocument)
}

func TestAnalyzeOptionsHasFeature(t *testing.T) {
	o := AnalyzeOptions{Features: []string{FeatureOCRHighResolution}}
	assert.True(t, o.HasFeature(FeatureOCRHighResolution))
	assert.False(t, AnalyzeOptions{}.HasFeature(FeatureOCRHighResolution))
}
