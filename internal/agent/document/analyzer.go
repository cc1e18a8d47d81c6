// Package document defines the layout analyzer contract and routes documents
// to the analyzer that can read them.
package document

import (
	"context"
	"errors"
)

const (
	ModelPrebuiltLayout = "prebuilt-layout"
	OutputMarkdown      = "markdown"
	OutputText          = "text"

	FeatureOCRHighResolution = "OCR_HIGH_RESOLUTION"
)

// ErrUnsupportedDocument is returned when no analyzer accepts the input type.
var ErrUnsupportedDocument = errors.New("unsupported document type")

// Location points at a copy of the document in blob storage.
type Location struct {
	Provider string // s3 | minio
	Bucket   string
	Key      string
	URL      string
}

// DocumentInput always carries the bytes; Location is set when the document
// was uploaded to blob storage first.
type DocumentInput struct {
	Name     string
	MIMEType string
	Bytes    []byte
	Location *Location
}

type AnalyzeOptions struct {
	ModelType    string
	OutputFormat string
	Features     []string
}

// HasFeature reports whether f was requested.
func (o AnalyzeOptions) HasFeature(f string) bool {
	for _, x := range o.Features {
		if x == f {
			return true
		}
	}
	return false
}

type AnalyzeResult struct {
	Content string
	Pages   int
}

type LayoutAnalyzer interface {
	AnalyzeDocument(ctx context.Context, in DocumentInput, opts AnalyzeOptions) (*AnalyzeResult, error)
}
