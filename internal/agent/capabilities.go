// Package agent wires the remote and local capabilities the pipeline runs on.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/elearning-factory/config"
	"github.com/feichai0017/elearning-factory/internal/agent/document"
	"github.com/feichai0017/elearning-factory/internal/agent/document/docx"
	"github.com/feichai0017/elearning-factory/internal/agent/document/pdf"
	"github.com/feichai0017/elearning-factory/internal/agent/document/pptx"
	"github.com/feichai0017/elearning-factory/internal/agent/document/textract"
	"github.com/feichai0017/elearning-factory/internal/agent/image"
	"github.com/feichai0017/elearning-factory/internal/agent/llm"
	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/internal/service/pipeline"
	"github.com/feichai0017/elearning-factory/pkg/logger"
	"github.com/feichai0017/elearning-factory/pkg/storage"
	"github.com/feichai0017/elearning-factory/pkg/tokenizer"
)

// Capabilities holds one client per remote service. A nil field means the
// service is not configured; requests that need it fail per file or per call.
type Capabilities struct {
	OpenAI   *llm.OpenAIClient
	Analyzer document.LayoutAnalyzer
	Images   *image.Preparer
	Counter  *tokenizer.Counter
	Storage  storage.Storage

	presignTTL time.Duration
}

type Options struct {
	OpenAI            *config.OpenAIConfig
	Textract          *config.TextractConfig
	StorageBackend    storage.StorageType
	PresignTTL        time.Duration
	ImageMaxDimension int
	Encoding          string
}

// DefaultOptions reads every capability's configuration from the environment.
func DefaultOptions(app *config.AppConfig) Options {
	return Options{
		OpenAI:            config.GetOpenAIConfig(),
		Textract:          config.GetTextractConfig(),
		StorageBackend:    storage.StorageType(app.Storage.Backend),
		PresignTTL:        config.GetS3Config().PresignTTL,
		ImageMaxDimension: app.Pipeline.ImageMaxDimension,
		Encoding:          app.Pipeline.Encoding,
	}
}

// NewCapabilities builds every configured client. Missing configuration is
// logged and skipped; broken configuration is an error.
func NewCapabilities(ctx context.Context, opts Options, log logger.Logger) (*Capabilities, error) {
	log = log.Named("capabilities")

	counter, err := tokenizer.NewCounter(opts.Encoding)
	if err != nil {
		return nil, err
	}

	c := &Capabilities{
		Counter:    counter,
		Images:     image.NewPreparer(opts.ImageMaxDimension),
		presignTTL: opts.PresignTTL,
	}

	if opts.OpenAI != nil {
		client, err := llm.NewOpenAIClient(opts.OpenAI, log)
		switch {
		case errors.Is(err, models.ErrNotConfigured):
			log.Warn("OpenAI is not configured; image OCR, transcription and generation are disabled")
		case err != nil:
			return nil, err
		default:
			c.OpenAI = client
		}
	}

	var fallback document.LayoutAnalyzer
	if opts.Textract != nil && opts.Textract.Enabled() {
		ta, err := textract.NewAnalyzer(ctx, opts.Textract, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create textract analyzer: %w", err)
		}
		fallback = ta
	} else {
		log.Warn("Textract is not configured; falling back to local PDF, DOCX and PPTX extraction")
	}

	router := document.NewRouter(fallback).
		Handle(docx.NewAnalyzer(log), docx.MIMEType).
		Handle(pptx.NewAnalyzer(log), pptx.MIMEType)
	if fallback == nil {
		router.Handle(pdf.NewAnalyzer(log), "application/pdf")
	}
	c.Analyzer = router

	st, err := storage.NewStorage(ctx, opts.StorageBackend, log)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		log.Info("Blob storage disabled", logger.String("backend", string(opts.StorageBackend)))
	case err != nil:
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	default:
		c.Storage = st
	}

	return c, nil
}

// Dependencies returns the pipeline view of the capabilities, leaving
// interfaces nil for missing services.
func (c *Capabilities) Dependencies() pipeline.Dependencies {
	deps := pipeline.Dependencies{
		Analyzer: c.Analyzer,
		Counter:  c.Counter,
	}
	if c.Images != nil {
		deps.Images = c.Images
	}
	if c.OpenAI != nil {
		deps.Chat = c.OpenAI
		deps.Transcriber = c.OpenAI
	}
	if up := c.Uploader(); up != nil {
		deps.Uploader = up
	}
	return deps
}

func (c *Capabilities) Chat() llm.ChatClient {
	if c.OpenAI == nil {
		return nil
	}
	return c.OpenAI
}

func (c *Capabilities) ImageGenerator() llm.ImageGenerator {
	if c.OpenAI == nil {
		return nil
	}
	return c.OpenAI
}

// Uploader returns nil when no blob storage is configured.
func (c *Capabilities) Uploader() *BlobUploader {
	if c.Storage == nil {
		return nil
	}
	return NewBlobUploader(c.Storage, c.presignTTL)
}

// BlobUploader parks documents in blob storage so the layout analyzer can
// read them by location.
type BlobUploader struct {
	store storage.Storage
	ttl   time.Duration
	now   func() time.Time
}

func NewBlobUploader(store storage.Storage, ttl time.Duration) *BlobUploader {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &BlobUploader{store: store, ttl: ttl, now: time.Now}
}

func (u *BlobUploader) UploadForAnalysis(ctx context.Context, name, mimeType string, data []byte) (*document.Location, error) {
	key := storage.NewKey("analysis", name, u.now())
	if _, err := u.store.Store(ctx, bytes.NewReader(data), key); err != nil {
		return nil, err
	}

	loc := &document.Location{
		Provider: u.store.Type(),
		Bucket:   u.store.Bucket(),
		Key:      key,
	}
	if url, err := u.store.URL(ctx, key, u.ttl); err == nil {
		loc.URL = url
	}
	return loc, nil
}
