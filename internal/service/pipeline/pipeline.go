// Package pipeline turns a batch of uploaded files into one aggregate context
// and drives the generation turns built on top of it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/elearning-factory/internal/agent/document"
	"github.com/feichai0017/elearning-factory/internal/agent/llm"
	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/internal/prompts"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

// DefaultConcurrency caps the number of extractions in flight per batch.
const DefaultConcurrency = 5

// TokenCounter counts tokens with the tokenizer of the downstream chat model.
type TokenCounter interface {
	Count(text string) int
}

// BlobUploader parks a document in blob storage so the analyzer can read it
// from there.
type BlobUploader interface {
	UploadForAnalysis(ctx context.Context, name, mimeType string, data []byte) (*document.Location, error)
}

// ImagePreparer resizes or cleans up an image before vision OCR.
type ImagePreparer interface {
	Prepare(data []byte, mimeType string) ([]byte, string, error)
}

type Config struct {
	Concurrency         int
	TempDir             string
	UploadBeforeAnalyze bool
	ImageMaxTokens      int
	DefaultMinTokens    int
	DefaultMaxTokens    int
}

// Dependencies are the remote capabilities. Any of them may be nil; files
// routed to a missing capability fail with models.ErrNotConfigured.
type Dependencies struct {
	Analyzer    document.LayoutAnalyzer
	Chat        llm.ChatClient
	Transcriber llm.Transcriber
	Uploader    BlobUploader
	Images      ImagePreparer
	Counter     TokenCounter
}

type Extractor struct {
	deps   Dependencies
	cfg    Config
	logger logger.Logger
	now    func() time.Time
}

func NewExtractor(cfg Config, deps Dependencies, log logger.Logger) *Extractor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.ImageMaxTokens <= 0 {
		cfg.ImageMaxTokens = 1000
	}
	if cfg.DefaultMinTokens <= 0 {
		cfg.DefaultMinTokens = 3000
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 3000
	}
	return &Extractor{
		deps:   deps,
		cfg:    cfg,
		logger: log.Named("pipeline"),
		now:    time.Now,
	}
}

// ExtractAll runs one extraction task per file, at most Concurrency at a time,
// and joins the non-empty results in submission order. Per-file failures are
// recorded on the task and never fail the batch.
func (e *Extractor) ExtractAll(ctx context.Context, files []*models.UploadedFile) (*models.AggregateContext, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	start := time.Now()
	log := logger.FromContext(ctx, e.logger)

	tasks := make([]models.ExtractionTask, len(files))
	sem := make(chan struct{}, e.cfg.Concurrency)
	var g errgroup.Group

	for i, f := range files {
		i, f := i, f
		tasks[i] = models.ExtractionTask{
			Index:    i,
			FileName: f.Name,
			MIMEType: f.MIMEType,
			Kind:     f.Kind(),
		}
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				e.fail(log, &tasks[i], ctx.Err())
				return nil
			}
			e.runTask(ctx, log, f, &tasks[i])
			return nil
		})
	}
	_ = g.Wait()

	agg := models.NewAggregateContext(tasks)
	if e.deps.Counter != nil {
		agg.TokenCount = e.deps.Counter.Count(agg.Text)
	}

	log.Info("Extraction batch finished",
		logger.Int("files", len(files)),
		logger.Int("succeeded", agg.Succeeded()),
		logger.Int("failed", len(agg.Failed())),
		logger.Int("tokens", agg.TokenCount),
		logger.Duration("duration", time.Since(start)),
	)
	return agg, nil
}

func (e *Extractor) runTask(ctx context.Context, log logger.Logger, f *models.UploadedFile, task *models.ExtractionTask) {
	start := time.Now()
	defer func() {
		task.Duration = time.Since(start)
		if r := recover(); r != nil {
			e.fail(log, task, fmt.Errorf("panic: %v", r))
		}
	}()

	if task.Kind == models.FileKindUnknown {
		e.fail(log, task, fmt.Errorf("%q: %w", f.MIMEType, ErrUnclassified))
		return
	}

	data, err := f.ReadAll()
	if err != nil {
		e.fail(log, task, err)
		return
	}

	var text string
	switch task.Kind {
	case models.FileKindAudio:
		text, err = e.transcribe(ctx, log, f.Name, data)
	case models.FileKindImage:
		text, err = e.ocrImage(ctx, log, f.MIMEType, data)
	case models.FileKindDocument:
		text, err = e.analyze(ctx, log, f.Name, f.MIMEType, data)
	}
	if err != nil {
		e.fail(log, task, err)
		return
	}

	task.Text = text
	task.Chars = len(text)
	log.Debug("File extracted",
		logger.String("file", f.Name),
		logger.String("kind", task.Kind.String()),
		logger.Int("chars", task.Chars),
		logger.Duration("duration", time.Since(start)),
	)
}

func (e *Extractor) fail(log logger.Logger, task *models.ExtractionTask, err error) {
	task.Text = ""
	task.Err = err
	task.Error = err.Error()
	log.Warn("File extraction failed",
		logger.Int("index", task.Index),
		logger.String("file", task.FileName),
		logger.String("mimeType", task.MIMEType),
		logger.String("kind", task.Kind.String()),
		logger.Error(err),
	)
}

// transcribe writes the audio to a temp file owned by this call and removes
// it on every return path.
func (e *Extractor) transcribe(ctx context.Context, log logger.Logger, name string, data []byte) (string, error) {
	if e.deps.Transcriber == nil {
		return "", fmt.Errorf("transcriber: %w", models.ErrNotConfigured)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".wav"
	}
	tmp, err := os.CreateTemp(e.cfg.TempDir, "audio-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Error("Failed to remove temp file", logger.String("path", path), logger.Error(err))
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to flush temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	return e.deps.Transcriber.Transcribe(ctx, path)
}

func (e *Extractor) ocrImage(ctx context.Context, log logger.Logger, mimeType string, data []byte) (string, error) {
	if e.deps.Chat == nil {
		return "", fmt.Errorf("chat: %w", models.ErrNotConfigured)
	}

	if e.deps.Images != nil {
		prepared, mt, err := e.deps.Images.Prepare(data, mimeType)
		if err != nil {
			log.Warn("Image preparation failed, sending original", logger.Error(err))
		} else {
			data, mimeType = prepared, mt
		}
	}

	resp, err := e.deps.Chat.GenerateChatResponse(ctx, llm.ChatRequest{
		SystemPrompt: prompts.OCRSystemPrompt,
		Query:        prompts.OCRQuery,
		Images:       []llm.ImageAttachment{{MIMEType: mimeType, Data: data}},
		MaxTokens:    e.cfg.ImageMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (e *Extractor) analyze(ctx context.Context, log logger.Logger, name, mimeType string, data []byte) (string, error) {
	if e.deps.Analyzer == nil {
		return "", fmt.Errorf("layout analyzer: %w", models.ErrNotConfigured)
	}

	opts := document.AnalyzeOptions{
		ModelType:    document.ModelPrebuiltLayout,
		OutputFormat: document.OutputMarkdown,
	}
	if highResolution(mimeType) {
		opts.Features = []string{document.FeatureOCRHighResolution}
	}

	in := document.DocumentInput{Name: name, MIMEType: mimeType, Bytes: data}
	if e.cfg.UploadBeforeAnalyze && e.deps.Uploader != nil {
		loc, err := e.deps.Uploader.UploadForAnalysis(ctx, name, mimeType, data)
		if err != nil {
			log.Warn("Upload before analysis failed, sending bytes", logger.String("file", name), logger.Error(err))
		} else {
			in.Location = loc
		}
	}

	res, err := e.deps.Analyzer.AnalyzeDocument(ctx, in, opts)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// highResolution reports whether the layout analyzer should run its high
// resolution OCR pass: scanned pages and image-like inputs.
func highResolution(mimeType string) bool {
	mt := models.NormalizeMIME(mimeType)
	return mt == "application/pdf" || strings.HasPrefix(mt, "image/")
}
