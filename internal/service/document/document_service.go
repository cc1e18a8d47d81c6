package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/internal/prompts"
	"github.com/feichai0017/elearning-factory/internal/service/pipeline"
	"github.com/feichai0017/elearning-factory/pkg/converters"
	"github.com/feichai0017/elearning-factory/pkg/queue"
)

var (
	ErrTaskNotCompleted = errors.New("task is not completed")
	ErrInvalidOptions   = errors.New("invalid generation options")
	// ErrJobsDisabled means background jobs cannot run: there is no queue,
	// no blob storage, or sessions are not shared with the worker.
	ErrJobsDisabled = errors.New("background jobs are not available")
)

type DocumentProcessor interface {
	CreateSession(ctx context.Context) (*models.Session, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Extract runs the extraction fan-out without touching the session.
	Extract(ctx context.Context, sessionID string, files []*models.UploadedFile) (*models.AggregateContext, error)
	Generate(ctx context.Context, sessionID string, files []*models.UploadedFile, opts GenerateOptions, onDelta func(string)) (*models.GenerationResult, error)
	Refine(ctx context.Context, sessionID, feedback string, onDelta func(string)) (*models.GeneratedText, error)
	Export(ctx context.Context, sessionID string, format converters.Format, store bool) (*ExportResult, error)

	EnqueueGenerate(ctx context.Context, sessionID string, files []*models.UploadedFile, opts GenerateOptions) (*models.ProcessingTask, error)
	HandleGenerateTask(ctx context.Context, task *queue.Task) error
	GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	GetResult(ctx context.Context, taskID string) (*models.GenerationResult, error)
	CancelTask(ctx context.Context, taskID string) error
	CleanupTasks(ctx context.Context) (int, error)
}

// GenerateOptions are the user choices of one generation run. They travel in
// job payloads, so they carry no callbacks.
type GenerateOptions struct {
	Operation      string `json:"operation"`
	Instruction    string `json:"instruction,omitempty"`
	Topic          string `json:"topic,omitempty"`
	MinTokens      int    `json:"minTokens,omitempty"`
	MaxTokens      int    `json:"maxTokens,omitempty"`
	DocumentType   string `json:"documentType,omitempty"`
	FocusAreas     string `json:"focusAreas,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
	Template       string `json:"template,omitempty"`
}

func (o GenerateOptions) summarizeRequest(onDelta func(string)) (pipeline.SummarizeRequest, error) {
	op, err := prompts.ParseOperation(o.Operation)
	if err != nil {
		return pipeline.SummarizeRequest{}, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	return pipeline.SummarizeRequest{
		Operation:      op,
		Instruction:    o.Instruction,
		Topic:          o.Topic,
		MinTokens:      o.MinTokens,
		MaxTokens:      o.MaxTokens,
		DocumentType:   o.DocumentType,
		FocusAreas:     o.FocusAreas,
		TargetLanguage: o.TargetLanguage,
		Template:       o.Template,
		OnDelta:        onDelta,
	}, nil
}

// GeneratePayload is the body of a document:generate job.
type GeneratePayload struct {
	SessionID string              `json:"sessionId"`
	Files     []models.StoredFile `json:"files"`
	Options   GenerateOptions     `json:"options"`
}

type ExportResult struct {
	Format      converters.Format `json:"format"`
	FileName    string            `json:"fileName"`
	ContentType string            `json:"contentType"`
	Data        []byte            `json:"-"`
	Key         string            `json:"key,omitempty"`
	URL         string            `json:"url,omitempty"`
	ExpiresAt   time.Time         `json:"expiresAt,omitempty"`
}
