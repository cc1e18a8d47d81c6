package document

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/elearning-factory/config"
	"github.com/feichai0017/elearning-factory/internal/agent"
	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/internal/service/pipeline"
	"github.com/feichai0017/elearning-factory/internal/session"
	"github.com/feichai0017/elearning-factory/pkg/converters"
	"github.com/feichai0017/elearning-factory/pkg/logger"
	"github.com/feichai0017/elearning-factory/pkg/queue"
	"github.com/feichai0017/elearning-factory/pkg/storage"
)

type DocumentService struct {
	extractor *pipeline.Extractor
	sessions  *session.Manager
	queue     queue.Queue
	storage   storage.Storage
	logger    logger.Logger
	config    *ServiceConfig
	now       func() time.Time
}

type ServiceConfig struct {
	QueuePriority   int
	RetentionPeriod time.Duration
	PresignTTL      time.Duration
	// SharedSessions is set when the session store is visible to the worker
	// process. Jobs are refused otherwise.
	SharedSessions bool
}

// NewService wires the service. q and store may be nil; the operations that
// need them then fail with ErrJobsDisabled or storage.ErrNotConfigured.
func NewService(
	extractor *pipeline.Extractor,
	sessions *session.Manager,
	q queue.Queue,
	store storage.Storage,
	log logger.Logger,
	cfg *ServiceConfig,
) *DocumentService {
	if cfg == nil {
		cfg = &ServiceConfig{
			QueuePriority:   2,
			RetentionPeriod: 7 * 24 * time.Hour,
			PresignTTL:      15 * time.Minute,
		}
	}

	return &DocumentService{
		extractor: extractor,
		sessions:  sessions,
		queue:     q,
		storage:   store,
		logger:    log.Named("document"),
		config:    cfg,
		now:       time.Now,
	}
}

// GetService assembles the service from the application config and the
// already built capabilities. The returned closer stops the session sweeper
// and releases the queue connections.
func GetService(app *config.AppConfig, caps *agent.Capabilities, log logger.Logger) (*DocumentService, io.Closer, error) {
	redisCfg := config.GetRedisConfig()
	q, err := queue.NewAsynqQueue(&queue.QueueConfig{
		RedisAddr:      redisCfg.Addr,
		RedisPassword:  redisCfg.Password,
		RedisDB:        redisCfg.DB,
		ProcessTimeout: app.Queue.ProcessTimeout,
		StatusTTL:      app.Queue.ResultTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	closer := &serviceCloser{queue: q}

	var store session.Store
	switch app.Session.Backend {
	case "redis":
		store = session.NewRedisStore(q.Redis(), app.Session.TTL)
	default:
		mem := session.NewMemoryStore(app.Session.TTL)
		ctx, cancel := context.WithCancel(context.Background())
		closer.stopSweeper = cancel
		go mem.Run(ctx, app.Session.SweepInterval)
		store = mem
	}

	extractor := pipeline.NewExtractor(pipeline.Config{
		Concurrency:         app.Pipeline.Concurrency,
		TempDir:             app.Pipeline.TempDir,
		UploadBeforeAnalyze: app.Pipeline.UploadBeforeAnalyze,
		ImageMaxTokens:      app.Pipeline.ImageMaxTokens,
		DefaultMinTokens:    app.Pipeline.DefaultMinTokens,
		DefaultMaxTokens:    app.Pipeline.DefaultMaxTokens,
	}, caps.Dependencies(), log)

	svc := NewService(
		extractor,
		session.NewManager(store, app.Session.MaxRuns, log),
		q,
		caps.Storage,
		log,
		&ServiceConfig{
			QueuePriority:   2,
			RetentionPeriod: app.Storage.Retention,
			PresignTTL:      config.GetS3Config().PresignTTL,
			SharedSessions:  app.Session.Backend == "redis",
		},
	)
	return svc, closer, nil
}

type serviceCloser struct {
	queue       io.Closer
	stopSweeper context.CancelFunc
}

func (c *serviceCloser) Close() error {
	if c.stopSweeper != nil {
		c.stopSweeper()
	}
	return c.queue.Close()
}

func (s *DocumentService) CreateSession(ctx context.Context) (*models.Session, error) {
	return s.sessions.Create(ctx)
}

func (s *DocumentService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

func (s *DocumentService) DeleteSession(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}

func (s *DocumentService) Extract(ctx context.Context, sessionID string, files []*models.UploadedFile) (*models.AggregateContext, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.extractor.ExtractAll(logger.WithSessionID(ctx, sessionID), files)
}

// Generate extracts files and runs one generation over the result. The
// session is saved only when the generation succeeds.
func (s *DocumentService) Generate(
	ctx context.Context,
	sessionID string,
	files []*models.UploadedFile,
	opts GenerateOptions,
	onDelta func(string),
) (*models.GenerationResult, error) {
	req, err := opts.summarizeRequest(onDelta)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithSessionID(ctx, sessionID)
	log := logger.FromContext(ctx, s.logger)

	release, err := s.sessions.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.CheckRunLimit(sess); err != nil {
		return nil, err
	}

	agg, err := s.extractor.ExtractAll(ctx, files)
	if err != nil {
		return nil, err
	}
	if failed := agg.Failed(); len(failed) > 0 {
		log.Warn("Some files could not be extracted",
			logger.Int("failed", len(failed)),
			logger.Int("total", len(agg.Tasks)),
		)
	}

	out, err := s.extractor.Summarize(ctx, sess, agg, req)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return &models.GenerationResult{
		SessionID:   sessionID,
		Content:     out.Content,
		Usage:       out.Usage,
		TokenCount:  agg.TokenCount,
		Files:       agg.Tasks,
		CompletedAt: s.now(),
	}, nil
}

func (s *DocumentService) Refine(ctx context.Context, sessionID, feedback string, onDelta func(string)) (*models.GeneratedText, error) {
	ctx = logger.WithSessionID(ctx, sessionID)

	release, err := s.sessions.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.CheckRunLimit(sess); err != nil {
		return nil, err
	}

	out, err := s.extractor.Refine(ctx, sess, feedback, onDelta)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return out, nil
}

// Export renders the session. With store set the document is also written to
// blob storage and a presigned URL is returned.
func (s *DocumentService) Export(ctx context.Context, sessionID string, format converters.Format, store bool) (*ExportResult, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	data, err := converters.Export(sess, format, now)
	if err != nil {
		return nil, err
	}

	res := &ExportResult{
		Format:      format,
		FileName:    "elearning-" + now.Format("20060102-150405") + format.Extension(),
		ContentType: format.ContentType(),
		Data:        data,
	}
	if !store {
		return res, nil
	}
	if s.storage == nil {
		return nil, storage.ErrNotConfigured
	}

	key := storage.NewKey("exports/"+sessionID, res.FileName, now)
	if _, err := s.storage.Store(ctx, bytes.NewReader(data), key); err != nil {
		return nil, fmt.Errorf("failed to store export: %w", err)
	}
	url, err := s.storage.URL(ctx, key, s.config.PresignTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign export: %w", err)
	}
	res.Key = key
	res.URL = url
	res.ExpiresAt = now.Add(s.config.PresignTTL)

	s.logger.Info("Export stored",
		logger.String("session_id", sessionID),
		logger.String("format", string(format)),
		logger.String("key", key),
	)
	return res, nil
}

func (s *DocumentService) jobsEnabled() error {
	switch {
	case s.queue == nil:
		return fmt.Errorf("%w: no queue", ErrJobsDisabled)
	case s.storage == nil:
		return fmt.Errorf("%w: %w", ErrJobsDisabled, storage.ErrNotConfigured)
	case !s.config.SharedSessions:
		return fmt.Errorf("%w: sessions are not shared with the worker", ErrJobsDisabled)
	}
	return nil
}

// EnqueueGenerate parks the uploads in blob storage and queues a generation
// job for the worker.
func (s *DocumentService) EnqueueGenerate(
	ctx context.Context,
	sessionID string,
	files []*models.UploadedFile,
	opts GenerateOptions,
) (*models.ProcessingTask, error) {
	if err := s.jobsEnabled(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, pipeline.ErrNoFiles
	}
	if _, err := opts.summarizeRequest(nil); err != nil {
		return nil, err
	}
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	taskID := uuid.New().String()
	stored, err := s.storeUploads(ctx, taskID, files)
	if err != nil {
		s.logger.Error("Failed to store uploads",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
		return nil, err
	}

	now := s.now()
	task := &models.ProcessingTask{
		ID:        taskID,
		SessionID: sessionID,
		Status:    models.StatusPending,
		Type:      queue.TaskTypeDocumentGenerate,
		Priority:  s.config.QueuePriority,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: map[string]string{
			"sessionId": sessionID,
			"files":     strconv.Itoa(len(stored)),
			"operation": opts.Operation,
		},
	}

	queueTask, err := queue.NewTask(taskID, task.Type, task.Priority, GeneratePayload{
		SessionID: sessionID,
		Files:     stored,
		Options:   opts,
	}, task.Metadata)
	if err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, queueTask); err != nil {
		s.logger.Error("Failed to enqueue task",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	if err := s.queue.SaveFinalStatus(ctx, &queue.TaskStatus{
		TaskID:    taskID,
		SessionID: sessionID,
		Status:    string(models.StatusPending),
		StartedAt: now,
	}); err != nil {
		s.logger.Error("Failed to save initial status",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
	}

	s.logger.Info("Generation task created",
		logger.String("taskId", taskID),
		logger.String("session_id", sessionID),
		logger.Int("files", len(stored)),
	)
	return task, nil
}

func (s *DocumentService) storeUploads(ctx context.Context, taskID string, files []*models.UploadedFile) ([]models.StoredFile, error) {
	stored := make([]models.StoredFile, len(files))
	now := s.now()

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			data, err := f.ReadAll()
			if err != nil {
				return err
			}
			key := storage.NewKey("jobs/"+taskID, f.Name, now)
			if _, err := s.storage.Store(ctx, bytes.NewReader(data), key); err != nil {
				return fmt.Errorf("failed to store file %s: %w", f.Name, err)
			}
			stored[i] = models.StoredFile{
				Name:     f.Name,
				MIMEType: f.MIMEType,
				Size:     int64(len(data)),
				Key:      key,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stored, nil
}

// HandleGenerateTask runs a queued generation. The outcome is always recorded
// as the task's final status.
func (s *DocumentService) HandleGenerateTask(ctx context.Context, task *queue.Task) error {
	if task == nil || len(task.Payload) == 0 {
		return fmt.Errorf("invalid task: missing required data")
	}

	var payload GeneratePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	s.logger.Info("Processing generation task",
		logger.String("taskId", task.ID),
		logger.String("session_id", payload.SessionID),
		logger.Int("files", len(payload.Files)),
	)

	started := s.now()
	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:    task.ID,
		SessionID: payload.SessionID,
		Status:    string(models.StatusRunning),
		StartedAt: started,
	})

	result, err := s.runGenerateTask(ctx, task.ID, payload)
	if err != nil {
		s.logger.Error("Generation task failed",
			logger.String("taskId", task.ID),
			logger.Error(err),
		)
		s.saveStatus(ctx, &queue.TaskStatus{
			TaskID:     task.ID,
			SessionID:  payload.SessionID,
			Status:     string(models.StatusFailed),
			Error:      err.Error(),
			StartedAt:  started,
			FinishedAt: s.now(),
		})
		return err
	}

	for _, f := range payload.Files {
		if err := s.storage.Delete(ctx, f.Key); err != nil {
			s.logger.Warn("Failed to delete job upload",
				logger.String("key", f.Key),
				logger.Error(err),
			)
		}
	}

	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:     task.ID,
		SessionID:  payload.SessionID,
		Status:     string(models.StatusCompleted),
		Progress:   1.0,
		StartedAt:  started,
		FinishedAt: result.CompletedAt,
	})

	s.logger.Info("Generation task completed",
		logger.String("taskId", task.ID),
		logger.Int("contextTokens", result.TokenCount),
	)
	return nil
}

func (s *DocumentService) runGenerateTask(ctx context.Context, taskID string, payload GeneratePayload) (*models.GenerationResult, error) {
	if s.storage == nil {
		return nil, storage.ErrNotConfigured
	}

	files := make([]*models.UploadedFile, 0, len(payload.Files))
	for _, sf := range payload.Files {
		sf := sf
		files = append(files, models.NewUploadedFile(sf.Name, sf.MIMEType, sf.Size, func() (io.ReadCloser, error) {
			return s.storage.Get(ctx, sf.Key)
		}))
	}

	result, err := s.Generate(ctx, payload.SessionID, files, payload.Options, nil)
	if err != nil {
		return nil, err
	}
	result.TaskID = taskID

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := s.queue.SaveResult(ctx, taskID, data); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *DocumentService) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if err := s.queue.SaveFinalStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save task status",
			logger.String("taskId", status.TaskID),
			logger.String("status", status.Status),
			logger.Error(err),
		)
	}
}

func (s *DocumentService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	if s.queue == nil {
		return nil, ErrJobsDisabled
	}
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	var taskStatus models.ProcessingStatus
	switch status.Status {
	case "pending", "scheduled", "retry":
		taskStatus = models.StatusPending
	case "running", "active":
		taskStatus = models.StatusRunning
	case "completed":
		taskStatus = models.StatusCompleted
	case "failed", "archived":
		taskStatus = models.StatusFailed
	case "cancelled":
		taskStatus = models.StatusCancelled
	default:
		taskStatus = models.StatusPending
	}

	return &models.ProcessingTask{
		ID:        status.TaskID,
		SessionID: status.SessionID,
		Status:    taskStatus,
		Type:      queue.TaskTypeDocumentGenerate,
		Priority:  s.config.QueuePriority,
		Progress:  status.Progress,
		Error:     status.Error,
		Metadata:  make(map[string]string),
		CreatedAt: status.StartedAt,
		UpdatedAt: status.FinishedAt,
	}, nil
}

func (s *DocumentService) GetResult(ctx context.Context, taskID string) (*models.GenerationResult, error) {
	status, err := s.GetProcessingStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if status.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotCompleted, status.Status)
	}

	data, err := s.queue.GetResult(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var result models.GenerationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

func (s *DocumentService) CancelTask(ctx context.Context, taskID string) error {
	if s.queue == nil {
		return ErrJobsDisabled
	}
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}

	s.logger.Info("Task cancelled",
		logger.String("taskId", taskID),
	)
	return nil
}

// CleanupTasks deletes stored uploads and exports older than the retention
// period.
func (s *DocumentService) CleanupTasks(ctx context.Context) (int, error) {
	if s.storage == nil {
		return 0, nil
	}
	threshold := s.now().Add(-s.config.RetentionPeriod)

	n, err := s.storage.CleanupBefore(ctx, threshold)
	if err != nil {
		return n, fmt.Errorf("failed to cleanup storage: %w", err)
	}

	s.logger.Info("Completed storage cleanup",
		logger.Time("threshold", threshold),
		logger.Int("deleted", n),
	)
	return n, nil
}
