package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/elearning-factory/pkg/logger"
	"github.com/feichai0017/elearning-factory/pkg/queue"
)

// TaskHandler is the part of the document service the worker drives.
type TaskHandler interface {
	HandleGenerateTask(ctx context.Context, task *queue.Task) error
	CleanupTasks(ctx context.Context) (int, error)
}

type DocumentWorker struct {
	BaseWorker
	handler TaskHandler
	cfg     *Config
}

func NewDocumentWorker(cfg *Config, handler TaskHandler, log logger.Logger) (*DocumentWorker, error) {
	if cfg.Queues == nil {
		cfg.Queues = queue.Queues
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	log = log.Named("worker")

	server := asynq.NewServer(
		cfg.redisOpt(),
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error("Task failed",
					logger.String("type", task.Type()),
					logger.Error(err),
				)
			}),
			ShutdownTimeout: 30 * time.Second,
		},
	)

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log,
		},
		handler: handler,
		cfg:     cfg,
	}

	if cfg.CleanupSchedule != "" {
		w.scheduler = asynq.NewScheduler(cfg.redisOpt(), &asynq.SchedulerOpts{
			Location: time.UTC,
		})
		entryID, err := w.scheduler.Register(
			cfg.CleanupSchedule,
			asynq.NewTask(queue.TaskTypeStorageCleanup, nil),
			asynq.Queue(queue.QueueLow),
			asynq.MaxRetry(0),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to register cleanup schedule %q: %w", cfg.CleanupSchedule, err)
		}
		log.Info("Storage cleanup scheduled",
			logger.String("schedule", cfg.CleanupSchedule),
			logger.String("entryId", entryID),
		)
	}

	w.registerHandlers()
	return w, nil
}

func (w *DocumentWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeDocumentGenerate, w.handleDocumentGenerate)
	w.mux.HandleFunc(queue.TaskTypeStorageCleanup, w.handleStorageCleanup)
}

func (w *DocumentWorker) handleDocumentGenerate(ctx context.Context, t *asynq.Task) error {
	task, err := queue.DecodeTask(t.Payload())
	if err != nil {
		w.logger.Error("Failed to decode task",
			logger.Error(err),
			logger.Int("payloadBytes", len(t.Payload())),
		)
		// a malformed payload will not get better on retry
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("Processing generation task",
		logger.String("taskId", task.ID),
		logger.Any("metadata", task.Metadata),
	)

	w.writeResult(t, map[string]any{"status": "running", "progress": 0})

	if err := w.handler.HandleGenerateTask(ctx, task); err != nil {
		w.writeResult(t, map[string]any{"status": "failed", "error": err.Error()})
		return err
	}

	w.writeResult(t, map[string]any{"status": "completed", "progress": 1})
	return nil
}

func (w *DocumentWorker) handleStorageCleanup(ctx context.Context, t *asynq.Task) error {
	n, err := w.handler.CleanupTasks(ctx)
	if err != nil {
		return err
	}
	w.writeResult(t, map[string]any{"deleted": n})
	return nil
}

// writeResult records progress on the asynq task. Tasks built outside a
// running server have no result writer.
func (w *DocumentWorker) writeResult(t *asynq.Task, v map[string]any) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if _, err := rw.Write(data); err != nil {
		w.logger.Error("Failed to write task result", logger.Error(err))
	}
}

// Start runs the server and, when configured, the cleanup scheduler. Both
// stop when ctx is cancelled.
func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	w.logger.Info("Worker started",
		logger.Int("concurrency", w.cfg.Concurrency),
		logger.Any("queues", w.cfg.Queues),
	)

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}
