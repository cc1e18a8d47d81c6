// Package queue enqueues background jobs on asynq and keeps their status and
// results in Redis.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	TaskTypeDocumentGenerate = "document:generate"
	TaskTypeStorageCleanup   = "storage:cleanup"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues lists the asynq queues with their worker weights.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

var queueNames = []string{QueueCritical, QueueDefault, QueueLow}

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskNotCancellable = errors.New("task already started")
	ErrResultNotFound     = errors.New("task result not found")
)

type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	// CancelTask removes a job that has not started yet.
	CancelTask(ctx context.Context, taskID string) error
	SaveFinalStatus(ctx context.Context, status *TaskStatus) error
	SaveResult(ctx context.Context, taskID string, data []byte) error
	GetResult(ctx context.Context, taskID string) ([]byte, error)
}

type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NewTask builds a task with payload encoded as JSON.
func NewTask(id, taskType string, priority int, payload any, metadata map[string]string) (*Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &Task{
		ID:        id,
		Type:      taskType,
		Priority:  priority,
		Payload:   data,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}, nil
}

// DecodeTask reads a Task from an asynq payload.
func DecodeTask(raw []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if task.ID == "" || len(task.Payload) == 0 {
		return nil, errors.New("invalid task data: missing required fields")
	}
	return &task, nil
}

type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	SessionID  string    `json:"sessionId,omitempty"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
	// StatusTTL bounds how long statuses and results stay readable.
	StatusTTL time.Duration
}

func (c *QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
	Close() error
}

type AsynqQueue struct {
	client    enqueuer
	inspector inspector
	redis     redis.UniversalClient
	cfg       QueueConfig
}

// NewAsynqQueue connects the asynq client, inspector and a Redis client for
// statuses to the same Redis.
func NewAsynqQueue(cfg *QueueConfig) (*AsynqQueue, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis address is required")
	}
	redisOpt := cfg.RedisOpt()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return newAsynqQueue(asynq.NewClient(redisOpt), asynq.NewInspector(redisOpt), redisClient, *cfg), nil
}

func newAsynqQueue(client enqueuer, insp inspector, rdb redis.UniversalClient, cfg QueueConfig) *AsynqQueue {
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 30 * time.Minute
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}
	return &AsynqQueue{
		client:    client,
		inspector: insp,
		redis:     rdb,
		cfg:       cfg,
	}
}

// Redis exposes the status client so other Redis-backed stores can share it.
func (q *AsynqQueue) Redis() redis.UniversalClient {
	return q.redis
}

func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Timeout(q.cfg.ProcessTimeout),
		asynq.TaskID(task.ID),
		asynq.Queue(queueFor(task.Priority)),
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(task.Type, payload), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID

	return nil
}

func queueFor(priority int) string {
	switch priority {
	case 1:
		return QueueCritical
	case 2:
		return QueueDefault
	default:
		return QueueLow
	}
}

// GetTaskStatus prefers the status recorded in Redis and falls back to the
// asynq inspector.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	if err == nil {
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	}

	info, _, err := q.findTask(taskID)
	if err != nil {
		return nil, err
	}
	return convertAsynqStatus(info), nil
}

func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	info, queueName, err := q.findTask(taskID)
	if err != nil {
		return err
	}
	switch info.State {
	case asynq.TaskStateActive, asynq.TaskStateCompleted, asynq.TaskStateArchived:
		return fmt.Errorf("%w: %s", ErrTaskNotCancellable, info.State)
	}

	if err := q.inspector.DeleteTask(queueName, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}

	status := &TaskStatus{TaskID: taskID, Status: "cancelled", FinishedAt: time.Now()}
	if prev, err := q.GetTaskStatus(ctx, taskID); err == nil {
		status.SessionID = prev.SessionID
		status.StartedAt = prev.StartedAt
	}
	return q.SaveFinalStatus(ctx, status)
}

func (q *AsynqQueue) findTask(taskID string) (*asynq.TaskInfo, string, error) {
	for _, name := range queueNames {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err == nil {
			return info, name, nil
		}
		if !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, "", fmt.Errorf("failed to inspect task: %w", err)
		}
	}
	return nil, "", ErrTaskNotFound
}

func (q *AsynqQueue) SaveFinalStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, q.cfg.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}

	return nil
}

func (q *AsynqQueue) SaveResult(ctx context.Context, taskID string, data []byte) error {
	if err := q.redis.Set(ctx, resultKey(taskID), data, q.cfg.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

func (q *AsynqQueue) GetResult(ctx context.Context, taskID string) ([]byte, error) {
	data, err := q.redis.Get(ctx, resultKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return data, nil
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

func statusKey(taskID string) string { return "task_status:" + taskID }

func resultKey(taskID string) string { return "result:" + taskID }

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		StartedAt: info.NextProcessAt,
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
		status.Status = "pending"
	case asynq.TaskStateActive:
		status.Status = "running"
		status.Progress = 0.5
	case asynq.TaskStateRetry:
		status.Status = "running"
		status.Error = info.LastErr
	case asynq.TaskStateCompleted:
		status.Status = "completed"
		status.Progress = 1.0
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateArchived:
		status.Status = "failed"
		status.Error = info.LastErr
	}

	return status
}
