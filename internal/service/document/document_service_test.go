package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentdoc "github.com/feichai0017/elearning-factory/internal/agent/document"
	"github.com/feichai0017/elearning-factory/internal/agent/llm"
	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/internal/service/pipeline"
	"github.com/feichai0017/elearning-factory/internal/session"
	"github.com/feichai0017/elearning-factory/pkg/converters"
	"github.com/feichai0017/elearning-factory/pkg/logger"
	"github.com/feichai0017/elearning-factory/pkg/queue"
	"github.com/feichai0017/elearning-factory/pkg/storage"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	cleaned time.Time
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Store(ctx context.Context, r io.Reader, key string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return key, nil
}

func (m *memStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memStorage) URL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://blobs.example.com/" + key + "?ttl=" + ttl.String(), nil
}

func (m *memStorage) CleanupBefore(ctx context.Context, threshold time.Time) (int, error) {
	m.cleaned = threshold
	return 3, nil
}

func (m *memStorage) Bucket() string { return "uploads" }
func (m *memStorage) Type() string   { return "minio" }

type fakeQueue struct {
	mu       sync.Mutex
	tasks    []*queue.Task
	statuses map[string]*queue.TaskStatus
	results  map[string][]byte
	history  []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{statuses: map[string]*queue.TaskStatus{}, results: map[string][]byte{}}
}

func (q *fakeQueue) Enqueue(ctx context.Context, task *queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) GetTaskStatus(ctx context.Context, taskID string) (*queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.statuses[taskID]
	if !ok {
		return nil, queue.ErrTaskNotFound
	}
	cp := *st
	return &cp, nil
}

func (q *fakeQueue) CancelTask(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.statuses[taskID]
	if !ok {
		return queue.ErrTaskNotFound
	}
	if st.Status != "pending" {
		return queue.ErrTaskNotCancellable
	}
	st.Status = "cancelled"
	return nil
}

func (q *fakeQueue) SaveFinalStatus(ctx context.Context, status *queue.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *status
	q.statuses[status.TaskID] = &cp
	q.history = append(q.history, status.Status)
	return nil
}

func (q *fakeQueue) SaveResult(ctx context.Context, taskID string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results[taskID] = data
	return nil
}

func (q *fakeQueue) GetResult(ctx context.Context, taskID string) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	data, ok := q.results[taskID]
	if !ok {
		return nil, queue.ErrResultNotFound
	}
	return data, nil
}

type textAnalyzer struct{}

func (textAnalyzer) AnalyzeDocument(ctx context.Context, in agentdoc.DocumentInput, opts agentdoc.AnalyzeOptions) (*agentdoc.AnalyzeResult, error) {
	if strings.HasPrefix(string(in.Bytes), "broken") {
		return nil, errors.New("malformed input")
	}
	return &agentdoc.AnalyzeResult{Content: "text of " + in.Name}, nil
}

type scriptedChat struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (c *scriptedChat) GenerateChatResponse(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	reply := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return &llm.ChatResponse{Content: reply, Usage: models.TokenUsage{TotalTokens: 10}}, nil
}

type fixture struct {
	svc   *DocumentService
	chat  *scriptedChat
	store *memStorage
	queue *fakeQueue
}

func newFixture(t *testing.T, cfg *ServiceConfig, maxRuns int) *fixture {
	t.Helper()
	log := logger.NewTestLogger()
	chat := &scriptedChat{replies: []string{"# Guide\n\nStep one."}}
	extractor := pipeline.NewExtractor(pipeline.Config{}, pipeline.Dependencies{
		Analyzer: textAnalyzer{},
		Chat:     chat,
	}, log)

	f := &fixture{chat: chat, store: newMemStorage(), queue: newFakeQueue()}
	if cfg == nil {
		cfg = &ServiceConfig{
			QueuePriority:   2,
			RetentionPeriod: 24 * time.Hour,
			PresignTTL:      10 * time.Minute,
			SharedSessions:  true,
		}
	}
	f.svc = NewService(
		extractor,
		session.NewManager(session.NewMemoryStore(time.Hour), maxRuns, log),
		f.queue,
		f.store,
		log,
		cfg,
	)
	f.svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func pdfs(names ...string) []*models.UploadedFile {
	files := make([]*models.UploadedFile, 0, len(names))
	for _, n := range names {
		body := "%PDF"
		if strings.HasPrefix(n, "broken") {
			body = "broken"
		}
		files = append(files, models.FileFromBytes(n, "application/pdf", []byte(body)))
	}
	return files
}

func TestGenerateSavesSession(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	res, err := f.svc.Generate(ctx, sess.ID, pdfs("a.pdf", "broken.pdf", "c.pdf"), GenerateOptions{Topic: "Setup"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "# Guide\n\nStep one.", res.Content)
	assert.Equal(t, sess.ID, res.SessionID)
	require.Len(t, res.Files, 3)
	assert.Equal(t, "malformed input", res.Files[1].Error)

	saved, err := f.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, saved.History, 2)
	assert.Contains(t, saved.History[0].Content, "text of a.pdf\n\ntext of c.pdf")
	assert.Equal(t, res.Content, saved.LastResponse)
	assert.Equal(t, 1, saved.Runs)
}

func TestGenerateFailureKeepsSession(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	f.chat.err = errors.New("upstream down")
	_, err = f.svc.Generate(ctx, sess.ID, pdfs("a.pdf"), GenerateOptions{}, nil)
	assert.ErrorIs(t, err, pipeline.ErrGeneration)

	saved, err := f.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, saved.History)
	assert.Zero(t, saved.Runs)
}

func TestGenerateAllFilesFailed(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = f.svc.Generate(ctx, sess.ID, pdfs("broken-1.pdf", "broken-2.pdf"), GenerateOptions{}, nil)
	assert.ErrorIs(t, err, pipeline.ErrEmptyContext)
	assert.Zero(t, f.chat.calls)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = f.svc.Generate(ctx, sess.ID, pdfs("a.pdf"), GenerateOptions{Operation: "poetry"}, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = f.svc.Generate(ctx, "missing", pdfs("a.pdf"), GenerateOptions{}, nil)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = f.svc.Generate(ctx, sess.ID, nil, GenerateOptions{}, nil)
	assert.ErrorIs(t, err, pipeline.ErrNoFiles)
}

func TestGenerateBusySession(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	release, err := f.svc.sessions.Acquire(sess.ID)
	require.NoError(t, err)
	_, err = f.svc.Generate(ctx, sess.ID, pdfs("a.pdf"), GenerateOptions{}, nil)
	assert.ErrorIs(t, err, session.ErrSessionBusy)
	_, err = f.svc.Refine(ctx, sess.ID, "shorter", nil)
	assert.ErrorIs(t, err, session.ErrSessionBusy)
	release()

	_, err = f.svc.Generate(ctx, sess.ID, pdfs("a.pdf"), GenerateOptions{}, nil)
	assert.NoError(t, err)
}

func TestRunLimit(t *testing.T) {
	f := newFixture(t, nil, 2)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = f.svc.Generate(ctx, sess.ID, pdfs("a.pdf"), GenerateOptions{}, nil)
	require.NoError(t, err)
	_, err = f.svc.Refine(ctx, sess.ID, "add a troubleshooting section", nil)
	require.NoError(t, err)
	_, err = f.svc.Refine(ctx, sess.ID, "one more", nil)
	assert.ErrorIs(t, err, session.ErrRunLimitReached)

	saved, err := f.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, saved.History, 4)
}

func TestExport(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = f.svc.Export(ctx, sess.ID, converters.FormatDOCX, false)
	assert.ErrorIs(t, err, converters.ErrEmptyContent)

	_, err = f.svc.Generate(ctx, sess.ID, pdfs("a.pdf"), GenerateOptions{}, nil)
	require.NoError(t, err)

	res, err := f.svc.Export(ctx, sess.ID, converters.FormatJSON, false)
	require.NoError(t, err)
	assert.Equal(t, "elearning-20240501-120000.json", res.FileName)
	assert.Empty(t, res.URL)
	assert.Contains(t, string(res.Data), "Step one.")

	res, err = f.svc.Export(ctx, sess.ID, converters.FormatPDF, true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Key, "exports/"+sess.ID+"/2024/05/01/"))
	assert.Contains(t, res.URL, res.Key)
	assert.Equal(t, f.svc.now().Add(10*time.Minute), res.ExpiresAt)
	assert.Contains(t, f.store.objects, res.Key)
}

func TestExportStoreWithoutStorage(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.svc.storage = nil
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = f.svc.Generate(ctx, sess.ID, pdfs("a.pdf"), GenerateOptions{}, nil)
	require.NoError(t, err)

	_, err = f.svc.Export(ctx, sess.ID, converters.FormatPDF, true)
	assert.ErrorIs(t, err, storage.ErrNotConfigured)
}

func TestEnqueueAndHandleGenerateTask(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	task, err := f.svc.EnqueueGenerate(ctx, sess.ID, pdfs("a.pdf", "b.pdf"), GenerateOptions{Operation: "summarize"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, queue.TaskTypeDocumentGenerate, task.Type)
	require.Len(t, f.queue.tasks, 1)
	assert.Len(t, f.store.objects, 2)

	var payload GeneratePayload
	require.NoError(t, json.Unmarshal(f.queue.tasks[0].Payload, &payload))
	assert.Equal(t, sess.ID, payload.SessionID)
	require.Len(t, payload.Files, 2)
	assert.Equal(t, "a.pdf", payload.Files[0].Name)
	assert.Equal(t, "b.pdf", payload.Files[1].Name)

	status, err := f.svc.GetProcessingStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status.Status)

	_, err = f.svc.GetResult(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTaskNotCompleted)

	require.NoError(t, f.svc.HandleGenerateTask(ctx, f.queue.tasks[0]))
	assert.Equal(t, []string{"pending", "running", "completed"}, f.queue.history)
	assert.Empty(t, f.store.objects)

	result, err := f.svc.GetResult(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, result.TaskID)
	assert.Equal(t, "# Guide\n\nStep one.", result.Content)
	require.Len(t, result.Files, 2)

	saved, err := f.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, saved.History, 2)
	assert.Equal(t, "summarization", saved.Operation)
}

func TestHandleGenerateTaskRecordsFailure(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	task, err := f.svc.EnqueueGenerate(ctx, sess.ID, pdfs("a.pdf"), GenerateOptions{})
	require.NoError(t, err)

	f.chat.err = errors.New("quota exceeded")
	err = f.svc.HandleGenerateTask(ctx, f.queue.tasks[0])
	assert.ErrorIs(t, err, pipeline.ErrGeneration)

	status, err := f.svc.GetProcessingStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "quota exceeded")
	// uploads stay for a retry or the cleanup job
	assert.Len(t, f.store.objects, 1)
}

func TestEnqueueGenerateRequiresJobs(t *testing.T) {
	f := newFixture(t, &ServiceConfig{SharedSessions: false}, 0)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = f.svc.EnqueueGenerate(ctx, sess.ID, pdfs("a.pdf"), GenerateOptions{})
	assert.ErrorIs(t, err, ErrJobsDisabled)
	assert.Empty(t, f.queue.tasks)
}

func TestCancelTask(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	task, err := f.svc.EnqueueGenerate(ctx, sess.ID, pdfs("a.pdf"), GenerateOptions{})
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelTask(ctx, task.ID))

	status, err := f.svc.GetProcessingStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, status.Status)

	err = f.svc.CancelTask(ctx, "unknown")
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
}

func TestCleanupTasks(t *testing.T) {
	f := newFixture(t, nil, 0)
	n, err := f.svc.CleanupTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, f.svc.now().Add(-24*time.Hour), f.store.cleaned)

	f.svc.storage = nil
	n, err = f.svc.CleanupTasks(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
