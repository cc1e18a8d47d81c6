// Package session owns per-user conversation state. Every operation receives
// its session explicitly; nothing is shared between sessions.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

type Manager struct {
	store   Store
	maxRuns int
	logger  logger.Logger
	now     func() time.Time

	mu   sync.Mutex
	busy map[string]struct{}
}

// NewManager wraps store. maxRuns <= 0 disables the run limit.
func NewManager(store Store, maxRuns int, log logger.Logger) *Manager {
	return &Manager{
		store:   store,
		maxRuns: maxRuns,
		logger:  log.Named("session"),
		now:     time.Now,
		busy:    make(map[string]struct{}),
	}
}

func (m *Manager) Create(ctx context.Context) (*models.Session, error) {
	sess := models.NewSession(uuid.NewString(), m.now())
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	m.logger.Info("Session created", logger.String("session_id", sess.ID))
	return sess, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*models.Session, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) Save(ctx context.Context, sess *models.Session) error {
	return m.store.Save(ctx, sess)
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("Session deleted", logger.String("session_id", id))
	return nil
}

// Acquire marks the session busy until release is called. A second caller
// gets ErrSessionBusy instead of racing on the same history. The guard is
// process-local.
func (m *Manager) Acquire(id string) (release func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.busy[id]; ok {
		return nil, ErrSessionBusy
	}
	m.busy[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.busy, id)
			m.mu.Unlock()
		})
	}, nil
}

// CheckRunLimit fails once the session has used up its generation runs.
func (m *Manager) CheckRunLimit(sess *models.Session) error {
	if m.maxRuns > 0 && sess.Runs >= m.maxRuns {
		return ErrRunLimitReached
	}
	return nil
}
