package session

import (
	"context"

	"github.com/feichai0017/elearning-factory/internal/models"
)

// Store persists sessions. Implementations hand out copies: mutating a
// returned session has no effect until it is saved again.
type Store interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, sess *models.Session) error
	Delete(ctx context.Context, id string) error
}
