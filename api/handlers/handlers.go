package handlers

import (
	"context"

	"github.com/feichai0017/elearning-factory/internal/service/document"
	"github.com/feichai0017/elearning-factory/internal/service/sketch"
	"github.com/feichai0017/elearning-factory/internal/utils/validator"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

// Sketcher runs the image generation and critique loop.
type Sketcher interface {
	Generate(ctx context.Context, req sketch.Request) (*sketch.Result, error)
}

type Handlers struct {
	Session  *SessionHandler
	Document *DocumentHandler
	Job      *JobHandler
	Sketch   *SketchHandler
	Health   *HealthHandler
}

// NewHandlers builds every handler. capabilities is reported by the health
// endpoint as name -> configured.
func NewHandlers(
	documentService document.DocumentProcessor,
	sketchService Sketcher,
	uploads *validator.DocumentValidator,
	capabilities map[string]bool,
	log logger.Logger,
) *Handlers {
	log = log.Named("api")
	return &Handlers{
		Session:  NewSessionHandler(documentService, log),
		Document: NewDocumentHandler(documentService, uploads, log),
		Job:      NewJobHandler(documentService, uploads, log),
		Sketch:   NewSketchHandler(sketchService, log),
		Health:   NewHealthHandler(capabilities),
	}
}
