package document

import (
	"context"
	"fmt"

	"github.com/feichai0017/elearning-factory/internal/models"
)

// Router dispatches on the normalized media type, falling back to a default
// analyzer when one is set.
type Router struct {
	routes   map[string]LayoutAnalyzer
	fallback LayoutAnalyzer
}

func NewRouter(fallback LayoutAnalyzer) *Router {
	return &Router{
		routes:   make(map[string]LayoutAnalyzer),
		fallback: fallback,
	}
}

// Handle registers a for each media type, replacing earlier registrations.
func (r *Router) Handle(a LayoutAnalyzer, mimeTypes ...string) *Router {
	for _, mt := range mimeTypes {
		r.routes[models.NormalizeMIME(mt)] = a
	}
	return r
}

// Empty reports whether the router can serve nothing at all.
func (r *Router) Empty() bool {
	return r.fallback == nil && len(r.routes) == 0
}

func (r *Router) AnalyzeDocument(ctx context.Context, in DocumentInput, opts AnalyzeOptions) (*AnalyzeResult, error) {
	mt := models.NormalizeMIME(in.MIMEType)
	a, ok := r.routes[mt]
	if !ok {
		a = r.fallback
	}
	if a == nil {
		return nil, fmt.Errorf("%s (%s): %w", in.Name, in.MIMEType, ErrUnsupportedDocument)
	}
	return a.AnalyzeDocument(ctx, in, opts)
}
