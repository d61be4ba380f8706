package processor

import (
	"context"

	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
)

type InputHandler struct {
	resolver Resolver
}

func NewInputHandler(r Resolver) *InputHandler {
	return &InputHandler{resolver: r}
}

// Resolve returns the renditions of req. An empty list is NotFound.
func (h *InputHandler) Resolve(ctx context.Context, req media.FetchRequest) (media.RenditionList, error) {
	list, err := h.resolver.Resolve(ctx, req.SourceURL, req.Options)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.NotFound(req.SourceURL)
	}
	return list, nil
}
