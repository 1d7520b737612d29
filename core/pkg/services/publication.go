package services

import (
	"context"

	"github.com/lamassuiot/rpki-core/core/pkg/models"
)

// PublicationTransport synchronises a remote repository with the given
// objects. Active objects are written when the repository content differs by
// hash, withdrawn objects are removed unless an active object took over their
// URI.
type PublicationTransport interface {
	PublishAll(ctx context.Context, objects []models.PublishedObject) (*PublishAllOutput, error)
}

type PublishAllOutput struct {
	Written   []string
	Removed   []string
	Unchanged []string
}

type PublicationService interface {
	// PublishObjects sends the pending repository changes to the transport and
	// confirms the objects it accepted.
	PublishObjects(ctx context.Context) (*PublishAllOutput, error)
}
