package services

import (
	"context"

	"github.com/lamassuiot/rpki-core/core/pkg/models"
)

// ResourceLookupService answers which resources the external registry
// assigns to a CA. It returns errs.ErrResourceInformationNotAvailable when the
// registry has no data for the CA yet, which is different from an empty set.
type ResourceLookupService interface {
	LookupPotentialResources(ctx context.Context, caName string) (models.ResourceSet, error)
}
