package services

import (
	"context"

	"github.com/lamassuiot/rpki-core/core/pkg/models"
)

// QueryService is the read side used by operators and jobs. It never changes
// state.
type QueryService interface {
	GetCAs(ctx context.Context) ([]models.CertificateAuthority, error)
	GetCAByName(ctx context.Context, input GetCAByNameInput) (*models.CertificateAuthority, error)
	GetKeyPairs(ctx context.Context, input GetKeyPairsInput) ([]models.KeyPair, error)
	GetIssuedCertificates(ctx context.Context, input GetIssuedCertificatesInput) ([]models.OutgoingResourceCertificate, error)
}

type GetCAByNameInput struct {
	Name string `validate:"required"`
}

type GetKeyPairsInput struct {
	CAID uint `validate:"required"`
}

type GetIssuedCertificatesInput struct {
	CAID uint `validate:"required"`
}
