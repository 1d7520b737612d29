package services

import (
	"context"
	"fmt"

	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/sirupsen/logrus"
)

type QueryServiceBackend struct {
	logger *logrus.Entry
	repos  *repositories
}

type QueryServiceBuilder struct {
	Logger  *logrus.Entry
	Storage storage.StorageEngine
}

func NewQueryService(builder QueryServiceBuilder) (*QueryServiceBackend, error) {
	repos, err := newRepositories(builder.Storage)
	if err != nil {
		return nil, err
	}

	return &QueryServiceBackend{logger: builder.Logger, repos: repos}, nil
}

func (svc *QueryServiceBackend) GetCAs(ctx context.Context) ([]models.CertificateAuthority, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	cas := []models.CertificateAuthority{}
	err := svc.repos.cas.SelectAll(ctx, storage.StorageListRequest[models.CertificateAuthority]{
		ExhaustiveRun: true,
		ApplyFunc: func(ca models.CertificateAuthority) {
			cas = append(cas, ca)
		},
	})
	if err != nil {
		lFunc.Errorf("could not read CAs: %s", err)
		return nil, err
	}

	return cas, nil
}

func (svc *QueryServiceBackend) GetCAByName(ctx context.Context, input services.GetCAByNameInput) (*models.CertificateAuthority, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	if err := validate.Struct(input); err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	exists, ca, err := svc.repos.cas.SelectExistsByName(ctx, input.Name)
	if err != nil {
		lFunc.Errorf("could not read CA %s: %s", input.Name, err)
		return nil, err
	}
	if !exists {
		lFunc.Debugf("CA %s does not exist", input.Name)
		return nil, fmt.Errorf("%w: %s", errs.ErrCANotFound, input.Name)
	}

	return ca, nil
}

func (svc *QueryServiceBackend) GetKeyPairs(ctx context.Context, input services.GetKeyPairsInput) ([]models.KeyPair, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	if err := validate.Struct(input); err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	return svc.repos.keyPairs.SelectByCA(ctx, input.CAID)
}

// GetIssuedCertificates returns the current certificates signed by any key
// of the CA, manifest EE certificates included.
func (svc *QueryServiceBackend) GetIssuedCertificates(ctx context.Context, input services.GetIssuedCertificatesInput) ([]models.OutgoingResourceCertificate, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	if err := validate.Struct(input); err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	kps, err := svc.repos.keyPairs.SelectByCA(ctx, input.CAID)
	if err != nil {
		return nil, err
	}

	certs := []models.OutgoingResourceCertificate{}
	for _, kp := range kps {
		signed, err := svc.repos.outgoing.SelectCurrentBySigningKeyPair(ctx, kp.ID)
		if err != nil {
			return nil, err
		}
		certs = append(certs, signed...)
	}

	return certs, nil
}
