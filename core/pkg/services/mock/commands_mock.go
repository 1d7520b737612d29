package mock

import (
	"context"

	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/stretchr/testify/mock"
)

type MockCommandService struct {
	mock.Mock
}

func (m *MockCommandService) Handle(ctx context.Context, cmd services.Command) (*models.CommandResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CommandResult), args.Error(1)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) GetCAs(ctx context.Context) ([]models.CertificateAuthority, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.CertificateAuthority), args.Error(1)
}

func (m *MockQueryService) GetCAByName(ctx context.Context, input services.GetCAByNameInput) (*models.CertificateAuthority, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CertificateAuthority), args.Error(1)
}

func (m *MockQueryService) GetKeyPairs(ctx context.Context, input services.GetKeyPairsInput) ([]models.KeyPair, error) {
	args := m.Called(ctx, input)
	return args.Get(0).([]models.KeyPair), args.Error(1)
}

func (m *MockQueryService) GetIssuedCertificates(ctx context.Context, input services.GetIssuedCertificatesInput) ([]models.OutgoingResourceCertificate, error) {
	args := m.Called(ctx, input)
	return args.Get(0).([]models.OutgoingResourceCertificate), args.Error(1)
}

type MockPublicationService struct {
	mock.Mock
}

func (m *MockPublicationService) PublishObjects(ctx context.Context) (*services.PublishAllOutput, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PublishAllOutput), args.Error(1)
}
