package services

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/sirupsen/logrus"
)

// ParentRole answers the up-down messages of a child CA.
type ParentRole interface {
	ProcessResourceClassListQuery(ctx context.Context, child *models.CertificateAuthority, query models.ResourceClassListQuery) (*models.ResourceClassListResponse, error)
	ProcessCertificateIssuanceRequest(ctx context.Context, child *models.CertificateAuthority, req models.CertificateIssuanceRequest) (*models.CertificateIssuanceResponse, error)
	ProcessCertificateRevocationRequest(ctx context.Context, child *models.CertificateAuthority, req models.CertificateRevocationRequest) (*models.CertificateRevocationResponse, error)
}

// ChildRole turns what the parent offers into requests, and applies the
// answers.
type ChildRole interface {
	ProcessResourceClassListResponse(ctx context.Context, resp models.ResourceClassListResponse) ([]models.ProvisioningRequest, error)
	ProcessCertificateIssuanceResponse(ctx context.Context, resp models.CertificateIssuanceResponse) (bool, error)
	ProcessCertificateRevocationResponse(ctx context.Context, resp models.CertificateRevocationResponse) (bool, error)
}

type provisioning struct {
	logger    *logrus.Entry
	repos     *repositories
	store     *ResourceCertificateStore
	lifecycle *KeyPairLifecycle
	layout    RepositoryLayout
	limits    IssuanceLimits
	now       func() time.Time
}

func (p *provisioning) ParentRoleFor(ca *models.CertificateAuthority) (ParentRole, error) {
	switch ca.Type {
	case models.CATypeAllResources, models.CATypeRoot, models.CATypeIntermediate:
		return &managedParent{provisioning: p, ca: ca}, nil
	default:
		return nil, errs.New("parent role", errs.KindInvalidState, ca.ID, fmt.Errorf("%w: %s CA %s cannot act as parent", errs.ErrCAType, ca.Type, ca.Name))
	}
}

// ChildRoleFor returns the child behaviour of ca towards parent.
func (p *provisioning) ChildRoleFor(ca, parent *models.CertificateAuthority) (ChildRole, error) {
	switch ca.Type {
	case models.CATypeRoot, models.CATypeIntermediate, models.CATypeHosted:
		return &hostedChild{provisioning: p, ca: ca, parent: parent}, nil
	case models.CATypeNonHosted:
		return &nonHostedChild{provisioning: p, ca: ca}, nil
	default:
		return nil, errs.New("child role", errs.KindInvalidState, ca.ID, fmt.Errorf("%w: %s CA %s has no parent", errs.ErrCAType, ca.Type, ca.Name))
	}
}

type managedParent struct {
	*provisioning
	ca *models.CertificateAuthority
}

func (r *managedParent) ProcessResourceClassListQuery(ctx context.Context, child *models.CertificateAuthority, query models.ResourceClassListQuery) (*models.ResourceClassListResponse, error) {
	certified, err := r.store.CertifiedResources(ctx, r.ca)
	if err != nil {
		return nil, err
	}

	certifiable := query.Resources.Intersection(certified)
	chelpers.ConfigureLogger(ctx, r.logger).Debugf("CA %s can certify %s for %s", r.ca.Name, certifiable, child.Name)

	return &models.ResourceClassListResponse{
		ClassName:            models.DefaultResourceClassName,
		CertifiableResources: certifiable,
	}, nil
}

func (r *managedParent) ProcessCertificateIssuanceRequest(ctx context.Context, child *models.CertificateAuthority, req models.CertificateIssuanceRequest) (*models.CertificateIssuanceResponse, error) {
	cert, err := r.store.ProcessCertificateIssuanceRequest(ctx, r.ca, child, req)
	if err != nil {
		return nil, err
	}

	return &models.CertificateIssuanceResponse{
		ClassName:    req.ClassName,
		SubjectKeyID: req.SubjectKeyID,
		Certificate:  models.IssuedCertificateFrom(cert),
	}, nil
}

func (r *managedParent) ProcessCertificateRevocationRequest(ctx context.Context, child *models.CertificateAuthority, req models.CertificateRevocationRequest) (*models.CertificateRevocationResponse, error) {
	if _, err := r.store.RevokeCertificatesForSubjectKey(ctx, r.ca, child, req.SubjectKeyID); err != nil {
		return nil, err
	}

	return &models.CertificateRevocationResponse{ClassName: req.ClassName, SubjectKeyID: req.SubjectKeyID}, nil
}

// hostedChild is a managed CA with a parent inside this system. Its keys and
// their certificates are stored here.
type hostedChild struct {
	*provisioning
	ca     *models.CertificateAuthority
	parent *models.CertificateAuthority
}

func (r *hostedChild) ProcessResourceClassListResponse(ctx context.Context, resp models.ResourceClassListResponse) ([]models.ProvisioningRequest, error) {
	lFunc := chelpers.ConfigureLogger(ctx, r.logger)

	kps, err := r.repos.keyPairs.SelectByCA(ctx, r.ca.ID)
	if err != nil {
		return nil, err
	}

	requests := []models.ProvisioningRequest{}
	if resp.CertifiableResources.IsEmpty() {
		for _, kp := range kps {
			if kp.Status == models.KeyPairRevoked || kp.Status == models.KeyPairNew {
				continue
			}
			lFunc.Infof("parent of CA %s offers no resources, revoking key pair %s", r.ca.Name, kp.Name)
			requests = append(requests, revocationRequestFor(&kp))
		}
		return requests, nil
	}

	live := 0
	for _, kp := range kps {
		if kp.Status != models.KeyPairRevoked {
			live++
		}
	}
	if live == 0 {
		kp, err := r.lifecycle.CreateNewKeyPair(ctx, r.ca)
		if err != nil {
			return nil, err
		}
		kps = append(kps, *kp)
	}

	for i := range kps {
		kp := &kps[i]
		switch kp.Status {
		case models.KeyPairMustRevoke:
			requests = append(requests, revocationRequestFor(kp))
		case models.KeyPairNew, models.KeyPairPending, models.KeyPairCurrent, models.KeyPairOld:
			req := models.CertificateIssuanceRequest{
				ClassName:        resp.ClassName,
				SubjectPublicKey: kp.PublicKey,
				SubjectKeyID:     kp.SubjectKeyID,
				Resources:        resp.CertifiableResources,
				SIA:              r.layout.SIA(r.ca, kp),
			}

			needed, err := r.store.IsCertificateIssuanceNeeded(ctx, r.parent, req)
			if err != nil {
				return nil, err
			}
			if needed {
				requests = append(requests, &req)
			}
		}
	}

	return requests, nil
}

func revocationRequestFor(kp *models.KeyPair) *models.CertificateRevocationRequest {
	return &models.CertificateRevocationRequest{
		ClassName:        models.DefaultResourceClassName,
		SubjectPublicKey: kp.PublicKey,
		SubjectKeyID:     kp.SubjectKeyID,
	}
}

func (r *hostedChild) ProcessCertificateIssuanceResponse(ctx context.Context, resp models.CertificateIssuanceResponse) (bool, error) {
	kp, err := r.lifecycle.keyPairBySubjectKey(ctx, r.ca, resp.SubjectKeyID)
	if err != nil {
		return false, err
	}

	return r.lifecycle.UpdateIncomingResourceCertificate(ctx, r.ca, kp, resp.Certificate)
}

func (r *hostedChild) ProcessCertificateRevocationResponse(ctx context.Context, resp models.CertificateRevocationResponse) (bool, error) {
	kp, err := r.lifecycle.keyPairBySubjectKey(ctx, r.ca, resp.SubjectKeyID)
	if err != nil {
		return false, err
	}

	return r.lifecycle.RevokeKeyPair(ctx, r.ca, kp)
}

// nonHostedChild is a delegated CA. Only its public keys and what they asked
// for are known here, the certificates are stored by the parent.
type nonHostedChild struct {
	*provisioning
	ca *models.CertificateAuthority
}

func (r *nonHostedChild) ProcessResourceClassListResponse(ctx context.Context, resp models.ResourceClassListResponse) ([]models.ProvisioningRequest, error) {
	keys, err := r.repos.nonHosted.SelectByCA(ctx, r.ca.ID)
	if err != nil {
		return nil, err
	}

	requests := []models.ProvisioningRequest{}
	for _, key := range keys {
		effective := key.RequestedResourceSets.CalculateEffectiveResources(resp.CertifiableResources)
		if key.IsRevoked() || effective.IsEmpty() {
			requests = append(requests, &models.CertificateRevocationRequest{
				ClassName:        resp.ClassName,
				SubjectPublicKey: key.PublicKey,
				SubjectKeyID:     key.SubjectKeyID,
			})
			continue
		}

		requests = append(requests, &models.CertificateIssuanceRequest{
			ClassName:        resp.ClassName,
			SubjectPublicKey: key.PublicKey,
			SubjectKeyID:     key.SubjectKeyID,
			Resources:        effective,
			SIA:              key.RequestedSIA,
		})
	}

	return requests, nil
}

// The delegated child fetches its certificates itself.
func (r *nonHostedChild) ProcessCertificateIssuanceResponse(ctx context.Context, resp models.CertificateIssuanceResponse) (bool, error) {
	return false, nil
}

func (r *nonHostedChild) ProcessCertificateRevocationResponse(ctx context.Context, resp models.CertificateRevocationResponse) (bool, error) {
	return false, nil
}

// AcceptIssuanceRequest records an issuance request sent by the delegated
// child and has the parent sign the resources it may hold.
func (r *nonHostedChild) AcceptIssuanceRequest(ctx context.Context, parent ParentRole, certifiable models.ResourceSet, req models.CertificateIssuanceRequest) (*models.CertificateIssuanceResponse, error) {
	lFunc := chelpers.ConfigureLogger(ctx, r.logger)
	op := "process non-hosted issuance request"

	pub, err := x509.ParsePKIXPublicKey(req.SubjectPublicKey)
	if err != nil {
		return nil, errs.New(op, errs.KindValidation, r.ca.ID, fmt.Errorf("%w: invalid subject public key: %s", errs.ErrValidateBadRequest, err))
	}
	ski, _, err := chelpers.PublicKeySKI(pub)
	if err != nil {
		return nil, err
	}
	if req.SubjectKeyID != "" && req.SubjectKeyID != ski {
		return nil, errs.New(op, errs.KindValidation, r.ca.ID, fmt.Errorf("%w: subject key identifier does not match the public key", errs.ErrValidateBadRequest)).
			WithDetail("subject_key", req.SubjectKeyID)
	}

	exists, key, err := r.repos.nonHosted.SelectExistsBySubjectKey(ctx, r.ca.ID, ski)
	if err != nil {
		return nil, err
	}
	if !exists {
		count, err := r.repos.nonHosted.CountByCA(ctx, r.ca.ID)
		if err != nil {
			return nil, err
		}
		if count >= r.limits.NonHostedPublicKeys {
			lFunc.Warnf("CA %s already registered %d public keys", r.ca.Name, count)
			return nil, errs.New(op, errs.KindResourceLimitExceeded, r.ca.ID, nil).
				WithDetail("limit", r.limits.NonHostedPublicKeys)
		}
	}

	requested := models.RequestedResourceSetsFrom(req.Resources)
	effective := requested.CalculateEffectiveResources(certifiable)
	if effective.IsEmpty() {
		return nil, errs.New(op, errs.KindNotHolderOfResources, r.ca.ID, nil).
			WithDetail("subject_key", ski).
			WithDetail("requested", req.Resources.String())
	}

	if !exists {
		key = &models.NonHostedPublicKey{CAID: r.ca.ID, SubjectKeyID: ski, PublicKey: req.SubjectPublicKey}
	}
	changed := !exists ||
		key.LatestRequestType != models.ProvisioningRequestIssuance ||
		!key.RequestedResourceSets.Equal(requested) ||
		!key.RequestedSIA.Equal(req.SIA)
	if changed {
		key.LatestRequestType = models.ProvisioningRequestIssuance
		key.RequestedResourceSets = requested
		key.RequestedSIA = req.SIA
		if exists {
			_, err = r.repos.nonHosted.Update(ctx, key)
		} else {
			_, err = r.repos.nonHosted.Insert(ctx, key)
		}
		if err != nil {
			return nil, err
		}
		chelpers.RecordEvent(ctx, models.NewEvent(models.EventNonHostedPublicKeyUpdated, r.ca.ID, ski, r.now()).
			With("request", string(models.ProvisioningRequestIssuance)))
	}

	return parent.ProcessCertificateIssuanceRequest(ctx, r.ca, models.CertificateIssuanceRequest{
		ClassName:        models.DefaultResourceClassName,
		SubjectPublicKey: req.SubjectPublicKey,
		SubjectKeyID:     ski,
		Resources:        effective,
		SIA:              req.SIA,
	})
}

// AcceptRevocationRequest marks the public key revoked and has the parent
// revoke its certificates.
func (r *nonHostedChild) AcceptRevocationRequest(ctx context.Context, parent ParentRole, req models.CertificateRevocationRequest) (*models.CertificateRevocationResponse, error) {
	ski := req.SubjectKeyID
	if ski == "" && len(req.SubjectPublicKey) > 0 {
		pub, err := x509.ParsePKIXPublicKey(req.SubjectPublicKey)
		if err != nil {
			return nil, errs.New("process non-hosted revocation request", errs.KindValidation, r.ca.ID, fmt.Errorf("%w: invalid subject public key: %s", errs.ErrValidateBadRequest, err))
		}
		if ski, _, err = chelpers.PublicKeySKI(pub); err != nil {
			return nil, err
		}
	}

	exists, key, err := r.repos.nonHosted.SelectExistsBySubjectKey(ctx, r.ca.ID, ski)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.New("process non-hosted revocation request", errs.KindNotFound, r.ca.ID, fmt.Errorf("%w: %s", errs.ErrPublicKeyNotFound, ski))
	}

	if !key.IsRevoked() {
		key.LatestRequestType = models.ProvisioningRequestRevocation
		if _, err := r.repos.nonHosted.Update(ctx, key); err != nil {
			return nil, err
		}
		chelpers.RecordEvent(ctx, models.NewEvent(models.EventNonHostedPublicKeyUpdated, r.ca.ID, ski, r.now()).
			With("request", string(models.ProvisioningRequestRevocation)))
	}

	return parent.ProcessCertificateRevocationRequest(ctx, r.ca, models.CertificateRevocationRequest{
		ClassName:        models.DefaultResourceClassName,
		SubjectPublicKey: key.PublicKey,
		SubjectKeyID:     ski,
	})
}
