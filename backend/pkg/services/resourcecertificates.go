package services

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/lamassuiot/rpki-core/backend/pkg/helpers"
	"github.com/lamassuiot/rpki-core/backend/pkg/x509engines"
	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	// PublicKeyLimit caps the public keys a non-hosted CA may register.
	PublicKeyLimit = 20
	// IncomingResourceCertificatesPerPublicKeyLimit caps the unexpired
	// certificates a non-hosted public key may hold.
	IncomingResourceCertificatesPerPublicKeyLimit = 1000
	// DefaultIssuedCertificatesPerSignedKeyLimit applies to every subject key.
	DefaultIssuedCertificatesPerSignedKeyLimit = 10000
)

type IssuanceLimits struct {
	IssuedCertificatesPerSignedKey int
	NonHostedPublicKeys            int
	CertificatesPerNonHostedKey    int
}

func DefaultIssuanceLimits() IssuanceLimits {
	return IssuanceLimits{
		IssuedCertificatesPerSignedKey: DefaultIssuedCertificatesPerSignedKeyLimit,
		NonHostedPublicKeys:            PublicKeyLimit,
		CertificatesPerNonHostedKey:    IncomingResourceCertificatesPerPublicKeyLimit,
	}
}

// ResourceCertificateStore issues and revokes the certificates a CA signs and
// keeps the published objects of those certificates in step.
type ResourceCertificateStore struct {
	logger     *logrus.Entry
	repos      *repositories
	x509Engine x509engines.ResourceCertificateEngine
	keys       *KeyPairServiceBackend
	layout     RepositoryLayout
	limits     IssuanceLimits
	now        func() time.Time
}

// signingKey is the CURRENT key pair of a CA together with its certificate.
type signingKey struct {
	kp       *models.KeyPair
	incoming *models.IncomingResourceCertificate
	cert     *x509.Certificate
}

func (s *ResourceCertificateStore) signingKeyFor(ctx context.Context, ca *models.CertificateAuthority) (*signingKey, error) {
	kps, err := s.repos.keyPairs.SelectByCA(ctx, ca.ID)
	if err != nil {
		return nil, err
	}

	for i := range kps {
		if kps[i].Status != models.KeyPairCurrent {
			continue
		}

		exists, incoming, err := s.repos.incoming.SelectByKeyPair(ctx, kps[i].ID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errs.New("select signing key", errs.KindInvalidState, ca.ID, fmt.Errorf("%w: current key pair %s has no certificate", errs.ErrNoCurrentKeyPair, kps[i].Name))
		}

		cert, err := x509.ParseCertificate(incoming.Encoded)
		if err != nil {
			return nil, fmt.Errorf("could not parse certificate of key pair %s: %w", kps[i].Name, err)
		}

		return &signingKey{kp: &kps[i], incoming: incoming, cert: cert}, nil
	}

	return nil, errs.New("select signing key", errs.KindInvalidState, ca.ID, errs.ErrNoCurrentKeyPair)
}

// CertifiedResources returns the resources on the certificate of the CURRENT
// key pair of the CA, or the empty set when the CA has none.
func (s *ResourceCertificateStore) CertifiedResources(ctx context.Context, ca *models.CertificateAuthority) (models.ResourceSet, error) {
	signing, err := s.signingKeyFor(ctx, ca)
	if err != nil {
		if errs.KindOf(err) == errs.KindInvalidState {
			return models.ResourceSet{}, nil
		}
		return models.ResourceSet{}, err
	}

	return signing.incoming.Resources, nil
}

// IsCertificateIssuanceNeeded compares the request with the latest
// certificate the signing key issued for the same subject key. Any difference
// in resources, SIA, signing certificate location or validity end requires a
// new certificate.
func (s *ResourceCertificateStore) IsCertificateIssuanceNeeded(ctx context.Context, parent *models.CertificateAuthority, req models.CertificateIssuanceRequest) (bool, error) {
	signing, err := s.signingKeyFor(ctx, parent)
	if err != nil {
		return false, err
	}

	needed, _, err := s.issuanceNeeded(ctx, signing, req, helpers.ResourceCertificateNotAfter(s.now()))
	return needed, err
}

func (s *ResourceCertificateStore) issuanceNeeded(ctx context.Context, signing *signingKey, req models.CertificateIssuanceRequest, notAfter time.Time) (bool, *models.OutgoingResourceCertificate, error) {
	found, latest, err := s.repos.outgoing.SelectLatestBySubjectKeyAndSigningKeyPair(ctx, req.SubjectKeyID, signing.kp.ID)
	if err != nil {
		return false, nil, err
	}

	switch {
	case !found, !latest.IsCurrent():
		return true, nil, nil
	case !latest.Resources.Equal(req.Resources):
		return true, latest, nil
	case !latest.SIA.Equal(req.SIA):
		return true, latest, nil
	case latest.SigningCertificateURI != signing.incoming.PublicationURI:
		return true, latest, nil
	case !latest.NotAfter.Equal(notAfter):
		return true, latest, nil
	}

	return false, latest, nil
}

// ProcessCertificateIssuanceRequest signs a certificate for the child key
// with the CURRENT key of parent. Certificates for the same subject key
// signed by any key of parent are revoked first: they share the publication
// URI. When the latest certificate already matches the request it is returned
// unchanged.
func (s *ResourceCertificateStore) ProcessCertificateIssuanceRequest(ctx context.Context, parent, child *models.CertificateAuthority, req models.CertificateIssuanceRequest) (*models.OutgoingResourceCertificate, error) {
	lFunc := chelpers.ConfigureLogger(ctx, s.logger)
	op := "process certificate issuance request"

	signing, err := s.signingKeyFor(ctx, parent)
	if err != nil {
		lFunc.Errorf("CA %s cannot issue certificates: %s", parent.Name, err)
		return nil, err
	}

	if req.Resources.IsEmpty() {
		return nil, errs.New(op, errs.KindValidation, parent.ID, fmt.Errorf("%w: no resources requested", errs.ErrValidateBadRequest)).
			WithDetail("subject_key", req.SubjectKeyID)
	}

	certified := signing.incoming.Resources
	if !certified.Contains(req.Resources) {
		lFunc.Warnf("child %s requested %s, not held by %s", child.Name, req.Resources, parent.Name)
		return nil, errs.New(op, errs.KindNotHolderOfResources, parent.ID, nil).
			WithDetail("subject_key", req.SubjectKeyID).
			WithDetail("not_held", req.Resources.Difference(certified).String())
	}

	now := s.now().UTC()
	notBefore, notAfter := helpers.ResourceCertificateValidity(now)

	needed, latest, err := s.issuanceNeeded(ctx, signing, req, notAfter)
	if err != nil {
		return nil, err
	}
	if !needed {
		lFunc.Debugf("certificate %s for %s is up to date", latest.SerialNumber, req.SubjectKeyID)
		return latest, nil
	}

	limit := s.limits.IssuedCertificatesPerSignedKey
	if child.Type == models.CATypeNonHosted && s.limits.CertificatesPerNonHostedKey < limit {
		limit = s.limits.CertificatesPerNonHostedKey
	}
	issued, err := s.repos.outgoing.CountNonExpiredBySubjectKey(ctx, req.SubjectKeyID, now)
	if err != nil {
		return nil, err
	}
	if issued >= limit {
		lFunc.Warnf("subject key %s reached %d unexpired certificates", req.SubjectKeyID, issued)
		return nil, errs.New(op, errs.KindResourceLimitExceeded, parent.ID, nil).
			WithDetail("subject_key", req.SubjectKeyID).
			WithDetail("limit", limit)
	}

	pub, err := x509.ParsePKIXPublicKey(req.SubjectPublicKey)
	if err != nil {
		return nil, errs.New(op, errs.KindValidation, parent.ID, fmt.Errorf("%w: invalid subject public key: %s", errs.ErrValidateBadRequest, err))
	}

	uri, err := s.layout.ChildCertificateURI(parent, req.SubjectKeyID)
	if err != nil {
		return nil, err
	}

	if _, err := s.revokeCurrentForSubjectKey(ctx, parent, nil, req.SubjectKeyID); err != nil {
		return nil, err
	}

	serial, err := helpers.GenerateSerialNumber()
	if err != nil {
		return nil, err
	}

	signer, err := s.keys.Signer(ctx, signing.kp)
	if err != nil {
		return nil, err
	}

	cert, err := s.x509Engine.CreateResourceCertificate(ctx, x509engines.ResourceCertificateRequest{
		SerialNumber:         serial,
		SubjectPublicKey:     pub,
		Resources:            req.Resources,
		Validity:             models.ValidityPeriod{NotBefore: notBefore, NotAfter: notAfter},
		SIA:                  req.SIA,
		CRLURI:               s.layout.CRLURI(parent, signing.kp),
		IssuerCertificateURI: signing.incoming.PublicationURI,
	}, signing.cert, signer)
	if err != nil {
		lFunc.Errorf("could not sign certificate for %s: %s", req.SubjectKeyID, err)
		return nil, err
	}

	obj, err := s.repos.published.Insert(ctx, models.NewPublishedObject(&signing.kp.ID, uri, cert.Raw, cert.NotAfter, now))
	if err != nil {
		return nil, err
	}

	requester := child.ID
	out, err := s.repos.outgoing.Insert(ctx, &models.OutgoingResourceCertificate{
		SigningKeyPairID:      signing.kp.ID,
		SubjectKeyID:          req.SubjectKeyID,
		SubjectPublicKey:      req.SubjectPublicKey,
		SerialNumber:          helpers.SerialNumberToHexString(serial),
		Subject:               cert.Subject.String(),
		Issuer:                cert.Issuer.String(),
		Resources:             req.Resources,
		NotBefore:             cert.NotBefore,
		NotAfter:              cert.NotAfter,
		SIA:                   req.SIA,
		PublicationURI:        uri,
		SigningCertificateURI: signing.incoming.PublicationURI,
		Encoded:               cert.Raw,
		Status:                models.OutgoingCurrent,
		RequestingCAID:        &requester,
		PublishedObjectID:     &obj.ID,
	})
	if err != nil {
		return nil, err
	}

	chelpers.RecordEvent(ctx, models.NewEvent(models.EventOutgoingCertificateIssued, parent.ID, req.SubjectKeyID, now).
		With("serial", out.SerialNumber).
		With("resources", req.Resources.String()).
		With("child", child.Name))
	lFunc.Infof("CA %s issued certificate %s to %s for %s", parent.Name, out.SerialNumber, child.Name, req.Resources)

	return out, nil
}

// RevokeCertificatesForSubjectKey revokes every CURRENT certificate that a
// key pair of parent signed for the subject key. Revoking twice is a no-op.
func (s *ResourceCertificateStore) RevokeCertificatesForSubjectKey(ctx context.Context, parent, child *models.CertificateAuthority, subjectKeyID string) (int, error) {
	return s.revokeCurrentForSubjectKey(ctx, parent, child, subjectKeyID)
}

func (s *ResourceCertificateStore) revokeCurrentForSubjectKey(ctx context.Context, parent, child *models.CertificateAuthority, subjectKeyID string) (int, error) {
	kps, err := s.repos.keyPairs.SelectByCA(ctx, parent.ID)
	if err != nil {
		return 0, err
	}
	signedByParent := map[uint]bool{}
	for _, kp := range kps {
		signedByParent[kp.ID] = true
	}

	certs, err := s.repos.outgoing.SelectCurrentBySubjectKey(ctx, subjectKeyID)
	if err != nil {
		return 0, err
	}

	revoked := 0
	for i := range certs {
		cert := &certs[i]
		if !signedByParent[cert.SigningKeyPairID] {
			continue
		}
		if child != nil && cert.RequestingCAID != nil && *cert.RequestingCAID != child.ID {
			continue
		}

		ok, err := s.revoke(ctx, parent.ID, cert)
		if err != nil {
			return revoked, err
		}
		if ok {
			revoked++
		}
	}

	return revoked, nil
}

func (s *ResourceCertificateStore) revoke(ctx context.Context, caID uint, cert *models.OutgoingResourceCertificate) (bool, error) {
	now := s.now()
	if !cert.Revoke(now) {
		return false, nil
	}

	if _, err := s.repos.outgoing.Update(ctx, cert); err != nil {
		return false, err
	}
	if err := s.withdrawObject(ctx, cert.PublishedObjectID); err != nil {
		return false, err
	}

	chelpers.RecordEvent(ctx, models.NewEvent(models.EventOutgoingCertificateRevoked, caID, cert.SubjectKeyID, now).
		With("serial", cert.SerialNumber))
	chelpers.ConfigureLogger(ctx, s.logger).Infof("revoked certificate %s for %s", cert.SerialNumber, cert.SubjectKeyID)

	return true, nil
}

func (s *ResourceCertificateStore) withdrawObject(ctx context.Context, id *uint) error {
	if id == nil {
		return nil
	}

	exists, obj, err := s.repos.published.SelectExistsByID(ctx, *id)
	if err != nil || !exists {
		return err
	}

	if obj.Withdraw(s.now()) {
		_, err = s.repos.published.Update(ctx, obj)
	}
	return err
}

// revokeUncovered revokes certificates of the key pair that are no longer
// covered by its own certificate.
func (s *ResourceCertificateStore) revokeUncovered(ctx context.Context, ca *models.CertificateAuthority, kp *models.KeyPair, certified models.ResourceSet) error {
	certs, err := s.repos.outgoing.SelectCurrentBySigningKeyPair(ctx, kp.ID)
	if err != nil {
		return err
	}

	for i := range certs {
		if certs[i].Embedded || certified.Contains(certs[i].Resources) {
			continue
		}

		chelpers.ConfigureLogger(ctx, s.logger).Warnf("certificate %s of %s exceeds the resources of key pair %s", certs[i].SerialNumber, certs[i].SubjectKeyID, kp.Name)
		if _, err := s.revoke(ctx, ca.ID, &certs[i]); err != nil {
			return err
		}
	}

	return nil
}

// retainedResources are the resources still held by CURRENT certificates the
// CA issued to its children.
func (s *ResourceCertificateStore) retainedResources(ctx context.Context, ca *models.CertificateAuthority) (models.ResourceSet, error) {
	kps, err := s.repos.keyPairs.SelectByCA(ctx, ca.ID)
	if err != nil {
		return models.ResourceSet{}, err
	}

	retained := models.ResourceSet{}
	for _, kp := range kps {
		certs, err := s.repos.outgoing.SelectCurrentBySigningKeyPair(ctx, kp.ID)
		if err != nil {
			return models.ResourceSet{}, err
		}
		for _, cert := range certs {
			if !cert.Embedded {
				retained = retained.Union(cert.Resources)
			}
		}
	}

	return retained, nil
}

// ExpireCertificates moves CURRENT certificates past their validity to
// EXPIRED and withdraws the objects they are published in. For embedded
// certificates this withdraws the signed object carrying them.
func (s *ResourceCertificateStore) ExpireCertificates(ctx context.Context, ca *models.CertificateAuthority) (int, error) {
	lFunc := chelpers.ConfigureLogger(ctx, s.logger)
	now := s.now().UTC()

	kps, err := s.repos.keyPairs.SelectByCA(ctx, ca.ID)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, kp := range kps {
		certs, err := s.repos.outgoing.SelectCurrentBySigningKeyPair(ctx, kp.ID)
		if err != nil {
			return expired, err
		}

		for i := range certs {
			cert := &certs[i]
			if !cert.NotAfter.Before(now) || !cert.Expire() {
				continue
			}

			if _, err := s.repos.outgoing.Update(ctx, cert); err != nil {
				return expired, err
			}
			if err := s.withdrawObject(ctx, cert.PublishedObjectID); err != nil {
				return expired, err
			}

			chelpers.RecordEvent(ctx, models.NewEvent(models.EventOutgoingCertificateExpired, ca.ID, cert.SubjectKeyID, now).
				With("serial", cert.SerialNumber))
			expired++
		}
	}

	if expired > 0 {
		lFunc.Infof("expired %d certificates of CA %s", expired, ca.Name)
	}
	return expired, nil
}

// CertifyTrustAnchorKey self-signs the key pair of the All Resources CA. The
// certificate is renewed when its validity end moves to a new year.
func (s *ResourceCertificateStore) CertifyTrustAnchorKey(ctx context.Context, ca *models.CertificateAuthority, kp *models.KeyPair) (*models.IssuedCertificate, error) {
	lFunc := chelpers.ConfigureLogger(ctx, s.logger)
	now := s.now().UTC()
	notBefore, notAfter := helpers.ResourceCertificateValidity(now)

	uri, err := s.layout.TrustAnchorCertificateURI(kp)
	if err != nil {
		return nil, err
	}

	exists, incoming, err := s.repos.incoming.SelectByKeyPair(ctx, kp.ID)
	if err != nil {
		return nil, err
	}
	if exists && incoming.NotAfter.Equal(notAfter) && incoming.PublicationURI == uri && incoming.Resources.Equal(models.AllResources()) {
		return nil, nil
	}

	serial, err := helpers.GenerateSerialNumber()
	if err != nil {
		return nil, err
	}
	signer, err := s.keys.Signer(ctx, kp)
	if err != nil {
		return nil, err
	}

	cert, err := s.x509Engine.CreateTrustAnchorCertificate(ctx, signer, x509engines.ResourceCertificateRequest{
		SerialNumber: serial,
		Resources:    models.AllResources(),
		Validity:     models.ValidityPeriod{NotBefore: notBefore, NotAfter: notAfter},
		SIA:          s.layout.SIA(ca, kp),
	})
	if err != nil {
		lFunc.Errorf("could not self-sign trust anchor key %s: %s", kp.Name, err)
		return nil, err
	}

	objs, err := s.repos.published.SelectByIssuingKeyPair(ctx, kp.ID)
	if err != nil {
		return nil, err
	}
	for i := range objs {
		if objs[i].TrustAnchor && objs[i].Withdraw(now) {
			if _, err := s.repos.published.Update(ctx, &objs[i]); err != nil {
				return nil, err
			}
		}
	}

	obj := models.NewPublishedObject(&kp.ID, uri, cert.Raw, cert.NotAfter, now)
	obj.TrustAnchor = true
	if _, err := s.repos.published.Insert(ctx, obj); err != nil {
		return nil, err
	}

	lFunc.Infof("self-signed trust anchor certificate %s for key pair %s", helpers.SerialNumberToHexString(serial), kp.Name)
	return &models.IssuedCertificate{
		SerialNumber:   helpers.SerialNumberToHexString(serial),
		Subject:        cert.Subject.String(),
		Issuer:         cert.Issuer.String(),
		Resources:      models.AllResources(),
		NotBefore:      cert.NotBefore,
		NotAfter:       cert.NotAfter,
		PublicationURI: uri,
		Encoded:        cert.Raw,
	}, nil
}
