package services

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/lamassuiot/rpki-core/backend/pkg/helpers"
	"github.com/lamassuiot/rpki-core/backend/pkg/x509engines"
	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/sirupsen/logrus"
)

// DefaultManifestValidity is how long manifests and CRLs are valid. They are
// reissued once half of it has passed.
const DefaultManifestValidity = 24 * time.Hour

// manifestIssuer keeps one manifest and one CRL current for every
// publishable key of a CA.
type manifestIssuer struct {
	logger     *logrus.Entry
	repos      *repositories
	x509Engine x509engines.ResourceCertificateEngine
	keys       *KeyPairServiceBackend
	layout     RepositoryLayout
	validity   time.Duration
	now        func() time.Time
}

func (m *manifestIssuer) IssueUpdatedManifestAndCrl(ctx context.Context, ca *models.CertificateAuthority) error {
	if err := requireManaged("issue manifest and CRL", ca); err != nil {
		return err
	}

	kps, err := m.repos.keyPairs.SelectByCA(ctx, ca.ID)
	if err != nil {
		return err
	}

	for i := range kps {
		kp := &kps[i]
		if !kp.Status.IsPublishable() {
			continue
		}

		exists, incoming, err := m.repos.incoming.SelectByKeyPair(ctx, kp.ID)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}

		if err := m.issueForKey(ctx, ca, kp, incoming); err != nil {
			return err
		}
	}

	return nil
}

// manifestFingerprint covers everything a manifest and CRL pair states: the
// revoked serials and the listed files.
func manifestFingerprint(revoked []models.OutgoingResourceCertificate, objects []models.PublishedObject) string {
	h := sha256.New()

	serials := make([]string, 0, len(revoked))
	for _, cert := range revoked {
		serials = append(serials, cert.SerialNumber)
	}
	sort.Strings(serials)
	for _, serial := range serials {
		fmt.Fprintf(h, "crl:%s\n", serial)
	}

	for _, obj := range objects {
		fmt.Fprintf(h, "obj:%s:%s\n", obj.URI, obj.ContentHash)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func (m *manifestIssuer) issueForKey(ctx context.Context, ca *models.CertificateAuthority, kp *models.KeyPair, incoming *models.IncomingResourceCertificate) error {
	lFunc := chelpers.ConfigureLogger(ctx, m.logger)
	now := m.now().UTC().Truncate(time.Second)

	crlURI := m.layout.CRLURI(ca, kp)
	mftURI := m.layout.ManifestURI(ca, kp)

	revoked, err := m.repos.outgoing.SelectRevokedBySigningKeyPair(ctx, kp.ID, now)
	if err != nil {
		return err
	}

	objs, err := m.repos.published.SelectByIssuingKeyPair(ctx, kp.ID)
	if err != nil {
		return err
	}

	listed := []models.PublishedObject{}
	previous := []models.PublishedObject{}
	for _, obj := range objs {
		if !obj.Status.IsActive() {
			continue
		}
		switch {
		case obj.URI == crlURI, obj.URI == mftURI:
			previous = append(previous, obj)
		case !obj.TrustAnchor:
			listed = append(listed, obj)
		}
	}
	sort.Slice(listed, func(i, j int) bool { return listed[i].URI < listed[j].URI })

	fingerprint := manifestFingerprint(revoked, listed)
	if fingerprint == kp.PublishedState && !helpers.NeedsRefresh(now, kp.PublishedUntil, m.validity/2) {
		lFunc.Debugf("manifest and CRL of key pair %s are up to date", kp.Name)
		return nil
	}

	issuer, err := x509.ParseCertificate(incoming.Encoded)
	if err != nil {
		return fmt.Errorf("could not parse certificate of key pair %s: %w", kp.Name, err)
	}
	signer, err := m.keys.Signer(ctx, kp)
	if err != nil {
		return err
	}

	nextUpdate := now.Add(m.validity)
	kp.CRLNumber++
	kp.ManifestNumber++

	crlInput := x509engines.CRLInput{Number: kp.CRLNumber, ThisUpdate: now, NextUpdate: nextUpdate}
	for _, cert := range revoked {
		serial, err := helpers.ParseSerialNumberHex(cert.SerialNumber)
		if err != nil {
			return err
		}
		crlInput.Revoked = append(crlInput.Revoked, x509engines.RevokedCertificate{SerialNumber: serial, RevocationTime: *cert.RevocationTime})
	}

	crl, err := m.x509Engine.CreateCRL(ctx, crlInput, issuer, signer)
	if err != nil {
		return err
	}

	entries := make([]x509engines.ManifestEntry, 0, len(listed)+1)
	for _, obj := range listed {
		entries = append(entries, x509engines.ManifestEntry{FileName: path.Base(obj.URI), Content: obj.Content})
	}
	entries = append(entries, x509engines.ManifestEntry{FileName: path.Base(crlURI), Content: crl})

	eeSerial, err := helpers.GenerateSerialNumber()
	if err != nil {
		return err
	}
	mft, ee, err := m.x509Engine.CreateManifest(ctx, x509engines.ManifestInput{
		Number:               kp.ManifestNumber,
		ThisUpdate:           now,
		NextUpdate:           nextUpdate,
		ManifestURI:          mftURI,
		CRLURI:               crlURI,
		IssuerCertificateURI: incoming.PublicationURI,
		EESerialNumber:       eeSerial,
		Entries:              entries,
	}, issuer, signer)
	if err != nil {
		return err
	}

	for i := range previous {
		if previous[i].Withdraw(now) {
			if _, err := m.repos.published.Update(ctx, &previous[i]); err != nil {
				return err
			}
		}
	}

	if _, err := m.repos.published.Insert(ctx, models.NewPublishedObject(&kp.ID, crlURI, crl, nextUpdate, now)); err != nil {
		return err
	}
	mftObj, err := m.repos.published.Insert(ctx, models.NewPublishedObject(&kp.ID, mftURI, mft, nextUpdate, now))
	if err != nil {
		return err
	}

	if err := m.recordManifestEE(ctx, kp, incoming, ee, mftObj); err != nil {
		return err
	}

	kp.PublishedState = fingerprint
	kp.PublishedUntil = nextUpdate
	if _, err := m.repos.keyPairs.Update(ctx, kp); err != nil {
		return err
	}

	lFunc.Infof("issued manifest %d and CRL %d for key pair %s of CA %s: %d files, %d revoked", kp.ManifestNumber, kp.CRLNumber, kp.Name, ca.Name, len(entries), len(revoked))
	chelpers.RecordEvent(ctx, models.NewEvent(models.EventManifestAndCRLIssued, ca.ID, kp.SubjectKeyID, now).
		With("manifest_number", fmt.Sprintf("%d", kp.ManifestNumber)).
		With("crl_number", fmt.Sprintf("%d", kp.CRLNumber)))

	return nil
}

// recordManifestEE tracks the one-time EE certificate of a manifest. It
// expires together with the manifest and is never revoked on replacement.
func (m *manifestIssuer) recordManifestEE(ctx context.Context, kp *models.KeyPair, incoming *models.IncomingResourceCertificate, ee *x509.Certificate, obj *models.PublishedObject) error {
	ski, pubDER, err := chelpers.PublicKeySKI(ee.PublicKey)
	if err != nil {
		return err
	}
	sia, err := x509engines.ParseSIA(ee.Extensions)
	if err != nil {
		return err
	}

	_, err = m.repos.outgoing.Insert(ctx, &models.OutgoingResourceCertificate{
		SigningKeyPairID:      kp.ID,
		SubjectKeyID:          ski,
		SubjectPublicKey:      pubDER,
		SerialNumber:          helpers.SerialNumberToHexString(ee.SerialNumber),
		Subject:               ee.Subject.String(),
		Issuer:                ee.Issuer.String(),
		NotBefore:             ee.NotBefore,
		NotAfter:              ee.NotAfter,
		SIA:                   sia,
		PublicationURI:        obj.URI,
		SigningCertificateURI: incoming.PublicationURI,
		Encoded:               ee.Raw,
		Status:                models.OutgoingCurrent,
		Embedded:              true,
		PublishedObjectID:     &obj.ID,
	})
	return err
}

// DeleteWithdrawnPublishedObjects removes objects withdrawn longer than the
// retention period ago.
func (m *manifestIssuer) DeleteWithdrawnPublishedObjects(ctx context.Context, retention time.Duration) (int, error) {
	lFunc := chelpers.ConfigureLogger(ctx, m.logger)

	objs, err := m.repos.published.SelectWithdrawnBefore(ctx, m.now().Add(-retention))
	if err != nil {
		return 0, err
	}

	for _, obj := range objs {
		if err := m.repos.published.Delete(ctx, obj.ID); err != nil {
			return 0, err
		}
	}

	if len(objs) > 0 {
		lFunc.Infof("deleted %d objects withdrawn before %s", len(objs), m.now().Add(-retention).Format(time.RFC3339))
	}
	return len(objs), nil
}

// PublicationServiceBackend hands the repository state to the transport and
// confirms what it accepted. It does not lock any CA: confirmations only move
// objects that kept the status they had when read.
type PublicationServiceBackend struct {
	logger    *logrus.Entry
	published storage.PublishedObjectRepo
	transport services.PublicationTransport
	now       func() time.Time
}

type PublicationServiceBuilder struct {
	Logger    *logrus.Entry
	Storage   storage.StorageEngine
	Transport services.PublicationTransport
	Clock     func() time.Time
}

func NewPublicationService(builder PublicationServiceBuilder) (*PublicationServiceBackend, error) {
	published, err := builder.Storage.GetPublishedObjectStorage()
	if err != nil {
		return nil, err
	}

	clock := builder.Clock
	if clock == nil {
		clock = time.Now
	}

	return &PublicationServiceBackend{
		logger:    builder.Logger,
		published: published,
		transport: builder.Transport,
		now:       clock,
	}, nil
}

func (svc *PublicationServiceBackend) PublishObjects(ctx context.Context) (*services.PublishAllOutput, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	objs, err := svc.published.SelectByStatus(ctx, models.ToBePublished, models.Published, models.ToBeWithdrawn)
	if err != nil {
		lFunc.Errorf("could not read objects to publish: %s", err)
		return nil, err
	}

	out, err := svc.transport.PublishAll(ctx, objs)
	if err != nil {
		lFunc.Errorf("could not publish %d objects: %s", len(objs), err)
		return nil, err
	}

	now := svc.now()
	confirmed := 0
	for _, obj := range objs {
		var ok bool
		switch obj.Status {
		case models.ToBePublished:
			ok, err = svc.published.UpdateStatusIf(ctx, obj.ID, models.ToBePublished, models.Published, now)
		case models.ToBeWithdrawn:
			ok, err = svc.published.UpdateStatusIf(ctx, obj.ID, models.ToBeWithdrawn, models.Withdrawn, now)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		if ok {
			confirmed++
		} else {
			lFunc.Debugf("object %s changed while publishing, confirmation skipped", obj.URI)
		}
	}

	lFunc.Infof("publication done: %d written, %d removed, %d unchanged, %d confirmed", len(out.Written), len(out.Removed), len(out.Unchanged), confirmed)
	return out, nil
}
