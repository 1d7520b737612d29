package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/sirupsen/logrus"
)

// KeyPairLifecycle drives the key pairs of managed CAs through
// NEW, PENDING, CURRENT, OLD, MUSTREVOKE and REVOKED.
type KeyPairLifecycle struct {
	logger *logrus.Entry
	repos  *repositories
	keys   *KeyPairServiceBackend
	store  *ResourceCertificateStore
	now    func() time.Time
}

// CreateNewKeyPair generates and persists a NEW key pair for the CA.
func (l *KeyPairLifecycle) CreateNewKeyPair(ctx context.Context, ca *models.CertificateAuthority) (*models.KeyPair, error) {
	kps, err := l.repos.keyPairs.SelectByCA(ctx, ca.ID)
	if err != nil {
		return nil, err
	}

	kp, err := l.keys.CreateKeyPairEntity(ctx, ca.ID, fmt.Sprintf("ca%d-key%d", ca.ID, len(kps)+1))
	if err != nil {
		return nil, err
	}

	kp, err = l.repos.keyPairs.Insert(ctx, kp)
	if err != nil {
		return nil, err
	}

	chelpers.RecordEvent(ctx, models.NewEvent(models.EventKeyPairCreated, ca.ID, kp.SubjectKeyID, l.now()).
		With("name", kp.Name))
	return kp, nil
}

func (l *KeyPairLifecycle) keyPairBySubjectKey(ctx context.Context, ca *models.CertificateAuthority, ski string) (*models.KeyPair, error) {
	kps, err := l.repos.keyPairs.SelectByCA(ctx, ca.ID)
	if err != nil {
		return nil, err
	}
	for i := range kps {
		if kps[i].SubjectKeyID == ski {
			return &kps[i], nil
		}
	}

	return nil, errs.New("select key pair", errs.KindNotFound, ca.ID, fmt.Errorf("%w: %s", errs.ErrKeyPairNotFound, ski))
}

// UpdateIncomingResourceCertificate stores the certificate a parent issued for
// the key pair. A NEW key becomes PENDING, and a PENDING key that is the only
// live key of the CA is activated straight away. Certificates the key signed
// that are no longer covered are revoked.
func (l *KeyPairLifecycle) UpdateIncomingResourceCertificate(ctx context.Context, ca *models.CertificateAuthority, kp *models.KeyPair, issued models.IssuedCertificate) (bool, error) {
	lFunc := chelpers.ConfigureLogger(ctx, l.logger)
	now := l.now()

	exists, incoming, err := l.repos.incoming.SelectByKeyPair(ctx, kp.ID)
	if err != nil {
		return false, err
	}
	if exists && bytes.Equal(incoming.Encoded, issued.Encoded) {
		return false, nil
	}

	if !exists {
		incoming = &models.IncomingResourceCertificate{KeyPairID: kp.ID, CAID: ca.ID}
	}
	incoming.SerialNumber = issued.SerialNumber
	incoming.Subject = issued.Subject
	incoming.Issuer = issued.Issuer
	incoming.Resources = issued.Resources
	incoming.NotBefore = issued.NotBefore
	incoming.NotAfter = issued.NotAfter
	incoming.PublicationURI = issued.PublicationURI
	incoming.Encoded = issued.Encoded

	if exists {
		_, err = l.repos.incoming.Update(ctx, incoming)
	} else {
		_, err = l.repos.incoming.Insert(ctx, incoming)
	}
	if err != nil {
		return false, err
	}

	lFunc.Infof("key pair %s of CA %s received certificate %s for %s", kp.Name, ca.Name, issued.SerialNumber, issued.Resources)
	chelpers.RecordEvent(ctx, models.NewEvent(models.EventIncomingCertificateUpdated, ca.ID, kp.SubjectKeyID, now).
		With("serial", issued.SerialNumber).
		With("resources", issued.Resources.String()))

	if kp.MarkPending(now) {
		if _, err := l.repos.keyPairs.Update(ctx, kp); err != nil {
			return false, err
		}
	}

	if kp.Status == models.KeyPairPending {
		only, err := l.onlyLiveKey(ctx, ca, kp)
		if err != nil {
			return false, err
		}
		if only {
			if err := l.Activate(ctx, ca, kp); err != nil {
				return false, err
			}
		}
	}

	if kp.Status == models.KeyPairCurrent {
		chelpers.RecordEvent(ctx, models.NewEvent(models.EventIncomingCertificateChanged, ca.ID, kp.SubjectKeyID, now).
			With("resources", issued.Resources.String()))
	}

	if err := l.store.revokeUncovered(ctx, ca, kp, issued.Resources); err != nil {
		return false, err
	}

	return true, nil
}

func (l *KeyPairLifecycle) onlyLiveKey(ctx context.Context, ca *models.CertificateAuthority, kp *models.KeyPair) (bool, error) {
	kps, err := l.repos.keyPairs.SelectByCA(ctx, ca.ID)
	if err != nil {
		return false, err
	}
	for _, other := range kps {
		if other.ID != kp.ID && other.Status != models.KeyPairRevoked {
			return false, nil
		}
	}
	return true, nil
}

// Activate makes the PENDING key pair CURRENT. A previous CURRENT key becomes
// OLD.
func (l *KeyPairLifecycle) Activate(ctx context.Context, ca *models.CertificateAuthority, kp *models.KeyPair) error {
	lFunc := chelpers.ConfigureLogger(ctx, l.logger)
	now := l.now()

	exists, _, err := l.repos.incoming.SelectByKeyPair(ctx, kp.ID)
	if err != nil {
		return err
	}
	if !exists || kp.Status != models.KeyPairPending {
		return errs.New("activate key pair", errs.KindInvalidState, ca.ID, fmt.Errorf("%w: key pair %s is %s", errs.ErrKeyPairStatusTransition, kp.Name, kp.Status))
	}

	kps, err := l.repos.keyPairs.SelectByCA(ctx, ca.ID)
	if err != nil {
		return err
	}
	for i := range kps {
		other := &kps[i]
		if other.ID == kp.ID || other.Status != models.KeyPairCurrent {
			continue
		}
		if err := other.Deactivate(now); err != nil {
			return err
		}
		if _, err := l.repos.keyPairs.Update(ctx, other); err != nil {
			return err
		}
		lFunc.Infof("key pair %s of CA %s is now OLD", other.Name, ca.Name)
		chelpers.RecordEvent(ctx, models.NewEvent(models.EventKeyPairDeactivated, ca.ID, other.SubjectKeyID, now))
	}

	if err := kp.Activate(now, exists); err != nil {
		return err
	}
	if _, err := l.repos.keyPairs.Update(ctx, kp); err != nil {
		return err
	}

	lFunc.Infof("key pair %s of CA %s is now CURRENT", kp.Name, ca.Name)
	chelpers.RecordEvent(ctx, models.NewEvent(models.EventKeyPairActivated, ca.ID, kp.SubjectKeyID, now))
	return nil
}

// RequestRevoke marks the key pair MUSTREVOKE. Nothing happens to a key
// already waiting for revocation.
func (l *KeyPairLifecycle) RequestRevoke(ctx context.Context, ca *models.CertificateAuthority, kp *models.KeyPair) error {
	if kp.Status == models.KeyPairMustRevoke {
		return nil
	}

	now := l.now()
	if err := kp.RequestRevoke(now); err != nil {
		return errs.New("request key pair revocation", errs.KindInvalidState, ca.ID, err)
	}
	if _, err := l.repos.keyPairs.Update(ctx, kp); err != nil {
		return err
	}

	chelpers.RecordEvent(ctx, models.NewEvent(models.EventKeyPairRevokeRequested, ca.ID, kp.SubjectKeyID, now))
	return nil
}

// RevokeKeyPair finishes a revocation: the key loses its certificate, the
// objects it signed are withdrawn and its key material is unloaded.
func (l *KeyPairLifecycle) RevokeKeyPair(ctx context.Context, ca *models.CertificateAuthority, kp *models.KeyPair) (bool, error) {
	lFunc := chelpers.ConfigureLogger(ctx, l.logger)
	if kp.Status == models.KeyPairRevoked {
		return false, nil
	}

	now := l.now()
	if err := kp.Revoke(now); err != nil {
		return false, errs.New("revoke key pair", errs.KindInvalidState, ca.ID, err)
	}

	certs, err := l.repos.outgoing.SelectCurrentBySigningKeyPair(ctx, kp.ID)
	if err != nil {
		return false, err
	}
	for i := range certs {
		if _, err := l.store.revoke(ctx, ca.ID, &certs[i]); err != nil {
			return false, err
		}
	}

	objs, err := l.repos.published.SelectByIssuingKeyPair(ctx, kp.ID)
	if err != nil {
		return false, err
	}
	withdrawn := 0
	for i := range objs {
		if objs[i].Withdraw(now) {
			if _, err := l.repos.published.Update(ctx, &objs[i]); err != nil {
				return false, err
			}
			withdrawn++
		}
	}

	if err := l.repos.incoming.DeleteByKeyPair(ctx, kp.ID); err != nil {
		return false, err
	}
	if _, err := l.repos.keyPairs.Update(ctx, kp); err != nil {
		return false, err
	}
	l.keys.Unload(kp)

	lFunc.Infof("revoked key pair %s of CA %s, %d objects withdrawn", kp.Name, ca.Name, withdrawn)
	chelpers.RecordEvent(ctx, models.NewEvent(models.EventKeyPairRevoked, ca.ID, kp.SubjectKeyID, now))
	if withdrawn > 0 {
		chelpers.RecordEvent(ctx, models.NewEvent(models.EventPublishedObjectsWithdrawn, ca.ID, kp.SubjectKeyID, now).
			With("count", fmt.Sprintf("%d", withdrawn)))
	}

	return true, nil
}

// RemoveKeyPair deletes a revoked key pair and the certificates it signed.
func (l *KeyPairLifecycle) RemoveKeyPair(ctx context.Context, ca *models.CertificateAuthority, kp *models.KeyPair) error {
	exists, _, err := l.repos.incoming.SelectByKeyPair(ctx, kp.ID)
	if err != nil {
		return err
	}
	if !kp.IsRemovable(exists) {
		return errs.New("remove key pair", errs.KindInvalidState, ca.ID, fmt.Errorf("%w: %s is %s", errs.ErrKeyPairNotRemovable, kp.Name, kp.Status))
	}

	if err := l.repos.published.UnlinkIssuingKeyPair(ctx, kp.ID); err != nil {
		return err
	}
	if err := l.repos.outgoing.DeleteBySigningKeyPair(ctx, kp.ID); err != nil {
		return err
	}
	if err := l.repos.keyPairs.Delete(ctx, kp.ID); err != nil {
		return err
	}

	chelpers.RecordEvent(ctx, models.NewEvent(models.EventKeyPairDeleted, ca.ID, kp.SubjectKeyID, l.now()))
	return nil
}
