package services

import (
	"context"
	"fmt"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
)

func requireManaged(op string, ca *models.CertificateAuthority) error {
	if !ca.Type.IsManaged() {
		return errs.New(op, errs.KindInvalidState, ca.ID, fmt.Errorf("%w: %s CA %s has no key pairs", errs.ErrCAType, ca.Type, ca.Name))
	}
	return nil
}

// InitiateKeyRoll adds a NEW key to a CA whose only key has been CURRENT for
// at least maxAgeDays, and has it certified right away. A CA already in the
// middle of a roll is left alone.
func (r *reconciler) InitiateKeyRoll(ctx context.Context, ca *models.CertificateAuthority, maxAgeDays int) error {
	lFunc := chelpers.ConfigureLogger(ctx, r.logger)
	if err := requireManaged("initiate key roll", ca); err != nil {
		return err
	}

	kps, err := r.repos.keyPairs.SelectByCA(ctx, ca.ID)
	if err != nil {
		return err
	}

	var current *models.KeyPair
	for i := range kps {
		switch kps[i].Status {
		case models.KeyPairCurrent:
			if current != nil {
				return nil
			}
			current = &kps[i]
		case models.KeyPairNew, models.KeyPairPending, models.KeyPairOld:
			lFunc.Debugf("CA %s is already rolling key pair %s", ca.Name, kps[i].Name)
			return nil
		}
	}
	if current == nil {
		lFunc.Debugf("CA %s has no current key pair to roll", ca.Name)
		return nil
	}

	since, ok := current.StatusSince(models.KeyPairCurrent)
	if !ok {
		since = current.CreatedAt
	}
	if r.now().Sub(since) < time.Duration(maxAgeDays)*24*time.Hour {
		lFunc.Debugf("current key pair %s of CA %s is younger than %d days", current.Name, ca.Name, maxAgeDays)
		return nil
	}

	kp, err := r.lifecycle.CreateNewKeyPair(ctx, ca)
	if err != nil {
		return err
	}
	lFunc.Infof("CA %s started a key roll from %s to %s", ca.Name, current.Name, kp.Name)

	return r.Execute(ctx, ca)
}

// ActivatePendingKeys promotes keys that have been PENDING for at least
// minStaging. The CURRENT key they replace becomes OLD.
func (r *reconciler) ActivatePendingKeys(ctx context.Context, ca *models.CertificateAuthority, minStaging time.Duration) error {
	if err := requireManaged("activate pending keys", ca); err != nil {
		return err
	}

	kps, err := r.repos.keyPairs.SelectByCA(ctx, ca.ID)
	if err != nil {
		return err
	}

	now := r.now()
	for i := range kps {
		kp := &kps[i]
		if kp.Status != models.KeyPairPending {
			continue
		}

		since, ok := kp.StatusSince(models.KeyPairPending)
		if !ok || now.Sub(since) < minStaging {
			continue
		}

		if err := r.lifecycle.Activate(ctx, ca, kp); err != nil {
			return err
		}
	}

	return nil
}

// RevokeOldKeys revokes OLD keys once no certificate they signed for a child
// is still current.
func (r *reconciler) RevokeOldKeys(ctx context.Context, ca *models.CertificateAuthority) error {
	lFunc := chelpers.ConfigureLogger(ctx, r.logger)
	if err := requireManaged("revoke old keys", ca); err != nil {
		return err
	}

	kps, err := r.repos.keyPairs.SelectByCA(ctx, ca.ID)
	if err != nil {
		return err
	}

	for i := range kps {
		kp := &kps[i]
		if kp.Status != models.KeyPairOld {
			continue
		}

		certs, err := r.repos.outgoing.SelectCurrentBySigningKeyPair(ctx, kp.ID)
		if err != nil {
			return err
		}
		inUse := 0
		for _, cert := range certs {
			if !cert.Embedded {
				inUse++
			}
		}
		if inUse > 0 {
			lFunc.Debugf("old key pair %s of CA %s still backs %d certificates", kp.Name, ca.Name, inUse)
			continue
		}

		if err := r.lifecycle.RequestRevoke(ctx, ca, kp); err != nil {
			return err
		}
		if err := r.revokeWithParent(ctx, ca, kp); err != nil {
			return err
		}
	}

	return nil
}

// revokeWithParent asks the parent to revoke the certificates of the key and
// applies the answer. Trust anchor keys are revoked locally.
func (r *reconciler) revokeWithParent(ctx context.Context, ca *models.CertificateAuthority, kp *models.KeyPair) error {
	if !ca.HasParent() {
		_, err := r.lifecycle.RevokeKeyPair(ctx, ca, kp)
		return err
	}

	parent, err := r.parentOf(ctx, ca)
	if err != nil {
		return err
	}
	parentRole, err := r.roles.ParentRoleFor(parent)
	if err != nil {
		return err
	}
	childRole, err := r.roles.ChildRoleFor(ca, parent)
	if err != nil {
		return err
	}

	resp, err := parentRole.ProcessCertificateRevocationRequest(ctx, ca, *revocationRequestFor(kp))
	if err != nil {
		return err
	}
	_, err = childRole.ProcessCertificateRevocationResponse(ctx, *resp)
	return err
}
