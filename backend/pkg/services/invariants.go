package services

import (
	"context"
	"fmt"

	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
)

func invariantViolation(ca *models.CertificateAuthority, format string, args ...interface{}) error {
	return errs.New("check invariants", errs.KindInvariantViolation, ca.ID, fmt.Errorf("%w: CA %s: %s", errs.ErrInvariantViolation, ca.Name, fmt.Sprintf(format, args...)))
}

// checkInvariants verifies the state a command leaves behind for the given
// CAs. A violation aborts the command.
func (svc *CommandServiceBackend) checkInvariants(ctx context.Context, caIDs ...uint) error {
	seen := map[uint]bool{}
	for _, id := range caIDs {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true

		exists, ca, err := svc.repos.cas.SelectExistsByID(ctx, id)
		if err != nil {
			return err
		}
		if !exists || !ca.Type.IsManaged() {
			continue
		}

		if err := svc.checkCA(ctx, ca); err != nil {
			svc.logger.Errorf("invariant check failed: %s", err)
			return err
		}
	}

	return nil
}

func (svc *CommandServiceBackend) checkCA(ctx context.Context, ca *models.CertificateAuthority) error {
	kps, err := svc.repos.keyPairs.SelectByCA(ctx, ca.ID)
	if err != nil {
		return err
	}

	current := 0
	certified := map[uint]models.ResourceSet{}
	var reference *models.ResourceSet
	for _, kp := range kps {
		if kp.Status == models.KeyPairCurrent {
			current++
		}
		if kp.Status == models.KeyPairRevoked {
			continue
		}

		exists, incoming, err := svc.repos.incoming.SelectByKeyPair(ctx, kp.ID)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}

		certified[kp.ID] = incoming.Resources
		if reference == nil {
			reference = &incoming.Resources
		} else if !reference.Equal(incoming.Resources) {
			return invariantViolation(ca, "key pairs certified for %s and %s", reference, incoming.Resources)
		}
	}
	if current > 1 {
		return invariantViolation(ca, "%d current key pairs", current)
	}

	for _, kp := range kps {
		certs, err := svc.repos.outgoing.SelectCurrentBySigningKeyPair(ctx, kp.ID)
		if err != nil {
			return err
		}

		subjects := map[string]bool{}
		for _, cert := range certs {
			if subjects[cert.SubjectKeyID] {
				return invariantViolation(ca, "key pair %s has more than one current certificate for %s", kp.Name, cert.SubjectKeyID)
			}
			subjects[cert.SubjectKeyID] = true

			resources, ok := certified[kp.ID]
			if !ok {
				return invariantViolation(ca, "key pair %s signed %s without a certificate of its own", kp.Name, cert.SerialNumber)
			}
			if !resources.Contains(cert.Resources) {
				return invariantViolation(ca, "certificate %s holds %s beyond %s", cert.SerialNumber, cert.Resources.Difference(resources), resources)
			}
		}
	}

	return nil
}
