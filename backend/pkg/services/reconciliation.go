package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/sirupsen/logrus"
)

// reconciler brings the certificates of one CA in line with what its parent
// can certify for it.
type reconciler struct {
	logger    *logrus.Entry
	repos     *repositories
	store     *ResourceCertificateStore
	lifecycle *KeyPairLifecycle
	roles     *provisioning
	lookup    services.ResourceLookupService
	now       func() time.Time
}

// potentialResources is what the CA would hold if its parent had everything.
// Intermediate CAs take whatever their parent holds.
func (r *reconciler) potentialResources(ctx context.Context, ca *models.CertificateAuthority) (models.ResourceSet, error) {
	switch ca.Type {
	case models.CATypeAllResources, models.CATypeIntermediate:
		return models.AllResources(), nil
	}

	resources, err := r.lookup.LookupPotentialResources(ctx, ca.Name)
	if err != nil {
		if errors.Is(err, errs.ErrResourceInformationNotAvailable) {
			return models.ResourceSet{}, errs.New("lookup potential resources", errs.KindResourceInformationNotAvailable, ca.ID, err)
		}
		return models.ResourceSet{}, err
	}
	return resources, nil
}

func (r *reconciler) parentOf(ctx context.Context, ca *models.CertificateAuthority) (*models.CertificateAuthority, error) {
	if ca.ParentID == nil {
		return nil, errs.New("select parent", errs.KindInvalidState, ca.ID, fmt.Errorf("%w: CA %s has no parent", errs.ErrCAType, ca.Name))
	}

	exists, parent, err := r.repos.cas.SelectExistsByID(ctx, *ca.ParentID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.New("select parent", errs.KindNotFound, ca.ID, fmt.Errorf("%w: parent %d", errs.ErrCANotFound, *ca.ParentID))
	}
	return parent, nil
}

// Execute runs one round of resource class list, issuance and revocation
// between the CA and its parent. A CA without registry data is left alone.
func (r *reconciler) Execute(ctx context.Context, ca *models.CertificateAuthority) error {
	lFunc := chelpers.ConfigureLogger(ctx, r.logger)

	if ca.Type == models.CATypeAllResources {
		return r.certifyTrustAnchor(ctx, ca)
	}

	parent, err := r.parentOf(ctx, ca)
	if err != nil {
		return err
	}

	potential, err := r.potentialResources(ctx, ca)
	if err != nil {
		if errs.KindOf(err) == errs.KindResourceInformationNotAvailable {
			lFunc.Warnf("no resource information for CA %s, skipping", ca.Name)
			return nil
		}
		return err
	}

	if ca.Type.IsManaged() {
		retained, err := r.store.retainedResources(ctx, ca)
		if err != nil {
			return err
		}
		if !retained.IsEmpty() {
			lFunc.Debugf("CA %s retains %s for its children", ca.Name, retained)
			potential = potential.Union(retained)
		}
	}

	parentRole, err := r.roles.ParentRoleFor(parent)
	if err != nil {
		return err
	}
	childRole, err := r.roles.ChildRoleFor(ca, parent)
	if err != nil {
		return err
	}

	listResponse, err := parentRole.ProcessResourceClassListQuery(ctx, ca, models.ResourceClassListQuery{Resources: potential})
	if err != nil {
		return err
	}

	requests, err := childRole.ProcessResourceClassListResponse(ctx, *listResponse)
	if err != nil {
		return err
	}

	for _, request := range requests {
		switch req := request.(type) {
		case *models.CertificateIssuanceRequest:
			resp, err := parentRole.ProcessCertificateIssuanceRequest(ctx, ca, *req)
			if err != nil {
				return err
			}
			if _, err := childRole.ProcessCertificateIssuanceResponse(ctx, *resp); err != nil {
				return err
			}
		case *models.CertificateRevocationRequest:
			resp, err := parentRole.ProcessCertificateRevocationRequest(ctx, ca, *req)
			if err != nil {
				return err
			}
			if _, err := childRole.ProcessCertificateRevocationResponse(ctx, *resp); err != nil {
				return err
			}
		}
	}

	lFunc.Debugf("CA %s processed %d provisioning requests", ca.Name, len(requests))
	return nil
}

// certifyTrustAnchor makes sure every live key of the All Resources CA holds a
// current self-signed certificate.
func (r *reconciler) certifyTrustAnchor(ctx context.Context, ca *models.CertificateAuthority) error {
	kps, err := r.repos.keyPairs.SelectByCA(ctx, ca.ID)
	if err != nil {
		return err
	}

	live := 0
	for _, kp := range kps {
		if kp.Status != models.KeyPairRevoked {
			live++
		}
	}
	if live == 0 {
		kp, err := r.lifecycle.CreateNewKeyPair(ctx, ca)
		if err != nil {
			return err
		}
		kps = append(kps, *kp)
	}

	for i := range kps {
		kp := &kps[i]
		switch kp.Status {
		case models.KeyPairRevoked:
			continue
		case models.KeyPairMustRevoke:
			if _, err := r.lifecycle.RevokeKeyPair(ctx, ca, kp); err != nil {
				return err
			}
			continue
		}

		issued, err := r.store.CertifyTrustAnchorKey(ctx, ca, kp)
		if err != nil {
			return err
		}
		if issued == nil {
			continue
		}
		if _, err := r.lifecycle.UpdateIncomingResourceCertificate(ctx, ca, kp, *issued); err != nil {
			return err
		}
	}

	return nil
}

// ReconcileAll walks the CA tree depth first and reconciles every CA with its
// parent. A parent is visited again after its children when anything below it
// changed, so the resources it retained for them are released in the same
// pass.
func ReconcileAll(ctx context.Context, logger *logrus.Entry, commands services.CommandService, queries services.QueryService) (bool, error) {
	lFunc := chelpers.ConfigureLogger(ctx, logger)

	cas, err := queries.GetCAs(ctx)
	if err != nil {
		return false, err
	}

	children := map[uint][]models.CertificateAuthority{}
	roots := []models.CertificateAuthority{}
	for _, ca := range cas {
		if ca.ParentID == nil {
			roots = append(roots, ca)
			continue
		}
		children[*ca.ParentID] = append(children[*ca.ParentID], ca)
	}

	var failures []error
	reconcile := func(ca models.CertificateAuthority) bool {
		res, err := commands.Handle(ctx, services.UpdateAllIncomingResourceCertificatesCommand{CA: ca.VersionedID()})
		if err != nil {
			lFunc.WithFields(logrus.Fields{
				"ca_id":      ca.ID,
				"ca_name":    ca.Name,
				"error_kind": errs.KindOf(err).String(),
			}).Errorf("could not reconcile CA %d (%s): %s", ca.ID, ca.Name, err)
			failures = append(failures, fmt.Errorf("CA %d (%s): %w", ca.ID, ca.Name, err))
			return false
		}
		return res.HasEffect
	}

	var walk func(ca models.CertificateAuthority) bool
	walk = func(ca models.CertificateAuthority) bool {
		changed := reconcile(ca)

		below := false
		for _, child := range children[ca.ID] {
			if walk(child) {
				below = true
			}
		}
		if below {
			lFunc.Debugf("revisiting CA %s after changes below it", ca.Name)
			reconcile(ca)
		}

		return changed || below
	}

	changed := false
	for _, root := range roots {
		if walk(root) {
			changed = true
		}
	}

	lFunc.Infof("reconciled %d CAs, changes: %v, failures: %d", len(cas), changed, len(failures))
	return changed, errors.Join(failures...)
}
