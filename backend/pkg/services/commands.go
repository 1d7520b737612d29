package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lamassuiot/rpki-core/backend/pkg/x509engines"
	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

type CommandMiddleware func(services.CommandService) services.CommandService

type CommandServiceBackend struct {
	logger     *logrus.Entry
	storage    storage.StorageEngine
	repos      *repositories
	locks      *caLocks
	store      *ResourceCertificateStore
	lifecycle  *KeyPairLifecycle
	roles      *provisioning
	reconciler *reconciler
	manifests  *manifestIssuer
	now        func() time.Time
}

type CommandServiceBuilder struct {
	Logger           *logrus.Entry
	Storage          storage.StorageEngine
	KeyPairs         *KeyPairServiceBackend
	ResourceLookup   services.ResourceLookupService
	Layout           RepositoryLayout
	Limits           *IssuanceLimits
	ManifestValidity time.Duration
	Clock            func() time.Time
}

func NewCommandService(builder CommandServiceBuilder) (*CommandServiceBackend, error) {
	if builder.KeyPairs == nil {
		return nil, fmt.Errorf("a key pair service is required")
	}
	if builder.ResourceLookup == nil {
		return nil, fmt.Errorf("a resource lookup service is required")
	}

	repos, err := newRepositories(builder.Storage)
	if err != nil {
		return nil, err
	}

	clock := builder.Clock
	if clock == nil {
		clock = time.Now
	}
	limits := DefaultIssuanceLimits()
	if builder.Limits != nil {
		limits = *builder.Limits
	}
	validity := builder.ManifestValidity
	if validity <= 0 {
		validity = DefaultManifestValidity
	}

	x509Engine := x509engines.NewResourceCertificateEngine(builder.Logger)

	store := &ResourceCertificateStore{
		logger:     builder.Logger,
		repos:      repos,
		x509Engine: x509Engine,
		keys:       builder.KeyPairs,
		layout:     builder.Layout,
		limits:     limits,
		now:        clock,
	}
	lifecycle := &KeyPairLifecycle{
		logger: builder.Logger,
		repos:  repos,
		keys:   builder.KeyPairs,
		store:  store,
		now:    clock,
	}
	roles := &provisioning{
		logger:    builder.Logger,
		repos:     repos,
		store:     store,
		lifecycle: lifecycle,
		layout:    builder.Layout,
		limits:    limits,
		now:       clock,
	}

	return &CommandServiceBackend{
		logger:    builder.Logger,
		storage:   builder.Storage,
		repos:     repos,
		locks:     newCALocks(),
		store:     store,
		lifecycle: lifecycle,
		roles:     roles,
		reconciler: &reconciler{
			logger:    builder.Logger,
			repos:     repos,
			store:     store,
			lifecycle: lifecycle,
			roles:     roles,
			lookup:    builder.ResourceLookup,
			now:       clock,
		},
		manifests: &manifestIssuer{
			logger:     builder.Logger,
			repos:      repos,
			x509Engine: x509Engine,
			keys:       builder.KeyPairs,
			layout:     builder.Layout,
			validity:   validity,
			now:        clock,
		},
		now: clock,
	}, nil
}

// dispatch runs the handler of the command and returns its response and the
// CA the command ended up applying to.
func (svc *CommandServiceBackend) dispatch(ctx context.Context, cmd services.Command, plan *lockPlan) (interface{}, uint, error) {
	var targetID uint
	if plan.target != nil {
		targetID = plan.target.ID
	}

	switch c := cmd.(type) {
	case services.CreateCACommand:
		ca, err := svc.createCA(ctx, c, plan.parent)
		if err != nil {
			return nil, 0, err
		}
		return ca, ca.ID, nil

	case services.UpdateAllIncomingResourceCertificatesCommand:
		return nil, targetID, svc.reconciler.Execute(ctx, plan.target)

	case services.InitiateKeyRollCommand:
		return nil, targetID, svc.reconciler.InitiateKeyRoll(ctx, plan.target, c.MaxAgeDays)

	case services.ActivatePendingKeysCommand:
		return nil, targetID, svc.reconciler.ActivatePendingKeys(ctx, plan.target, c.MinStagingTime)

	case services.RevokeOldKeysCommand:
		return nil, targetID, svc.reconciler.RevokeOldKeys(ctx, plan.target)

	case services.ProcessNonHostedProvisioningRequestCommand:
		response, err := svc.processNonHostedRequest(ctx, plan.target, plan.parent, c.Request)
		return response, targetID, err

	case services.DeleteCACommand:
		return nil, targetID, svc.deleteCA(ctx, plan.target, plan.parent)

	case services.IssueUpdatedManifestAndCrlCommand:
		return nil, targetID, svc.manifests.IssueUpdatedManifestAndCrl(ctx, plan.target)

	case services.ExpireOutgoingResourceCertificatesCommand:
		_, err := svc.store.ExpireCertificates(ctx, plan.target)
		return nil, targetID, err

	case services.DeleteWithdrawnPublishedObjectsCommand:
		deleted, err := svc.manifests.DeleteWithdrawnPublishedObjects(ctx, c.RetentionPeriod)
		return deleted, 0, err
	}

	return nil, targetID, errs.New(string(cmd.CommandType()), errs.KindValidation, targetID, fmt.Errorf("%w: unsupported command %T", errs.ErrValidateBadRequest, cmd))
}

func (svc *CommandServiceBackend) createCA(ctx context.Context, cmd services.CreateCACommand, parent *models.CertificateAuthority) (*models.CertificateAuthority, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)
	op := string(cmd.CommandType())
	name := strings.TrimSpace(cmd.CAName())

	exists, _, err := svc.repos.cas.SelectExistsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errs.New(op, errs.KindValidation, 0, fmt.Errorf("%w: %s", errs.ErrCAAlreadyExists, name))
	}

	ca := &models.CertificateAuthority{
		UUID: uuid.NewString(),
		Name: name,
		Type: cmd.CAType(),
	}

	if cmd.CAType() == models.CATypeAllResources {
		existing, err := svc.repos.cas.SelectByType(ctx, models.CATypeAllResources)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, errs.New(op, errs.KindValidation, 0, fmt.Errorf("%w: All Resources CA %s is already set up", errs.ErrCAAlreadyExists, existing[0].Name))
		}
	} else {
		if !parent.Type.CanBeParentOf(cmd.CAType()) {
			return nil, errs.New(op, errs.KindInvalidState, parent.ID, fmt.Errorf("%w: a %s CA cannot be the parent of a %s CA", errs.ErrCAType, parent.Type, cmd.CAType()))
		}
		ca.ParentID = &parent.ID
	}

	ca, err = svc.repos.cas.Insert(ctx, ca)
	if err != nil {
		lFunc.Errorf("could not insert CA %s: %s", name, err)
		return nil, err
	}

	lFunc.Infof("created %s CA %s with id %d", ca.Type, ca.Name, ca.ID)
	chelpers.RecordEvent(ctx, models.NewEvent(models.EventCACreated, ca.ID, ca.UUID, svc.now()).
		With("name", ca.Name).
		With("type", string(ca.Type)))

	if ca.Type == models.CATypeAllResources {
		if err := svc.reconciler.Execute(ctx, ca); err != nil {
			return nil, err
		}
	}

	return ca, nil
}

func (svc *CommandServiceBackend) processNonHostedRequest(ctx context.Context, ca, parent *models.CertificateAuthority, request interface{}) (interface{}, error) {
	op := string(models.CommandProcessNonHostedProvisioning)
	if ca.Type != models.CATypeNonHosted {
		return nil, errs.New(op, errs.KindInvalidState, ca.ID, fmt.Errorf("%w: CA %s is %s", errs.ErrCAType, ca.Name, ca.Type))
	}

	parentRole, err := svc.roles.ParentRoleFor(parent)
	if err != nil {
		return nil, err
	}
	child := &nonHostedChild{provisioning: svc.roles, ca: ca}

	certifiable := func() (models.ResourceSet, error) {
		potential, err := svc.reconciler.potentialResources(ctx, ca)
		if err != nil {
			return models.ResourceSet{}, err
		}
		list, err := parentRole.ProcessResourceClassListQuery(ctx, ca, models.ResourceClassListQuery{Resources: potential})
		if err != nil {
			return models.ResourceSet{}, err
		}
		return list.CertifiableResources, nil
	}

	switch req := request.(type) {
	case *models.ResourceClassListQuery:
		resources, err := certifiable()
		if err != nil {
			return nil, err
		}
		return &models.ResourceClassListResponse{ClassName: models.DefaultResourceClassName, CertifiableResources: resources}, nil

	case *models.CertificateIssuanceRequest:
		resources, err := certifiable()
		if err != nil {
			return nil, err
		}
		return child.AcceptIssuanceRequest(ctx, parentRole, resources, *req)

	case *models.CertificateRevocationRequest:
		return child.AcceptRevocationRequest(ctx, parentRole, *req)
	}

	return nil, errs.New(op, errs.KindValidation, ca.ID, fmt.Errorf("%w: unsupported request %T", errs.ErrValidateBadRequest, request))
}

// deleteCA revokes everything the CA holds with its parent before removing
// it. CAs with children cannot be deleted.
func (svc *CommandServiceBackend) deleteCA(ctx context.Context, ca, parent *models.CertificateAuthority) error {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)
	op := string(models.CommandDeleteCA)

	children, err := svc.repos.cas.SelectChildren(ctx, ca.ID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return errs.New(op, errs.KindValidation, ca.ID, errs.ErrCAHasChildren).
			WithDetail("children", len(children))
	}

	if ca.Type.IsManaged() {
		kps, err := svc.repos.keyPairs.SelectByCA(ctx, ca.ID)
		if err != nil {
			return err
		}
		for i := range kps {
			kp := &kps[i]
			switch kp.Status {
			case models.KeyPairRevoked:
			case models.KeyPairNew:
				if err := svc.repos.keyPairs.Delete(ctx, kp.ID); err != nil {
					return err
				}
				svc.lifecycle.keys.Unload(kp)
				continue
			default:
				if err := svc.reconciler.revokeWithParent(ctx, ca, kp); err != nil {
					return err
				}
			}
		}

		kps, err = svc.repos.keyPairs.SelectByCA(ctx, ca.ID)
		if err != nil {
			return err
		}
		for i := range kps {
			if err := svc.lifecycle.RemoveKeyPair(ctx, ca, &kps[i]); err != nil {
				return err
			}
		}
	} else {
		parentRole, err := svc.roles.ParentRoleFor(parent)
		if err != nil {
			return err
		}
		keys, err := svc.repos.nonHosted.SelectByCA(ctx, ca.ID)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := parentRole.ProcessCertificateRevocationRequest(ctx, ca, models.CertificateRevocationRequest{
				ClassName:        models.DefaultResourceClassName,
				SubjectPublicKey: key.PublicKey,
				SubjectKeyID:     key.SubjectKeyID,
			}); err != nil {
				return err
			}
		}
		if err := svc.repos.nonHosted.DeleteByCA(ctx, ca.ID); err != nil {
			return err
		}
	}

	if err := svc.repos.audits.DeleteByCA(ctx, ca.ID); err != nil {
		return err
	}
	if err := svc.repos.cas.Delete(ctx, ca.ID); err != nil {
		return err
	}

	lFunc.Infof("deleted %s CA %s", ca.Type, ca.Name)
	chelpers.RecordEvent(ctx, models.NewEvent(models.EventCADeleted, ca.ID, ca.UUID, svc.now()).
		With("name", ca.Name))
	return nil
}
