package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"golang.org/x/sync/semaphore"
)

// treeLockID serializes commands that change the top of the CA tree.
const treeLockID uint = 0

// caLocks holds one in-process lock per CA. Callers take them parent first.
type caLocks struct {
	mu    sync.Mutex
	locks map[uint]*semaphore.Weighted
}

func newCALocks() *caLocks {
	return &caLocks{locks: map[uint]*semaphore.Weighted{}}
}

func (l *caLocks) get(id uint) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.locks[id]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.locks[id] = sem
	}
	return sem
}

// Acquire takes the locks in order and returns the function releasing them.
func (l *caLocks) Acquire(ctx context.Context, ids ...uint) (func(), error) {
	acquired := make([]*semaphore.Weighted, 0, len(ids))
	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Release(1)
		}
	}

	for _, id := range ids {
		sem := l.get(id)
		if err := sem.Acquire(ctx, 1); err != nil {
			release()
			return nil, err
		}
		acquired = append(acquired, sem)
	}

	return release, nil
}

// lockPlan is what a command locks and runs against.
type lockPlan struct {
	target *models.CertificateAuthority
	parent *models.CertificateAuthority
	order  []uint
	rows   []uint
}

func (svc *CommandServiceBackend) selectCA(ctx context.Context, op string, id uint) (*models.CertificateAuthority, error) {
	exists, ca, err := svc.repos.cas.SelectExistsByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.New(op, errs.KindNotFound, id, fmt.Errorf("%w: %d", errs.ErrCANotFound, id))
	}
	return ca, nil
}

func (svc *CommandServiceBackend) planLocks(ctx context.Context, cmd services.Command) (*lockPlan, error) {
	op := string(cmd.CommandType())

	switch c := cmd.(type) {
	case services.CreateCACommand:
		if c.CAType() == models.CATypeAllResources {
			return &lockPlan{order: []uint{treeLockID}}, nil
		}
		parent, err := svc.selectCA(ctx, op, c.ParentCAID())
		if err != nil {
			return nil, err
		}
		return &lockPlan{parent: parent, order: []uint{parent.ID}, rows: []uint{parent.ID}}, nil

	case services.CACommand:
		target, err := svc.selectCA(ctx, op, c.TargetCA().ID)
		if err != nil {
			return nil, err
		}
		plan := &lockPlan{target: target}
		if target.ParentID != nil {
			parent, err := svc.selectCA(ctx, op, *target.ParentID)
			if err != nil {
				return nil, err
			}
			plan.parent = parent
			plan.order = append(plan.order, parent.ID)
		}
		plan.order = append(plan.order, target.ID)
		plan.rows = plan.order
		return plan, nil
	}

	return &lockPlan{}, nil
}

// errRollbackNoEffect unwinds the transaction of a command that changed
// nothing.
var errRollbackNoEffect = errors.New("command had no effect")

// Handle runs a command under the locks of the CAs it touches and inside one
// storage transaction. A command that changes nothing is rolled back and
// reported without effect. Otherwise the invariants are checked, the target
// CA version is bumped and the command is audited.
func (svc *CommandServiceBackend) Handle(ctx context.Context, cmd services.Command) (*models.CommandResult, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)
	op := string(cmd.CommandType())

	if err := validate.Struct(cmd); err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, errs.New(op, errs.KindValidation, 0, fmt.Errorf("%w: %s", errs.ErrValidateBadRequest, err))
	}

	plan, err := svc.planLocks(ctx, cmd)
	if err != nil {
		return nil, err
	}

	release, err := svc.locks.Acquire(ctx, plan.order...)
	if err != nil {
		return nil, err
	}
	defer release()

	uowCtx, uow := chelpers.WithUnitOfWork(ctx)
	var result *models.CommandResult

	err = svc.storage.Transaction(uowCtx, func(txCtx context.Context) error {
		for _, id := range plan.rows {
			ca, err := svc.repos.cas.LockByID(txCtx, id)
			if err != nil {
				return err
			}
			switch {
			case plan.target != nil && id == plan.target.ID:
				plan.target = ca
			case plan.parent != nil && id == plan.parent.ID:
				plan.parent = ca
			}
		}

		if c, ok := cmd.(services.CACommand); ok && cmd.CommandGroup() == models.CommandGroupUser {
			newer, err := svc.repos.audits.CountNewerThan(txCtx, plan.target.ID, c.TargetCA().Version)
			if err != nil {
				return err
			}
			if newer > 0 {
				lFunc.Warnf("CA %s changed %d times since version %d", plan.target.Name, newer, c.TargetCA().Version)
				return errs.New(op, errs.KindConcurrentModification, plan.target.ID, nil).
					WithDetail("version", c.TargetCA().Version).
					WithDetail("current", plan.target.Version)
			}
		}

		response, targetID, err := svc.dispatch(txCtx, cmd, plan)
		if err != nil && errs.KindOf(err) != errs.KindNoEffect {
			return err
		}

		if err != nil || !uow.HasEffect() {
			result = &models.CommandResult{
				CommandType: cmd.CommandType(),
				CAID:        targetID,
				Summary:     cmd.Summary(),
				Response:    response,
			}
			if plan.target != nil {
				result.CAVersion = plan.target.Version
			}
			return errRollbackNoEffect
		}

		_, deleted := cmd.(services.DeleteCACommand)
		checked := []uint{}
		if !deleted {
			checked = append(checked, targetID)
		}
		if plan.parent != nil {
			checked = append(checked, plan.parent.ID)
		}
		if err := svc.checkInvariants(txCtx, checked...); err != nil {
			return err
		}

		result = &models.CommandResult{
			CommandType: cmd.CommandType(),
			CAID:        targetID,
			HasEffect:   true,
			Summary:     cmd.Summary(),
			Response:    response,
		}
		if deleted || targetID == 0 {
			result.Events = uow.Events()
			return nil
		}

		ca, err := svc.selectCA(txCtx, op, targetID)
		if err != nil {
			return err
		}
		ca.Version++
		if _, err := svc.repos.cas.Update(txCtx, ca); err != nil {
			return err
		}
		if _, err := svc.repos.audits.Insert(txCtx, &models.CommandAudit{
			CAID:         ca.ID,
			CAVersion:    ca.Version,
			CommandType:  cmd.CommandType(),
			CommandGroup: cmd.CommandGroup(),
			Summary:      cmd.Summary(),
			ExecutedAt:   svc.now().UTC(),
		}); err != nil {
			return err
		}

		result.CAVersion = ca.Version
		result.Events = uow.Events()
		return nil
	})

	if errors.Is(err, errRollbackNoEffect) {
		lFunc.Debugf("%s had no effect", op)
		return result, nil
	}
	if err != nil {
		lFunc.Errorf("%s rejected: %s", op, err)
		return nil, err
	}

	lFunc.Infof("%s applied to CA %d, now at version %d with %d events", op, result.CAID, result.CAVersion, len(result.Events))
	return result, nil
}
