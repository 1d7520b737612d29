package helpers

import (
	"context"
	"sync"

	"github.com/lamassuiot/rpki-core/core/pkg/models"
)

type unitOfWorkKey struct{}

// UnitOfWork collects what a command did: whether anything was written and
// which domain events were raised.
type UnitOfWork struct {
	mu      sync.Mutex
	changes int
	events  []models.Event
}

func WithUnitOfWork(ctx context.Context) (context.Context, *UnitOfWork) {
	uow := &UnitOfWork{}
	return context.WithValue(ctx, unitOfWorkKey{}, uow), uow
}

func UnitOfWorkFromContext(ctx context.Context) *UnitOfWork {
	uow, _ := ctx.Value(unitOfWorkKey{}).(*UnitOfWork)
	return uow
}

// MarkChanged records a persisted write. Without a unit of work in the
// context it does nothing.
func MarkChanged(ctx context.Context) {
	if uow := UnitOfWorkFromContext(ctx); uow != nil {
		uow.mu.Lock()
		uow.changes++
		uow.mu.Unlock()
	}
}

func RecordEvent(ctx context.Context, events ...models.Event) {
	if uow := UnitOfWorkFromContext(ctx); uow != nil {
		uow.mu.Lock()
		uow.events = append(uow.events, events...)
		uow.mu.Unlock()
	}
}

func (u *UnitOfWork) HasEffect() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.changes > 0
}

func (u *UnitOfWork) Changes() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.changes
}

func (u *UnitOfWork) Events() []models.Event {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]models.Event{}, u.events...)
}
