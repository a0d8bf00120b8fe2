package mysql

import (
	"context"
	"time"
)

type LockableUnitOfWork[RepositoryProvider any] interface {
	UnitOfWork[RepositoryProvider]
	ExecuteWithLockableUnitOfWork(ctx context.Context, lockName string, lockTimeout time.Duration, callback func(provider RepositoryProvider) error) error
}

func NewLockableUnitOfWork[RepositoryProvider any](
	unitOfWork UnitOfWork[RepositoryProvider],
	locker Locker,
) LockableUnitOfWork[RepositoryProvider] {
	return &lockableUnitOfWork[RepositoryProvider]{
		UnitOfWork: unitOfWork,
		locker:     locker,
	}
}

type lockableUnitOfWork[RepositoryProvider any] struct {
	UnitOfWork[RepositoryProvider]
	locker Locker
}

// The lock is taken before the transaction starts and released after it ends.
func (uow *lockableUnitOfWork[RepositoryProvider]) ExecuteWithLockableUnitOfWork(ctx context.Context, lockName string, lockTimeout time.Duration, callback func(provider RepositoryProvider) error) error {
	return uow.locker.ExecuteWithLock(ctx, lockName, lockTimeout, func() error {
		return uow.ExecuteWithUnitOfWork(ctx, callback)
	})
}
