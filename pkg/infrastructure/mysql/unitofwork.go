package mysql

import (
	"context"

	liberrors "github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/reporter/pkg/common/errors"
	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/sharedpool"
)

type RepositoryProviderBuilder[RepositoryProvider any] func(client ClientContext) RepositoryProvider

// UnitOfWork runs callbacks in a transaction. Callbacks on the same context
// join the outer transaction; any failing callback rolls the whole of it back.
type UnitOfWork[RepositoryProvider any] interface {
	ExecuteWithUnitOfWork(ctx context.Context, callback func(provider RepositoryProvider) error) error
}

func NewUnitOfWork[RepositoryProvider any](
	pool ConnectionPool,
	builder RepositoryProviderBuilder[RepositoryProvider],
) UnitOfWork[RepositoryProvider] {
	return &unitOfWork[RepositoryProvider]{
		pool:    newTransactionPool(pool),
		builder: builder,
	}
}

// NewClientUnitOfWork hands the transaction itself to callbacks.
func NewClientUnitOfWork(pool ConnectionPool) UnitOfWork[ClientContext] {
	return NewUnitOfWork[ClientContext](pool, func(client ClientContext) ClientContext {
		return client
	})
}

type unitOfWork[RepositoryProvider any] struct {
	pool    *sharedpool.Pool[context.Context, *wrappedTransaction]
	builder RepositoryProviderBuilder[RepositoryProvider]
}

func (uow *unitOfWork[RepositoryProvider]) ExecuteWithUnitOfWork(ctx context.Context, callback func(provider RepositoryProvider) error) (err error) {
	sharedTransaction, err := uow.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sharedTransaction.Release())
	}()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Recovered(r)
		}
		if err != nil {
			sharedTransaction.Value().markRollback()
		}
	}()

	err = callback(uow.builder(sharedTransaction.Value()))
	return err
}

func newTransactionPool(pool ConnectionPool) *sharedpool.Pool[context.Context, *wrappedTransaction] {
	return sharedpool.NewPool[context.Context, *wrappedTransaction](
		func(ctx context.Context) (*wrappedTransaction, sharedpool.WrappedValueReleaseFunc, error) {
			conn, err := pool.TransactionalConnection(ctx)
			if err != nil {
				return nil, nil, err
			}

			transaction, err := conn.BeginTransaction(ctx, nil)
			if err != nil {
				return nil, nil, errors.Join(liberrors.WithStack(err), conn.Close())
			}

			wt := &wrappedTransaction{
				Transaction: transaction,
				state:       commit,
			}
			return wt, func() error {
				return errors.Join(wt.finish(), conn.Close())
			}, nil
		},
	)
}

const (
	commit = iota
	rollback
)

// wrappedTransaction defers commit or rollback to the release of the
// outermost unit of work.
type wrappedTransaction struct {
	Transaction
	state int
}

func (wt *wrappedTransaction) Commit() error {
	return nil
}

func (wt *wrappedTransaction) Rollback() error {
	wt.markRollback()
	return nil
}

func (wt *wrappedTransaction) markRollback() {
	wt.state = rollback
}

func (wt *wrappedTransaction) finish() error {
	var err error
	switch wt.state {
	case commit:
		err = wt.Transaction.Commit()
	case rollback:
		err = wt.Transaction.Rollback()
	}
	return liberrors.WithStack(err)
}
