package mysql

import (
	"context"
	"sync"
	"time"

	liberr "gitea.xscloud.ru/xscloud/reporter/pkg/common/errors"
	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/sharedpool"
)

type Locker interface {
	ExecuteWithLock(ctx context.Context, lockName string, lockTimeout time.Duration, callback func() error) error
}

func NewLocker(pool ConnectionPool) Locker {
	return &locker{
		pool: sharedpool.NewPool[context.Context, *lockedConnection](
			func(ctx context.Context) (*lockedConnection, sharedpool.WrappedValueReleaseFunc, error) {
				conn, err := pool.TransactionalConnection(ctx)
				if err != nil {
					return nil, nil, err
				}
				lc := &lockedConnection{conn: conn}
				return lc, lc.release, nil
			},
		),
	}
}

type locker struct {
	pool *sharedpool.Pool[context.Context, *lockedConnection]
}

func (l *locker) ExecuteWithLock(ctx context.Context, lockName string, lockTimeout time.Duration, callback func() error) (err error) {
	lc, err := l.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = liberr.Join(err, lc.Release())
	}()

	err = lc.Value().appendLock(ctx, lockName, lockTimeout)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = liberr.Join(err, liberr.Recovered(r))
		}
	}()

	err = callback()
	return err
}

// lockedConnection keeps named locks of one context on a single connection,
// MySQL releases them when that connection goes away.
type lockedConnection struct {
	conn TransactionalConnection

	mu    sync.Mutex
	locks []Lock
}

func (lc *lockedConnection) appendLock(ctx context.Context, lockName string, lockTimeout time.Duration) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lock := NewLock(ctx, lockName, lockTimeout, lc.conn)
	err := lock.Lock()
	if err != nil {
		return err
	}
	lc.locks = append(lc.locks, lock)
	return nil
}

func (lc *lockedConnection) release() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	var err error
	for i := len(lc.locks) - 1; i >= 0; i-- {
		err = liberr.Join(err, lc.locks[i].Unlock())
	}
	lc.locks = nil
	return liberr.Join(err, lc.conn.Close())
}
