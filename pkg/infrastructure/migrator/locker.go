package migrator

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/mysql"
)

const migrationLockTimeout = time.Second * 5

func newLocker(tablePrefix string, client mysql.ClientContext) *locker {
	return &locker{
		lockName: tablePrefix + "_migration",
		client:   client,
	}
}

// locker keeps concurrently starting instances from applying the same migrations.
type locker struct {
	lockName string
	client   mysql.ClientContext
	lock     mysql.Lock
}

func (m *locker) Lock(ctx context.Context) error {
	if m.lock == nil {
		m.lock = mysql.NewLock(ctx, m.lockName, migrationLockTimeout, m.client)
	}
	return errors.WithStack(m.lock.Lock())
}

func (m *locker) Unlock() error {
	if m.lock == nil {
		return errors.New("migration locker is not locked")
	}
	return errors.WithStack(m.lock.Unlock())
}
