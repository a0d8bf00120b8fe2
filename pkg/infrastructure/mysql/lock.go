package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrLockTimeout   = errors.New("lock timed out")
	ErrLockNotLocked = errors.New("lock not locked")
	ErrLockNotFound  = errors.New("lock not found")
)

// Lock is a MySQL named lock, it is bound to the connection that took it.
type Lock interface {
	Lock() error
	Unlock() error
}

func NewLock(ctx context.Context, lockName string, timeout time.Duration, client ClientContext) Lock {
	return &lock{
		ctx:      ctx,
		lockName: lockName,
		timeout:  timeout,
		client:   client,
	}
}

type lock struct {
	ctx      context.Context
	lockName string
	timeout  time.Duration
	client   ClientContext
}

// Lock names are scoped by database and cut to the 64 characters MySQL allows.
func (l lock) Lock() error {
	const sqlQuery = "SELECT GET_LOCK(SUBSTRING(CONCAT(?, '.', DATABASE()), 1, 64), ?)"
	var result sql.NullInt32
	err := l.client.GetContext(l.ctx, &result, sqlQuery, l.lockName, int(l.timeout.Seconds()))
	if err != nil {
		return err
	}
	if !result.Valid || result.Int32 == 0 {
		return ErrLockTimeout
	}
	return nil
}

func (l lock) Unlock() error {
	const sqlQuery = "SELECT RELEASE_LOCK(SUBSTRING(CONCAT(?, '.', DATABASE()), 1, 64))"
	var result sql.NullInt32
	err := l.client.GetContext(l.ctx, &result, sqlQuery, l.lockName)
	switch {
	case err != nil:
		return err
	case !result.Valid:
		return ErrLockNotFound
	case result.Int32 == 0:
		return ErrLockNotLocked
	default:
		return nil
	}
}
