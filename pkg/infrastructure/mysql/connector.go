package mysql

import (
	"context"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	liberr "gitea.xscloud.ru/xscloud/reporter/pkg/common/errors"
)

const driverName = "mysql"

type Connector interface {
	Open(ctx context.Context, cfg Config) error
	Close() error

	TransactionalClient() TransactionalClient
}

type Config struct {
	DSN string

	MaxConnections        int
	ConnectionMaxLifeTime time.Duration
	ConnectionMaxIdleTime time.Duration
}

func NewConnector() Connector {
	return &connector{}
}

type connector struct {
	db *sqlx.DB
}

func (c *connector) Open(ctx context.Context, cfg Config) error {
	dsn, err := prepareDSN(cfg.DSN)
	if err != nil {
		return err
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return errors.WithStack(err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnectionMaxLifeTime)
	db.SetConnMaxIdleTime(cfg.ConnectionMaxIdleTime)

	if err = db.PingContext(ctx); err != nil {
		return liberr.Join(errors.WithStack(err), db.Close())
	}

	c.db = db
	return nil
}

func (c *connector) Close() error {
	if c.db == nil {
		return errors.New("db not initialized")
	}
	return c.db.Close()
}

func (c *connector) TransactionalClient() TransactionalClient {
	return &transactionalClient{c.db}
}

// prepareDSN makes the driver return DATETIME columns as time.Time.
func prepareDSN(dsn string) (string, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "invalid mysql dsn")
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}
