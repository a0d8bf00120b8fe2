package outboxmigrations

import (
	"context"
	"fmt"

	"gitea.xscloud.ru/xscloud/reporter/pkg/application/logging"
	liberr "gitea.xscloud.ru/xscloud/reporter/pkg/common/errors"
	"gitea.xscloud.ru/xscloud/reporter/pkg/common/io"
	libmigrator "gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/migrator"
	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/mysql"
)

// NewOutboxMigrator creates the outbox tables of transport. The connection
// stays open until release is called.
func NewOutboxMigrator(
	ctx context.Context,
	pool mysql.ConnectionPool,
	logger logging.Logger,
	transport string,
) (migrator libmigrator.Migrator, release io.CloserFunc, err error) {
	if transport == "" {
		panic("transport cannot be empty")
	}

	conn, err := pool.TransactionalConnection(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil {
			err = liberr.Join(err, conn.Close())
		}
	}()

	tablePrefix := fmt.Sprintf("outbox_%s", transport)
	factory := libmigrator.NewMigratorFactory(tablePrefix, conn, logger.WithField("migrator", tablePrefix))

	migrations := make([]libmigrator.Migration, 0, len(builderFunctions))
	for _, builder := range builderFunctions {
		migrations = append(migrations, builder(conn, transport))
	}

	migrator, err = factory.NewMigrator(ctx, migrations...)
	if err != nil {
		return nil, nil, err
	}
	return migrator, conn.Close, nil
}

var builderFunctions = []func(client mysql.ClientContext, transport string) libmigrator.Migration{
	newVersion1762198457,
	newVersion1762551106,
}
