package transport

import (
	"context"

	"github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/reporter/pkg/application/logging"
	"gitea.xscloud.ru/xscloud/reporter/pkg/application/reporter"
	liberr "gitea.xscloud.ru/xscloud/reporter/pkg/common/errors"
	libio "gitea.xscloud.ru/xscloud/reporter/pkg/common/io"
	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/amqp"
	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/mysql"
	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/outbox"
	outboxmigrations "gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/outbox/migrations"
)

type OutboxPipelineConfig struct {
	AppID         string
	TransportName string

	MySQL mysql.Config

	AMQP     amqp.ConnectionConfig
	Exchange *amqp.ExchangeConfig
	Queue    *amqp.QueueConfig
	Bind     *amqp.BindConfig
	Routing  AMQPSenderConfig

	// Relay.TransportName is set from TransportName.
	Relay outbox.HandlerConfig
}

// OutboxPipeline stores reported events in MySQL and relays them to AMQP.
// Run Relay.Start in its own goroutine and Close the pipeline after it returned.
type OutboxPipeline struct {
	Sender reporter.Sender[struct{}]
	// UnitOfWork is the one Sender writes through, share it with the
	// application to report events in its transactions.
	UnitOfWork mysql.UnitOfWork[mysql.ClientContext]
	Relay      outbox.Handler

	closer libio.MultiCloser
}

func (p *OutboxPipeline) Close() error {
	return p.closer.Close()
}

func NewOutboxPipeline(ctx context.Context, config OutboxPipelineConfig, logger logging.Logger) (_ *OutboxPipeline, err error) {
	if config.TransportName == "" {
		return nil, errors.New("outbox transport name is required")
	}
	if config.Exchange == nil && config.Queue == nil {
		return nil, errors.New("amqp exchange or queue config is required")
	}
	logger = logger.WithField("transport", config.TransportName)

	closer := libio.NewMultiCloser()
	defer func() {
		if err != nil {
			err = liberr.Join(err, closer.Close())
		}
	}()

	connector := mysql.NewConnector()
	if err = connector.Open(ctx, config.MySQL); err != nil {
		return nil, err
	}
	closer.AddCloser(connector)

	pool := mysql.NewConnectionPool(connector.TransactionalClient())
	if err = migrateOutbox(ctx, pool, logger, config.TransportName); err != nil {
		return nil, err
	}

	conn := amqp.NewAMQPConnection(config.AppID, &config.AMQP, logger)
	producer := conn.Producer(config.Exchange, config.Queue, config.Bind)
	if err = conn.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to amqp")
	}
	closer.AddCloser(libio.CloserFunc(conn.Stop))

	relayConfig := config.Relay
	relayConfig.TransportName = config.TransportName

	uow := mysql.NewClientUnitOfWork(pool)
	return &OutboxPipeline{
		Sender:     NewOutboxSender(config.AppID, config.TransportName, uow),
		UnitOfWork: uow,
		Relay:      outbox.NewEventHandler(relayConfig, NewAMQPOutboxTransport(producer, config.Routing), pool, logger),
		closer:     closer,
	}, nil
}

func migrateOutbox(ctx context.Context, pool mysql.ConnectionPool, logger logging.Logger, transportName string) error {
	migrator, release, err := outboxmigrations.NewOutboxMigrator(ctx, pool, logger, transportName)
	if err != nil {
		return err
	}
	return liberr.Join(migrator.Migrate(), release.Close())
}
