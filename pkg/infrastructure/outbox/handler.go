package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	liberrors "github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/reporter/pkg/application/logging"
	liberr "gitea.xscloud.ru/xscloud/reporter/pkg/common/errors"
	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/mysql"
)

type Event struct {
	CorrelationID string
	EventType     string
	Payload       string
}

// Transport delivers a batch of outbox events, the batch is retried as a
// whole when it fails.
type Transport interface {
	HandleEvents(ctx context.Context, events []Event) error
}

type Handler interface {
	// Start relays events until ctx is done.
	Start(ctx context.Context) error
}

const defaultSendInterval = time.Second

type HandlerConfig struct {
	TransportName string
	BatchSize     uint
	SendInterval  time.Duration
	LockTimeout   time.Duration
}

func NewEventHandler(
	config HandlerConfig,
	transport Transport,
	pool mysql.ConnectionPool,
	logger logging.Logger,
) Handler {
	if config.TransportName == "" {
		panic("transport name cannot be empty")
	}
	if config.BatchSize == 0 {
		panic("batch size must be positive")
	}
	if config.SendInterval <= 0 {
		config.SendInterval = defaultSendInterval
	}
	return &handler{
		config:    config,
		transport: transport,
		pool:      pool,
		locker:    mysql.NewLocker(pool),
		logger:    logger.WithField("transport", config.TransportName),
	}
}

type handler struct {
	config    HandlerConfig
	transport Transport

	pool   mysql.ConnectionPool
	locker mysql.Locker
	logger logging.Logger
}

func (h *handler) Start(ctx context.Context) error {
	ticker := time.NewTicker(h.config.SendInterval)
	defer ticker.Stop()

	for {
		err := h.sendEvents(context.WithoutCancel(ctx))
		if err != nil && !errors.Is(err, mysql.ErrLockTimeout) {
			h.logger.Error(err, "failed to relay outbox events")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// sendEvents relays one batch. Only the leading run of events that is
// visible both with and without uncommitted rows is sent: an id seen only in
// the uncommitted read belongs to a transaction still in progress and
// everything after it waits, so events are delivered in id order.
func (h *handler) sendEvents(ctx context.Context) error {
	return h.locker.ExecuteWithLock(ctx, h.lockName(), h.config.LockTimeout, func() (err error) {
		conn, err := h.pool.TransactionalConnection(ctx)
		if err != nil {
			return err
		}
		defer func() {
			err = liberr.Join(err, conn.Close())
		}()

		lastTrackedEvent, err := h.lastTrackedEvent(ctx, conn)
		if err != nil {
			return err
		}

		committedEvents, err := h.unhandledEvents(ctx, conn, lastTrackedEvent, false)
		if err != nil || len(committedEvents) == 0 {
			return err
		}

		uncommittedEvents, err := h.unhandledEvents(ctx, conn, lastTrackedEvent, true)
		if err != nil {
			return err
		}

		var events []Event
		lastHandledEvent := lastTrackedEvent
		for i := 0; i < len(committedEvents) && i < len(uncommittedEvents); i++ {
			if uncommittedEvents[i].EventID != committedEvents[i].EventID {
				break
			}
			events = append(events, Event{
				CorrelationID: committedEvents[i].CorrelationID,
				EventType:     committedEvents[i].EventType,
				Payload:       committedEvents[i].Payload,
			})
			lastHandledEvent = committedEvents[i].EventID
		}
		if len(events) == 0 {
			return nil
		}

		err = h.transport.HandleEvents(ctx, events)
		if err != nil {
			h.logger.WithField("count", len(events)).Error(err, "transport failed to handle outbox events")
			return nil
		}

		return h.trackLastHandledEvent(ctx, conn, lastHandledEvent)
	})
}

func (h *handler) lastTrackedEvent(ctx context.Context, client mysql.ClientContext) (uint64, error) {
	var lastEventID uint64
	err := client.GetContext(ctx, &lastEventID, fmt.Sprintf(
		"SELECT last_tracked_event_id FROM %s WHERE transport_name = ?",
		trackedEventTableName(h.config.TransportName),
	), h.config.TransportName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, liberrors.WithStack(err)
	}
	return lastEventID, nil
}

func (h *handler) unhandledEvents(
	ctx context.Context,
	conn mysql.TransactionalConnection,
	lastTracked uint64,
	includeUncommitted bool,
) (events []storedEvent, err error) {
	var client mysql.ClientContext = conn
	if includeUncommitted {
		tx, err2 := conn.BeginTransaction(ctx, &sql.TxOptions{
			Isolation: sql.LevelReadUncommitted,
			ReadOnly:  true,
		})
		if err2 != nil {
			return nil, liberrors.WithStack(err2)
		}
		defer func() {
			err = liberr.Join(err, tx.Rollback())
		}()
		client = tx
	}

	err = client.SelectContext(ctx, &events, fmt.Sprintf(`
		SELECT
		    event_id,
		    correlation_id,
		    event_type,
		    payload
		FROM %s
		WHERE event_id > ?
		ORDER BY event_id
		LIMIT %d
	`, eventTableName(h.config.TransportName), h.config.BatchSize), lastTracked)
	if err != nil {
		return nil, liberrors.WithStack(err)
	}
	return events, nil
}

func (h *handler) trackLastHandledEvent(ctx context.Context, client mysql.ClientContext, lastHandledEvent uint64) error {
	_, err := client.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (transport_name, last_tracked_event_id) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE
			last_tracked_event_id = VALUES(last_tracked_event_id)
	`, trackedEventTableName(h.config.TransportName)), h.config.TransportName, lastHandledEvent)
	return liberrors.WithStack(err)
}

func (h *handler) lockName() string {
	return fmt.Sprintf("outbox_%s_handler", h.config.TransportName)
}
