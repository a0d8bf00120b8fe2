package outbox

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/mysql"
)

type storedEvent struct {
	EventID       uint64 `db:"event_id"`
	CorrelationID string `db:"correlation_id"`
	EventType     string `db:"event_type"`
	Payload       string `db:"payload"`
}

type eventStorage struct {
	uow           mysql.UnitOfWork[mysql.ClientContext]
	transportName string
}

func (s *eventStorage) append(ctx context.Context, event storedEvent) error {
	return s.uow.ExecuteWithUnitOfWork(ctx, func(client mysql.ClientContext) error {
		_, err := client.ExecContext(
			ctx,
			fmt.Sprintf(
				"INSERT INTO %s (correlation_id, event_type, payload) VALUES (?, ?, ?)",
				eventTableName(s.transportName),
			),
			event.CorrelationID, event.EventType, event.Payload,
		)
		return errors.WithStack(err)
	})
}

func eventTableName(transportName string) string {
	return fmt.Sprintf("outbox_%s_event", transportName)
}

func trackedEventTableName(transportName string) string {
	return fmt.Sprintf("outbox_%s_tracked_event", transportName)
}
