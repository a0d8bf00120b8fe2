package outbox

import (
	"context"

	"gitea.xscloud.ru/xscloud/reporter/pkg/application/outbox"
	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/mysql"
)

// NewEventDispatcher writes events into the outbox table of transportName.
// Pass the unit of work the application uses for its own writes to store
// events in the same transaction.
func NewEventDispatcher[E outbox.Event](
	appID string,
	transportName string,
	serializer outbox.EventSerializer[E],
	uow mysql.UnitOfWork[mysql.ClientContext],
) outbox.EventDispatcher[E] {
	if transportName == "" {
		panic("transport name cannot be empty")
	}
	return &eventDispatcher[E]{
		appID:      appID,
		serializer: serializer,
		storage: &eventStorage{
			uow:           uow,
			transportName: transportName,
		},
	}
}

type eventDispatcher[E outbox.Event] struct {
	appID      string
	serializer outbox.EventSerializer[E]

	storage *eventStorage
}

func (d *eventDispatcher[E]) Dispatch(ctx context.Context, event E) error {
	msg, err := d.serializer.Serialize(event)
	if err != nil {
		return err
	}

	correlationID, err := newCorrelationID(d.appID, msg)
	if err != nil {
		return err
	}

	return d.storage.append(ctx, storedEvent{
		CorrelationID: correlationID,
		EventType:     event.Type(),
		Payload:       msg,
	})
}
