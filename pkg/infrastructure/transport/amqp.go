package transport

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/reporter/pkg/application/reporter"
	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/amqp"
	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/outbox"
)

type RoutingKeyFunc func(event string) string

type AMQPSenderConfig struct {
	// RoutingKey maps an event to its routing key, the event name when nil.
	RoutingKey RoutingKeyFunc
}

func (c AMQPSenderConfig) routingKeyFunc() RoutingKeyFunc {
	if c.RoutingKey != nil {
		return c.RoutingKey
	}
	return func(event string) string {
		return event
	}
}

// NewAMQPSender publishes each event as a JSON message and returns the
// correlation id of the published message.
func NewAMQPSender(producer amqp.Producer, config AMQPSenderConfig) reporter.Sender[string] {
	return &amqpSender{
		producer:   producer,
		routingKey: config.routingKeyFunc(),
	}
}

type amqpSender struct {
	producer   amqp.Producer
	routingKey RoutingKeyFunc
}

func (s *amqpSender) Send(ctx context.Context, event string, params reporter.Params) (string, error) {
	body, err := marshalRequest(reporter.Request{Event: event, Params: params})
	if err != nil {
		return "", err
	}

	correlationID, err := uuid.NewV7()
	if err != nil {
		return "", errors.WithStack(err)
	}

	err = s.producer.Publish(ctx, amqp.Delivery{
		RoutingKey:    s.routingKey(event),
		CorrelationID: correlationID.String(),
		ContentType:   jsonContentType,
		Type:          event,
		Body:          body,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to publish event %q", event)
	}
	return correlationID.String(), nil
}

// NewAMQPOutboxTransport publishes outbox batches, it is meant for
// outbox.NewEventHandler. Events keep the correlation id given by the outbox.
func NewAMQPOutboxTransport(producer amqp.Producer, config AMQPSenderConfig) outbox.Transport {
	return &amqpOutboxTransport{
		producer:   producer,
		routingKey: config.routingKeyFunc(),
	}
}

type amqpOutboxTransport struct {
	producer   amqp.Producer
	routingKey RoutingKeyFunc
}

// HandleEvents stops at the first failure, the whole batch is sent again later
// so consumers must tolerate duplicates by correlation id.
func (t *amqpOutboxTransport) HandleEvents(ctx context.Context, events []outbox.Event) error {
	for _, event := range events {
		err := t.producer.Publish(ctx, amqp.Delivery{
			RoutingKey:    t.routingKey(event.EventType),
			CorrelationID: event.CorrelationID,
			ContentType:   jsonContentType,
			Type:          event.EventType,
			Body:          []byte(event.Payload),
		})
		if err != nil {
			return errors.Wrapf(err, "failed to publish outbox event %s", event.CorrelationID)
		}
	}
	return nil
}
