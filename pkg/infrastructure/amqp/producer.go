package amqp

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	liberr "gitea.xscloud.ru/xscloud/reporter/pkg/common/errors"
)

var (
	ErrChannelEmpty    = stderrors.New("amqp channel is empty")
	ErrChannelClosed   = stderrors.New("amqp channel is closed")
	ErrPublishRejected = stderrors.New("broker did not confirm delivery")
)

type Delivery struct {
	RoutingKey    string
	CorrelationID string
	ContentType   string
	Type          string
	Headers       map[string]interface{}
	Body          []byte
}

type Producer interface {
	Channel
	Publish(ctx context.Context, delivery Delivery) error
}

func NewProducer(
	appID string,
	exchangeConfig *ExchangeConfig,
	queueConfig *QueueConfig,
	bindConfig *BindConfig,
	logger Logger,
) Producer {
	if exchangeConfig == nil && queueConfig == nil {
		panic("exchange or queue config is required")
	}
	return &producer{
		appID:          appID,
		exchangeConfig: exchangeConfig,
		queueConfig:    queueConfig,
		bindConfig:     bindConfig,
		logger:         logger,
	}
}

type producer struct {
	appID          string
	exchangeConfig *ExchangeConfig
	queueConfig    *QueueConfig
	bindConfig     *BindConfig
	logger         Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func (p *producer) Connect(conn *amqp.Connection) (err error) {
	channel, err := conn.Channel()
	if err != nil {
		return err
	}
	err = validateChannel(channel)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = liberr.Join(err, channel.Close())
		}
	}()

	if p.exchangeConfig != nil {
		err = exchangeDeclare(*p.exchangeConfig, channel)
		if err != nil {
			return err
		}
	}

	if p.queueConfig != nil {
		err = queueDeclare(*p.queueConfig, channel)
		if err != nil {
			return err
		}
	}

	if p.bindConfig != nil {
		err = bindDeclare(*p.bindConfig, channel)
		if err != nil {
			return err
		}
	}

	err = channel.Confirm(false)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = channel
	p.mu.Unlock()

	connErrorChan := channel.NotifyClose(make(chan *amqp.Error, 1))
	go p.processConnectErrors(connErrorChan)

	return nil
}

// Publish waits until the broker confirms the delivery.
func (p *producer) Publish(ctx context.Context, delivery Delivery) error {
	p.mu.RLock()
	channel := p.channel
	p.mu.RUnlock()

	err := validateChannel(channel)
	if err != nil {
		return err
	}

	var exchange string
	routingKey := delivery.RoutingKey
	if p.exchangeConfig != nil {
		exchange = p.exchangeConfig.Name
	} else if routingKey == "" {
		routingKey = p.queueConfig.Name
	}

	deferredConfirmation, err := channel.PublishWithDeferredConfirmWithContext(
		ctx,
		exchange,
		routingKey,
		true,
		false,
		amqp.Publishing{
			Headers:       amqp.Table(delivery.Headers),
			ContentType:   delivery.ContentType,
			DeliveryMode:  amqp.Persistent,
			CorrelationId: delivery.CorrelationID,
			Timestamp:     time.Now(),
			Type:          delivery.Type,
			AppId:         p.appID,
			Body:          delivery.Body,
		},
	)
	if err != nil {
		return err
	}
	if deferredConfirmation == nil {
		return nil
	}
	publishOk, err := deferredConfirmation.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !publishOk {
		return ErrPublishRejected
	}
	return nil
}

func (p *producer) processConnectErrors(ch chan *amqp.Error) {
	err, ok := <-ch
	if !ok || err == nil {
		return
	}

	p.logger.Error(err, "AMQP channel error, trying to reconnect")
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	for !conn.IsClosed() {
		err := p.Connect(conn)
		if err == nil {
			p.logger.Info("AMQP channel restored")
			return
		}
		p.logger.Error(err, "failed to reconnect to AMQP channel")
		time.Sleep(time.Second)
	}
}

func validateChannel(channel *amqp.Channel) error {
	if channel == nil {
		return ErrChannelEmpty
	}
	if channel.IsClosed() {
		return ErrChannelClosed
	}
	return nil
}
