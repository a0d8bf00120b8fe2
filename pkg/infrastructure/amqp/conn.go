package amqp

import (
	stderrors "errors"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Logger interface {
	Info(...interface{})
	Error(error, ...interface{})
}

type Connection interface {
	Start() error
	Stop() error
	AddChannel(channel Channel)

	Producer(exchangeConfig *ExchangeConfig, queueConfig *QueueConfig, bindConfig *BindConfig) Producer
}

// Channel is (re)connected every time the connection is established.
type Channel interface {
	Connect(conn *amqp.Connection) error
}

func NewAMQPConnection(appID string, config *ConnectionConfig, logger Logger) Connection {
	return &connection{
		appID:  appID,
		config: config,
		logger: logger,
	}
}

type connection struct {
	appID  string
	config *ConnectionConfig
	logger Logger

	conn      *amqp.Connection
	channelMu sync.Mutex
	channels  []Channel
}

func (c *connection) Start() error {
	var conn *amqp.Connection
	err := backoff.Retry(func() error {
		var dialErr error
		conn, dialErr = amqp.Dial(c.url())
		return dialErr
	}, newBackOff(c.config.ConnectTimeout))
	if err != nil {
		return err
	}

	if err = validateConnection(conn); err != nil {
		return err
	}
	c.conn = conn

	err = func() error {
		c.channelMu.Lock()
		defer c.channelMu.Unlock()

		for _, channel := range c.channels {
			if err = channel.Connect(conn); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		return err
	}

	connErrorChan := conn.NotifyClose(make(chan *amqp.Error, 1))
	go c.processConnectErrors(connErrorChan)

	return nil
}

func (c *connection) Stop() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *connection) AddChannel(channel Channel) {
	c.channelMu.Lock()
	c.channels = append(c.channels, channel)
	c.channelMu.Unlock()
}

func (c *connection) Producer(exchangeConfig *ExchangeConfig, queueConfig *QueueConfig, bindConfig *BindConfig) Producer {
	producer := NewProducer(c.appID, exchangeConfig, queueConfig, bindConfig, c.logger)
	c.AddChannel(producer)
	return producer
}

func (c *connection) url() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.config.User, c.config.Password),
		Host:   c.config.Host,
		Path:   "/",
	}
	return u.String()
}

// processConnectErrors reconnects after the broker closed the connection,
// a graceful Stop closes the channel without an error.
func (c *connection) processConnectErrors(ch chan *amqp.Error) {
	err, ok := <-ch
	if !ok || err == nil {
		return
	}

	c.logger.Error(err, "AMQP connection error, trying to reconnect")
	for {
		err := c.Start()
		if err == nil {
			c.logger.Info("AMQP connection restored")
			return
		}
		c.logger.Error(err, "failed to reconnect to AMQP")
	}
}

func validateConnection(conn *amqp.Connection) error {
	if conn == nil {
		return stderrors.New("amqp connection is empty")
	}
	if conn.IsClosed() {
		return stderrors.New("amqp connection is closed")
	}
	return nil
}

func newBackOff(timeout time.Duration) backoff.BackOff {
	const defaultTimeout = 60 * time.Second
	exponentialBackOff := backoff.NewExponentialBackOff()
	if timeout != 0 {
		exponentialBackOff.MaxElapsedTime = timeout
	} else {
		exponentialBackOff.MaxElapsedTime = defaultTimeout
	}
	exponentialBackOff.MaxInterval = 5 * time.Second
	return exponentialBackOff
}
