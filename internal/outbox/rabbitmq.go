package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const confirmWait = 300 * time.Millisecond

// RabbitMQSink publishes event_ids to a topic exchange with publisher
// confirms and mandatory returns enabled, the same delivery guarantee the
// rest of the fleet's outbox workers use.
type RabbitMQSink struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	exchange  string
	routing   string
	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

func NewRabbitMQSink(rabbitURL, exchange, routingKey string) (*RabbitMQSink, error) {
	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	confirmCh := ch.NotifyPublish(make(chan amqp.Confirmation, 100))
	returnCh := ch.NotifyReturn(make(chan amqp.Return, 100))

	return &RabbitMQSink{
		conn:      conn,
		ch:        ch,
		exchange:  exchange,
		routing:   routingKey,
		confirmCh: confirmCh,
		returnCh:  returnCh,
	}, nil
}

func (s *RabbitMQSink) Close() {
	if s.ch != nil {
		s.ch.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

// Publish sends one event_id as the message body and blocks until the broker
// confirms or returns it, or the confirm window expires.
func (s *RabbitMQSink) Publish(ctx context.Context, eventID string) error {
drain:
	for {
		select {
		case <-s.returnCh:
			continue
		case <-s.confirmCh:
			continue
		default:
			break drain
		}
	}

	pub := amqp.Publishing{
		ContentType:   "text/plain",
		Body:          []byte(eventID),
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		MessageId:     eventID,
		CorrelationId: uuid.NewString(),
		AppId:         "logindexer-publisher",
	}

	if err := s.ch.PublishWithContext(ctx, s.exchange, s.routing, true, false, pub); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	deadline := time.After(confirmWait * 2)
	for {
		select {
		case ret := <-s.returnCh:
			return fmt.Errorf("no route: code=%d text=%s", ret.ReplyCode, ret.ReplyText)
		case conf := <-s.confirmCh:
			if !conf.Ack {
				return fmt.Errorf("broker nack: delivery_tag=%d", conf.DeliveryTag)
			}
			return nil
		case <-deadline:
			return fmt.Errorf("confirm/return timeout")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
