package eventsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/event"
)

const (
	routingKey    = "audit.events"
	prefetchCount = 10
)

// AMQP publishes events to a durable direct exchange and consumes them from a durable queue.
type AMQP struct {
	conn     *amqp.Connection
	pubMu    sync.Mutex
	pubCh    *amqp.Channel
	exchange string
	queue    string
	log      core.Logger
}

var _ event.Publisher = (*AMQP)(nil)

// DialAMQP connects to the broker and declares the exchange, the queue and their binding.
func DialAMQP(conf *core.Config, log core.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(conf.Events.AMQPURL)
	if err != nil {
		return nil, errors.Wrap(err, "dialing AMQP broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening AMQP channel")
	}

	a := &AMQP{conn: conn, pubCh: ch, exchange: conf.Events.AMQPExchange, queue: conf.Events.AMQPQueue, log: log}
	if err = a.declare(ch); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *AMQP) declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(a.exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "declaring exchange")
	}
	if _, err := ch.QueueDeclare(a.queue, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "declaring queue")
	}
	if err := ch.QueueBind(a.queue, routingKey, a.exchange, false, nil); err != nil {
		return errors.Wrap(err, "binding queue")
	}
	return nil
}

func (a *AMQP) Publish(ctx context.Context, ev event.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}

	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	err = a.pubCh.PublishWithContext(ctx, a.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Type),
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	return errors.Wrap(err, "publishing event")
}

// Consume feeds the queued events to h until ctx is done or the broker closes the channel.
// Events h rejects as invalid are dropped, other failures are requeued once.
func (a *AMQP) Consume(ctx context.Context, h event.Handler) error {
	ch, err := a.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "opening AMQP channel")
	}
	defer func() { _ = ch.Close() }()

	if err = ch.Qos(prefetchCount, 0, false); err != nil {
		return errors.Wrap(err, "setting QoS")
	}
	deliveries, err := ch.Consume(a.queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "consuming queue")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return core.NewShutdownError("AMQP deliveries channel closed")
			}
			a.handle(ctx, d, h)
		}
	}
}

func (a *AMQP) handle(ctx context.Context, d amqp.Delivery, h event.Handler) {
	var ev event.Event
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		a.log.Error(fmt.Sprintf("decoding event %s: %v", d.MessageId, err), err)
		_ = d.Nack(false, false)
		return
	}

	if err := h.HandleEvent(ctx, ev); err != nil {
		requeue := !core.IsValidation(err) && !d.Redelivered
		a.log.Error(fmt.Sprintf("handling %s event: %v", ev.Type, err), err, map[string]interface{}{
			"event":   ev.ID,
			"requeue": requeue,
		})
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

func (a *AMQP) Close() error {
	if a.pubCh != nil {
		_ = a.pubCh.Close()
	}
	return a.conn.Close()
}
