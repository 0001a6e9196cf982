// Package amqpdriver is Directord's optional message-broker transport,
// demonstrating the "message-broker" transport family spec.md names
// alongside the reference gRPC transport.
package amqpdriver

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuemby/directord/pkg/driver"
)

const exchangeName = "directord.frames"

func init() {
	driver.Register("amqp", func() driver.Driver { return &Driver{} })
}

// Driver implements driver.Driver over a RabbitMQ topic exchange.
// Jobs publish to routing key job.<identity>, returns to
// return.<identity>, heartbeats to a shared fanout-style "heartbeat"
// routing key. Delivery is at-least-once by nature of AMQP consumer
// acks; the return manager's idempotent (job_id, identity) aggregation
// absorbs any redelivery.
type Driver struct {
	cfg   driver.Config
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue amqp.Queue
	hbQ   amqp.Queue
	own   string // this process's identity, for routing key derivation
}

func (d *Driver) dial(cfg driver.Config) error {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("amqpdriver: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqpdriver: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqpdriver: declare exchange: %w", err)
	}
	d.conn, d.ch = conn, ch
	return nil
}

// Bind declares the coordinator's queues: one bound to return.* (it
// consumes returns; jobs are published, not consumed) and one bound to
// the shared heartbeat routing key.
func (d *Driver) Bind(ctx context.Context, cfg driver.Config) error {
	d.cfg = cfg
	if err := d.dial(cfg); err != nil {
		return err
	}
	q, err := d.ch.QueueDeclare("directord.coordinator.return", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqpdriver: declare return queue: %w", err)
	}
	if err := d.ch.QueueBind(q.Name, "return.*", exchangeName, false, nil); err != nil {
		return fmt.Errorf("amqpdriver: bind return queue: %w", err)
	}
	d.queue = q

	hbQ, err := d.ch.QueueDeclare("directord.coordinator.heartbeat", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqpdriver: declare heartbeat queue: %w", err)
	}
	if err := d.ch.QueueBind(hbQ.Name, "heartbeat", exchangeName, false, nil); err != nil {
		return fmt.Errorf("amqpdriver: bind heartbeat queue: %w", err)
	}
	d.hbQ = hbQ
	return nil
}

// Connect declares this identity's job queue, bound to job.<identity>.
func (d *Driver) Connect(ctx context.Context, cfg driver.Config) error {
	d.cfg = cfg
	if err := d.dial(cfg); err != nil {
		return err
	}
	d.own = cfg.BindAddr // client passes its own identity through BindAddr for this transport
	q, err := d.ch.QueueDeclare("directord.client."+d.own, true, false, true, false, nil)
	if err != nil {
		return fmt.Errorf("amqpdriver: declare job queue: %w", err)
	}
	if err := d.ch.QueueBind(q.Name, "job."+d.own, exchangeName, false, nil); err != nil {
		return fmt.Errorf("amqpdriver: bind job queue: %w", err)
	}
	d.queue = q
	return nil
}

func routingKey(channel driver.Channel, identity string) string {
	switch channel {
	case driver.ChannelJob:
		return "job." + identity
	case driver.ChannelReturn:
		return "return." + identity
	case driver.ChannelHeartbeat:
		return "heartbeat"
	default:
		return "transfer." + identity
	}
}

// Send publishes f on the routing key derived from its channel and
// the target identity.
func (d *Driver) Send(ctx context.Context, identity string, f *driver.Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("amqpdriver: marshal frame: %w", err)
	}
	return d.ch.PublishWithContext(ctx, exchangeName, routingKey(f.Channel, identity), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Receive consumes the next message from the bound queue and acks it,
// satisfying the at-least-once contract spec.md requires.
func (d *Driver) Receive(ctx context.Context) (string, *driver.Frame, error) {
	return d.consumeOne(ctx, d.queue)
}

// HeartbeatSend publishes to the shared heartbeat routing key.
func (d *Driver) HeartbeatSend(ctx context.Context, identity string, f *driver.Frame) error {
	f.Channel = driver.ChannelHeartbeat
	return d.Send(ctx, identity, f)
}

// HeartbeatRecv consumes the next message from the heartbeat queue.
func (d *Driver) HeartbeatRecv(ctx context.Context) (string, *driver.Frame, error) {
	return d.consumeOne(ctx, d.hbQ)
}

func (d *Driver) consumeOne(ctx context.Context, q amqp.Queue) (string, *driver.Frame, error) {
	msgs, err := d.ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return "", nil, fmt.Errorf("amqpdriver: consume %s: %w", q.Name, err)
	}
	select {
	case msg, ok := <-msgs:
		if !ok {
			return "", nil, fmt.Errorf("amqpdriver: consumer channel closed")
		}
		var f driver.Frame
		if err := json.Unmarshal(msg.Body, &f); err != nil {
			_ = msg.Nack(false, false)
			return "", nil, fmt.Errorf("amqpdriver: unmarshal frame: %w", err)
		}
		_ = msg.Ack(false)
		return f.Identity, &f, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

// Close tears down the channel and connection.
func (d *Driver) Close() error {
	if d.ch != nil {
		_ = d.ch.Close()
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
