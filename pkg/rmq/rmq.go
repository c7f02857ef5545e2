package rmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	HeaderRetries     = "x-retries"
	HeaderScheduledAt = "x-scheduled-at"
)

// Publisher sends persistent JSON messages to one durable queue. Delayed
// messages go through per-delay TTL queues that dead-letter into it.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu      sync.Mutex
	delayed map[time.Duration]string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue, delayed: map[time.Duration]string{}}, nil
}

func (p *Publisher) Close() error {
	_ = p.ch.Close()
	return p.conn.Close()
}

func (p *Publisher) PublishJSONWithHeaders(ctx context.Context, body []byte, headers amqp.Table) error {
	return p.publish(ctx, p.queue, body, headers, "")
}

// PublishDelayed makes body visible on the main queue after delay.
func (p *Publisher) PublishDelayed(ctx context.Context, body []byte, headers amqp.Table, delay time.Duration) error {
	if delay <= 0 {
		return p.PublishJSONWithHeaders(ctx, body, headers)
	}
	q, err := p.delayQueue(delay)
	if err != nil {
		return err
	}
	return p.publish(ctx, q, body, headers, "")
}

func (p *Publisher) publish(ctx context.Context, queue string, body []byte, headers amqp.Table, expiration string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx,
		"", queue, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Headers:      headers,
			Expiration:   expiration,
			Body:         body,
		})
}

// DelayQueueName is the TTL queue used for one delay.
func DelayQueueName(queue string, delay time.Duration) string {
	return fmt.Sprintf("%s.delay.%d", queue, delay.Milliseconds())
}

func (p *Publisher) delayQueue(delay time.Duration) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name, ok := p.delayed[delay]; ok {
		return name, nil
	}
	name := DelayQueueName(p.queue, delay)
	_, err := p.ch.QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": p.queue,
	})
	if err != nil {
		return "", fmt.Errorf("declare delay queue %s: %w", name, err)
	}
	p.delayed[delay] = name
	return name, nil
}

type Consumer struct {
	conn  *amqp.Connection
	Ch    *amqp.Channel
	Queue string
}

func NewConsumer(url, queue string, prefetch int) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if prefetch <= 0 {
		prefetch = 10
	}
	_ = ch.Qos(prefetch, 0, false)
	return &Consumer{conn: conn, Ch: ch, Queue: queue}, nil
}

func (c *Consumer) Consume() (<-chan amqp.Delivery, error) {
	return c.Ch.Consume(c.Queue, "", false, false, false, false, nil)
}

func (c *Consumer) Close() error {
	_ = c.Ch.Close()
	return c.conn.Close()
}

// RetryCount reads the x-retries header, tolerating the integer widths
// different publishers use.
func RetryCount(h amqp.Table) int {
	switch v := h[HeaderRetries].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}

// ScheduledAt reads the x-scheduled-at header, falling back to def.
func ScheduledAt(h amqp.Table, def time.Time) time.Time {
	switch v := h[HeaderScheduledAt].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return def
}
