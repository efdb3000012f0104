package rabbitmq

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/chatcore/internal/chat"
)

const (
	// RetryHeader counts how many times a job went through the retry queue.
	RetryHeader = "x-title-retries"
	retryDelay  = 5 * time.Second
)

// Publisher sends title jobs to the worker. It implements chat.Namer.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

var _ chat.Namer = (*Publisher)(nil)

func RetryQueue(queue string) string { return queue + ".retry" }
func DeadQueue(queue string) string  { return queue + ".dlq" }

// Declare creates the main queue with its retry and dead-letter companions.
// Server and worker both call it so either may start first.
func Declare(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := RetryQueue(queue)
	dlqQ := DeadQueue(queue)

	// DLQ
	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// Retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(
		retryQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": mainQ,
		},
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		mainQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	)
	return err
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := Declare(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) Enqueue(ctx context.Context, job chat.TitleJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return publish(ctx, p.ch, p.queue, body, nil, "")
}

// Retry parks a failed delivery in the retry queue; it comes back to the
// main queue after the delay with its retry count bumped.
func Retry(ctx context.Context, ch *amqp.Channel, queue string, d amqp.Delivery) error {
	headers := amqp.Table{RetryHeader: int32(Retries(d) + 1)}
	return publish(ctx, ch, RetryQueue(queue), d.Body, headers, strconv.FormatInt(retryDelay.Milliseconds(), 10))
}

// Retries reads the retry count of a delivery.
func Retries(d amqp.Delivery) int {
	switch v := d.Headers[RetryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func publish(ctx context.Context, ch *amqp.Channel, queue string, body []byte, headers amqp.Table, expiration string) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return ch.PublishWithContext(cctx,
		"",    // default exchange
		queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      headers,
			Expiration:   expiration,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}
