package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/deposit-ledger/posting-engine/internal/config"
	"github.com/deposit-ledger/posting-engine/internal/domain"
)

// PostingProcessor decides and applies one posting request.
type PostingProcessor interface {
	Process(ctx context.Context, req domain.PostingRequest) (*domain.PostingOutcome, error)
}

// Consumer consumes posting requests from RabbitMQ, runs them through the
// processor, and publishes the outcome.
type Consumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	config    config.RabbitMQConfig
	processor PostingProcessor
	publisher *Publisher
}

// NewConsumer creates a Consumer: it connects to RabbitMQ, declares the
// exchange, request queue and binding, and sets up a publisher for the
// outcomes.
func NewConsumer(cfg config.RabbitMQConfig, processor PostingProcessor) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		cfg.RequestQueue, // name
		true,             // durable
		false,            // delete when unused
		false,            // exclusive
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = channel.QueueBind(
		queue.Name,            // queue name
		cfg.RequestRoutingKey, // routing key
		cfg.Exchange,          // exchange
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	publisher, err := NewPublisher(conn, cfg)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	log.Printf("posting consumer initialized: exchange=%s, queue=%s, routing_key=%s",
		cfg.Exchange, cfg.RequestQueue, cfg.RequestRoutingKey)

	return &Consumer{
		conn:      conn,
		channel:   channel,
		config:    cfg,
		processor: processor,
		publisher: publisher,
	}, nil
}

// Start begins consuming posting requests until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.config.RequestQueue, // queue
		"",                    // consumer tag (auto-generated)
		false,                 // auto-ack (we ack manually)
		false,                 // exclusive
		false,                 // no-local
		false,                 // no-wait
		nil,                   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	log.Printf("posting consumer started, waiting for requests on queue: %s", c.config.RequestQueue)

	for {
		select {
		case <-ctx.Done():
			log.Println("context cancelled, stopping posting consumer")
			return nil

		case msg, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}

			if err := c.handleMessage(ctx, msg); err != nil {
				log.Printf("error handling posting request: %v", err)
				// Redeliver only collaborator failures. A malformed message
				// would fail the same way forever, so it is dropped.
				requeue := !errors.Is(err, errBadMessage)
				msg.Nack(false, requeue)
			} else {
				msg.Ack(false)
			}
		}
	}
}

// errBadMessage marks permanently unprocessable messages.
var errBadMessage = errors.New("unprocessable posting request message")

// handleMessage processes one posting request message end to end.
func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) error {
	var envelope RequestEnvelope
	if err := json.Unmarshal(msg.Body, &envelope); err != nil {
		return fmt.Errorf("%w: failed to unmarshal: %v", errBadMessage, err)
	}

	req, err := envelope.Request.ToDomain()
	if err != nil {
		return fmt.Errorf("%w: %v", errBadMessage, err)
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errBadMessage, err)
	}

	log.Printf("received posting request: kind=%s, requestUuid=%s, correlationId=%s",
		req.Kind(), req.RequestUUID(), envelope.CorrelationID)

	outcome, err := c.processor.Process(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedRequest) {
			return fmt.Errorf("%w: %v", errBadMessage, err)
		}
		return fmt.Errorf("failed to process posting request: %w", err)
	}

	// The outcome is durable once Process returns. Publishing failures are
	// logged but do not requeue the request: reprocessing a reservation
	// would place a second hold.
	if err := c.publisher.PublishOutcome(ctx, &envelope, outcome); err != nil {
		log.Printf("warning: failed to publish outcome requestUuid=%s: %v", req.RequestUUID(), err)
	}

	log.Printf("processed posting request: requestUuid=%s, status=%s, entries=%d",
		req.RequestUUID(), outcome.Status, len(outcome.Entries))

	return nil
}

// Close closes the RabbitMQ channels and connection.
func (c *Consumer) Close() error {
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			log.Printf("error closing publisher channel: %v", err)
		}
	}
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			log.Printf("error closing channel: %v", err)
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
