package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/deposit-ledger/posting-engine/internal/config"
	"github.com/deposit-ledger/posting-engine/internal/domain"
)

// Publisher is the outcome sink: it publishes every ledger entry of an
// outcome in engine order on the transaction routing key, then the final
// response on the response routing key.
type Publisher struct {
	channel *amqp.Channel
	config  config.RabbitMQConfig
}

// NewPublisher creates a Publisher on its own channel of the given
// connection and declares the exchange.
func NewPublisher(conn *amqp.Connection, cfg config.RabbitMQConfig) (*Publisher, error) {
	channel, err := conn.Channel()
	if err != nil {
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
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{channel: channel, config: cfg}, nil
}

// PublishOutcome publishes the entries and the response for one decided
// posting. The envelope's trace headers are carried onto every message.
func (p *Publisher) PublishOutcome(ctx context.Context, envelope *RequestEnvelope, outcome *domain.PostingOutcome) error {
	for i := range outcome.Entries {
		event := TransactionEvent{
			ProducerID:          envelope.ProducerID,
			BusinessTaxonomyID:  envelope.BusinessTaxonomyID,
			CorrelationID:       envelope.CorrelationID,
			MessageCreationTime: envelope.MessageCreationTime,
			Transaction:         transactionPayload(&outcome.Entries[i]),
		}
		if err := p.publish(ctx, p.config.TransactionRoutingKey, event); err != nil {
			return fmt.Errorf("failed to publish ledger entry: %w", err)
		}
	}

	response := ResponseEnvelope{
		ProducerID:            envelope.ProducerID,
		BusinessTaxonomyID:    envelope.BusinessTaxonomyID,
		CorrelationID:         envelope.CorrelationID,
		MessageCreationTime:   envelope.MessageCreationTime,
		MessageCompletionTime: time.Now().UTC(),
		Status:                string(outcome.Status),
		ErrorMessage:          outcome.ErrorMessage,
		Request:               envelope.Request,
		Transactions:          make([]LoggedTransactionPayload, 0, len(outcome.Entries)),
	}
	for i := range outcome.Entries {
		response.Transactions = append(response.Transactions, transactionPayload(&outcome.Entries[i]))
	}

	if err := p.publish(ctx, p.config.ResponseRoutingKey, response); err != nil {
		return fmt.Errorf("failed to publish response: %w", err)
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return p.channel.PublishWithContext(ctx,
		p.config.Exchange, // exchange
		routingKey,        // routing key
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Close closes the publisher channel.
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
