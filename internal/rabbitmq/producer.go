package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Producer publishes messages to one named queue over an open channel.
type Producer struct {
	ch        *amqp.Channel
	queueName string
}

func NewProducer(ch *amqp.Channel, queueName string) *Producer {
	return &Producer{
		ch:        ch,
		queueName: queueName,
	}
}

// PublishJSON marshals msg and publishes it to the queue as an
// application/json payload.
func (p *Producer) PublishJSON(
	ctx context.Context,
	msg any,
) error {
	const op = "rabbitmq.PublishJSON"

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := p.ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
