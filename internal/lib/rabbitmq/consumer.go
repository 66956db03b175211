package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/signal-engine/internal/lib/sl"
	"github.com/streadway/amqp"
)

const consumerConcurrency = 10

// Handler обрабатывает тело сообщения. Ошибка приводит к повторной доставке,
// если сообщение ещё не доставлялось повторно.
type Handler func(ctx context.Context, body []byte) error

// ConsumerMessage подписывается на очередь и обрабатывает сообщения
// не более чем в consumerConcurrency горутинах, пока ctx не отменён.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, handler Handler, log *slog.Logger) error {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	go consume(ctx, delivery, handler, log)
	return nil
}

func consume(ctx context.Context, delivery <-chan amqp.Delivery, handler Handler, log *slog.Logger) {
	sem := make(chan struct{}, consumerConcurrency)
	for {
		select {
		case d, ok := <-delivery:
			if !ok {
				return
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				handleDelivery(ctx, d, handler, log)
			}(d)
		case <-ctx.Done():
			return
		}
	}
}

func handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler, log *slog.Logger) {
	if err := handler(ctx, d.Body); err != nil {
		requeue := !d.Redelivered
		log.Error("failed to handle message", sl.Err(err), slog.Bool("requeue", requeue))
		if nackErr := d.Nack(false, requeue); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		log.Error("failed to ack message", sl.Err(ackErr))
	}
}
