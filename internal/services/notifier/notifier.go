// Package notifier публикует уведомления пользователям в RabbitMQ.
// Доставкой в Telegram занимается отдельный процесс sender.
package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/magabrotheeeer/signal-engine/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/signal-engine/internal/models"
)

// Notifier публикует уведомления в обменник notifications.
// Канал AMQP не допускает параллельной публикации, поэтому она сериализуется.
type Notifier struct {
	mu sync.Mutex
	ch rabbitmq.Publisher
}

// New создаёт Notifier поверх канала.
func New(ch rabbitmq.Publisher) *Notifier {
	return &Notifier{ch: ch}
}

// Send публикует сообщение text для пользователя userID.
func (n *Notifier) Send(ctx context.Context, userID int64, text string) error {
	const op = "notifier.Send"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	msg := models.Notification{
		ID:     uuid.NewString(),
		UserID: userID,
		Text:   text,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := rabbitmq.PublishMessage(n.ch, rabbitmq.ExchangeNotifications, rabbitmq.RoutingKeySignal, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
