// Package sender доставляет уведомления из очереди пользователям в Telegram.
package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/signal-engine/internal/lib/sl"
	"github.com/magabrotheeeer/signal-engine/internal/models"
)

// UserGetter возвращает пользователя по идентификатору.
type UserGetter interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Messenger отправляет текст в чат.
type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Service обрабатывает сообщения очереди уведомлений.
type Service struct {
	users     UserGetter
	messenger Messenger
	log       *slog.Logger
}

// New создаёт Service.
func New(users UserGetter, messenger Messenger, log *slog.Logger) *Service {
	return &Service{
		users:     users,
		messenger: messenger,
		log:       log,
	}
}

// HandleNotification разбирает уведомление и отправляет его в чат пользователя.
// Сообщения для неизвестных пользователей и пользователей без чата отбрасываются.
func (s *Service) HandleNotification(ctx context.Context, body []byte) error {
	const op = "sender.HandleNotification"

	var msg models.Notification
	if err := json.Unmarshal(body, &msg); err != nil {
		s.log.Error("failed to unmarshal notification", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	log := s.log.With(
		slog.String("op", op),
		slog.String("notification_id", msg.ID),
		slog.Int64("user_id", msg.UserID),
	)

	user, err := s.users.GetUser(ctx, msg.UserID)
	if errors.Is(err, models.ErrUserNotFound) {
		log.Warn("notification for unknown user dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if user.ChatID == "" {
		log.Info("user has no chat, notification skipped")
		return nil
	}

	if err := s.messenger.SendMessage(ctx, user.ChatID, msg.Text); err != nil {
		log.Error("failed to send notification", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Debug("notification delivered")
	return nil
}
