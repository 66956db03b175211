// Package telegram — минимальный клиент Telegram Bot API для отправки сообщений.
package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client отправляет сообщения от имени бота.
type Client struct {
	http  *resty.Client
	token string
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// New создаёт клиента для бота token. baseURL — адрес Bot API.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		token: token,
	}
}

// SendMessage отправляет text в чат chatID.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	const op = "telegram.SendMessage"

	var out apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("token", c.token).
		SetBody(sendMessageRequest{ChatID: chatID, Text: text}).
		SetResult(&out).
		SetError(&out).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() || !out.OK {
		return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode(), out.Description)
	}
	return nil
}
