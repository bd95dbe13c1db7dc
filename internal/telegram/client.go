// Package telegram adapts the Bot API client to the chat front end and the
// broadcast dispatcher: long polling, text messages with reply keyboards and
// the command menu.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// IsBlocked reports whether err means the recipient blocked the bot or
// deleted their account.
func IsBlocked(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden
}

// Client calls the Telegram Bot API.
type Client struct {
	api *tgbotapi.BotAPI
}

// New creates a client and validates the token with getMe. baseURL is
// normally https://api.telegram.org.
func New(baseURL, token string) (*Client, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/bot%s/%s"
	httpClient := &http.Client{
		// long polling holds the request open for the poll timeout
		Timeout: 90 * time.Second,
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	return &Client{api: api}, nil
}

// Username is the bot account's username as reported by getMe.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// withContext runs a blocking Bot API call and returns early when ctx ends.
// The call itself is bounded by the HTTP client timeout.
func withContext[T any](ctx context.Context, call func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-done:
		return r.v, r.err
	}
}

// SendMessage sends text to chatID. markup may be nil, a
// ReplyKeyboardMarkup or a ReplyKeyboardRemove.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup any) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := withContext(ctx, func() (tgbotapi.Message, error) {
		return c.api.Send(msg)
	})
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return nil
}

// Send delivers plain text. It satisfies notify.Gateway.
func (c *Client) Send(ctx context.Context, recipientID int64, text string) error {
	return c.SendMessage(ctx, recipientID, text, nil)
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	cfg := tgbotapi.NewUpdate(int(offset))
	cfg.Timeout = int(timeout.Seconds())
	cfg.AllowedUpdates = []string{"message"}
	updates, err := withContext(ctx, func() ([]tgbotapi.Update, error) {
		return c.api.GetUpdates(cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}
	return updates, nil
}

// SetMyCommands registers the command menu shown by clients.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	_, err := withContext(ctx, func() (*tgbotapi.APIResponse, error) {
		return c.api.Request(tgbotapi.NewSetMyCommands(commands...))
	})
	if err != nil {
		return fmt.Errorf("telegram setMyCommands: %w", err)
	}
	return nil
}
