package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mediarelay/internal/transport"
)

// Run long-polls updates and dispatches them to h until ctx is cancelled.
// Each update is handled on its own goroutine; the pool behind h does the
// heavy lifting.
func (b *Bot) Run(ctx context.Context, h transport.Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.log.Info("polling updates")
	for {
		select {
		case <-ctx.Done():
			b.log.Info("stopped polling updates")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, upd, h)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, upd tgbotapi.Update, h transport.Handler) {
	if m, ok := toMessage(upd); ok {
		go h.HandleMessage(ctx, m)
		return
	}
	if c, ok := toCallback(upd); ok {
		go h.HandleCallback(ctx, c)
	}
}

func toMessage(upd tgbotapi.Update) (transport.Message, bool) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return transport.Message{}, false
	}
	m := transport.Message{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		From:      principalOf(msg.From),
		Text:      msg.Text,
	}
	if msg.From != nil {
		m.Username = msg.From.UserName
	}
	if m.From == "" {
		m.From = "chat:" + formatID(msg.Chat.ID)
	}
	return m, true
}

func toCallback(upd tgbotapi.Update) (transport.Callback, bool) {
	q := upd.CallbackQuery
	if q == nil {
		return transport.Callback{}, false
	}
	c := transport.Callback{
		ID:   q.ID,
		From: principalOf(q.From),
		Data: q.Data,
	}
	if q.Message != nil {
		c.MessageID = q.Message.MessageID
		if q.Message.Chat != nil {
			c.ChatID = q.Message.Chat.ID
		}
		if q.Message.ReplyToMessage != nil {
			c.ReplyTo = q.Message.ReplyToMessage.MessageID
		}
	}
	return c, true
}
