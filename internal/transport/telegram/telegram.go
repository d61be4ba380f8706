// Package telegram adapts the Telegram Bot API to transport.Transport and
// feeds inbound updates to a transport.Handler.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mediarelay/internal/media"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/transport"
)

// MaxTextLength is the Telegram limit for one text message.
const MaxTextLength = 4096

// maxRetryAfter bounds how long a single send waits on a flood-control reply.
const maxRetryAfter = 10 * time.Second

// Config configures the adapter.
type Config struct {
	Token string
	// SendTimeout bounds every Bot API call, uploads included.
	SendTimeout time.Duration
	// Endpoint overrides tgbotapi.APIEndpoint (tests, local Bot API servers).
	Endpoint string
}

// Bot implements transport.Transport on top of tgbotapi.
type Bot struct {
	api *tgbotapi.BotAPI
	log *logger.Logger
}

var _ transport.Transport = (*Bot)(nil)

// Test hooks; nil in production.
var (
	sendForTest    func(c tgbotapi.Chattable) (tgbotapi.Message, error)
	requestForTest func(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
)

// New connects to the Bot API and bridges the library logger to log.
func New(cfg Config, log *logger.Logger) (*Bot, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	log = log.WithComponent("telegram")
	if err := tgbotapi.SetLogger(log); err != nil {
		log.Warn("bridge telegram logger", "error", err)
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	log.Info("telegram bot connected", "username", api.Self.UserName)
	return &Bot{api: api, log: log}, nil
}

// Username returns the bot's @name.
func (b *Bot) Username() string {
	if b.api == nil || b.api.Self.UserName == "" {
		return ""
	}
	return "@" + b.api.Self.UserName
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	var msg tgbotapi.Message
	err := retryOnFlood(ctx, func() error {
		var err error
		msg, err = b.sendOnce(c)
		return err
	})
	return msg, err
}

func (b *Bot) sendOnce(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if sendForTest != nil {
		return sendForTest(c)
	}
	return b.api.Send(c)
}

func (b *Bot) request(ctx context.Context, c tgbotapi.Chattable) error {
	return retryOnFlood(ctx, func() error {
		var err error
		if requestForTest != nil {
			_, err = requestForTest(c)
		} else {
			_, err = b.api.Request(c)
		}
		return err
	})
}

// retryOnFlood runs fn and repeats it once when Telegram answers 429 with a
// short enough retry_after.
func retryOnFlood(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := fn()
	if !isTooManyRequests(err) {
		return err
	}
	d := retryAfter(err)
	if d <= 0 || d > maxRetryAfter {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return fn()
}

func (b *Bot) SendStatus(ctx context.Context, chatID int64, replyTo int, text string) (transport.MessageRef, error) {
	return b.SendText(ctx, chatID, replyTo, text)
}

func (b *Bot) SendText(ctx context.Context, chatID int64, replyTo int, text string) (transport.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, truncateText(text))
	msg.ReplyToMessageID = replyTo
	msg.DisableWebPagePreview = true
	sent, err := b.send(ctx, msg)
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// EditStatus edits text and drops the inline keyboard. Edits that would not
// change anything are not errors.
func (b *Bot) EditStatus(ctx context.Context, ref transport.MessageRef, text string) error {
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, truncateText(text))
	err := b.request(ctx, edit)
	if isMessageNotModified(err) {
		return nil
	}
	return err
}

func (b *Bot) SendButton(ctx context.Context, chatID int64, replyTo int, text string, btn transport.Button) (transport.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, truncateText(text))
	msg.ReplyToMessageID = replyTo
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data)),
	)
	sent, err := b.send(ctx, msg)
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (b *Bot) DeleteMessage(ctx context.Context, ref transport.MessageRef) error {
	if ref.IsZero() {
		return nil
	}
	return b.request(ctx, tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID))
}

func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cb = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	return b.request(ctx, cb)
}

// SendFile uploads f. A URL is handed to Telegram, which fetches it itself;
// otherwise the reader is streamed and upload progress reported. A flood
// reply is retried only when the reader can be rewound to where it started;
// a consumed stream would otherwise go out empty.
func (b *Bot) SendFile(ctx context.Context, chatID int64, replyTo int, f transport.File, caption string, progress transport.ProgressFunc) (transport.MessageRef, error) {
	var sent tgbotapi.Message
	attempt := func() error {
		data, err := fileData(f, progress)
		if err != nil {
			return err
		}
		sent, err = b.sendOnce(attachment(chatID, replyTo, f, data, truncateCaption(caption)))
		return err
	}

	var err error
	if rewind := rewinder(f); rewind != nil {
		first := true
		err = retryOnFlood(ctx, func() error {
			if !first {
				if err := rewind(); err != nil {
					return err
				}
			}
			first = false
			return attempt()
		})
	} else if err = ctx.Err(); err == nil {
		err = attempt()
	}
	if err != nil {
		return transport.MessageRef{}, err
	}
	if progress != nil && f.URL == "" && f.Size > 0 {
		progress(f.Size, f.Size)
	}
	return transport.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// rewinder returns a func restoring f's reader to its current offset, or nil
// when f is a stream that cannot be sent twice.
func rewinder(f transport.File) func() error {
	if f.URL != "" {
		return func() error { return nil }
	}
	s, ok := f.Reader.(io.Seeker)
	if !ok {
		return nil
	}
	off, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil
	}
	return func() error {
		_, err := s.Seek(off, io.SeekStart)
		return err
	}
}

func fileData(f transport.File, progress transport.ProgressFunc) (tgbotapi.RequestFileData, error) {
	if f.URL != "" {
		return tgbotapi.FileURL(f.URL), nil
	}
	if f.Reader == nil {
		return nil, errors.New("file has neither url nor reader")
	}
	name := f.Name
	if name == "" {
		name = defaultName(f.Kind)
	}
	var r io.Reader = f.Reader
	if progress != nil {
		r = &countingReader{r: f.Reader, total: f.Size, fn: progress}
	}
	return tgbotapi.FileReader{Name: name, Reader: r}, nil
}

func attachment(chatID int64, replyTo int, f transport.File, data tgbotapi.RequestFileData, caption string) tgbotapi.Chattable {
	switch f.Kind {
	case media.KindImage:
		photo := tgbotapi.NewPhoto(chatID, data)
		photo.ReplyToMessageID = replyTo
		photo.Caption = caption
		photo.ParseMode = tgbotapi.ModeHTML
		return photo
	case media.KindAudio:
		audio := tgbotapi.NewAudio(chatID, data)
		audio.ReplyToMessageID = replyTo
		audio.Caption = caption
		audio.ParseMode = tgbotapi.ModeHTML
		audio.Duration = int(f.Duration.Seconds())
		return audio
	case media.KindVideo:
		video := tgbotapi.NewVideo(chatID, data)
		video.ReplyToMessageID = replyTo
		video.Caption = caption
		video.ParseMode = tgbotapi.ModeHTML
		video.Duration = int(f.Duration.Seconds())
		video.SupportsStreaming = true
		return video
	default:
		doc := tgbotapi.NewDocument(chatID, data)
		doc.ReplyToMessageID = replyTo
		doc.Caption = caption
		doc.ParseMode = tgbotapi.ModeHTML
		return doc
	}
}

func defaultName(k media.Kind) string {
	switch k {
	case media.KindImage:
		return "image.jpg"
	case media.KindAudio:
		return "audio.m4a"
	default:
		return "video.mp4"
	}
}

type countingReader struct {
	r     io.Reader
	done  int64
	total int64
	fn    transport.ProgressFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.done += int64(n)
		c.fn(c.done, c.total)
	}
	return n, err
}

// apiError unwraps a Bot API failure. The library returns *Error while its
// Error method has a value receiver, so both shapes are checked.
func apiError(err error) (tgbotapi.Error, bool) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val, true
	}
	return tgbotapi.Error{}, false
}

func isMessageNotModified(err error) bool {
	apiErr, ok := apiError(err)
	return ok && apiErr.Code == 400 && strings.Contains(apiErr.Message, "message is not modified")
}

func isTooManyRequests(err error) bool {
	apiErr, ok := apiError(err)
	return ok && apiErr.Code == 429
}

func retryAfter(err error) time.Duration {
	if apiErr, ok := apiError(err); ok && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return 0
}

func truncateText(s string) string {
	return truncate(s, MaxTextLength)
}

// Captions are limited to 1024 characters.
func truncateCaption(s string) string {
	return truncate(s, 1024)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

func principalOf(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return strconv.FormatInt(u.ID, 10)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
