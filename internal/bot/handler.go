// Package bot turns chat updates into fetch requests and serves the
// description button.
package bot

import (
	"context"
	"strings"
	"unicode"

	"mediarelay/internal/descriptions"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/transport"
)

// MaxMessageRunes is the transport limit of one text message.
const MaxMessageRunes = 4096

const (
	usageText = "Hello! I can fetch media from Instagram (posts, reels, stories), Pinterest, " +
		"YouTube, TikTok and Facebook.\n\n" +
		"Just send me a link.\n" +
		"Use /audio <YouTube link> to get the audio track only."
	audioUsageText    = "Send /audio followed by a YouTube link."
	audioOnlyYouTube  = "🎵 Audio mode is available for YouTube links only."
	descriptionSent   = "✅ Text sent."
	descriptionGone   = "❌ Text not found or this request has expired."
	descriptionFailed = "❌ Failed to send the text."
)

// Submitter admits a request for asynchronous processing.
type Submitter interface {
	Submit(ctx context.Context, req media.FetchRequest) (string, error)
}

type Deps struct {
	Submitter    Submitter
	Transport    transport.Transport
	Descriptions descriptions.Store
	// MaxItems is copied into every request; zero keeps the resolver default.
	MaxItems int
	Log      *logger.Logger
}

type Handler struct {
	submitter    Submitter
	t            transport.Transport
	descriptions descriptions.Store
	maxItems     int
	log          *logger.Logger
}

var _ transport.Handler = (*Handler)(nil)

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		submitter:    d.Submitter,
		t:            d.Transport,
		descriptions: d.Descriptions,
		maxItems:     d.MaxItems,
		log:          log.WithComponent("bot"),
	}
}

func (h *Handler) HandleMessage(ctx context.Context, m transport.Message) {
	text := strings.TrimSpace(m.Text)
	cmd, args := command(text)

	switch cmd {
	case "/start", "/help":
		h.reply(ctx, m, usageText)
	case "/audio":
		h.handleAudio(ctx, m, args)
	default:
		url := media.ExtractURL(text)
		if url == "" {
			return
		}
		h.submit(ctx, m, url, media.Options{})
	}
}

func (h *Handler) handleAudio(ctx context.Context, m transport.Message, args string) {
	url := media.ExtractURL(args)
	if url == "" {
		h.reply(ctx, m, audioUsageText)
		return
	}
	if !media.DetectProvider(url).SupportsAudio() {
		h.reply(ctx, m, audioOnlyYouTube)
		return
	}
	h.submit(ctx, m, url, media.Options{AudioOnly: true})
}

func (h *Handler) submit(ctx context.Context, m transport.Message, url string, opts media.Options) {
	opts.MaxItems = h.maxItems
	req := media.FetchRequest{
		SourceURL: url,
		Principal: m.From,
		ChatID:    m.ChatID,
		ReplyTo:   m.MessageID,
		Options:   opts,
	}
	if _, err := h.submitter.Submit(ctx, req); err != nil {
		log := h.log.FromContext(ctx)
		if errors.IsCode(err, errors.CodeBusy) {
			log.Info("request rejected, principal busy", "principal", m.From)
		} else {
			log.LogError(ctx, "submit failed", err, "principal", m.From)
		}
		h.reply(ctx, m, "❌ "+errors.UserMessage(err, media.DetectProvider(url).DisplayName()))
	}
}

func (h *Handler) HandleCallback(ctx context.Context, c transport.Callback) {
	if !strings.HasPrefix(c.Data, descriptions.CallbackPrefix) || h.descriptions == nil {
		h.answer(ctx, c, "", false)
		return
	}
	log := h.log.FromContext(ctx)

	token := strings.TrimPrefix(c.Data, descriptions.CallbackPrefix)
	text, err := h.descriptions.Take(ctx, token)
	if err != nil {
		if !errors.Is(err, descriptions.ErrExpired) {
			log.Warn("description lookup failed", "error", err.Error())
		}
		h.answer(ctx, c, descriptionGone, true)
		return
	}

	for _, part := range Split(text, MaxMessageRunes) {
		if _, err := h.t.SendText(ctx, c.ChatID, c.ReplyTo, part); err != nil {
			log.Warn("description send failed", "error", err.Error())
			h.answer(ctx, c, descriptionFailed, true)
			return
		}
	}
	h.answer(ctx, c, "", false)

	ref := transport.MessageRef{ChatID: c.ChatID, MessageID: c.MessageID}
	if err := h.t.EditStatus(ctx, ref, descriptionSent); err != nil {
		log.Debug("button edit failed", "error", err.Error())
	}
}

func (h *Handler) reply(ctx context.Context, m transport.Message, text string) {
	if _, err := h.t.SendText(ctx, m.ChatID, m.MessageID, text); err != nil {
		h.log.FromContext(ctx).Warn("reply failed", "error", err.Error())
	}
}

func (h *Handler) answer(ctx context.Context, c transport.Callback, text string, alert bool) {
	if err := h.t.AnswerCallback(ctx, c.ID, text, alert); err != nil {
		h.log.FromContext(ctx).Debug("callback answer failed", "error", err.Error())
	}
}

// command splits "/cmd@bot args" into "/cmd" and "args". Text that is not a
// command yields an empty cmd.
func command(text string) (cmd, args string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	head, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i > 0 {
		head, rest = text[:i], text[i:]
	}
	if at := strings.IndexByte(head, '@'); at > 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

// Split cuts s into parts of at most n runes.
func Split(s string, n int) []string {
	r := []rune(s)
	if len(r) == 0 {
		return nil
	}
	parts := make([]string, 0, (len(r)+n-1)/n)
	for len(r) > n {
		parts = append(parts, string(r[:n]))
		r = r[n:]
	}
	return append(parts, string(r))
}
