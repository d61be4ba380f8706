package processor

import (
	"context"
	"fmt"
	"strings"

	"mediarelay/internal/descriptions"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/transport"
)

const (
	descriptionPrompt = "Tap to get the post description:"
	descriptionButton = "Get post text 👇"
)

type OutputHandler struct {
	t     transport.Transport
	store descriptions.Store
	log   *logger.Logger
}

func NewOutputHandler(t transport.Transport, store descriptions.Store, log *logger.Logger) *OutputHandler {
	return &OutputHandler{t: t, store: store, log: log}
}

// Finish reports a request that delivered at least one item. A fully
// delivered request has its status removed; otherwise the status tells how
// many items were lost.
func (o *OutputHandler) Finish(ctx context.Context, status *transport.Status, req media.FetchRequest, list media.RenditionList, sent Sent) {
	log := o.log.FromContext(ctx)

	total := len(sent.Outcomes)
	lost := 0
	for _, out := range sent.Outcomes {
		if out.Status != media.StatusDelivered {
			lost++
		}
	}

	var err error
	if lost > 0 {
		err = status.Finish(ctx, partialText(lost, total))
	} else {
		err = status.Delete(ctx)
	}
	if err != nil {
		log.Warn("terminal status failed", "error", err.Error())
	}

	o.offerDescription(ctx, req, list.Caption().Description, sent.Last)
}

// Fail reports the single user-facing failure text for cause.
func (o *OutputHandler) Fail(ctx context.Context, status *transport.Status, cause error, provider media.Provider) {
	if err := status.Finish(ctx, failureText(cause, provider)); err != nil {
		o.log.FromContext(ctx).Warn("terminal status failed", "error", err.Error())
	}
}

func (o *OutputHandler) offerDescription(ctx context.Context, req media.FetchRequest, text string, last transport.MessageRef) {
	if o.store == nil || strings.TrimSpace(text) == "" || last.IsZero() {
		return
	}
	log := o.log.FromContext(ctx)

	token, err := o.store.Put(ctx, text)
	if err != nil {
		log.Warn("description store failed", "error", err.Error())
		return
	}
	button := transport.Button{Text: descriptionButton, Data: descriptions.CallbackPrefix + token}
	if _, err := o.t.SendButton(ctx, req.ChatID, last.MessageID, descriptionPrompt, button); err != nil {
		log.Warn("description button failed", "error", err.Error())
	}
}

func failureText(cause error, provider media.Provider) string {
	return "❌ Sorry, an error occurred.\n\n" + errors.UserMessage(cause, provider.DisplayName())
}

func partialText(lost, total int) string {
	return fmt.Sprintf("⚠️ %d of %d items could not be sent.", lost, total)
}

func foundText(n int) string {
	if n > 1 {
		return fmt.Sprintf("✅ Found %d media files. Sending...", n)
	}
	return "✅ Media found. Sending to Telegram..."
}
