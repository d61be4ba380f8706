package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"mediarelay/internal/httpkit"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
)

// CreateRequest asks the relay to fetch URL into a chat, as if the chat had
// sent the link itself.
type CreateRequest struct {
	URL       string `json:"url" validate:"required,url"`
	ChatID    int64  `json:"chat_id" validate:"required"`
	AudioOnly bool   `json:"audio_only"`
	MaxItems  int    `json:"max_items" validate:"min=0,max=100"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// PostRequest admits a fetch request and answers 202 with its ID.
func (h *Handler) PostRequest(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var req CreateRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "httpapi.requests", "invalid json body")
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.ValidationField(verrs[0].Field(), "failed on the '"+verrs[0].Tag()+"' rule")
		}
		return errors.WrapWithCode(err, errors.CodeValidation, "httpapi.requests", "invalid request")
	}

	provider := media.DetectProvider(req.URL)
	if provider == media.ProviderUnknown {
		return errors.Unsupported(req.URL)
	}
	if req.AudioOnly && !provider.SupportsAudio() {
		return errors.ValidationField("audio_only", "audio mode is available for YouTube links only")
	}

	id, err := h.submitter.Submit(ctx, media.FetchRequest{
		SourceURL: req.URL,
		Principal: "api:" + strconv.FormatInt(req.ChatID, 10),
		ChatID:    req.ChatID,
		Options:   media.Options{AudioOnly: req.AudioOnly, MaxItems: req.MaxItems},
	})
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{
		"request": map[string]any{
			"id":       id,
			"url":      req.URL,
			"chat_id":  req.ChatID,
			"provider": string(provider),
			"status":   "QUEUED",
		},
	})
	return nil
}
