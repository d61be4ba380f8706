package delivery

import (
	"context"

	"mediarelay/internal/media"
	"mediarelay/internal/transport"
)

// Direct hands the locator to the transport, which fetches it itself. No
// bytes pass through this process.
type Direct struct {
	t transport.Transport
}

func NewDirect(t transport.Transport) *Direct {
	return &Direct{t: t}
}

func (d *Direct) Name() string { return NameDirect }

func (d *Direct) Accepts(r media.Rendition) bool { return r.Locator != "" }

func (d *Direct) Deliver(ctx context.Context, a Attempt) (media.Outcome, error) {
	ref, err := sendFile(ctx, d.t, a, remoteFile(a.Rendition, a.Rendition.Locator), nil)
	if err != nil {
		return media.Outcome{}, TransportClassifier.Classify(err)
	}
	return media.Outcome{Status: media.StatusDelivered, MessageID: ref.MessageID}, nil
}
