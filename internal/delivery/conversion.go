package delivery

import (
	"context"

	"mediarelay/internal/conversion"
	v1 "mediarelay/internal/contracts/conversion/v1"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/transport"
)

// Conversion asks third-party endpoints for a fetchable URL of the page and
// hands that URL to the transport. Endpoints are tried in order.
type Conversion struct {
	client    conversion.Client
	endpoints []string
	quality   string
	t         transport.Transport
	log       *logger.Logger
}

func NewConversion(client conversion.Client, endpoints []string, quality string, t transport.Transport, log *logger.Logger) *Conversion {
	return &Conversion{
		client:    client,
		endpoints: endpoints,
		quality:   quality,
		t:         t,
		log:       log.WithComponent("delivery.conversion"),
	}
}

func (c *Conversion) Name() string { return NameConversion }

func (c *Conversion) Accepts(r media.Rendition) bool {
	return len(c.endpoints) > 0 && r.Page != "" && r.Kind != media.KindImage
}

func (c *Conversion) Deliver(ctx context.Context, a Attempt) (media.Outcome, error) {
	const op = "delivery.conversion"
	log := c.log.FromContext(ctx)

	in := v1.Request{URL: a.Rendition.Page, QualityHint: c.quality}
	if a.Rendition.Kind == media.KindAudio {
		in.QualityHint = "audio"
	}

	var last error
	for _, endpoint := range c.endpoints {
		resp, err := c.client.Convert(ctx, endpoint, in)
		if err != nil {
			log.Info("conversion endpoint failed", "endpoint", endpoint, "code", errors.GetCode(err))
			last = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		ref, err := sendFile(ctx, c.t, a, remoteFile(a.Rendition, resp.URL), nil)
		if err != nil {
			err = TransportClassifier.Classify(err)
			log.Info("conversion handoff failed", "endpoint", endpoint, "code", errors.GetCode(err))
			last = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return media.Outcome{Status: media.StatusDelivered, MessageID: ref.MessageID}, nil
	}

	if last == nil {
		return media.Outcome{}, errors.Unretryable("no conversion endpoint configured")
	}
	return media.Outcome{}, errors.WrapWithCode(last, errors.CodeUnretryable, op, "all conversion endpoints failed")
}
