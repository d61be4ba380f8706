// Package conversion talks to third-party conversion endpoints that turn a
// page URL into a directly fetchable media URL.
package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	v1 "mediarelay/internal/contracts/conversion/v1"
	"mediarelay/internal/httpclient"
	"mediarelay/internal/pkg/errors"
)

// Classifier maps endpoint failures to the taxonomy. Everything an endpoint
// does wrong is Transient for that endpoint.
var Classifier = errors.Classifier{
	Op:      "conversion.post",
	Default: errors.CodeTransient,
}

// maxResponse bounds the JSON body read from an endpoint.
const maxResponse = 1 << 20

type Client interface {
	Convert(ctx context.Context, endpoint string, req v1.Request) (v1.Response, error)
}

type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPClient returns a client whose calls are each bounded by timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{client: httpclient.New(0), timeout: timeout}
}

// Convert posts in to endpoint. A response that is not deliverable is
// returned as a Transient error carrying the endpoint's text.
func (c *HTTPClient) Convert(ctx context.Context, endpoint string, in v1.Request) (v1.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return v1.Response{}, errors.Wrap(err, "conversion.post", "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return v1.Response{}, Classifier.Classify(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := httpclient.DoWithRetry(ctx, c.client, req, httpclient.ConversionRetryPolicy)
	if err != nil {
		return v1.Response{}, Classifier.Classify(err)
	}
	defer res.Body.Close()

	if err := httpclient.CheckStatus(res); err != nil {
		return v1.Response{}, Classifier.Classify(err)
	}

	var out v1.Response
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponse)).Decode(&out); err != nil {
		return v1.Response{}, Classifier.Classify(fmt.Errorf("decode response: %w", err))
	}
	if !out.Deliverable() {
		return out, Classifier.Classify(fmt.Errorf("endpoint status %q: %s", out.Status, out.Text))
	}
	return out, nil
}
