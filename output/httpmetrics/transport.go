package httpmetrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/pkg/retry"
)

// Request is one encoded partition batch.
type Request struct {
	Token  string
	Body   []byte
	Events int
}

// Transport delivers requests. Errors that must not be retried are
// wrapped with retry.NonRetryable.
type Transport interface {
	Send(ctx context.Context, req Request) error
}

// HTTPTransport posts requests to one endpoint.
type HTTPTransport struct {
	client   *http.Client
	endpoint string
	headers  map[string]string
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a transport posting to endpoint.
func NewHTTPTransport(client *http.Client, endpoint string, headers map[string]string) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client, endpoint: endpoint, headers: headers}
}

// Send posts the body. 5xx, 408 and 429 responses are retryable; other
// non-2xx responses are not.
func (t *HTTPTransport) Send(ctx context.Context, req Request) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return retry.NonRetryable(errors.WrapInvalid(err, "HTTPTransport", "Send", "build request"))
	}
	httpReq.Header.Set("Content-Type", "application/x-ndjson")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Splunk "+req.Token)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrDeliveryFailure, err),
			"HTTPTransport", "Send", "post request")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err = fmt.Errorf("%w: HTTP %d", errors.ErrDeliveryFailure, resp.StatusCode)
	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return errors.WrapTransient(err, "HTTPTransport", "Send", "check status")
	default:
		return retry.NonRetryable(errors.WrapInvalid(err, "HTTPTransport", "Send", "check status"))
	}
}
