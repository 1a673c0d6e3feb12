package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mcpguard/gateway/internal/gatewayerr"
)

// httpTotalDeadline is the fixed 30-second total deadline for every
// HTTP/SSE round trip.
const httpTotalDeadline = 30 * time.Second

// NewUpstreamHTTPClient builds the *http.Client shared by the HTTP one-shot
// and SSE transports. dial should be an SSRF-safe dialer (see SSRFSafeDialer).
func NewUpstreamHTTPClient(dial func(ctx context.Context, network, addr string) (net.Conn, error)) *http.Client {
	return &http.Client{
		Timeout: httpTotalDeadline,
		Transport: &http.Transport{
			DialContext:         dial,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// HTTPTransport is the HTTP one-shot engine: each Send POSTs a JSON body
// and the single reply is buffered for the next Receive.
type HTTPTransport struct {
	url    string
	client *http.Client

	pending chan []byte
}

// NewHTTPTransport builds a transport over an already-SSRF-checked URL.
func NewHTTPTransport(url string, client *http.Client) *HTTPTransport {
	return &HTTPTransport{url: url, client: client, pending: make(chan []byte, 1)}
}

func (t *HTTPTransport) Send(ctx context.Context, message []byte) error {
	ctx, cancel := context.WithTimeout(ctx, httpTotalDeadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(message))
	if err != nil {
		return gatewayerr.New(gatewayerr.IOError, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return gatewayerr.New(gatewayerr.Timeout, err.Error())
		}
		return gatewayerr.New(gatewayerr.ConnectionClosed, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return gatewayerr.New(gatewayerr.IOError, err.Error())
	}

	select {
	case t.pending <- body:
	default:
		// A prior reply was never drained; overwrite it — the one-at-a-time
		// usage model means this should not happen in practice.
		<-t.pending
		t.pending <- body
	}
	return nil
}

func (t *HTTPTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case body := <-t.pending:
		return body, nil
	case <-ctx.Done():
		return nil, gatewayerr.New(gatewayerr.Timeout, "receive cancelled")
	}
}

// IsHealthy is always true for the one-shot engine: there is no persistent
// connection whose liveness could be observed between requests.
func (t *HTTPTransport) IsHealthy() bool { return true }

func (t *HTTPTransport) Close() error { return nil }
