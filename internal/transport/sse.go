package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/mcpguard/gateway/internal/gatewayerr"
)

// SSETransport is the streaming event channel: a single POST whose response
// is a text/event-stream, each `data:` line delivered as one JSON-RPC
// message in order until the stream closes.
type SSETransport struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	scan   *bufio.Scanner
	body   closer
	closed bool
}

type closer interface {
	Close() error
}

// NewSSETransport builds a transport over an already-SSRF-checked URL.
func NewSSETransport(url string, client *http.Client) *SSETransport {
	return &SSETransport{url: url, client: client}
}

// Send issues the initiating POST and prepares the scanner that Receive
// drains event by event.
func (t *SSETransport) Send(ctx context.Context, message []byte) error {
	ctx, cancel := context.WithTimeout(ctx, httpTotalDeadline)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(message))
	if err != nil {
		cancel()
		return gatewayerr.New(gatewayerr.IOError, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return gatewayerr.New(gatewayerr.Timeout, err.Error())
		}
		return gatewayerr.New(gatewayerr.ConnectionClosed, err.Error())
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return gatewayerr.New(gatewayerr.IOError, "response was not text/event-stream")
	}

	t.mu.Lock()
	t.scan = bufio.NewScanner(resp.Body)
	t.body = resp.Body
	t.closed = false
	t.mu.Unlock()

	go func() { <-ctx.Done(); cancel() }()
	return nil
}

// Receive returns the next `data:` event's JSON-RPC payload. A blank line
// separates events and non-`data:` lines are skipped; a bare `data:` line or
// an event whose payload is not valid JSON is an InvalidJson stream error.
func (t *SSETransport) Receive(_ context.Context) ([]byte, error) {
	t.mu.Lock()
	scan := t.scan
	t.mu.Unlock()
	if scan == nil {
		return nil, gatewayerr.New(gatewayerr.IOError, "receive before send")
	}

	var data []byte
	for scan.Scan() {
		line := scan.Text()
		if line == "" {
			if data != nil {
				if !json.Valid(data) {
					return nil, gatewayerr.New(gatewayerr.InvalidJSON, "event payload is not JSON")
				}
				return data, nil
			}
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		chunk := strings.TrimPrefix(line, "data:")
		chunk = strings.TrimPrefix(chunk, " ")
		if chunk == "" {
			return nil, gatewayerr.New(gatewayerr.InvalidJSON, "bare data: line in event stream")
		}
		if data == nil {
			data = []byte(chunk)
		} else {
			data = append(data, '\n')
			data = append(data, chunk...)
		}
	}
	if err := scan.Err(); err != nil {
		return nil, gatewayerr.New(gatewayerr.IOError, err.Error())
	}
	if data != nil {
		if !json.Valid(data) {
			return nil, gatewayerr.New(gatewayerr.InvalidJSON, "event payload is not JSON")
		}
		return data, nil
	}
	return nil, gatewayerr.New(gatewayerr.ConnectionClosed, "stream closed")
}

func (t *SSETransport) IsHealthy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *SSETransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.body == nil {
		t.closed = true
		return nil
	}
	t.closed = true
	return t.body.Close()
}
