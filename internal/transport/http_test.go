package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPTransport_SendReceive(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, srv.Client())
	ctx := context.Background()

	payload := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if err := tr.Send(ctx, payload); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	reply, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if string(reply) != string(payload) {
		t.Errorf("reply = %s, want %s", reply, payload)
	}
	if !tr.IsHealthy() {
		t.Error("IsHealthy() = false, want always true for HTTP transport")
	}
}

func TestHTTPTransport_ReceiveCancelled(t *testing.T) {
	t.Parallel()

	tr := NewHTTPTransport("http://unused.invalid", http.DefaultClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Receive(ctx)
	if err == nil {
		t.Fatal("expected error when context already cancelled with nothing pending")
	}
}
