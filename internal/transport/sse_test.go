package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSSETransport_ReceivesMultipleEvents(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"jsonrpc\":\"2.0\",\"id\":1}\n\n")
		fmt.Fprint(w, "data: {\"jsonrpc\":\"2.0\",\"id\":2}\n\n")
	}))
	defer srv.Close()

	tr := NewSSETransport(srv.URL, srv.Client())
	ctx := context.Background()
	if err := tr.Send(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	first, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("first Receive() error: %v", err)
	}
	if string(first) != `{"jsonrpc":"2.0","id":1}` {
		t.Errorf("first = %s", first)
	}

	second, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("second Receive() error: %v", err)
	}
	if string(second) != `{"jsonrpc":"2.0","id":2}` {
		t.Errorf("second = %s", second)
	}

	if !tr.IsHealthy() {
		t.Error("IsHealthy() = false before Close")
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if tr.IsHealthy() {
		t.Error("IsHealthy() = true after Close")
	}
}

func TestSSETransport_RejectsNonEventStreamResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0"}`)
	}))
	defer srv.Close()

	tr := NewSSETransport(srv.URL, srv.Client())
	if err := tr.Send(context.Background(), []byte(`{}`)); err == nil {
		t.Fatal("expected error for non-event-stream content type")
	}
}

func TestSSETransport_ReceiveBeforeSend(t *testing.T) {
	t.Parallel()

	tr := NewSSETransport("http://unused.invalid", http.DefaultClient)
	if _, err := tr.Receive(context.Background()); err == nil {
		t.Fatal("expected error calling Receive before Send")
	}
}
