package transport

import (
	"context"
	"testing"
	"time"
)

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	valid := []string{"/usr/bin/mcp-server", "mcp-server"}
	for _, c := range valid {
		if err := ValidateCommand(c); err != nil {
			t.Errorf("ValidateCommand(%q) error: %v", c, err)
		}
	}

	invalid := []string{"", "mcp-server; rm -rf /", "mcp-server arg", "mcp-server|tee /tmp/x", "mcp-server`whoami`"}
	for _, c := range invalid {
		if err := ValidateCommand(c); err == nil {
			t.Errorf("ValidateCommand(%q) = nil, want error", c)
		}
	}
}

func TestStdioTransport_SendReceiveRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, err := NewStdioTransport(ctx, "/bin/cat", nil, nil)
	if err != nil {
		t.Fatalf("NewStdioTransport() error: %v", err)
	}
	defer tr.Close()

	if !tr.IsHealthy() {
		t.Fatal("IsHealthy() = false immediately after start")
	}

	if err := tr.Send(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	reply, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if string(reply) != `{"jsonrpc":"2.0","id":1,"method":"ping"}` {
		t.Errorf("reply = %s", reply)
	}
}

func TestStdioTransport_CloseMarksUnhealthyEventually(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, err := NewStdioTransport(ctx, "/bin/cat", nil, nil)
	if err != nil {
		t.Fatalf("NewStdioTransport() error: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for tr.IsHealthy() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if tr.IsHealthy() {
		t.Error("IsHealthy() = true after Close, want false once the child has exited")
	}
}
