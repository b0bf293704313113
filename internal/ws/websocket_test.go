package ws

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/tlsnotary/notaryd/internal/config"
	"github.com/tlsnotary/notaryd/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			Token: "test-token",
		},
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testConfig(), nil, 16)
	if hub.clients == nil {
		t.Error("clients map not initialized")
	}
	if hub.queue == nil {
		t.Error("queue not initialized")
	}
}

func TestHubClientCount(t *testing.T) {
	hub := NewHub(testConfig(), slog.Default(), 16)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestHubRunStopsCleanlyOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(testConfig(), slog.Default(), 16)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	hub.BroadcastPhaseChanged(&store.Session{ID: "sess-1", ServerName: "x.com", Phase: "verifying"})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestBroadcastPhaseChangedDoesNotBlockWithNoClients(t *testing.T) {
	hub := NewHub(testConfig(), slog.Default(), 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastPhaseChanged(&store.Session{ID: "sess-2", ServerName: "x.com", Phase: "verified"})
	hub.BroadcastFieldRevealed("sess-2", ".user", "alice")
	hub.BroadcastVerified(&store.VerificationResult{SessionID: "sess-2", Verified: true})
}

func TestHighPriorityMessageSurvivesQueuePressure(t *testing.T) {
	hub := NewHub(testConfig(), slog.Default(), 4)

	// Fill the queue with low-priority pings before anything drains it.
	for i := 0; i < 8; i++ {
		hub.enqueue(&Message{Type: MessageTypePing, Timestamp: time.Now()}, "low")
	}
	hub.enqueue(&Message{Type: MessageTypeVerified, Timestamp: time.Now()}, "high")

	if hub.queue.Stats().HighCount == 0 {
		t.Fatalf("expected queue to retain at least the high-priority message")
	}
}
