package sync

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/huykn/query-cache/types"
)

func setupRedisClient(t *testing.T) *redis.Client {
	client, err := Dial(context.Background(), "localhost:6379", "", 1)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func subscribed(t *testing.T, client *redis.Client, channel, sender string) *PubSubSynchronizer {
	t.Helper()
	s := NewPubSubSynchronizer(client, channel, sender)
	if err := s.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func receive(t *testing.T, ch <-chan InvalidationEvent) InvalidationEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
	return InvalidationEvent{}
}

func TestDialUnreachable(t *testing.T) {
	if _, err := Dial(context.Background(), "127.0.0.1:1", "", 0); err == nil {
		t.Fatal("Expected error dialing a closed port")
	}
}

func TestNewPubSubSynchronizer(t *testing.T) {
	s := NewPubSubSynchronizer(nil, "query-cache:invalidate", "node-1")
	if s.channel != "query-cache:invalidate" {
		t.Fatalf("Expected channel 'query-cache:invalidate', got %s", s.channel)
	}
	if s.senderID != "node-1" {
		t.Fatalf("Expected senderID 'node-1', got %s", s.senderID)
	}
}

func TestPubSubSynchronizerCloseWithoutSubscribe(t *testing.T) {
	s := NewPubSubSynchronizer(nil, "test-channel", "node-1")
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// closing twice is a no-op
	if err := s.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
}

func TestPubSubSynchronizerInvalidate(t *testing.T) {
	client := setupRedisClient(t)
	publisher := subscribed(t, client, "test-invalidate", "api")
	listener := subscribed(t, client, "test-invalidate", "node-1")

	received := make(chan InvalidationEvent, 1)
	listener.OnInvalidate(func(event InvalidationEvent) { received <- event })

	hash := `["artwork-details",27992]`
	if err := publisher.Invalidate(context.Background(), hash); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	event := receive(t, received)
	if event.Key != hash {
		t.Fatalf("Expected key %s, got %s", hash, event.Key)
	}
	if event.Sender != "api" {
		t.Fatalf("Expected sender 'api', got %s", event.Sender)
	}
	if event.Action != types.Invalidate {
		t.Fatalf("Expected action 'invalidate', got %s", event.Action)
	}
}

func TestPubSubSynchronizerClear(t *testing.T) {
	client := setupRedisClient(t)
	publisher := subscribed(t, client, "test-clear", "api")
	listener := subscribed(t, client, "test-clear", "node-1")

	received := make(chan InvalidationEvent, 1)
	listener.OnInvalidate(func(event InvalidationEvent) { received <- event })

	if err := publisher.Clear(context.Background()); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	event := receive(t, received)
	if event.Action != types.Clear || event.Key != "*" {
		t.Fatalf("Unexpected event %+v", event)
	}
}

func TestPubSubSynchronizerIgnoreOwnEvents(t *testing.T) {
	client := setupRedisClient(t)
	s := subscribed(t, client, "test-own", "node-1")

	received := make(chan InvalidationEvent, 1)
	s.OnInvalidate(func(event InvalidationEvent) { received <- event })

	if err := s.Invalidate(context.Background(), "k"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	select {
	case <-received:
		t.Fatal("Should not receive own events")
	case <-time.After(500 * time.Millisecond):
		// Expected - no event received
	}
}

func TestPubSubSynchronizerMultipleCallbacks(t *testing.T) {
	client := setupRedisClient(t)
	publisher := subscribed(t, client, "test-multi", "api")
	listener := subscribed(t, client, "test-multi", "node-1")

	first := make(chan InvalidationEvent, 1)
	second := make(chan InvalidationEvent, 1)
	listener.OnInvalidate(func(event InvalidationEvent) { first <- event })
	listener.OnInvalidate(func(event InvalidationEvent) { second <- event })

	if err := publisher.Invalidate(context.Background(), "k"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	receive(t, first)
	receive(t, second)
}

func TestPubSubSynchronizerSkipsMalformedPayload(t *testing.T) {
	client := setupRedisClient(t)
	listener := subscribed(t, client, "test-malformed", "node-1")

	received := make(chan InvalidationEvent, 1)
	listener.OnInvalidate(func(event InvalidationEvent) { received <- event })

	ctx := context.Background()
	if err := client.Publish(ctx, "test-malformed", "{not json").Err(); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := client.Publish(ctx, "test-malformed", `{"key":"k","sender":"api","action":"invalidate"}`).Err(); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if event := receive(t, received); event.Key != "k" {
		t.Fatalf("Expected the well-formed event, got %+v", event)
	}
}
