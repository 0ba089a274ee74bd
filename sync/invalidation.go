// Package sync delivers query invalidation events between processes over
// Redis Pub/Sub. Only event envelopes travel the channel; no query data is
// stored in Redis.
package sync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/huykn/query-cache/types"
)

// InvalidationEvent is an alias for types.InvalidationEvent
type InvalidationEvent = types.InvalidationEvent

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// PubSubSynchronizer implements invalidation delivery using Redis Pub/Sub.
type PubSubSynchronizer struct {
	client         *redis.Client
	channel        string
	senderID       string
	pubsub         *redis.PubSub
	callbacks      []func(event InvalidationEvent)
	callbacksMutex sync.RWMutex
	done           chan struct{}
	closeOnce      sync.Once
	wg             sync.WaitGroup
}

// NewPubSubSynchronizer creates a new Pub/Sub synchronizer. Events published
// with senderID are not delivered back to this synchronizer.
func NewPubSubSynchronizer(client *redis.Client, channel, senderID string) *PubSubSynchronizer {
	return &PubSubSynchronizer{
		client:    client,
		channel:   channel,
		senderID:  senderID,
		callbacks: make([]func(event InvalidationEvent), 0),
		done:      make(chan struct{}),
	}
}

// Subscribe starts listening for invalidation events. It returns once Redis
// confirmed the subscription.
func (ps *PubSubSynchronizer) Subscribe(ctx context.Context) error {
	ps.pubsub = ps.client.Subscribe(ctx, ps.channel)
	if _, err := ps.pubsub.Receive(ctx); err != nil {
		ps.pubsub.Close()
		ps.pubsub = nil
		return err
	}

	ps.wg.Add(1)
	go ps.listenForEvents()

	return nil
}

// Publish publishes an invalidation event.
func (ps *PubSubSynchronizer) Publish(ctx context.Context, event InvalidationEvent) error {
	if event.Sender == "" {
		event.Sender = ps.senderID
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return ps.client.Publish(ctx, ps.channel, string(data)).Err()
}

// Invalidate announces that the query with the given key hash is stale.
func (ps *PubSubSynchronizer) Invalidate(ctx context.Context, hash string) error {
	return ps.Publish(ctx, InvalidationEvent{Key: hash, Action: types.Invalidate})
}

// Clear announces that every query is stale.
func (ps *PubSubSynchronizer) Clear(ctx context.Context) error {
	return ps.Publish(ctx, InvalidationEvent{Key: "*", Action: types.Clear})
}

// OnInvalidate registers a callback for invalidation events.
func (ps *PubSubSynchronizer) OnInvalidate(callback func(event InvalidationEvent)) {
	ps.callbacksMutex.Lock()
	defer ps.callbacksMutex.Unlock()
	ps.callbacks = append(ps.callbacks, callback)
}

// Close closes the synchronizer. It does not close the Redis client.
func (ps *PubSubSynchronizer) Close() error {
	ps.closeOnce.Do(func() { close(ps.done) })
	ps.wg.Wait()

	if ps.pubsub != nil {
		err := ps.pubsub.Close()
		ps.pubsub = nil
		return err
	}
	return nil
}

// listenForEvents listens for invalidation events from Redis Pub/Sub.
func (ps *PubSubSynchronizer) listenForEvents() {
	defer ps.wg.Done()

	ch := ps.pubsub.Channel()

	for {
		select {
		case <-ps.done:
			return
		case msg, ok := <-ch:
			if !ok || msg == nil {
				return
			}

			var event InvalidationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}

			// Our own announcements were applied locally already
			if event.Sender == ps.senderID {
				continue
			}

			ps.callbacksMutex.RLock()
			callbacks := ps.callbacks
			ps.callbacksMutex.RUnlock()

			for _, callback := range callbacks {
				callback(event)
			}
		}
	}
}
