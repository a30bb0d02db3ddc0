// Package eventstream defines topic-filtered change streams. Backends publish
// a change event after every committed write; live queries subscribe to the
// topics they observe.
package eventstream

import (
	"context"
	"errors"
)

var ErrStreamerClosed = errors.New("eventstream: streamer closed")

// TopicFilter selects the topics a subscriber receives. A nil filter accepts
// every topic.
type TopicFilter[Topic any] func(Topic) bool

// Event is one published payload together with its topic.
type Event[Topic any, Payload any] struct {
	Topic   Topic
	Payload Payload
}

// SyncStreamer fans published events out to subscribers.
//
// Delivery is lossy under back pressure: when a subscriber's buffer is full the
// event is dropped for that subscriber. Consumers that only need to know that
// something changed (and then re-read their source) lose nothing, because a
// full buffer already guarantees a pending wake-up.
type SyncStreamer[Topic any, Payload any] interface {
	// Subscribe returns a channel that is closed when ctx is done or the
	// streamer shuts down.
	Subscribe(ctx context.Context, filter TopicFilter[Topic]) (<-chan Event[Topic, Payload], error)

	// Publish never blocks.
	Publish(topic Topic, payloads ...Payload)

	Shutdown()
}
