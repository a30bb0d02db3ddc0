package store

import (
	"context"

	"github.com/the-dev-tools/recordsync/pkg/eventstream"
	"github.com/the-dev-tools/recordsync/pkg/mutation"
	"github.com/the-dev-tools/recordsync/pkg/streamregistry"
)

// NewRegistry routes committed mutations onto streamer, one topic per
// partition and entity type.
func NewRegistry(streamer Streamer) *streamregistry.Registry {
	reg := streamregistry.New()
	publish := func(evt mutation.Event) {
		streamer.Publish(Topic{Partition: evt.Partition, Entity: evt.Entity}, evt)
	}
	for _, entity := range []mutation.EntityType{
		mutation.EntityCompany,
		mutation.EntityEmployee,
		mutation.EntityPartition,
		mutation.EntityShare,
	} {
		reg.Register(entity, publish)
	}
	return reg
}

// EntityTopics selects one entity type within one partition.
func EntityTopics(partition string, entity mutation.EntityType) eventstream.TopicFilter[Topic] {
	return func(t Topic) bool {
		return t.Partition == partition && t.Entity == entity
	}
}

// PartitionTopics selects partition create/drop events.
func PartitionTopics(t Topic) bool {
	return t.Entity == mutation.EntityPartition
}

// Watch calls fn for every burst of events matching filter until ctx is done.
func Watch(ctx context.Context, streamer Streamer, filter eventstream.TopicFilter[Topic], fn func()) error {
	events, err := streamer.Subscribe(ctx, filter)
	if err != nil {
		return err
	}
	go func() {
		for range events {
		drain:
			for {
				select {
				case _, ok := <-events:
					if !ok {
						return
					}
				default:
					break drain
				}
			}
			if ctx.Err() != nil {
				return
			}
			fn()
		}
	}()
	return nil
}
