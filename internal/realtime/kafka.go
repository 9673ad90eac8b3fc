package realtime

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaTransport is the alternate realtime backend for fleets large
// enough to want a partitioned log instead of a single JetStream
// subject, selected via config ("realtime.transport: kafka"). Grounded
// on sibling example repo rodaine-franz-go, which drives franz-go's
// consumer-group API the same way this transport does.
type KafkaTransport struct {
	client *kgo.Client
}

// NewKafkaTransport builds a consumer-group client against brokers for
// the given group, one topic per user being joined at Subscribe time.
func NewKafkaTransport(brokers []string, group string) (*KafkaTransport, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		return nil, fmt.Errorf("realtime: kafka client: %w", err)
	}
	return &KafkaTransport{client: client}, nil
}

func topicForUser(userID string) string {
	return "tunetrees.sync.changes." + userID
}

// Subscribe implements Transport: joins userID's per-user topic and
// streams table names changed, one poll loop per call.
func (t *KafkaTransport) Subscribe(ctx context.Context, userID string) (<-chan string, error) {
	t.client.AddConsumeTopics(topicForUser(userID))
	out := make(chan string, 64)

	go func() {
		defer close(out)
		for {
			fetches := t.client.PollFetches(ctx)
			if ctx.Err() != nil || fetches.IsClientClosed() {
				return
			}
			fetches.EachError(func(_ string, _ int32, err error) {
				// Transient fetch errors are retried by the next poll;
				// franz-go's own client-level retry/backoff covers the
				// broker-connection case.
			})
			fetches.EachRecord(func(r *kgo.Record) {
				select {
				case out <- string(r.Value):
				default:
				}
			})
		}
	}()

	return out, nil
}

// Close tears down the consumer-group client.
func (t *KafkaTransport) Close() error {
	t.client.Close()
	return nil
}
