package realtime

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSTransport is the default realtime backend: a durable JetStream
// subscription per session. Grounded on the teacher's own
// internal/eventbus (Bus.SetJetStream/JetStreamEnabled) and
// internal/daemon/nats.go, which wire nats.go the same way for the
// teacher's own change-notification fanout.
type NATSTransport struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	sub  *nats.Subscription
}

// NewNATSTransport connects to a NATS server and resolves its
// JetStream context. The connection is kept open until Close.
func NewNATSTransport(url string) (*NATSTransport, error) {
	conn, err := nats.Connect(url, nats.Name("tunetrees-sync"))
	if err != nil {
		return nil, fmt.Errorf("realtime: nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("realtime: nats jetstream: %w", err)
	}
	return &NATSTransport{conn: conn, js: js}, nil
}

// subjectForUser scopes the notification subject to one authenticated
// user, matching the teacher's own per-session subject-prefix
// convention.
func subjectForUser(userID string) string {
	return "tunetrees.sync.changes." + userID
}

// Subscribe implements Transport.
func (t *NATSTransport) Subscribe(ctx context.Context, userID string) (<-chan string, error) {
	out := make(chan string, 64)

	sub, err := t.js.Subscribe(subjectForUser(userID), func(msg *nats.Msg) {
		table := string(msg.Data)
		select {
		case out <- table:
		default:
			// A full channel means the pull pipeline is already behind;
			// dropping here is safe because the next periodic tick will
			// still pick up the table's changes.
		}
		_ = msg.Ack()
	}, nats.Durable("tunetrees-sync-"+userID), nats.ManualAck())
	if err != nil {
		close(out)
		return nil, fmt.Errorf("realtime: nats subscribe: %w", err)
	}
	t.sub = sub

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		close(out)
	}()

	return out, nil
}

// Close tears down the connection.
func (t *NATSTransport) Close() error {
	if t.sub != nil {
		_ = t.sub.Unsubscribe()
	}
	t.conn.Close()
	return nil
}
