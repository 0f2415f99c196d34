package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/buildvault/buildvault/internal/common"
)

// natsConn is the subset of *nats.Conn used by the emitter.
type natsConn interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// NatsEmitter publishes link events to a NATS subject. The event ID rides
// in the Nats-Msg-Id header so a JetStream consumer deduplicates replays.
type NatsEmitter struct {
	conn    natsConn
	subject string
}

func NewNatsEmitter(conn *nats.Conn, subject string) *NatsEmitter {
	return &NatsEmitter{conn: conn, subject: subject}
}

func (e *NatsEmitter) Emit(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	msg := &nats.Msg{
		Subject: e.subject,
		Data:    data,
		Header:  nats.Header{"Nats-Msg-Id": []string{event.ID}},
	}

	if err := e.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("%w: publish: %v", common.ErrStorageUnavailable, err)
	}
	if err := e.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: flush: %v", common.ErrStorageUnavailable, err)
	}
	return nil
}
