package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used to publish notifications.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Event is the JSON document published for each notification.
type Event struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Notification
}

// NATSDispatcher publishes notifications to <prefix>.<outcome>.
type NATSDispatcher struct {
	conn   Publisher
	prefix string
	now    func() time.Time
}

func NewNATSDispatcher(conn Publisher, prefix string) *NATSDispatcher {
	if prefix == "" {
		prefix = "notifications.leave"
	}
	return &NATSDispatcher{conn: conn, prefix: prefix, now: time.Now}
}

func (d *NATSDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event := Event{ID: uuid.NewString(), OccurredAt: d.now().UTC(), Notification: n}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := nats.NewMsg(d.Subject(n.Outcome))
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	msg.Data = data
	if err := d.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

func (d *NATSDispatcher) Subject(outcome Outcome) string {
	return d.prefix + "." + string(outcome)
}
