package agent

import (
	"encoding/json"
	"time"

	"github.com/mtconnect-go/agent/pkg/log"
	"github.com/mtconnect-go/agent/pkg/schema"
	"github.com/nats-io/nats.go"
)

// eventEnvelope is the JSON shape mirrored to the event bridge subject per
// observation pushed: enough to correlate an external subscriber's view
// with a sample()/stream() response without re-deriving the full
// Observation encoding.
type eventEnvelope struct {
	Sequence   uint64 `json:"sequence"`
	DataItemID string `json:"dataItemId"`
	Timestamp  int64  `json:"timestamp"`
}

// EventBridge is an optional best-effort NATS mirror, built on the same
// github.com/nats-io/nats.go connection the teacher's
// pkg/nats.Client wraps, simplified to fire-and-forget single-subject
// publish: an agent has no subscribers of its own to manage, so the
// teacher's Subscribe/SubscribeQueue/Close bookkeeping has nothing to do
// here.
type EventBridge struct {
	conn    *nats.Conn
	subject string
}

// NewEventBridge connects to url and returns a bridge publishing to
// subject. A connection failure is returned to the caller, who may choose
// to run without an event bridge rather than fail agent startup over it.
func NewEventBridge(url, subject string) (*EventBridge, error) {
	conn, err := nats.Connect(url,
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("[EVENTBRIDGE]> reconnected to %s", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("[EVENTBRIDGE]> disconnected: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, newError(ErrConfigError, "connect event bridge to %q: %v", url, err)
	}
	return &EventBridge{conn: conn, subject: subject}, nil
}

// Publish mirrors one observation, best-effort: publish errors are logged,
// never returned, since a dropped event-bridge message must not affect
// the data path.
func (b *EventBridge) Publish(obs schema.Observation) {
	body, err := json.Marshal(eventEnvelope{
		Sequence:   obs.Sequence,
		DataItemID: obs.DataItemID,
		Timestamp:  obs.Timestamp.UnixNano() / int64(time.Microsecond),
	})
	if err != nil {
		log.Warnf("[EVENTBRIDGE]> marshal: %v", err)
		return
	}
	if err := b.conn.Publish(b.subject, body); err != nil {
		log.Warnf("[EVENTBRIDGE]> publish: %v", err)
	}
}

// Close flushes and closes the bridge connection.
func (b *EventBridge) Close() {
	b.conn.Flush()
	b.conn.Close()
}
