// Package notify tells the outside world about catalog writes. Messages
// go to a NATS subject and to the in-process realtime hub. Delivery never
// fails a request: errors are logged and dropped.
package notify

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rubiojr/datacatalog/pkg/log"
	"github.com/rubiojr/datacatalog/pkg/realtime"
)

// Notifier delivers a message about an organization's data sets.
type Notifier interface {
	Notify(org, message string)
}

// Message formats a notification about the data set at sourceURI.
// status is optional.
func Message(sourceURI, message, status string) string {
	return sourceURI + " - " + message + " " + status
}

// Nop discards notifications.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(string, string) {}

// Fanout sends every notification to all its notifiers in order.
type Fanout []Notifier

// Notify forwards to every notifier.
func (f Fanout) Notify(org, message string) {
	for _, n := range f {
		n.Notify(org, message)
	}
}

// Hub publishes notifications as realtime events.
type Hub struct {
	hub *realtime.Hub
}

// NewHub returns a notifier broadcasting to hub.
func NewHub(hub *realtime.Hub) *Hub {
	return &Hub{hub: hub}
}

// Notify broadcasts the message to the hub's listeners.
func (h *Hub) Notify(org, message string) {
	h.hub.Broadcast(realtime.NewEvent(org, message))
}

// Publisher is the part of a NATS connection the notifier uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes notifications as JSON to a subject.
type NATS struct {
	pub     Publisher
	subject string
	now     func() time.Time
	log     *log.Logger
	failed  func()
}

// NewNATS returns a notifier publishing on subject through pub.
func NewNATS(pub Publisher, subject string) *NATS {
	return &NATS{pub: pub, subject: subject, now: time.Now, log: log.ForService("notify")}
}

// OnFailure registers f to be called for every failed publish.
func (n *NATS) OnFailure(f func()) {
	n.failed = f
}

// Connect dials the NATS server at url. The connection reconnects on its
// own; connection state changes are logged.
func Connect(url, name string) (*nats.Conn, error) {
	l := log.ForService("notify")
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warnf("disconnected from NATS: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			l.Infof("reconnected to NATS at %s", c.ConnectedUrlRedacted())
		}),
	)
}

// Notify publishes {OrgGuid, Message, Timestamp} on the subject.
func (n *NATS) Notify(org, message string) {
	ev := realtime.Event{OrgGUID: org, Message: message, Timestamp: n.now().UnixMilli()}
	data, err := json.Marshal(ev)
	if err == nil {
		err = n.pub.Publish(n.subject, data)
	}
	if err != nil {
		n.log.Errorf("publishing notification to %s: %v", n.subject, err)
		if n.failed != nil {
			n.failed()
		}
		return
	}
	n.log.Debugf("notified %s: %s", org, strings.TrimSpace(message))
}
