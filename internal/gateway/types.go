package gateway

import "context"

// EnvelopeType tags every frame exchanged with UI clients.
const EnvelopeType = "ui_event"

// Envelope is the wire shape for both inbound and outbound UI frames.
type Envelope struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Event is a normalized inbound UI event from any adapter.
type Event struct {
	Adapter   string
	ConnID    string
	Component string
	Action    string
	RequestID string
	Payload   map[string]any
}

// Reply is the correlated response for one event. Component, Action, and
// RequestID echo the originating event.
type Reply struct {
	ConnID    string
	Component string
	Action    string
	RequestID string
	Body      map[string]any
}

// Envelope builds the outbound frame for the reply.
func (r *Reply) Envelope() Envelope {
	data := make(map[string]any, len(r.Body)+3)
	for k, v := range r.Body {
		data[k] = v
	}
	data["component"] = r.Component
	data["action"] = r.Action
	data["requestId"] = r.RequestID
	return Envelope{Type: EnvelopeType, Data: data}
}

// EventHandler processes inbound events from any adapter.
type EventHandler func(ev *Event)

// Adapter terminates one kind of client connection and normalizes its
// traffic into Events.
type Adapter interface {
	Name() string
	Start(ctx context.Context) error
	OnEvent(handler EventHandler)
	Send(ctx context.Context, reply *Reply) error
	Close() error
}
