// Package events publishes widget activity on a watermill topic so that
// presentation layers (or other processes, through Redis Streams) can follow a
// conversation.
package events

import (
	"encoding/json"
	"time"

	"github.com/go-go-golems/paguro/pkg/transcript"
	"github.com/go-go-golems/paguro/pkg/widget"
	"github.com/pkg/errors"
)

// DefaultTopic carries the events of the local widget.
const DefaultTopic = "paguro.widget"

type EventType string

const (
	// EventTypeEntry is emitted for every appended transcript entry.
	EventTypeEntry EventType = "entry"
	// EventTypeState is emitted for every controller state change.
	EventTypeState EventType = "state"
)

// Event is the JSON payload of a widget message.
type Event struct {
	Type   EventType         `json:"type"`
	Widget string            `json:"widget"`
	Entry  *transcript.Entry `json:"entry,omitempty"`
	State  *widget.Snapshot  `json:"state,omitempty"`
	At     time.Time         `json:"at"`
}

// NewEventFromJSON decodes a message payload.
func NewEventFromJSON(b []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrap(err, "decode widget event")
	}
	switch e.Type {
	case EventTypeEntry:
		if e.Entry == nil {
			return nil, errors.New("entry event without entry")
		}
	case EventTypeState:
		if e.State == nil {
			return nil, errors.New("state event without state")
		}
	default:
		return nil, errors.Errorf("unknown widget event type %q", e.Type)
	}
	return &e, nil
}
