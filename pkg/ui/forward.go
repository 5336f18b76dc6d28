package ui

import (
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/paguro/pkg/events"
	"github.com/go-go-golems/paguro/pkg/transcript"
	"github.com/go-go-golems/paguro/pkg/widget"
	"github.com/rs/zerolog/log"
)

// EntryMsg carries a transcript entry into the bubbletea program.
type EntryMsg struct {
	Entry transcript.Entry
}

// StateMsg carries a controller snapshot into the bubbletea program.
type StateMsg struct {
	Snapshot widget.Snapshot
}

// Sender is the part of *tea.Program the forwarder needs.
type Sender interface {
	Send(msg tea.Msg)
}

var _ Sender = &tea.Program{}

// WidgetForwardFunc forwards watermill widget events to the UI by turning them
// into bubbletea messages and injecting them into p.
func WidgetForwardFunc(p Sender) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()

		e, err := events.NewEventFromJSON(msg.Payload)
		if err != nil {
			log.Error().Err(err).Str("payload", string(msg.Payload)).Msg("Failed to parse widget event")
			return err
		}

		log.Trace().Str("type", string(e.Type)).Str("widget", e.Widget).Msg("Dispatching widget event to UI")
		switch e.Type {
		case events.EventTypeEntry:
			p.Send(EntryMsg{Entry: *e.Entry})
		case events.EventTypeState:
			p.Send(StateMsg{Snapshot: *e.State})
		}
		return nil
	}
}
