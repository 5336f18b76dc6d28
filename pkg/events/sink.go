package events

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/paguro/pkg/transcript"
	"github.com/go-go-golems/paguro/pkg/widget"
	"github.com/rs/zerolog/log"
)

// WatermillSink publishes transcript entries and controller snapshots. Register
// it both as a transcript view and as a controller observer.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
	widget    string
}

var _ transcript.View = &WatermillSink{}
var _ widget.Observer = &WatermillSink{}

func NewWatermillSink(publisher message.Publisher, topic string, widgetName string) *WatermillSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillSink{publisher: publisher, topic: topic, widget: widgetName}
}

func (s *WatermillSink) Topic() string {
	return s.topic
}

func (s *WatermillSink) Append(e transcript.Entry) {
	s.publish(Event{Type: EventTypeEntry, Entry: &e})
}

// ScrollToEnd is implied by every entry event.
func (s *WatermillSink) ScrollToEnd() {}

func (s *WatermillSink) OnSnapshot(snap widget.Snapshot) {
	s.publish(Event{Type: EventTypeState, State: &snap})
}

func (s *WatermillSink) publish(e Event) {
	e.Widget = s.widget
	e.At = time.Now()

	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("component", "events").Msg("could not encode widget event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		log.Warn().Err(err).Str("component", "events").Str("topic", s.topic).Msg("could not publish widget event")
	}
}
