package ui

import (
	"context"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/paguro/pkg/events"
	chatstore "github.com/go-go-golems/paguro/pkg/persistence/chatstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TranscriptPersistFunc stores widget events from the UI topic into the
// configured TranscriptStore. Entry events become history rows, state events
// keep the conversation record (widget name, session id) current.
// Persistence is best-effort: storage errors are logged but do not fail the chat.
func TranscriptPersistFunc(store chatstore.TranscriptStore, convID string) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()

		if store == nil || strings.TrimSpace(convID) == "" {
			return nil
		}

		ev, err := events.NewEventFromJSON(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("component", "transcript_persist").Msg("failed to decode event payload")
			return nil
		}

		ctx := msg.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cancel := func() {}
		if ctx.Err() != nil {
			// Watermill message contexts can be canceled on shutdown before the queue drains.
			ctx, cancel = context.WithTimeout(context.Background(), 250*time.Millisecond)
		}
		defer cancel()

		switch ev.Type {
		case events.EventTypeEntry:
			err = store.AppendEntry(ctx, convID, *ev.Entry)
		case events.EventTypeState:
			err = store.UpsertConversation(ctx, chatstore.ConversationRecord{
				ConvID:         convID,
				Widget:         ev.Widget,
				SessionID:      ev.State.SessionID,
				LastActivityMs: ev.At.UnixMilli(),
			})
		}
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Err(err).
				Str("component", "transcript_persist").
				Str("conv_id", convID).
				Str("type", string(ev.Type)).
				Msg("transcript persist failed")
		}
		return nil
	}
}
