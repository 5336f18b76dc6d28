// Package chatstore keeps a local history of widget conversations: one record
// per run of a widget and the transcript entries it produced.
package chatstore

import (
	"context"
	"strings"

	"github.com/go-go-golems/paguro/pkg/transcript"
)

// ConversationRecord describes one widget run.
type ConversationRecord struct {
	ConvID         string `json:"conv_id"`
	Widget         string `json:"widget"`
	SessionID      string `json:"session_id"`
	CreatedAtMs    int64  `json:"created_at_ms"`
	LastActivityMs int64  `json:"last_activity_ms"`
	Entries        int    `json:"entries"`
}

// TranscriptStore persists transcript entries by conversation. Appending an
// entry with a sequence number already stored replaces it, so redelivered
// events are harmless.
type TranscriptStore interface {
	AppendEntry(ctx context.Context, convID string, e transcript.Entry) error
	Entries(ctx context.Context, convID string, limit int) ([]transcript.Entry, error)
	UpsertConversation(ctx context.Context, record ConversationRecord) error
	GetConversation(ctx context.Context, convID string) (ConversationRecord, bool, error)
	ListConversations(ctx context.Context, limit int, sinceMs int64) ([]ConversationRecord, error)
	Close() error
}

func normalizeConversationRecord(record ConversationRecord, now int64) ConversationRecord {
	record.ConvID = strings.TrimSpace(record.ConvID)
	record.Widget = strings.TrimSpace(record.Widget)
	record.SessionID = strings.TrimSpace(record.SessionID)
	if record.CreatedAtMs <= 0 {
		record.CreatedAtMs = now
	}
	if record.LastActivityMs <= 0 {
		record.LastActivityMs = record.CreatedAtMs
	}
	return record
}

// mergeConversationRecord keeps the earliest creation time, the latest
// activity and any non-empty identifiers.
func mergeConversationRecord(existing ConversationRecord, next ConversationRecord) ConversationRecord {
	if existing.ConvID == "" {
		return next
	}
	out := existing
	if next.Widget != "" {
		out.Widget = next.Widget
	}
	if next.SessionID != "" {
		out.SessionID = next.SessionID
	}
	if out.CreatedAtMs <= 0 || (next.CreatedAtMs > 0 && next.CreatedAtMs < out.CreatedAtMs) {
		out.CreatedAtMs = next.CreatedAtMs
	}
	if next.LastActivityMs > out.LastActivityMs {
		out.LastActivityMs = next.LastActivityMs
	}
	return out
}
