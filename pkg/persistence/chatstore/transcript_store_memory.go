package chatstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/paguro/pkg/reply"
	"github.com/go-go-golems/paguro/pkg/transcript"
	"github.com/pkg/errors"
)

// InMemoryTranscriptStore is a size-limited TranscriptStore mirroring the
// ordering of the SQLite store.
type InMemoryTranscriptStore struct {
	mu                sync.Mutex
	maxEntriesPerConv int
	entries           map[string]map[int]transcript.Entry
	conversations     map[string]ConversationRecord
}

var _ TranscriptStore = &InMemoryTranscriptStore{}

func NewInMemoryTranscriptStore(maxEntriesPerConv int) *InMemoryTranscriptStore {
	if maxEntriesPerConv <= 0 {
		maxEntriesPerConv = 5000
	}
	return &InMemoryTranscriptStore{
		maxEntriesPerConv: maxEntriesPerConv,
		entries:           map[string]map[int]transcript.Entry{},
		conversations:     map[string]ConversationRecord{},
	}
}

func (s *InMemoryTranscriptStore) Close() error { return nil }

func (s *InMemoryTranscriptStore) AppendEntry(_ context.Context, convID string, e transcript.Entry) error {
	if s == nil {
		return errors.New("in-memory transcript store: nil store")
	}
	convID = strings.TrimSpace(convID)
	if convID == "" {
		return errors.New("in-memory transcript store: convID is empty")
	}
	if e.Seq <= 0 {
		return errors.New("in-memory transcript store: entry has no sequence number")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if len(e.Actions) > 0 {
		e.Actions = append([]reply.QuickAction(nil), e.Actions...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byseq, ok := s.entries[convID]
	if !ok {
		byseq = map[int]transcript.Entry{}
		s.entries[convID] = byseq
	}
	byseq[e.Seq] = e
	if len(byseq) > s.maxEntriesPerConv {
		oldest := e.Seq
		for seq := range byseq {
			if seq < oldest {
				oldest = seq
			}
		}
		delete(byseq, oldest)
	}

	at := e.At.UnixMilli()
	s.conversations[convID] = mergeConversationRecord(s.conversations[convID], ConversationRecord{
		ConvID:         convID,
		CreatedAtMs:    at,
		LastActivityMs: at,
	})
	return nil
}

func (s *InMemoryTranscriptStore) Entries(_ context.Context, convID string, limit int) ([]transcript.Entry, error) {
	if s == nil {
		return nil, errors.New("in-memory transcript store: nil store")
	}
	if convID == "" {
		return nil, errors.New("in-memory transcript store: convID is empty")
	}
	if limit <= 0 {
		limit = 5000
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byseq := s.entries[convID]
	out := make([]transcript.Entry, 0, len(byseq))
	for _, e := range byseq {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (s *InMemoryTranscriptStore) UpsertConversation(_ context.Context, record ConversationRecord) error {
	if s == nil {
		return errors.New("in-memory transcript store: nil store")
	}
	record = normalizeConversationRecord(record, time.Now().UnixMilli())
	if record.ConvID == "" {
		return errors.New("in-memory transcript store: convID is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[record.ConvID] = mergeConversationRecord(s.conversations[record.ConvID], record)
	return nil
}

func (s *InMemoryTranscriptStore) GetConversation(_ context.Context, convID string) (ConversationRecord, bool, error) {
	if s == nil {
		return ConversationRecord{}, false, errors.New("in-memory transcript store: nil store")
	}
	convID = strings.TrimSpace(convID)
	if convID == "" {
		return ConversationRecord{}, false, errors.New("in-memory transcript store: convID is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.conversations[convID]
	if !ok {
		return ConversationRecord{}, false, nil
	}
	r.Entries = len(s.entries[convID])
	return r, true, nil
}

func (s *InMemoryTranscriptStore) ListConversations(_ context.Context, limit int, sinceMs int64) ([]ConversationRecord, error) {
	if s == nil {
		return nil, errors.New("in-memory transcript store: nil store")
	}
	if limit <= 0 {
		limit = 200
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]ConversationRecord, 0, len(s.conversations))
	for id, r := range s.conversations {
		if sinceMs > 0 && r.LastActivityMs < sinceMs {
			continue
		}
		r.Entries = len(s.entries[id])
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].LastActivityMs == records[j].LastActivityMs {
			return records[i].ConvID < records[j].ConvID
		}
		return records[i].LastActivityMs > records[j].LastActivityMs
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
