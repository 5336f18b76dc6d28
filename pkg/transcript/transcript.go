package transcript

import (
	"sync"
	"time"

	"github.com/go-go-golems/paguro/pkg/reply"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Kind tells views how an entry came to be, so they can style it.
type Kind string

const (
	KindMessage Kind = "message"
	KindError   Kind = "error"
	KindNotice  Kind = "notice"
	KindBooking Kind = "booking"
)

// Entry is one rendered message. Entries are never mutated once appended.
type Entry struct {
	Seq     int                 `json:"seq"`
	Sender  Sender              `json:"sender"`
	Kind    Kind                `json:"kind"`
	Source  string              `json:"source"`
	HTML    string              `json:"html"`
	Actions []reply.QuickAction `json:"actions,omitempty"`
	Link    string              `json:"link,omitempty"`
	At      time.Time           `json:"at"`
}

// View displays entries. Append is called once per entry in arrival order,
// followed by ScrollToEnd.
type View interface {
	Append(e Entry)
	ScrollToEnd()
}

// Transcript is the append-only list of entries of one widget.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
	views   []View
	now     func() time.Time
}

func New(views ...View) *Transcript {
	return &Transcript{
		views: views,
		now:   time.Now,
	}
}

// AddView registers a view. It does not replay earlier entries.
func (t *Transcript) AddView(v View) {
	if v == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.views = append(t.views, v)
}

// Append stamps the entry with its sequence number and arrival time, stores it
// and forwards it to every view.
func (t *Transcript) Append(e Entry) Entry {
	t.mu.Lock()
	e.Seq = len(t.entries) + 1
	if e.At.IsZero() {
		e.At = t.now()
	}
	if len(e.Actions) > 0 {
		e.Actions = append([]reply.QuickAction(nil), e.Actions...)
	}
	t.entries = append(t.entries, e)
	views := append([]View(nil), t.views...)
	t.mu.Unlock()

	for _, v := range views {
		v.Append(e)
		v.ScrollToEnd()
	}
	return e
}

// Entries returns a copy of the entries in arrival order.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Last returns the newest entry.
func (t *Transcript) Last() (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[len(t.entries)-1], true
}
