package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/paguro/pkg/events"
	chatstore "github.com/go-go-golems/paguro/pkg/persistence/chatstore"
	"github.com/go-go-golems/paguro/pkg/reply"
	"github.com/go-go-golems/paguro/pkg/transcript"
	"github.com/go-go-golems/paguro/pkg/widget"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu        sync.Mutex
	submitted []string
	chosen    []reply.QuickAction
	cancelled int
}

func (f *fakeController) Start(context.Context) error { return nil }

func (f *fakeController) Submit(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, text)
	return nil
}

func (f *fakeController) Choose(_ context.Context, a reply.QuickAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chosen = append(f.chosen, a)
	return nil
}

func (f *fakeController) CancelRedirect() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	return true
}

func (f *fakeController) Snapshot() widget.Snapshot { return widget.Snapshot{} }

type recordingSender struct {
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) { r.msgs = append(r.msgs, msg) }

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func eventMessage(t *testing.T, e events.Event) *message.Message {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return message.NewMessage(uuid.NewString(), b)
}

func TestModel_EnterSubmitsTrimmedText(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl)
	m.textinput.SetValue("  disponibilità luglio  ")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.Equal(t, "", m.textinput.Value())

	msg := cmd()
	require.IsType(t, submitDoneMsg{}, msg)
	require.Equal(t, []string{"disponibilità luglio"}, ctrl.submitted)
}

func TestModel_BlankEnterDoesNothing(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl)
	m.textinput.SetValue("   ")

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Empty(t, ctrl.submitted)
}

func TestModel_DisabledInputIgnoresEnter(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl)
	m, _ = update(t, m, StateMsg{Snapshot: widget.Snapshot{State: widget.StateIdle, Disabled: true}})
	m.textinput.SetValue("ciao")

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Contains(t, m.View(), widget.DefaultMessages().Unavailable)
}

func TestModel_TabCyclesQuickActions(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl)
	actions := []reply.QuickAction{
		{Label: "1. Camera Mare", Value: "1"},
		{Label: "2. Camera Giardino", Value: "2"},
	}
	m, _ = update(t, m, EntryMsg{Entry: transcript.Entry{Seq: 1, Sender: transcript.SenderAssistant, Kind: transcript.KindMessage, Source: "scegli", Actions: actions}})
	require.Equal(t, -1, m.selected)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, 0, m.selected)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, 1, m.selected)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, 0, m.selected)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.Equal(t, -1, m.selected)
	cmd()
	require.Equal(t, []reply.QuickAction{actions[1]}, ctrl.chosen)
}

func TestModel_UserEntryKeepsActionsOfLastReply(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{})
	actions := []reply.QuickAction{{Label: "1. Sì", Value: "1"}}
	m, _ = update(t, m, EntryMsg{Entry: transcript.Entry{Seq: 1, Sender: transcript.SenderAssistant, Source: "?", Actions: actions}})
	m, _ = update(t, m, EntryMsg{Entry: transcript.Entry{Seq: 2, Sender: transcript.SenderUser, Source: "1"}})
	require.Equal(t, actions, m.actions)

	m, _ = update(t, m, EntryMsg{Entry: transcript.Entry{Seq: 3, Sender: transcript.SenderAssistant, Source: "ok"}})
	require.Empty(t, m.actions)
	require.Len(t, m.Entries(), 3)
}

func TestModel_CopyAndCancelRedirect(t *testing.T) {
	ctrl := &fakeController{}
	var copied string
	m := NewModel(context.Background(), ctrl, WithClipboard(func(s string) error {
		copied = s
		return nil
	}))

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	require.Nil(t, cmd)

	link := "https://villaceli.example/prenotazione/?adults=2"
	m, _ = update(t, m, EntryMsg{Entry: transcript.Entry{Seq: 1, Sender: transcript.SenderAssistant, Kind: transcript.KindBooking, Source: "Prenota", Link: link}})
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	require.Equal(t, link, copied)
	require.Equal(t, "Link copiato negli appunti.", m.status)

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlX})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	require.Equal(t, 1, ctrl.cancelled)
	require.Equal(t, "Reindirizzamento annullato.", m.status)
}

func TestModel_PendingStateShowsThinking(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{})
	m, cmd := update(t, m, StateMsg{Snapshot: widget.Snapshot{State: widget.StateSending, Pending: true}})
	require.NotNil(t, cmd)
	require.True(t, m.spinning)
	require.Contains(t, m.View(), widget.DefaultMessages().Thinking)

	m, _ = update(t, m, StateMsg{Snapshot: widget.Snapshot{State: widget.StateIdle, InputEnabled: true}})
	require.False(t, m.spinning)
	require.NotContains(t, m.View(), widget.DefaultMessages().Thinking)
}

func TestModel_EscQuits(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{})
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestWidgetForwardFunc(t *testing.T) {
	s := &recordingSender{}
	h := WidgetForwardFunc(s)

	entry := transcript.Entry{Seq: 1, Sender: transcript.SenderUser, Kind: transcript.KindMessage, Source: "ciao"}
	require.NoError(t, h(eventMessage(t, events.Event{Type: events.EventTypeEntry, Entry: &entry})))
	snap := widget.Snapshot{State: widget.StateSending, Pending: true}
	require.NoError(t, h(eventMessage(t, events.Event{Type: events.EventTypeState, State: &snap})))

	require.Len(t, s.msgs, 2)
	require.Equal(t, EntryMsg{Entry: entry}, s.msgs[0])
	require.Equal(t, StateMsg{Snapshot: snap}, s.msgs[1])

	require.Error(t, h(message.NewMessage(uuid.NewString(), []byte(`{"type":"bogus"}`))))
	require.Len(t, s.msgs, 2)
}

func TestTranscriptPersistFunc(t *testing.T) {
	store := chatstore.NewInMemoryTranscriptStore(100)
	h := TranscriptPersistFunc(store, "conv-1")
	at := time.UnixMilli(1_750_000_000_000)

	snap := widget.Snapshot{State: widget.StateIdle, SessionID: "sess-1"}
	require.NoError(t, h(eventMessage(t, events.Event{Type: events.EventTypeState, Widget: "floating", State: &snap, At: at})))
	for i, text := range []string{"ciao", "Benvenuto"} {
		e := transcript.Entry{Seq: i + 1, Sender: transcript.SenderUser, Kind: transcript.KindMessage, Source: text, At: at}
		require.NoError(t, h(eventMessage(t, events.Event{Type: events.EventTypeEntry, Widget: "floating", Entry: &e, At: at})))
	}
	// undecodable payloads are logged and skipped
	require.NoError(t, h(message.NewMessage(uuid.NewString(), []byte("nope"))))

	got, err := store.Entries(context.Background(), "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Benvenuto", got[1].Source)

	r, ok, err := store.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "floating", r.Widget)
	require.Equal(t, "sess-1", r.SessionID)
	require.Equal(t, 2, r.Entries)
}

func TestLineView(t *testing.T) {
	var buf bytes.Buffer
	v := NewLineView(&buf, false)

	v.Append(transcript.Entry{Sender: transcript.SenderUser, Source: "ciao"})
	require.Empty(t, buf.String())

	v.Append(transcript.Entry{
		Sender:  transcript.SenderAssistant,
		Kind:    transcript.KindMessage,
		Source:  "**Camere** libere:\n**1.** Mare",
		Actions: []reply.QuickAction{{Label: "1. Mare", Value: "1"}},
	})
	out := buf.String()
	require.Contains(t, out, "Camere libere:")
	require.Contains(t, out, "\n   1. Mare")
	require.Contains(t, out, `[1] 1. Mare (scrivi "1")`)
	require.NotContains(t, out, "**")

	buf.Reset()
	echo := NewLineView(&buf, true)
	echo.Append(transcript.Entry{Sender: transcript.SenderUser, Source: "ciao"})
	require.Contains(t, buf.String(), "ciao")
}
