package widget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/paguro/pkg/booking"
	"github.com/go-go-golems/paguro/pkg/channel"
	"github.com/go-go-golems/paguro/pkg/reply"
	"github.com/go-go-golems/paguro/pkg/session"
	"github.com/go-go-golems/paguro/pkg/transcript"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type result struct {
	reply *channel.IncomingReply
	err   error
}

// fakeChannel answers sends from a queue. When gate is set every send waits
// for it, and entered receives one value per send.
type fakeChannel struct {
	mu      sync.Mutex
	sent    []channel.OutgoingMessage
	results []result
	probe   error

	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeChannel) queue(r *channel.IncomingReply, err error) *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result{reply: r, err: err})
	return f
}

func (f *fakeChannel) Send(ctx context.Context, msg channel.OutgoingMessage) (*channel.IncomingReply, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	var r result
	if len(f.results) > 0 {
		r = f.results[0]
		f.results = f.results[1:]
	} else {
		r = result{reply: &channel.IncomingReply{Text: "ok", Kind: channel.KindUnspecified}}
	}
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &channel.Error{Sentinel: channel.ErrUnreachable, Op: "send", Err: ctx.Err()}
		}
	}
	return r.reply, r.err
}

func (f *fakeChannel) Probe(context.Context) (*channel.Health, error) {
	if f.probe != nil {
		return nil, f.probe
	}
	return &channel.Health{Status: "healthy"}, nil
}

func (f *fakeChannel) sends() []channel.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channel.OutgoingMessage(nil), f.sent...)
}

type recordingNavigator struct {
	mu   sync.Mutex
	urls []string
}

func (n *recordingNavigator) Navigate(targetURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, targetURL)
	return nil
}

func (n *recordingNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.urls...)
}

func testProfile(delay time.Duration) Profile {
	p := EmbeddedProfile()
	p.RedirectDelay = delay
	return p
}

func newController(t *testing.T, ch Channel, options ...Option) *Controller {
	t.Helper()
	r, err := booking.NewRedirector("https://villaceli.example/prenotazione/")
	require.NoError(t, err)
	c, err := New(ch, nil, append([]Option{WithRedirector(r)}, options...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func bookingPayload() *booking.Payload {
	return &booking.Payload{
		Apartment:       "A3",
		CheckIn:         "2025-07-10",
		CheckOut:        "2025-07-17",
		CheckInDisplay:  "10/07/2025",
		CheckOutDisplay: "17/07/2025",
	}
}

func TestController_EmptyInputHasNoEffect(t *testing.T) {
	ch := &fakeChannel{}
	c := newController(t, ch)

	for _, text := range []string{"", "   ", "\n\t"} {
		require.True(t, errors.Is(c.Submit(context.Background(), text), ErrEmptyInput))
	}
	require.Empty(t, ch.sends())
	require.Equal(t, 0, c.Transcript().Len())
	require.True(t, c.Snapshot().InputEnabled)
}

func TestController_SubmitAppendsUserAndReply(t *testing.T) {
	ch := (&fakeChannel{}).queue(&channel.IncomingReply{Text: "Ciao, **benvenuto**!"}, nil)
	var snapshots []Snapshot
	c := newController(t, ch, WithObserver(ObserverFunc(func(s Snapshot) { snapshots = append(snapshots, s) })))

	require.NoError(t, c.Submit(context.Background(), "  ciao  "))

	entries := c.Transcript().Entries()
	require.Len(t, entries, 2)
	require.Equal(t, transcript.SenderUser, entries[0].Sender)
	require.Equal(t, "ciao", entries[0].Source)
	require.Equal(t, transcript.SenderAssistant, entries[1].Sender)
	require.Equal(t, "Ciao, <strong>benvenuto</strong>!", entries[1].HTML)

	require.Len(t, snapshots, 2)
	require.Equal(t, StateSending, snapshots[0].State)
	require.True(t, snapshots[0].Pending)
	require.False(t, snapshots[0].InputEnabled)
	require.Equal(t, StateIdle, snapshots[1].State)
	require.False(t, snapshots[1].Pending)
	require.True(t, snapshots[1].InputEnabled)
	require.Equal(t, 2, snapshots[1].Entries)
}

func TestController_SecondSubmitWhileSendingIsDropped(t *testing.T) {
	ch := &fakeChannel{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := newController(t, ch)

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background(), "prima") }()
	<-ch.entered

	require.True(t, errors.Is(c.Submit(context.Background(), "seconda"), ErrBusy))
	require.Len(t, ch.sends(), 1)
	require.Equal(t, 1, c.Transcript().Len())
	require.True(t, c.Snapshot().Pending)

	close(ch.gate)
	require.NoError(t, <-done)
	require.Len(t, ch.sends(), 1)
	require.Equal(t, 2, c.Transcript().Len())
	require.False(t, c.Snapshot().Pending)
}

// slowBackend blocks every Set until release is closed.
type slowBackend struct {
	entered chan struct{}
	release chan struct{}
}

func (b *slowBackend) Get(context.Context, string) (string, bool, error) { return "", false, nil }

func (b *slowBackend) Set(ctx context.Context, _ string, _ string) error {
	b.entered <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func (b *slowBackend) Delete(context.Context, string) error { return nil }
func (b *slowBackend) Close() error { return nil }

func TestController_StaysSendingUntilReplyIsHandled(t *testing.T) {
	backend := &slowBackend{entered: make(chan struct{}, 1), release: make(chan struct{})}
	nav := &recordingNavigator{}
	ch := (&fakeChannel{}).queue(&channel.IncomingReply{
		Text:      "ok",
		SessionID: "s-1",
		Kind:      channel.KindBookingRedirect,
		Booking:   bookingPayload(),
	}, nil)
	r, err := booking.NewRedirector("https://villaceli.example/prenotazione/")
	require.NoError(t, err)
	c, err := New(ch, session.NewStore(backend, "k"),
		WithRedirector(r), WithNavigator(nav), WithProfile(testProfile(time.Hour)))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background(), "prima") }()
	<-backend.entered

	require.True(t, errors.Is(c.Submit(context.Background(), "seconda"), ErrBusy))
	s := c.Snapshot()
	require.Equal(t, StateSending, s.State)
	require.False(t, s.InputEnabled)

	close(backend.release)
	require.NoError(t, <-done)
	require.Len(t, ch.sends(), 1)

	entries := c.Transcript().Entries()
	require.Len(t, entries, 3)
	require.Equal(t, "prima", entries[0].Source)
	require.Equal(t, "ok", entries[1].Source)
	require.Equal(t, transcript.KindBooking, entries[2].Kind)

	s = c.Snapshot()
	require.Equal(t, StateIdle, s.State)
	require.True(t, s.InputEnabled)
	require.NotEmpty(t, s.PendingRedirect)

	// a new send disarms the redirect armed by the previous reply
	require.NoError(t, c.Submit(context.Background(), "seconda"))
	require.Empty(t, c.Snapshot().PendingRedirect)
	require.Empty(t, nav.visited())
}

func TestController_SessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := session.NewMemoryBackend()

	ch := (&fakeChannel{}).
		queue(&channel.IncomingReply{Text: "uno", SessionID: "s-42"}, nil).
		queue(&channel.IncomingReply{Text: "due", SessionID: "s-42"}, nil)
	c, err := New(ch, session.NewStore(backend, session.DefaultKey))
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	require.NoError(t, c.Submit(ctx, "a"))
	require.NoError(t, c.Submit(ctx, "b"))
	sent := ch.sends()
	require.Empty(t, sent[0].SessionID)
	require.Equal(t, "s-42", sent[1].SessionID)
	require.Equal(t, "s-42", c.Snapshot().SessionID)
	require.NoError(t, c.Close())

	// a new widget over the same storage resumes the conversation
	ch2 := &fakeChannel{}
	restored, err := New(ch2, session.NewStore(backend, session.DefaultKey))
	require.NoError(t, err)
	require.NoError(t, restored.Start(ctx))
	require.NoError(t, restored.Submit(ctx, "c"))
	require.Equal(t, "s-42", ch2.sends()[0].SessionID)
	require.NoError(t, restored.Close())

	// the floating widget keeps its own identifier
	ch3 := &fakeChannel{}
	floating, err := New(ch3, session.NewStore(backend, session.FloatingKey), WithProfile(FloatingProfile()))
	require.NoError(t, err)
	require.NoError(t, floating.Start(ctx))
	require.NoError(t, floating.Submit(ctx, "d"))
	require.Empty(t, ch3.sends()[0].SessionID)
	require.NoError(t, floating.Close())
}

func TestController_QuickActionsResubmitChoice(t *testing.T) {
	text := "Ho trovato:\n**1.** A3 vista mare\n**2.** B1 giardino\nPer prenotare scrivi il numero."
	ch := (&fakeChannel{}).queue(&channel.IncomingReply{Text: text}, nil)
	c := newController(t, ch)

	require.NoError(t, c.Submit(context.Background(), "disponibilità luglio"))
	last, ok := c.Transcript().Last()
	require.True(t, ok)
	require.Equal(t, []reply.QuickAction{
		{Label: "Prenota 1", Value: "1"},
		{Label: "Prenota 2", Value: "2"},
	}, last.Actions)

	require.NoError(t, c.Choose(context.Background(), last.Actions[1]))
	sent := ch.sends()
	require.Len(t, sent, 2)
	require.Equal(t, "2", sent[1].Text)
}

func TestController_BookingRedirectFiresOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	nav := &recordingNavigator{}
	ch := (&fakeChannel{}).queue(&channel.IncomingReply{
		Text:    "Ottima scelta!",
		Kind:    channel.KindBookingRedirect,
		RawType: "booking_redirect",
		Booking: bookingPayload(),
	}, nil)
	c := newController(t, ch, WithProfile(testProfile(20*time.Millisecond)), WithNavigator(nav))

	require.NoError(t, c.Submit(context.Background(), "prenoto A3"))

	entries := c.Transcript().Entries()
	require.Len(t, entries, 3)
	require.Equal(t, transcript.KindBooking, entries[2].Kind)
	want := "https://villaceli.example/prenotazione/?appartamento=A3&check_in=2025-07-10&check_out=2025-07-17" +
		"&check_in_formatted=10%2F07%2F2025&check_out_formatted=17%2F07%2F2025"
	require.Equal(t, want, entries[2].Link)
	require.Contains(t, entries[2].HTML, "<strong>A3</strong>")
	require.Contains(t, entries[2].HTML, "10/07/2025")

	require.Eventually(t, func() bool { return len(nav.visited()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []string{want}, nav.visited())
	require.Empty(t, c.Snapshot().PendingRedirect)
}

func TestController_BookingDispatch(t *testing.T) {
	cases := []struct {
		name     string
		reply    *channel.IncomingReply
		redirect bool
	}{
		{
			name:     "untagged payload falls back to redirect",
			reply:    &channel.IncomingReply{Text: "ok", Kind: channel.KindUnspecified, Booking: bookingPayload()},
			redirect: true,
		},
		{
			name:     "other type with payload falls back to redirect",
			reply:    &channel.IncomingReply{Text: "ok", Kind: channel.KindPlain, RawType: "info", Booking: bookingPayload()},
			redirect: true,
		},
		{
			name:  "availability list only logs",
			reply: &channel.IncomingReply{Text: "ok", Kind: channel.KindAvailabilityList, Booking: bookingPayload()},
		},
		{
			name:  "plain reply",
			reply: &channel.IncomingReply{Text: "ok", Kind: channel.KindPlain},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := (&fakeChannel{}).queue(tc.reply, nil)
			c := newController(t, ch, WithProfile(testProfile(time.Hour)))
			require.NoError(t, c.Submit(context.Background(), "x"))

			pending := c.Snapshot().PendingRedirect
			last, _ := c.Transcript().Last()
			if tc.redirect {
				require.NotEmpty(t, pending)
				require.Equal(t, transcript.KindBooking, last.Kind)
				require.Equal(t, 3, c.Transcript().Len())
			} else {
				require.Empty(t, pending)
				require.Equal(t, 2, c.Transcript().Len())
			}
		})
	}
}

func TestController_IncompleteBookingIsReported(t *testing.T) {
	nav := &recordingNavigator{}
	ch := (&fakeChannel{}).queue(&channel.IncomingReply{
		Text:    "ok",
		Kind:    channel.KindBookingRedirect,
		Booking: &booking.Payload{Apartment: "A3", CheckIn: "2025-07-10"},
	}, nil)
	c := newController(t, ch, WithProfile(testProfile(time.Millisecond)), WithNavigator(nav))

	require.NoError(t, c.Submit(context.Background(), "x"))
	last, _ := c.Transcript().Last()
	require.Equal(t, transcript.KindError, last.Kind)
	require.Equal(t, DefaultMessages().IncompleteBooking, last.Source)
	require.Empty(t, c.Snapshot().PendingRedirect)

	time.Sleep(20 * time.Millisecond)
	require.Empty(t, nav.visited())
}

func TestController_NewSubmitCancelsPendingRedirect(t *testing.T) {
	nav := &recordingNavigator{}
	ch := (&fakeChannel{}).queue(&channel.IncomingReply{Text: "ok", Kind: channel.KindBookingRedirect, Booking: bookingPayload()}, nil)
	c := newController(t, ch, WithProfile(testProfile(100*time.Millisecond)), WithNavigator(nav))

	require.NoError(t, c.Submit(context.Background(), "prenota"))
	require.NotEmpty(t, c.Snapshot().PendingRedirect)
	require.NoError(t, c.Submit(context.Background(), "aspetta"))
	require.Empty(t, c.Snapshot().PendingRedirect)

	time.Sleep(200 * time.Millisecond)
	require.Empty(t, nav.visited())
}

func TestController_CancelRedirect(t *testing.T) {
	nav := &recordingNavigator{}
	ch := (&fakeChannel{}).queue(&channel.IncomingReply{Text: "ok", Kind: channel.KindBookingRedirect, Booking: bookingPayload()}, nil)
	c := newController(t, ch, WithProfile(testProfile(50*time.Millisecond)), WithNavigator(nav))

	require.False(t, c.CancelRedirect())
	require.NoError(t, c.Submit(context.Background(), "prenota"))
	require.True(t, c.CancelRedirect())
	require.False(t, c.CancelRedirect())

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, nav.visited())
}

func TestController_ReplyVariants(t *testing.T) {
	ch := (&fakeChannel{}).
		queue(&channel.IncomingReply{ErrorText: "date non valide"}, nil).
		queue(&channel.IncomingReply{}, nil).
		queue(&channel.IncomingReply{Text: "msg", ErrorText: "ignored"}, nil)
	c := newController(t, ch)
	m := DefaultMessages()

	require.NoError(t, c.Submit(context.Background(), "a"))
	last, _ := c.Transcript().Last()
	require.Equal(t, transcript.KindError, last.Kind)
	require.Equal(t, "❌ Errore: date non valide", last.Source)

	require.NoError(t, c.Submit(context.Background(), "b"))
	last, _ = c.Transcript().Last()
	require.Equal(t, m.InvalidResponse, last.Source)

	require.NoError(t, c.Submit(context.Background(), "c"))
	last, _ = c.Transcript().Last()
	require.Equal(t, "msg", last.Source)
}

func TestController_ChannelFailuresBySelectedKind(t *testing.T) {
	m := DefaultMessages()
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"unreachable", &channel.Error{Sentinel: channel.ErrUnreachable, Op: "send"}, m.ConnectionPrefix + m.Unreachable},
		{"http status", &channel.Error{Sentinel: channel.ErrHTTPStatus, Op: "send", Status: 500}, m.ConnectionPrefix + m.ServerError},
		{"malformed", &channel.Error{Sentinel: channel.ErrMalformedResponse, Op: "send"}, m.InvalidResponse},
		{"other", errors.New("boom"), m.ConnectionPrefix + m.RetryLater},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := (&fakeChannel{}).queue(nil, tc.err)
			c := newController(t, ch)

			err := c.Submit(context.Background(), "x")
			require.Equal(t, tc.err, err)

			last, _ := c.Transcript().Last()
			require.Equal(t, transcript.SenderAssistant, last.Sender)
			require.Equal(t, transcript.KindError, last.Kind)
			require.Equal(t, tc.want, last.Source)

			s := c.Snapshot()
			require.Equal(t, StateIdle, s.State)
			require.True(t, s.InputEnabled)
			require.False(t, s.Pending)
		})
	}
}

func TestController_FailedProbeDisablesInputForGood(t *testing.T) {
	ch := &fakeChannel{probe: &channel.Error{Sentinel: channel.ErrUnreachable, Op: "probe"}}
	c := newController(t, ch)

	err := c.Start(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, channel.ErrUnreachable))

	entries := c.Transcript().Entries()
	require.Len(t, entries, 2)
	require.Equal(t, DefaultMessages().Welcome, entries[0].Source)
	require.Equal(t, DefaultMessages().Unavailable, entries[1].Source)

	c.SetInputEnabled(true)
	s := c.Snapshot()
	require.True(t, s.Disabled)
	require.False(t, s.InputEnabled)
	require.True(t, errors.Is(c.Submit(context.Background(), "ciao"), ErrInputDisabled))
	require.Empty(t, ch.sends())
}

func TestController_StartShowsWelcomeOnce(t *testing.T) {
	c := newController(t, &fakeChannel{}, WithProfile(FloatingProfile()))
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()))

	entries := c.Transcript().Entries()
	require.Len(t, entries, 1)
	require.Equal(t, transcript.KindNotice, entries[0].Kind)
	require.Contains(t, entries[0].HTML, "<strong>Ciao, sono Paguro!</strong>")
	require.Equal(t, session.FloatingKey, c.Store().Key())
}

func TestController_ManualInputToggle(t *testing.T) {
	c := newController(t, &fakeChannel{})
	c.SetInputEnabled(false)
	require.True(t, errors.Is(c.Submit(context.Background(), "x"), ErrInputDisabled))
	c.SetInputEnabled(true)
	require.NoError(t, c.Submit(context.Background(), "x"))
}

func TestController_Close(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	nav := &recordingNavigator{}
	ch := (&fakeChannel{}).queue(&channel.IncomingReply{Text: "ok", Kind: channel.KindBookingRedirect, Booking: bookingPayload()}, nil)
	c := newController(t, ch, WithProfile(testProfile(50*time.Millisecond)), WithNavigator(nav))

	require.NoError(t, c.Submit(context.Background(), "prenota"))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	require.True(t, errors.Is(c.Submit(context.Background(), "x"), ErrClosed))
	require.True(t, errors.Is(c.Start(context.Background()), ErrClosed))
	require.True(t, c.Snapshot().Closed)

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, nav.visited())
}

func TestProfileByName(t *testing.T) {
	p, err := ProfileByName("")
	require.NoError(t, err)
	require.Equal(t, ProfileEmbedded, p.Name)
	require.Equal(t, 4*time.Second, p.RedirectDelay)

	p, err = ProfileByName("Floating")
	require.NoError(t, err)
	require.Equal(t, session.FloatingKey, p.StorageKey)
	require.Equal(t, 2*time.Second, p.RedirectDelay)

	_, err = ProfileByName("sidebar")
	require.Error(t, err)

	_, err = New(&fakeChannel{}, nil, WithProfile(Profile{RedirectDelay: -time.Second}))
	require.Error(t, err)
	_, err = New(nil, nil)
	require.Error(t, err)
}
