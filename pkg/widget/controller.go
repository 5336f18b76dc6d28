// Package widget implements the chat session controller: it accepts user
// input, talks to the assistant backend through a channel, renders replies
// into the transcript, keeps the session identifier and hands booking replies
// over to the redirector.
package widget

import (
	"context"
	"strings"
	"sync"

	"github.com/go-go-golems/paguro/pkg/booking"
	"github.com/go-go-golems/paguro/pkg/channel"
	"github.com/go-go-golems/paguro/pkg/reply"
	"github.com/go-go-golems/paguro/pkg/session"
	"github.com/go-go-golems/paguro/pkg/transcript"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyInput    = errors.New("widget: empty input")
	ErrBusy          = errors.New("widget: a message is already being sent")
	ErrInputDisabled = errors.New("widget: input is disabled")
	ErrClosed        = errors.New("widget: controller closed")
)

// Channel is the part of the chat backend client the controller needs.
type Channel interface {
	Send(ctx context.Context, msg channel.OutgoingMessage) (*channel.IncomingReply, error)
	Probe(ctx context.Context) (*channel.Health, error)
}

var _ Channel = &channel.Client{}

type State string

const (
	StateIdle    State = "idle"
	StateSending State = "sending"
)

// Snapshot is the observable state of a controller.
type Snapshot struct {
	State        State  `json:"state"`
	InputEnabled bool   `json:"input_enabled"`
	Pending      bool   `json:"pending"`
	Disabled     bool   `json:"disabled"`
	Closed       bool   `json:"closed"`
	SessionID    string `json:"session_id,omitempty"`
	// Entries is the number of transcript entries.
	Entries         int    `json:"entries"`
	PendingRedirect string `json:"pending_redirect,omitempty"`
}

// Observer receives a snapshot after every state change. Observers are called
// synchronously and must not call back into the controller.
type Observer interface {
	OnSnapshot(s Snapshot)
}

type ObserverFunc func(s Snapshot)

func (f ObserverFunc) OnSnapshot(s Snapshot) {
	f(s)
}

// Controller drives one widget. At most one message is in flight; the mutex
// is never held while talking to the backend.
type Controller struct {
	channel    Channel
	store      *session.Store
	formatter  *reply.Formatter
	redirector *booking.Redirector
	scheduler  *booking.Scheduler
	navigator  booking.Navigator
	transcript *transcript.Transcript
	profile    Profile

	mu           sync.Mutex
	state        State
	inputEnabled bool
	disabled     bool
	closed       bool
	started      bool

	notifyMu  sync.Mutex
	observers []Observer
}

type Option func(*Controller) error

func WithProfile(p Profile) Option {
	return func(c *Controller) error {
		if p.RedirectDelay < 0 {
			return errors.Errorf("invalid redirect delay %s", p.RedirectDelay)
		}
		c.profile = p
		return nil
	}
}

func WithFormatter(f *reply.Formatter) Option {
	return func(c *Controller) error {
		if f == nil {
			return errors.New("formatter cannot be nil")
		}
		c.formatter = f
		return nil
	}
}

func WithRedirector(r *booking.Redirector) Option {
	return func(c *Controller) error {
		if r == nil {
			return errors.New("redirector cannot be nil")
		}
		c.redirector = r
		return nil
	}
}

// WithNavigator sets where the booking hand-off goes once the redirect delay
// elapsed. Without a navigator the redirect is only logged.
func WithNavigator(n booking.Navigator) Option {
	return func(c *Controller) error {
		c.navigator = n
		return nil
	}
}

func WithTranscript(t *transcript.Transcript) Option {
	return func(c *Controller) error {
		if t == nil {
			return errors.New("transcript cannot be nil")
		}
		c.transcript = t
		return nil
	}
}

// WithView registers a transcript view.
func WithView(v transcript.View) Option {
	return func(c *Controller) error {
		if c.transcript == nil {
			c.transcript = transcript.New()
		}
		c.transcript.AddView(v)
		return nil
	}
}

func WithObserver(o Observer) Option {
	return func(c *Controller) error {
		if o != nil {
			c.observers = append(c.observers, o)
		}
		return nil
	}
}

// New wires a controller. A nil store keeps the session in memory under the
// profile's storage key.
func New(ch Channel, store *session.Store, options ...Option) (*Controller, error) {
	if ch == nil {
		return nil, errors.New("widget: channel cannot be nil")
	}
	c := &Controller{
		channel:      ch,
		store:        store,
		profile:      EmbeddedProfile(),
		state:        StateIdle,
		inputEnabled: true,
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "failed to apply controller option")
		}
	}

	if c.store == nil {
		c.store = session.NewStore(nil, c.profile.StorageKey)
	}
	if c.formatter == nil {
		c.formatter = reply.NewFormatter()
	}
	if c.transcript == nil {
		c.transcript = transcript.New()
	}
	if c.redirector == nil {
		r, err := booking.NewRedirector(booking.DefaultPagePath)
		if err != nil {
			return nil, err
		}
		c.redirector = r
	}
	c.scheduler = booking.NewScheduler(c.navigator, booking.WithFiredHook(c.redirectFired))
	return c, nil
}

func (c *Controller) Profile() Profile {
	return c.profile
}

func (c *Controller) Transcript() *transcript.Transcript {
	return c.transcript
}

func (c *Controller) Store() *session.Store {
	return c.store
}

// AddObserver registers an observer after construction.
func (c *Controller) AddObserver(o Observer) {
	if o == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.observers = append(c.observers, o)
}

// Start restores the session, shows the welcome message and probes the
// backend. A failed probe disables input for the lifetime of the controller
// and is returned.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	sess := c.store.Load(ctx)
	log.Debug().
		Str("component", "widget").
		Str("profile", c.profile.Name).
		Str("session_id", sess.ID).
		Msg("starting chat widget")

	c.appendAssistant(transcript.KindNotice, c.profile.Messages.Welcome)
	c.notify()

	health, err := c.channel.Probe(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "widget").Msg("chat backend probe failed, disabling input")
		c.mu.Lock()
		c.disabled = true
		c.inputEnabled = false
		c.mu.Unlock()
		c.appendAssistant(transcript.KindError, c.profile.Messages.Unavailable)
		c.notify()
		return errors.Wrap(err, "chat backend unavailable")
	}

	log.Debug().
		Str("component", "widget").
		Str("status", health.Status).
		Interface("features", health.Features).
		Interface("location", health.Location).
		Msg("chat backend available")
	return nil
}

// Submit sends one user message and waits for the reply. Channel failures are
// shown in the transcript and also returned.
func (c *Controller) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.state == StateSending:
		c.mu.Unlock()
		return ErrBusy
	case c.disabled || !c.inputEnabled:
		c.mu.Unlock()
		return ErrInputDisabled
	}
	c.state = StateSending
	c.inputEnabled = false
	c.mu.Unlock()

	c.scheduler.Cancel()
	sessionID := c.store.Current().ID

	c.transcript.Append(transcript.Entry{
		Sender: transcript.SenderUser,
		Kind:   transcript.KindMessage,
		Source: text,
		HTML:   c.formatter.Markup(text),
	})
	c.notify()

	log.Debug().Str("component", "widget").Str("session_id", sessionID).Msg("sending message")
	rep, err := c.channel.Send(ctx, channel.OutgoingMessage{Text: text, SessionID: sessionID})

	// the round trip ends only once the reply is fully handled, so a new send
	// cannot slip in before the booking redirect is armed
	defer func() {
		c.mu.Lock()
		c.state = StateIdle
		if !c.disabled && !c.closed {
			c.inputEnabled = true
		}
		c.mu.Unlock()
		c.notify()
	}()

	if err != nil {
		log.Warn().Err(err).Str("component", "widget").Msg("sending message failed")
		c.appendAssistant(transcript.KindError, c.profile.Messages.failureText(classifyFailure(err)))
		return err
	}

	c.handleReply(ctx, rep)
	return nil
}

// Choose submits the value of a quick action.
func (c *Controller) Choose(ctx context.Context, a reply.QuickAction) error {
	return c.Submit(ctx, a.Value)
}

// CancelRedirect disarms a pending booking navigation. It reports whether one
// was pending.
func (c *Controller) CancelRedirect() bool {
	if !c.scheduler.Cancel() {
		return false
	}
	c.notify()
	return true
}

// SetInputEnabled toggles input. Enabling is ignored while sending, after a
// failed probe and after Close.
func (c *Controller) SetInputEnabled(enabled bool) {
	c.mu.Lock()
	if enabled && (c.disabled || c.closed || c.state == StateSending) {
		c.mu.Unlock()
		return
	}
	changed := c.inputEnabled != enabled
	c.inputEnabled = enabled
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// Close stops the controller and cancels any pending navigation. The session
// store is left open.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.inputEnabled = false
	c.mu.Unlock()

	c.scheduler.Cancel()
	c.notify()
	log.Debug().Str("component", "widget").Msg("chat widget closed")
	return nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		State:        c.state,
		InputEnabled: c.inputEnabled,
		Pending:      c.state == StateSending,
		Disabled:     c.disabled,
		Closed:       c.closed,
	}
	c.mu.Unlock()

	s.SessionID = c.store.Current().ID
	s.Entries = c.transcript.Len()
	s.PendingRedirect, _ = c.scheduler.Pending()
	return s
}

func (c *Controller) handleReply(ctx context.Context, rep *channel.IncomingReply) {
	switch {
	case rep.Text != "":
		f := c.formatter.Format(rep.Text)
		c.transcript.Append(transcript.Entry{
			Sender:  transcript.SenderAssistant,
			Kind:    transcript.KindMessage,
			Source:  rep.Text,
			HTML:    f.HTML,
			Actions: f.Actions,
		})
	case rep.ErrorText != "":
		c.appendAssistant(transcript.KindError, c.profile.Messages.ErrorPrefix+rep.ErrorText)
	default:
		log.Warn().Str("component", "widget").Msg("reply carries neither message nor error")
		c.appendAssistant(transcript.KindNotice, c.profile.Messages.InvalidResponse)
	}

	if rep.SessionID != "" && rep.SessionID != c.store.Current().ID {
		if err := c.store.Save(ctx, rep.SessionID); err != nil {
			log.Warn().Err(err).Str("component", "widget").Msg("session id kept in memory only")
		}
	}

	// one dispatch per reply: a tagged redirect, an availability list, or an
	// untagged payload
	switch {
	case rep.Kind == channel.KindBookingRedirect:
		c.redirect(rep.Booking)
	case rep.Kind == channel.KindAvailabilityList:
		log.Debug().Str("component", "widget").Msg("availability list received")
	case rep.Booking != nil:
		log.Debug().Str("component", "widget").Str("type", rep.RawType).Msg("booking data without redirect tag")
		c.redirect(rep.Booking)
	}
}

func (c *Controller) redirect(p *booking.Payload) {
	rendered, err := c.redirector.Render(p)
	if err != nil {
		c.appendAssistant(transcript.KindError, c.profile.Messages.IncompleteBooking)
		return
	}

	c.transcript.Append(transcript.Entry{
		Sender: transcript.SenderAssistant,
		Kind:   transcript.KindBooking,
		Source: rendered.Text,
		HTML:   rendered.HTML,
		Link:   rendered.TargetURL,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.scheduler.Schedule(rendered.TargetURL, c.profile.RedirectDelay)
}

func (c *Controller) redirectFired(targetURL string, err error) {
	if err != nil {
		log.Warn().Err(err).Str("component", "widget").Str("url", targetURL).Msg("booking hand-off failed")
	}
	c.notify()
}

// appendAssistant adds a widget generated entry. Quick actions are only
// offered on backend replies.
func (c *Controller) appendAssistant(kind transcript.Kind, text string) transcript.Entry {
	return c.transcript.Append(transcript.Entry{
		Sender: transcript.SenderAssistant,
		Kind:   kind,
		Source: text,
		HTML:   c.formatter.Markup(text),
	})
}

// notify delivers the current snapshot. notifyMu keeps deliveries ordered.
func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if len(c.observers) == 0 {
		return
	}
	s := c.Snapshot()
	for _, o := range c.observers {
		o.OnSnapshot(s)
	}
}

type failureKind int

const (
	failureOther failureKind = iota
	failureUnreachable
	failureStatus
	failureMalformed
)

func classifyFailure(err error) failureKind {
	switch {
	case errors.Is(err, channel.ErrUnreachable):
		return failureUnreachable
	case errors.Is(err, channel.ErrHTTPStatus):
		return failureStatus
	case errors.Is(err, channel.ErrMalformedResponse):
		return failureMalformed
	default:
		return failureOther
	}
}
