package runtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/paguro/pkg/events"
	chatstore "github.com/go-go-golems/paguro/pkg/persistence/chatstore"
	"github.com/go-go-golems/paguro/pkg/session"
	"github.com/go-go-golems/paguro/pkg/ui"
	"github.com/go-go-golems/paguro/pkg/widget"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// HandlerContext provides runtime objects for building a Watermill handler.
type HandlerContext struct {
	Session *ChatSession
	Program *tea.Program
	Router  *events.EventRouter
}

// HandlerFactory produces a Watermill handler bound to the provided context.
// This allows custom handlers to access the Bubble Tea program and session.
type HandlerFactory func(HandlerContext) func(*message.Message) error

// ChatBuilder wires a widget controller to the event router and, for the
// terminal widget, to a Bubble Tea program.
type ChatBuilder struct {
	ctx               context.Context
	channel           widget.Channel
	store             *session.Store
	router            *events.EventRouter
	topic             string
	controllerOptions []widget.Option
	programOptions    []tea.ProgramOption
	modelOptions      []ui.ModelOption
	handlerFactory    HandlerFactory
	history           chatstore.TranscriptStore
	convID            string
}

// NewChatBuilder returns a new builder with defaults.
func NewChatBuilder() *ChatBuilder {
	return &ChatBuilder{
		ctx:   context.Background(),
		topic: events.DefaultTopic,
	}
}

func (b *ChatBuilder) WithContext(ctx context.Context) *ChatBuilder {
	if ctx != nil {
		b.ctx = ctx
	}
	return b
}

func (b *ChatBuilder) WithChannel(ch widget.Channel) *ChatBuilder {
	b.channel = ch
	return b
}

// WithStore sets the session store. Without one the controller keeps the
// session in memory.
func (b *ChatBuilder) WithStore(s *session.Store) *ChatBuilder {
	b.store = s
	return b
}

func (b *ChatBuilder) WithRouter(r *events.EventRouter) *ChatBuilder {
	b.router = r
	return b
}

func (b *ChatBuilder) WithTopic(topic string) *ChatBuilder {
	if topic != "" {
		b.topic = topic
	}
	return b
}

func (b *ChatBuilder) WithControllerOptions(opts ...widget.Option) *ChatBuilder {
	b.controllerOptions = append(b.controllerOptions, opts...)
	return b
}

func (b *ChatBuilder) WithProgramOptions(opts ...tea.ProgramOption) *ChatBuilder {
	b.programOptions = append(b.programOptions, opts...)
	return b
}

func (b *ChatBuilder) WithModelOptions(opts ...ui.ModelOption) *ChatBuilder {
	b.modelOptions = append(b.modelOptions, opts...)
	return b
}

// WithHistory records every widget event of this run under convID.
func (b *ChatBuilder) WithHistory(store chatstore.TranscriptStore, convID string) *ChatBuilder {
	b.history = store
	b.convID = convID
	return b
}

// WithEventHandler allows callers to provide a ready-made handler.
// For access to Program and Session, prefer WithHandlerFactory.
func (b *ChatBuilder) WithEventHandler(h func(*message.Message) error) *ChatBuilder {
	b.handlerFactory = func(_ HandlerContext) func(*message.Message) error { return h }
	return b
}

// WithHandlerFactory sets a factory that will be invoked once the Program exists
// to construct the final Watermill handler with access to Session and Program.
func (b *ChatBuilder) WithHandlerFactory(f HandlerFactory) *ChatBuilder {
	b.handlerFactory = f
	return b
}

// ChatSession holds references to runtime components and exposes a bound event handler.
type ChatSession struct {
	Router     *events.EventRouter
	Controller *widget.Controller
	Sink       *events.WatermillSink

	history chatstore.TranscriptStore
	convID  string
	handler func(*message.Message) error

	// program is set by BuildProgram automatically, or via AttachProgram when embedding
	program *tea.Program
}

// BindHandlerWithProgram binds the Watermill handler using the default
// WidgetForwardFunc unless a handler is already bound.
func (cs *ChatSession) BindHandlerWithProgram(p *tea.Program) {
	cs.program = p
	if cs.handler == nil && p != nil {
		cs.handler = ui.WidgetForwardFunc(p)
	}
}

// AttachProgram attaches a Bubble Tea program for the event handler to target.
func (cs *ChatSession) AttachProgram(p *tea.Program) {
	cs.BindHandlerWithProgram(p)
}

// EventHandler returns the bound Watermill->UI handler.
func (cs *ChatSession) EventHandler() func(*message.Message) error {
	return cs.handler
}

// RegisterHandlers subscribes the UI handler and, when history is on, the
// transcript persister to the widget topic. Call it before the router runs
// or follow it with RunHandlers.
func (cs *ChatSession) RegisterHandlers() error {
	if cs.Router == nil {
		return errors.New("router is required")
	}
	topic := cs.Sink.Topic()
	if cs.handler != nil {
		cs.Router.AddHandler("ui", topic, cs.handler)
	}
	if cs.history != nil && cs.convID != "" {
		cs.Router.AddHandler("ui-history", topic, ui.TranscriptPersistFunc(cs.history, cs.convID))
		log.Debug().Str("component", "runtime").Str("conv_id", cs.convID).Msg("recording transcript history")
	}
	return nil
}

// BuildController creates the sink and the controller publishing through it.
// Line mode uses this directly and adds its own view via WithControllerOptions.
func (b *ChatBuilder) BuildController() (*ChatSession, error) {
	if b.channel == nil {
		return nil, errors.New("chat channel is required; use WithChannel")
	}
	if b.router == nil {
		return nil, errors.New("router is required; use WithRouter")
	}

	controller, err := widget.New(b.channel, b.store, b.controllerOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create controller")
	}

	sink := events.NewWatermillSink(b.router.Publisher, b.topic, controller.Profile().Name)
	controller.Transcript().AddView(sink)
	controller.AddObserver(sink)

	return &ChatSession{
		Router:     b.router,
		Controller: controller,
		Sink:       sink,
		history:    b.history,
		convID:     b.convID,
	}, nil
}

// BuildProgram creates the controller, the chat model and a ready-to-run
// Bubble Tea program. It also binds the UI event handler to the returned session.
func (b *ChatBuilder) BuildProgram() (*ChatSession, *tea.Program, error) {
	sess, err := b.BuildController()
	if err != nil {
		return nil, nil, err
	}

	modelOptions := append([]ui.ModelOption{ui.WithMessages(sess.Controller.Profile().Messages)}, b.modelOptions...)
	model := ui.NewModel(b.ctx, sess.Controller, modelOptions...)
	program := tea.NewProgram(model, b.programOptions...)

	if b.handlerFactory != nil {
		sess.handler = b.handlerFactory(HandlerContext{Session: sess, Program: program, Router: b.router})
	}
	sess.BindHandlerWithProgram(program)

	return sess, program, nil
}
