package chatrunner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/paguro/pkg/events"
	chatstore "github.com/go-go-golems/paguro/pkg/persistence/chatstore"
	"github.com/go-go-golems/paguro/pkg/session"
	"github.com/go-go-golems/paguro/pkg/ui"
	"github.com/go-go-golems/paguro/pkg/ui/runtime"
	"github.com/go-go-golems/paguro/pkg/widget"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	input "github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"
)

// RunMode defines how the widget is presented.
type RunMode string

const (
	// RunModeChat runs the full screen terminal widget.
	RunModeChat RunMode = "chat"
	// RunModeRepl reads one message per input line and prints replies.
	RunModeRepl RunMode = "repl"
	// RunModeOnce sends a single message and exits.
	RunModeOnce RunMode = "once"
	// RunModeInteractive sends a single message, then offers to continue in chat mode.
	RunModeInteractive RunMode = "interactive"
)

// ParseRunMode resolves a configured mode. "auto" (or empty) picks the
// terminal widget when stdin and stdout are terminals and line mode otherwise.
func ParseRunMode(s string) (RunMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		if isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd()) {
			return RunModeChat, nil
		}
		return RunModeRepl, nil
	case string(RunModeChat):
		return RunModeChat, nil
	case string(RunModeRepl):
		return RunModeRepl, nil
	case string(RunModeOnce):
		return RunModeOnce, nil
	case string(RunModeInteractive):
		return RunModeInteractive, nil
	default:
		return "", errors.Errorf("unknown run mode %q", s)
	}
}

var quitCommands = map[string]bool{"/quit": true, "/exit": true, "/esci": true}

// ChatSession holds the validated configuration and executes the chat logic.
// It's typically created and run by the ChatBuilder.
type ChatSession struct {
	ctx               context.Context
	channel           widget.Channel
	store             *session.Store
	controllerOptions []widget.Option
	navigator         *TerminalNavigator
	eventSettings     events.Settings
	router            *events.EventRouter
	history           chatstore.TranscriptStore
	convID            string
	programOptions    []tea.ProgramOption
	mode              RunMode
	message           string
	input             io.Reader
	outputWriter      io.Writer
	prompt            bool
}

// Run executes the chat session based on its configured mode.
func (cs *ChatSession) Run() error {
	switch cs.mode {
	case RunModeChat:
		return cs.runChatInternal()
	case RunModeRepl:
		return cs.runReplInternal()
	case RunModeOnce:
		return cs.runOnceInternal()
	case RunModeInteractive:
		return cs.runInteractiveInternal()
	default:
		return errors.Errorf("unknown run mode: %v", cs.mode)
	}
}

func (cs *ChatSession) newBuilder(router *events.EventRouter, extra ...widget.Option) *runtime.ChatBuilder {
	opts := append([]widget.Option(nil), cs.controllerOptions...)
	opts = append(opts, widget.WithNavigator(cs.navigator))
	opts = append(opts, extra...)
	return runtime.NewChatBuilder().
		WithContext(cs.ctx).
		WithChannel(cs.channel).
		WithStore(cs.store).
		WithRouter(router).
		WithControllerOptions(opts...).
		WithHistory(cs.history, cs.convID)
}

// runRouted runs body next to the event router. The router is created when
// none was supplied, and closed once body returns.
func (cs *ChatSession) runRouted(
	build func(router *events.EventRouter) (*runtime.ChatSession, error),
	body func(ctx context.Context, sess *runtime.ChatSession) error,
) error {
	router := cs.router
	owned := false
	if router == nil {
		var err error
		router, err = events.NewEventRouter(cs.eventSettings)
		if err != nil {
			return errors.Wrap(err, "failed to create event router")
		}
		owned = true
	}

	sess, err := build(router)
	if err != nil {
		if owned {
			_ = router.Close()
		}
		return err
	}
	if cs.eventSettings.RedisEnabled {
		if err := router.EnsureGroup(cs.ctx, sess.Sink.Topic(), cs.eventSettings.Group); err != nil {
			log.Warn().Err(err).Str("component", "chatrunner").Msg("could not create consumer group")
		}
	}
	if err := sess.RegisterHandlers(); err != nil {
		if sess.Controller != nil {
			_ = sess.Controller.Close()
		}
		if owned {
			_ = router.Close()
		}
		return err
	}

	eg, childCtx := errgroup.WithContext(cs.ctx)
	childCtx, cancel := context.WithCancel(childCtx)

	var once sync.Once
	stop := func() {
		cancel()
		once.Do(func() {
			if !owned {
				return
			}
			log.Debug().Msg("Closing router")
			_ = router.Close()
			log.Debug().Msg("Router closed")
		})
	}

	wasRunning := router.IsRunning()
	if !wasRunning {
		eg.Go(func() error {
			defer stop()
			return router.Run(childCtx)
		})
	}

	eg.Go(func() error {
		defer stop()

		select {
		case <-router.Running():
		case <-childCtx.Done():
			_ = sess.Controller.Close()
			return nil
		}
		if wasRunning {
			if err := router.RunHandlers(childCtx); err != nil {
				_ = sess.Controller.Close()
				return errors.Wrap(err, "failed to run router handlers")
			}
		}
		log.Debug().Str("component", "chatrunner").Str("mode", string(cs.mode)).Msg("Router handlers running")

		err := body(childCtx, sess)
		_ = sess.Controller.Close()
		return err
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runChatInternal handles the full screen terminal widget.
func (cs *ChatSession) runChatInternal() error {
	var program *tea.Program

	err := cs.runRouted(
		func(router *events.EventRouter) (*runtime.ChatSession, error) {
			sess, p, err := cs.newBuilder(router).
				WithProgramOptions(cs.programOptions...).
				BuildProgram()
			if err != nil {
				return nil, err
			}
			program = p
			// leaving for the booking page closes the widget
			cs.navigator.OnNavigate(func(string) { p.Quit() })
			return sess, nil
		},
		func(ctx context.Context, sess *runtime.ChatSession) error {
			go func() {
				<-ctx.Done()
				program.Quit()
			}()

			log.Debug().Str("component", "chatrunner").Msg("Starting Bubble Tea program")
			_, runErr := program.Run()
			log.Debug().Err(runErr).Str("component", "chatrunner").Msg("Bubble Tea program finished")
			if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
				return nil
			}
			return runErr
		},
	)
	if url := cs.navigator.Last(); url != "" {
		_, _ = fmt.Fprintf(cs.outputWriter, "🐚 Pagina di prenotazione: %s\n", url)
	}
	return err
}

// runReplInternal reads messages line by line until EOF, a quit command or
// a booking redirect.
func (cs *ChatSession) runReplInternal() error {
	view := ui.NewLineView(cs.outputWriter, false)

	return cs.runRouted(
		func(router *events.EventRouter) (*runtime.ChatSession, error) {
			return cs.newBuilder(router, widget.WithView(view)).BuildController()
		},
		func(ctx context.Context, sess *runtime.ChatSession) error {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			cs.navigator.OnNavigate(func(url string) {
				_, _ = fmt.Fprintf(cs.outputWriter, "🐚 Apertura pagina di prenotazione: %s\n", url)
				cancel()
			})

			ctrl := sess.Controller
			if err := ctrl.Start(ctx); err != nil {
				return err
			}

			lines := readLines(cs.input)
			for {
				if cs.prompt {
					_, _ = fmt.Fprint(cs.outputWriter, "› ")
				}
				var (
					line string
					ok   bool
				)
				select {
				case <-ctx.Done():
					return nil
				case line, ok = <-lines:
				}
				if !ok {
					return waitForRedirect(ctx, ctrl)
				}
				line = strings.TrimSpace(line)
				if quitCommands[strings.ToLower(line)] {
					return nil
				}

				err := ctrl.Submit(ctx, line)
				switch {
				case err == nil, errors.Is(err, widget.ErrEmptyInput):
				case errors.Is(err, widget.ErrInputDisabled), errors.Is(err, widget.ErrClosed):
					return nil
				default:
					// already shown to the user as an assistant message
					log.Debug().Err(err).Str("component", "chatrunner").Msg("message not delivered")
				}
			}
		},
	)
}

// runOnceInternal sends cs.message and prints the reply. A booking redirect
// is followed immediately instead of after the widget delay.
func (cs *ChatSession) runOnceInternal() error {
	if strings.TrimSpace(cs.message) == "" {
		return errors.New("a message is required in once mode")
	}
	view := ui.NewLineView(cs.outputWriter, false)

	return cs.runRouted(
		func(router *events.EventRouter) (*runtime.ChatSession, error) {
			return cs.newBuilder(router, widget.WithView(view)).BuildController()
		},
		func(ctx context.Context, sess *runtime.ChatSession) error {
			cs.navigator.OnNavigate(func(url string) {
				_, _ = fmt.Fprintf(cs.outputWriter, "🐚 Link di prenotazione: %s\n", url)
			})

			ctrl := sess.Controller
			if err := ctrl.Start(ctx); err != nil {
				return err
			}
			if err := ctrl.Submit(ctx, cs.message); err != nil {
				return err
			}
			if url := ctrl.Snapshot().PendingRedirect; url != "" && ctrl.CancelRedirect() {
				return cs.navigator.Navigate(url)
			}
			return nil
		},
	)
}

// runInteractiveInternal handles an initial single message + optional chat transition.
func (cs *ChatSession) runInteractiveInternal() error {
	if err := cs.runOnceInternal(); err != nil {
		return errors.Wrap(err, "error during initial message")
	}
	if cs.navigator.Last() != "" {
		return nil
	}

	// Use Stderr for prompt asking, as Stdout might be redirected.
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		log.Debug().Msg("Stderr is not a TTY, skipping chat continuation prompt")
		return nil
	}
	continueInChat, err := askForChatContinuation(os.Stderr)
	if err != nil {
		return errors.Wrap(err, "failed to ask for chat continuation")
	}
	if !continueInChat {
		return nil
	}
	return cs.runChatInternal()
}

func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			out <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Debug().Err(err).Str("component", "chatrunner").Msg("input closed")
		}
	}()
	return out
}

// waitForRedirect lets a pending booking redirect fire after input ends.
func waitForRedirect(ctx context.Context, ctrl *widget.Controller) error {
	if ctrl.Snapshot().PendingRedirect == "" {
		return nil
	}
	select {
	case <-ctx.Done():
	case <-time.After(ctrl.Profile().RedirectDelay + time.Second):
	}
	return nil
}

// --- ChatBuilder ---

// ChatBuilder provides a fluent API for configuring and running a chat session.
type ChatBuilder struct {
	err               error
	ctx               context.Context
	channel           widget.Channel
	store             *session.Store
	controllerOptions []widget.Option
	navigator         *TerminalNavigator
	eventSettings     events.Settings
	router            *events.EventRouter
	history           chatstore.TranscriptStore
	convID            string
	programOptions    []tea.ProgramOption
	mode              RunMode
	message           string
	input             io.Reader
	outputWriter      io.Writer
	prompt            bool
}

// NewChatBuilder creates a new builder with default settings.
func NewChatBuilder() *ChatBuilder {
	return &ChatBuilder{
		ctx:            context.Background(),
		eventSettings:  events.DefaultSettings(),
		programOptions: []tea.ProgramOption{tea.WithMouseCellMotion(), tea.WithAltScreen()},
		input:          os.Stdin,
		outputWriter:   os.Stdout,
		mode:           RunModeChat,
	}
}

func (b *ChatBuilder) WithContext(ctx context.Context) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if ctx == nil {
		b.err = errors.New("context cannot be nil")
		return b
	}
	b.ctx = ctx
	return b
}

// WithChannel sets the backend channel. (Required)
func (b *ChatBuilder) WithChannel(ch widget.Channel) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if ch == nil {
		b.err = errors.New("channel cannot be nil")
		return b
	}
	b.channel = ch
	return b
}

func (b *ChatBuilder) WithStore(s *session.Store) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.store = s
	return b
}

func (b *ChatBuilder) WithControllerOptions(opts ...widget.Option) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.controllerOptions = append(b.controllerOptions, opts...)
	return b
}

func (b *ChatBuilder) WithNavigator(n *TerminalNavigator) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.navigator = n
	return b
}

func (b *ChatBuilder) WithEventSettings(s events.Settings) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.eventSettings = s
	return b
}

// WithExternalRouter provides an existing EventRouter instance to use.
// If not provided, an internal router will be created and managed.
func (b *ChatBuilder) WithExternalRouter(router *events.EventRouter) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.router = router
	return b
}

func (b *ChatBuilder) WithHistory(store chatstore.TranscriptStore, convID string) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.history = store
	b.convID = convID
	return b
}

func (b *ChatBuilder) WithProgramOptions(opts ...tea.ProgramOption) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.programOptions = append(b.programOptions, opts...)
	return b
}

// WithMode sets the execution mode.
func (b *ChatBuilder) WithMode(mode RunMode) *ChatBuilder {
	if b.err != nil {
		return b
	}
	switch mode {
	case RunModeChat, RunModeRepl, RunModeOnce, RunModeInteractive:
		b.mode = mode
	default:
		b.err = errors.Errorf("invalid run mode: %s", mode)
	}
	return b
}

// WithMessage sets the message sent in once and interactive modes.
func (b *ChatBuilder) WithMessage(message string) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.message = message
	return b
}

func (b *ChatBuilder) WithInput(r io.Reader) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if r == nil {
		b.err = errors.New("input reader cannot be nil")
		return b
	}
	b.input = r
	return b
}

// WithOutputWriter sets the writer for line modes. Defaults to os.Stdout.
func (b *ChatBuilder) WithOutputWriter(w io.Writer) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if w == nil {
		b.err = errors.New("output writer cannot be nil")
		return b
	}
	b.outputWriter = w
	return b
}

// WithPrompt prints an input prompt in line mode.
func (b *ChatBuilder) WithPrompt(prompt bool) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.prompt = prompt
	return b
}

// Build validates the builder configuration and returns a runnable session.
func (b *ChatBuilder) Build() (*ChatSession, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.channel == nil {
		return nil, errors.New("channel is required (use WithChannel)")
	}
	if b.mode == "" {
		return nil, errors.New("run mode is required (use WithMode)")
	}
	if (b.mode == RunModeOnce || b.mode == RunModeInteractive) && strings.TrimSpace(b.message) == "" {
		return nil, errors.Errorf("a message is required in %s mode (use WithMessage)", b.mode)
	}
	navigator := b.navigator
	if navigator == nil {
		navigator = NewTerminalNavigator()
	}

	return &ChatSession{
		ctx:               b.ctx,
		channel:           b.channel,
		store:             b.store,
		controllerOptions: b.controllerOptions,
		navigator:         navigator,
		eventSettings:     b.eventSettings,
		router:            b.router,
		history:           b.history,
		convID:            b.convID,
		programOptions:    b.programOptions,
		mode:              b.mode,
		message:           b.message,
		input:             b.input,
		outputWriter:      b.outputWriter,
		prompt:            b.prompt,
	}, nil
}

// askForChatContinuation prompts the user on the given writer (should be a TTY like os.Stderr)
// whether they want to continue in chat mode.
func askForChatContinuation(tty io.ReadWriter) (bool, error) {
	ui := &input.UI{
		Writer: tty,
		Reader: tty,
	}

	_, _ = fmt.Fprint(tty, "\n")
	query := "Continuare la conversazione nella chat? [S/n]"
	answer, err := ui.Ask(query, &input.Options{
		Default:  "s",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch strings.ToLower(answer) {
			case "s", "si", "sì", "y", "n", "no", "":
				return nil
			default:
				return errors.Errorf("rispondi 's' o 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to get user input")
	}

	_, _ = fmt.Fprint(tty, "\n")

	switch strings.ToLower(answer) {
	case "n", "no":
		return false, nil
	default:
		return true, nil
	}
}
