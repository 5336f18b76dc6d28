package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/paguro/pkg/reply"
	"github.com/go-go-golems/paguro/pkg/transcript"
	"github.com/go-go-golems/paguro/pkg/widget"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Controller is what the terminal widget drives. Calls are always issued from
// commands, never from Update, because the controller publishes back into the
// program synchronously.
type Controller interface {
	Start(ctx context.Context) error
	Submit(ctx context.Context, text string) error
	Choose(ctx context.Context, a reply.QuickAction) error
	CancelRedirect() bool
	Snapshot() widget.Snapshot
}

var _ Controller = &widget.Controller{}

type startDoneMsg struct{ err error }

type submitDoneMsg struct{ err error }

type redirectCancelledMsg struct{ cancelled bool }

type copiedMsg struct {
	url string
	err error
}

// Model is the full screen chat widget.
type Model struct {
	ctx        context.Context
	controller Controller
	messages   widget.Messages

	entries []transcript.Entry
	state   widget.Snapshot
	actions []reply.QuickAction
	// selected is the highlighted quick action, -1 when none.
	selected int
	link     string
	status   string

	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	renderer  *glamour.TermRenderer
	spinning  bool

	ready         bool
	width, height int

	copyToClipboard func(string) error
}

type ModelOption func(*Model)

func WithMessages(m widget.Messages) ModelOption {
	return func(model *Model) {
		model.messages = m
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(f func(string) error) ModelOption {
	return func(model *Model) {
		model.copyToClipboard = f
	}
}

func NewModel(ctx context.Context, controller Controller, options ...ModelOption) Model {
	ti := textinput.New()
	ti.Placeholder = "Scrivi qui..."
	ti.Prompt = "› "
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)

	m := Model{
		ctx:             ctx,
		controller:      controller,
		messages:        widget.DefaultMessages(),
		selected:        -1,
		textinput:       ti,
		spinner:         sp,
		viewport:        viewport.New(80, 20),
		copyToClipboard: clipboard.WriteAll,
		state:           widget.Snapshot{State: widget.StateIdle, InputEnabled: true},
	}
	for _, opt := range options {
		opt(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.startCmd())
}

func (m Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		return startDoneMsg{err: m.controller.Start(m.ctx)}
	}
}

func (m Model) submitCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return submitDoneMsg{err: m.controller.Submit(m.ctx, text)}
	}
}

func (m Model) chooseCmd(a reply.QuickAction) tea.Cmd {
	return func() tea.Msg {
		return submitDoneMsg{err: m.controller.Choose(m.ctx, a)}
	}
}

func (m Model) cancelRedirectCmd() tea.Cmd {
	return func() tea.Msg {
		return redirectCancelledMsg{cancelled: m.controller.CancelRedirect()}
	}
}

func (m Model) copyCmd(url string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{url: url, err: m.copyToClipboard(url)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			return m.handleEnter()

		case tea.KeyTab:
			if len(m.actions) > 0 {
				m.selected = (m.selected + 1) % len(m.actions)
				m.refresh()
			}
			return m, nil

		case tea.KeyCtrlY:
			if m.link == "" {
				return m, nil
			}
			return m, m.copyCmd(m.link)

		case tea.KeyCtrlX:
			return m, m.cancelRedirectCmd()

		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		if m.state.InputEnabled {
			if m.selected >= 0 {
				m.selected = -1
				m.refresh()
			}
			var cmd tea.Cmd
			m.textinput, cmd = m.textinput.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case EntryMsg:
		m.addEntry(msg.Entry)

	case StateMsg:
		cmds = append(cmds, m.applyState(msg.Snapshot))

	case startDoneMsg:
		if msg.err != nil {
			log.Debug().Err(msg.err).Msg("chat widget started degraded")
		}

	case submitDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, widget.ErrEmptyInput) {
			log.Debug().Err(msg.err).Msg("submit finished with error")
		}

	case redirectCancelledMsg:
		if msg.cancelled {
			m.status = "Reindirizzamento annullato."
		}

	case copiedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Impossibile copiare il link: %v", msg.err)
		} else {
			m.status = "Link copiato negli appunti."
		}

	case spinner.TickMsg:
		if m.spinning {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	if !m.state.InputEnabled {
		return m, nil
	}
	if m.selected >= 0 && m.selected < len(m.actions) {
		a := m.actions[m.selected]
		m.selected = -1
		m.textinput.Reset()
		return m, m.chooseCmd(a)
	}
	text := strings.TrimSpace(m.textinput.Value())
	if text == "" {
		return m, nil
	}
	m.textinput.Reset()
	m.status = ""
	return m, m.submitCmd(text)
}

func (m *Model) addEntry(e transcript.Entry) {
	m.entries = append(m.entries, e)
	if e.Sender == transcript.SenderAssistant {
		// quick actions only belong to the newest assistant reply
		m.actions = e.Actions
		m.selected = -1
	}
	if e.Link != "" {
		m.link = e.Link
	}
	m.refresh()
}

func (m *Model) applyState(s widget.Snapshot) tea.Cmd {
	m.state = s
	if s.InputEnabled {
		m.textinput.Focus()
	} else {
		m.textinput.Blur()
	}

	var cmd tea.Cmd
	if s.Pending && !m.spinning {
		m.spinning = true
		cmd = m.spinner.Tick
	} else if !s.Pending {
		m.spinning = false
	}
	m.refresh()
	return cmd
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	headerHeight := 2
	footerHeight := 2
	inputHeight := 3
	h := height - headerHeight - footerHeight - inputHeight
	if h < 3 {
		h = 3
	}
	if !m.ready {
		m.viewport = viewport.New(width, h)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = h
	}
	m.textinput.Width = width - 8

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		log.Warn().Err(err).Msg("could not create markdown renderer")
	}
	m.renderer = r
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) renderHistory() string {
	var b strings.Builder
	for _, e := range m.entries {
		b.WriteString(m.renderEntry(e))
		b.WriteString("\n")
	}
	if len(m.actions) > 0 {
		b.WriteString(m.renderActions())
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderEntry(e transcript.Entry) string {
	if e.Sender == transcript.SenderUser {
		return userStyle.Render("Tu") + "\n" + e.Source + "\n"
	}

	var body string
	switch {
	case e.Kind == transcript.KindError:
		body = errorStyle.Render(e.Source)
	case e.Kind == transcript.KindNotice && m.renderer == nil:
		body = noticeStyle.Render(e.Source)
	default:
		body = m.renderMarkdown(e.Source)
	}
	if e.Kind == transcript.KindBooking && e.Link != "" {
		body += "\n" + linkStyle.Render(e.Link)
	}
	return assistantStyle.Render("🐚 Paguro") + "\n" + body + "\n"
}

func (m Model) renderMarkdown(s string) string {
	if m.renderer == nil {
		return s
	}
	out, err := m.renderer.Render(s)
	if err != nil {
		return s
	}
	return strings.Trim(out, "\n")
}

func (m Model) renderActions() string {
	buttons := make([]string, 0, len(m.actions))
	for i, a := range m.actions {
		style := actionStyle
		if i == m.selected {
			style = selectedStyle
		}
		buttons = append(buttons, style.Render(a.Label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, buttons...)
}

func (m Model) View() string {
	header := titleStyle.Render(m.messages.Title)

	var footer string
	switch {
	case m.state.Pending:
		footer = m.spinner.View() + " " + m.messages.Thinking
	case m.state.Disabled:
		footer = errorStyle.Render(m.messages.Unavailable)
	case m.state.PendingRedirect != "":
		footer = "🐚 Reindirizzamento alla prenotazione... (ctrl+x annulla, ctrl+y copia il link)"
	case m.status != "":
		footer = m.status
	case len(m.actions) > 0:
		footer = "tab sceglie un'opzione, invio conferma"
	default:
		footer = "invio invia, esc esce"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		inputStyle.Render(m.textinput.View()),
		footerStyle.Render(footer),
	)
}

// Entries returns the entries received so far.
func (m Model) Entries() []transcript.Entry {
	return append([]transcript.Entry(nil), m.entries...)
}
