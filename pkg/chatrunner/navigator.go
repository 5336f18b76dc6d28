package chatrunner

import (
	"os/exec"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/go-go-golems/paguro/pkg/booking"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TerminalNavigator is what "leaving the page" means in a terminal: the
// booking link is handed to an opener command and the clipboard, and the
// running widget is asked to stop.
type TerminalNavigator struct {
	mu          sync.Mutex
	openCommand []string
	copyLink    bool
	last        string
	onNavigate  func(targetURL string)

	// swapped in tests
	writeClipboard func(string) error
	start          func(name string, args ...string) error
}

var _ booking.Navigator = &TerminalNavigator{}

type NavigatorOption func(*TerminalNavigator)

// WithOpenCommand runs command with the URL appended, e.g. "xdg-open".
func WithOpenCommand(command string) NavigatorOption {
	return func(n *TerminalNavigator) {
		n.openCommand = strings.Fields(command)
	}
}

func WithCopyLink(copyLink bool) NavigatorOption {
	return func(n *TerminalNavigator) {
		n.copyLink = copyLink
	}
}

func NewTerminalNavigator(options ...NavigatorOption) *TerminalNavigator {
	n := &TerminalNavigator{
		writeClipboard: clipboard.WriteAll,
		start: func(name string, args ...string) error {
			cmd := exec.Command(name, args...)
			if err := cmd.Start(); err != nil {
				return err
			}
			go func() { _ = cmd.Wait() }()
			return nil
		},
	}
	for _, opt := range options {
		opt(n)
	}
	return n
}

// OnNavigate sets the hook run after every navigation.
func (n *TerminalNavigator) OnNavigate(f func(targetURL string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onNavigate = f
}

func (n *TerminalNavigator) Navigate(targetURL string) error {
	n.mu.Lock()
	n.last = targetURL
	hook := n.onNavigate
	openCommand := n.openCommand
	copyLink := n.copyLink
	n.mu.Unlock()

	var err error
	if copyLink {
		if cerr := n.writeClipboard(targetURL); cerr != nil {
			log.Warn().Err(cerr).Str("component", "navigator").Msg("could not copy booking link")
		}
	}
	if len(openCommand) > 0 {
		args := append(append([]string(nil), openCommand[1:]...), targetURL)
		if serr := n.start(openCommand[0], args...); serr != nil {
			err = errors.Wrapf(serr, "could not run %s", openCommand[0])
		}
	}
	log.Debug().Str("component", "navigator").Str("url", targetURL).Msg("navigated to booking page")

	if hook != nil {
		hook(targetURL)
	}
	return err
}

// Last returns the most recent navigation target.
func (n *TerminalNavigator) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}
