package booking

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Navigator moves the user to the booking page.
type Navigator interface {
	Navigate(targetURL string) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(targetURL string) error

func (f NavigatorFunc) Navigate(targetURL string) error {
	return f(targetURL)
}

// Scheduler owns the single pending auto-navigation of a widget. Arming a new
// navigation replaces the previous one, and Cancel disarms it. A navigation
// fires at most once.
type Scheduler struct {
	navigator Navigator

	mu      sync.Mutex
	timer   *time.Timer
	target  string
	gen     uint64
	onFired func(targetURL string, err error)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithFiredHook is called after the navigator ran, with its error.
func WithFiredHook(f func(targetURL string, err error)) SchedulerOption {
	return func(s *Scheduler) {
		s.onFired = f
	}
}

func NewScheduler(navigator Navigator, options ...SchedulerOption) *Scheduler {
	s := &Scheduler{navigator: navigator}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Schedule arms navigation to targetURL after delay, cancelling any pending
// navigation first.
func (s *Scheduler) Schedule(targetURL string, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	gen := s.gen
	s.target = targetURL
	s.timer = time.AfterFunc(delay, func() { s.fire(gen) })

	log.Debug().
		Str("component", "booking").
		Str("url", targetURL).
		Dur("delay", delay).
		Msg("scheduled booking navigation")
}

// Cancel disarms the pending navigation. It reports whether one was pending.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.timer != nil
	s.stopLocked()
	s.gen++
	if pending {
		log.Debug().Str("component", "booking").Msg("cancelled booking navigation")
	}
	return pending
}

// Pending returns the target of the armed navigation, if any.
func (s *Scheduler) Pending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return "", false
	}
	return s.target, true
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.target = ""
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.timer == nil {
		// cancelled or replaced while the timer was firing
		s.mu.Unlock()
		return
	}
	target := s.target
	s.timer = nil
	s.target = ""
	onFired := s.onFired
	s.mu.Unlock()

	log.Info().Str("component", "booking").Str("url", target).Msg("navigating to booking page")

	var err error
	if s.navigator != nil {
		err = s.navigator.Navigate(target)
		if err != nil {
			log.Error().Err(err).Str("component", "booking").Str("url", target).Msg("booking navigation failed")
		}
	}
	if onFired != nil {
		onFired(target, err)
	}
}
