// Package reply turns assistant-authored text into display markup and finds
// the enumerated choices that become quick actions.
package reply

import (
	"html"
	"regexp"
	"strings"
)

// DefaultChoiceMarker is the phrase that announces enumerated booking choices.
const DefaultChoiceMarker = "Per prenotare"

// DefaultActionLabel prefixes the choice number on quick action buttons.
const DefaultActionLabel = "Prenota"

var (
	boldRe   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe = regexp.MustCompile(`\*(.*?)\*`)
	choiceRe = regexp.MustCompile(`\*\*(\d+)\.\*\*`)
)

// QuickAction is a shortcut that resubmits Value as user input.
type QuickAction struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Formatted is the display form of one message.
type Formatted struct {
	HTML    string        `json:"html"`
	Actions []QuickAction `json:"actions,omitempty"`
}

// Formatter converts the small markup subset used by the assistant: **bold**,
// *italic* and line breaks.
type Formatter struct {
	escape       bool
	choiceMarker string
	actionLabel  string
}

type Option func(*Formatter)

// WithEscaping HTML-escapes the text before markup substitution. Use it when
// the text does not come from the trusted backend.
func WithEscaping(escape bool) Option {
	return func(f *Formatter) {
		f.escape = escape
	}
}

// WithChoiceMarker overrides the phrase that enables quick action detection.
func WithChoiceMarker(marker string) Option {
	return func(f *Formatter) {
		f.choiceMarker = marker
	}
}

// WithActionLabel overrides the label prefix of quick actions.
func WithActionLabel(label string) Option {
	return func(f *Formatter) {
		f.actionLabel = label
	}
}

func NewFormatter(options ...Option) *Formatter {
	f := &Formatter{
		choiceMarker: DefaultChoiceMarker,
		actionLabel:  DefaultActionLabel,
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

// Format detects quick actions on the original text, then converts markup.
func (f *Formatter) Format(text string) Formatted {
	return Formatted{
		HTML:    f.Markup(text),
		Actions: f.QuickActions(text),
	}
}

// Markup converts bold, then italic, then line breaks.
func (f *Formatter) Markup(text string) string {
	if f.escape {
		text = html.EscapeString(text)
	}
	out := boldRe.ReplaceAllString(text, "<strong>$1</strong>")
	out = italicRe.ReplaceAllString(out, "<em>$1</em>")
	return strings.ReplaceAll(out, "\n", "<br>")
}

// QuickActions returns one action per "**N.**" marker, in order of
// appearance, when the text announces enumerated choices.
func (f *Formatter) QuickActions(text string) []QuickAction {
	if f.choiceMarker == "" || !strings.Contains(text, f.choiceMarker) {
		return nil
	}
	matches := choiceRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	actions := make([]QuickAction, 0, len(matches))
	for _, m := range matches {
		actions = append(actions, QuickAction{
			Label: f.actionLabel + " " + m[1],
			Value: m[1],
		})
	}
	return actions
}
