package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-go-golems/paguro/pkg/transcript"
)

// LineView prints entries as plain lines, for the line mode widget and for
// one-shot runs. User entries are skipped when echo is off, since the
// terminal already shows what was typed.
type LineView struct {
	mu   sync.Mutex
	out  io.Writer
	echo bool
}

var _ transcript.View = &LineView{}

func NewLineView(out io.Writer, echo bool) *LineView {
	return &LineView{out: out, echo: echo}
}

func (v *LineView) Append(e transcript.Entry) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if e.Sender == transcript.SenderUser {
		if v.echo {
			_, _ = fmt.Fprintf(v.out, "%s %s\n", userStyle.Render("Tu:"), e.Source)
		}
		return
	}

	prefix := assistantStyle.Render("🐚")
	text := PlainText(e.Source)
	if e.Kind == transcript.KindError {
		text = errorStyle.Render(text)
	}
	_, _ = fmt.Fprintf(v.out, "%s %s\n", prefix, strings.ReplaceAll(text, "\n", "\n   "))

	for i, a := range e.Actions {
		_, _ = fmt.Fprintf(v.out, "   [%d] %s (scrivi %q)\n", i+1, a.Label, a.Value)
	}
}

func (v *LineView) ScrollToEnd() {}

// PlainText strips the bold and italic markers of assistant text.
func PlainText(s string) string {
	return strings.ReplaceAll(s, "*", "")
}
