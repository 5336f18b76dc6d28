package widget

import (
	"strings"
	"time"

	"github.com/go-go-golems/paguro/pkg/session"
	"github.com/pkg/errors"
)

const (
	ProfileEmbedded = "embedded"
	ProfileFloating = "floating"
)

// Messages holds the user facing texts of a widget. Texts are markdown and go
// through the reply formatter like assistant replies.
type Messages struct {
	Title             string
	Welcome           string
	Thinking          string
	Unavailable       string
	ErrorPrefix       string
	InvalidResponse   string
	ConnectionPrefix  string
	Unreachable       string
	ServerError       string
	RetryLater        string
	IncompleteBooking string
}

// DefaultMessages returns the Italian texts of the embedded widget.
func DefaultMessages() Messages {
	return Messages{
		Title:             "🐚 Paguro - Receptionist Villa Celi",
		Welcome:           "Ciao! Sono il tuo assistente virtuale per le prenotazioni a Villa Celi. Come posso aiutarti oggi?",
		Thinking:          "Paguro sta pensando...",
		Unavailable:       "⚠️ Il servizio di chat non è al momento disponibile. Riprova più tardi.",
		ErrorPrefix:       "❌ Errore: ",
		InvalidResponse:   "⚠️ Risposta non valida dal server.",
		ConnectionPrefix:  "⚠️ Problema di connessione. ",
		Unreachable:       "Verifica che il server Paguro sia attivo.",
		ServerError:       "Il server ha restituito un errore.",
		RetryLater:        "Riprova più tardi.",
		IncompleteBooking: "❌ Dati di prenotazione incompleti. Riprova con una nuova ricerca.",
	}
}

// Profile captures what differs between the embedded and the floating widget.
// Both run the same pipeline.
type Profile struct {
	Name          string
	StorageKey    string
	RedirectDelay time.Duration
	Messages      Messages
}

func EmbeddedProfile() Profile {
	return Profile{
		Name:          ProfileEmbedded,
		StorageKey:    session.DefaultKey,
		RedirectDelay: 4 * time.Second,
		Messages:      DefaultMessages(),
	}
}

func FloatingProfile() Profile {
	m := DefaultMessages()
	m.Title = "🐚 Paguro - Villa Celi"
	m.Welcome = "🐚 **Ciao, sono Paguro!** Come posso aiutarti con Villa Celi?\n💡 *Prova: \"disponibilità luglio 2025\"*"
	return Profile{
		Name:          ProfileFloating,
		StorageKey:    session.FloatingKey,
		RedirectDelay: 2 * time.Second,
		Messages:      m,
	}
}

// ProfileByName resolves a profile name. An empty name selects the embedded
// profile.
func ProfileByName(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProfileEmbedded:
		return EmbeddedProfile(), nil
	case ProfileFloating:
		return FloatingProfile(), nil
	default:
		return Profile{}, errors.Errorf("unknown widget profile %q", name)
	}
}

// failureText picks the connection error text for a channel error.
func (m Messages) failureText(kind failureKind) string {
	switch kind {
	case failureUnreachable:
		return m.ConnectionPrefix + m.Unreachable
	case failureStatus:
		return m.ConnectionPrefix + m.ServerError
	case failureMalformed:
		return m.InvalidResponse
	default:
		return m.ConnectionPrefix + m.RetryLater
	}
}
