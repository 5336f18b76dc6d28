package channel

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/paguro/pkg/booking"
	"github.com/pkg/errors"
)

// Kind classifies an assistant reply.
type Kind string

const (
	KindUnspecified      Kind = "unspecified"
	KindPlain            Kind = "plain"
	KindBookingRedirect  Kind = "booking_redirect"
	KindAvailabilityList Kind = "availability_list"
)

// OutgoingMessage is one user message. Build a new one per send.
type OutgoingMessage struct {
	Text      string
	SessionID string
}

// IncomingReply is the decoded answer of the chat endpoint.
type IncomingReply struct {
	Text      string
	ErrorText string
	Kind      Kind
	// RawType is the type tag as sent by the backend.
	RawType   string
	Booking   *booking.Payload
	SessionID string
}

// HasContent reports whether the reply carries a message or an error text.
func (r *IncomingReply) HasContent() bool {
	return r != nil && (r.Text != "" || r.ErrorText != "")
}

// Health is the status document of the health endpoint.
type Health struct {
	Status   string         `json:"status"`
	Features any            `json:"features,omitempty"`
	Location any            `json:"location,omitempty"`
	Ollama   *ServiceStatus `json:"ollama,omitempty"`
}

type ServiceStatus struct {
	Status string `json:"status"`
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Message     *string         `json:"message"`
	Error       *string         `json:"error"`
	Type        *string         `json:"type"`
	BookingData json.RawMessage `json:"booking_data"`
	SessionID   *string         `json:"session_id"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// decodeReply maps a chat response body into an IncomingReply.
func decodeReply(body []byte) (*IncomingReply, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("response is not a JSON object")
	}

	var raw chatResponse
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, errors.Wrap(err, "decode chat response")
	}

	out := &IncomingReply{
		Text:      deref(raw.Message),
		ErrorText: deref(raw.Error),
		RawType:   strings.TrimSpace(deref(raw.Type)),
		SessionID: strings.TrimSpace(deref(raw.SessionID)),
	}

	if b := bytes.TrimSpace(raw.BookingData); len(b) > 0 && !bytes.Equal(b, []byte("null")) {
		var p booking.Payload
		if err := json.Unmarshal(b, &p); err != nil {
			return nil, errors.Wrap(err, "decode booking_data")
		}
		out.Booking = &p
	}

	out.Kind = classify(out.RawType, out.Booking)
	return out, nil
}

func classify(rawType string, p *booking.Payload) Kind {
	switch rawType {
	case "":
		return KindUnspecified
	case string(KindBookingRedirect):
		if p != nil {
			return KindBookingRedirect
		}
		return KindPlain
	case string(KindAvailabilityList):
		return KindAvailabilityList
	default:
		return KindPlain
	}
}
