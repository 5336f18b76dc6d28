package booking

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrIncompleteBooking is returned when a booking payload lacks one of the
// fields needed to build a booking page URL.
var ErrIncompleteBooking = errors.New("booking: incomplete booking data")

// Payload is the structured stay attached to a booking reply. Field names on
// the wire follow the booking page query contract.
type Payload struct {
	Apartment       string `json:"appartamento" yaml:"appartamento"`
	CheckIn         string `json:"check_in" yaml:"check_in"`
	CheckOut        string `json:"check_out" yaml:"check_out"`
	CheckInDisplay  string `json:"check_in_formatted,omitempty" yaml:"check_in_formatted,omitempty"`
	CheckOutDisplay string `json:"check_out_formatted,omitempty" yaml:"check_out_formatted,omitempty"`
}

// ValidationError lists the required fields a payload is missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: missing %s", ErrIncompleteBooking, strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrIncompleteBooking
}

// Validate rejects payloads without apartment, check-in or check-out. The
// display dates are optional.
func (p *Payload) Validate() error {
	if p == nil {
		return &ValidationError{Missing: []string{"appartamento", "check_in", "check_out"}}
	}
	var missing []string
	if strings.TrimSpace(p.Apartment) == "" {
		missing = append(missing, "appartamento")
	}
	if strings.TrimSpace(p.CheckIn) == "" {
		missing = append(missing, "check_in")
	}
	if strings.TrimSpace(p.CheckOut) == "" {
		missing = append(missing, "check_out")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// CheckInLabel returns the display date, falling back to the raw date.
func (p *Payload) CheckInLabel() string {
	if p.CheckInDisplay != "" {
		return p.CheckInDisplay
	}
	return p.CheckIn
}

// CheckOutLabel returns the display date, falling back to the raw date.
func (p *Payload) CheckOutLabel() string {
	if p.CheckOutDisplay != "" {
		return p.CheckOutDisplay
	}
	return p.CheckOut
}
