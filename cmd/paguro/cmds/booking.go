package cmds

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/go-go-golems/paguro/pkg/booking"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewBookingURLCommand() *cobra.Command {
	var (
		p       booking.Payload
		message bool
		copyURL bool
	)

	cmd := &cobra.Command{
		Use:   "booking-url",
		Short: "Build the booking page URL for a stay",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			r, err := booking.NewRedirector(s.BookingPageURL())
			if err != nil {
				return err
			}
			rendered, err := r.Render(&p)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if message {
				_, _ = fmt.Fprintln(out, rendered.Text)
			} else {
				_, _ = fmt.Fprintln(out, rendered.TargetURL)
			}
			if copyURL {
				if err := clipboard.WriteAll(rendered.TargetURL); err != nil {
					return errors.Wrap(err, "could not copy to clipboard")
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&p.Apartment, "apartment", "", "Apartment name")
	f.StringVar(&p.CheckIn, "check-in", "", "Check-in date (YYYY-MM-DD)")
	f.StringVar(&p.CheckOut, "check-out", "", "Check-out date (YYYY-MM-DD)")
	f.StringVar(&p.CheckInDisplay, "check-in-display", "", "Check-in date as shown to guests")
	f.StringVar(&p.CheckOutDisplay, "check-out-display", "", "Check-out date as shown to guests")
	f.BoolVar(&message, "message", false, "Print the booking message instead of the bare URL")
	f.BoolVar(&copyURL, "copy", false, "Copy the URL to the clipboard")
	return cmd
}
