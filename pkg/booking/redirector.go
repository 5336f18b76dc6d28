package booking

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultPagePath is appended to the site origin when no booking page URL is
// configured.
const DefaultPagePath = "/prenotazione/"

// queryOrder is the order in which booking fields are appended to the page URL.
var queryOrder = []string{
	"appartamento",
	"check_in",
	"check_out",
	"check_in_formatted",
	"check_out_formatted",
}

// Rendered is the transcript-ready form of a valid booking.
type Rendered struct {
	HTML      string
	Text      string
	TargetURL string
}

// Redirector validates booking payloads and builds the hand-off to the
// booking page.
type Redirector struct {
	pageURL string
}

// NewRedirector returns a redirector for the given booking page. The page URL
// may already carry a query string; booking fields are appended to it.
func NewRedirector(pageURL string) (*Redirector, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return nil, errors.New("booking: empty booking page url")
	}
	if _, err := url.Parse(pageURL); err != nil {
		return nil, errors.Wrap(err, "booking: invalid booking page url")
	}
	return &Redirector{pageURL: pageURL}, nil
}

// PageURLForSite derives the default booking page from a site origin such as
// https://example.org.
func PageURLForSite(site string) string {
	return strings.TrimRight(strings.TrimSpace(site), "/") + DefaultPagePath
}

// PageURL returns the configured booking page.
func (r *Redirector) PageURL() string {
	return r.pageURL
}

// BuildURL appends the booking fields to the booking page URL. The payload is
// not validated here.
func (r *Redirector) BuildURL(p Payload) string {
	values := map[string]string{
		"appartamento":        p.Apartment,
		"check_in":            p.CheckIn,
		"check_out":           p.CheckOut,
		"check_in_formatted":  p.CheckInDisplay,
		"check_out_formatted": p.CheckOutDisplay,
	}
	parts := make([]string, 0, len(queryOrder))
	for _, k := range queryOrder {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(values[k]))
	}

	sep := "?"
	if strings.Contains(r.pageURL, "?") {
		sep = "&"
		if strings.HasSuffix(r.pageURL, "?") || strings.HasSuffix(r.pageURL, "&") {
			sep = ""
		}
	}
	return r.pageURL + sep + strings.Join(parts, "&")
}

// Render validates the payload and produces the booking message and target
// URL. Incomplete payloads return an error wrapping ErrIncompleteBooking.
func (r *Redirector) Render(p *Payload) (Rendered, error) {
	if err := p.Validate(); err != nil {
		log.Warn().Err(err).Str("component", "booking").Msg("rejecting booking payload")
		return Rendered{}, err
	}

	target := r.BuildURL(*p)
	log.Debug().Str("component", "booking").Str("url", target).Msg("built booking url")

	apartment := html.EscapeString(p.Apartment)
	checkIn := html.EscapeString(p.CheckInLabel())
	checkOut := html.EscapeString(p.CheckOutLabel())

	htmlMsg := fmt.Sprintf(
		"✅ Perfetto! Trovata disponibilità per <strong>%s</strong> dal <strong>%s</strong> al <strong>%s</strong>."+
			"<br><br>🏖️ <a href=\"%s\" target=\"_blank\" class=\"quick-action-btn primary-btn\">Vai alla prenotazione</a>"+
			"<br><br>Oppure continua a chattare per altre domande.",
		apartment, checkIn, checkOut, html.EscapeString(target),
	)
	text := fmt.Sprintf(
		"✅ Perfetto! Trovata disponibilità per **%s** dal **%s** al **%s**.\n\n🏖️ Vai alla prenotazione: %s\n\nOppure continua a chattare per altre domande.",
		p.Apartment, p.CheckInLabel(), p.CheckOutLabel(), target,
	)

	return Rendered{HTML: htmlMsg, Text: text, TargetURL: target}, nil
}
