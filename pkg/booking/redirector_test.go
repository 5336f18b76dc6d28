package booking

import (
	"net/url"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func completePayload() *Payload {
	return &Payload{
		Apartment:       "A3",
		CheckIn:         "2025-07-10",
		CheckOut:        "2025-07-17",
		CheckInDisplay:  "10/07/2025",
		CheckOutDisplay: "17/07/2025",
	}
}

func TestRedirector_RenderBuildsTargetURL(t *testing.T) {
	r, err := NewRedirector("https://example.org/prenotazione/")
	require.NoError(t, err)

	out, err := r.Render(completePayload())
	require.NoError(t, err)

	require.Equal(t,
		"https://example.org/prenotazione/?appartamento=A3&check_in=2025-07-10&check_out=2025-07-17"+
			"&check_in_formatted=10%2F07%2F2025&check_out_formatted=17%2F07%2F2025",
		out.TargetURL,
	)

	u, err := url.Parse(out.TargetURL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "A3", q.Get("appartamento"))
	require.Equal(t, "2025-07-10", q.Get("check_in"))
	require.Equal(t, "2025-07-17", q.Get("check_out"))
	require.Equal(t, "10/07/2025", q.Get("check_in_formatted"))
	require.Equal(t, "17/07/2025", q.Get("check_out_formatted"))

	require.Contains(t, out.HTML, "<strong>A3</strong>")
	require.Contains(t, out.HTML, "<strong>10/07/2025</strong>")
	require.Contains(t, out.HTML, "<strong>17/07/2025</strong>")
	require.Contains(t, out.HTML, `href="https://example.org/prenotazione/?appartamento=A3&amp;check_in=`)
	require.Contains(t, out.Text, out.TargetURL)
}

func TestRedirector_RenderEncodesSpecialCharacters(t *testing.T) {
	r, err := NewRedirector("https://example.org/prenotazione/")
	require.NoError(t, err)

	p := completePayload()
	p.Apartment = "Casa <Mare> & Sole"
	out, err := r.Render(p)
	require.NoError(t, err)

	require.Contains(t, out.TargetURL, "appartamento=Casa+%3CMare%3E+%26+Sole")
	require.Contains(t, out.HTML, "Casa &lt;Mare&gt; &amp; Sole")
	require.NotContains(t, out.HTML, "<Mare>")
}

func TestRedirector_RenderRejectsIncompletePayload(t *testing.T) {
	r, err := NewRedirector("https://example.org/prenotazione/")
	require.NoError(t, err)

	p := completePayload()
	p.CheckOut = ""
	out, err := r.Render(p)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIncompleteBooking))
	require.Empty(t, out.TargetURL)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, []string{"check_out"}, verr.Missing)

	_, err = r.Render(nil)
	require.True(t, errors.Is(err, ErrIncompleteBooking))
}

func TestRedirector_DisplayDatesFallBackToRaw(t *testing.T) {
	r, err := NewRedirector("https://example.org/prenotazione/")
	require.NoError(t, err)

	out, err := r.Render(&Payload{Apartment: "B1", CheckIn: "2025-08-01", CheckOut: "2025-08-05"})
	require.NoError(t, err)
	require.Contains(t, out.HTML, "<strong>2025-08-01</strong>")
	require.True(t, strings.HasSuffix(out.TargetURL, "check_in_formatted=&check_out_formatted="))
}

func TestRedirector_PageWithExistingQuery(t *testing.T) {
	r, err := NewRedirector("https://example.org/?page_id=12")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(r.BuildURL(*completePayload()), "https://example.org/?page_id=12&appartamento=A3"))

	_, err = NewRedirector("  ")
	require.Error(t, err)
	require.Equal(t, "https://example.org/prenotazione/", PageURLForSite("https://example.org/"))
}
