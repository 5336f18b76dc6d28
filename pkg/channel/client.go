// Package channel talks to the assistant backend: one POST per user message
// and a health probe used at startup.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout = 30 * time.Second

	chatPath   = "/chatbot"
	healthPath = "/health"

	maxBodyBytes = 1 << 20
)

// Client is the HTTP chat channel. It never retries: a failed send is
// reported to the caller.
type Client struct {
	base      string
	http      *http.Client
	timeout   time.Duration
	userAgent string
}

type ClientOption func(*Client) error

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cl.http = c
		return nil
	}
}

// WithTimeout bounds each request. Zero disables the bound.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) error {
		if d < 0 {
			return errors.Errorf("invalid timeout %s", d)
		}
		cl.timeout = d
		return nil
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) error {
		cl.userAgent = ua
		return nil
	}
}

// New returns a client for the backend rooted at baseURL, e.g.
// https://api.example.org/api.
func New(baseURL string, options ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("channel: empty base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "channel: invalid base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("channel: unsupported base url scheme %q", u.Scheme)
	}

	c := &Client{
		base:      baseURL,
		http:      &http.Client{},
		timeout:   DefaultTimeout,
		userAgent: "paguro",
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "failed to apply client option")
		}
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.base
}

// Send posts one message. The session identifier travels in the JSON body.
func (c *Client) Send(ctx context.Context, msg OutgoingMessage) (*IncomingReply, error) {
	const op = "send"

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, errors.New("channel: empty message")
	}
	body, err := json.Marshal(chatRequest{Message: text, SessionID: msg.SessionID})
	if err != nil {
		return nil, errors.Wrap(err, "channel: encode request")
	}

	raw, status, err := c.do(ctx, op, http.MethodPost, c.base+chatPath, body)
	if err != nil {
		return nil, err
	}

	reply, err := decodeReply(raw)
	if err != nil {
		return nil, &Error{Sentinel: ErrMalformedResponse, Op: op, Err: err}
	}

	log.Debug().
		Str("component", "channel").
		Int("status", status).
		Str("type", reply.RawType).
		Str("kind", string(reply.Kind)).
		Bool("booking", reply.Booking != nil).
		Str("session_id", reply.SessionID).
		Msg("chat reply received")
	return reply, nil
}

// Probe queries the health endpoint.
func (c *Client) Probe(ctx context.Context) (*Health, error) {
	const op = "probe"

	raw, _, err := c.do(ctx, op, http.MethodGet, c.base+healthPath, nil)
	if err != nil {
		return nil, err
	}

	var h Health
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, &Error{Sentinel: ErrMalformedResponse, Op: op, Err: err}
	}

	log.Debug().
		Str("component", "channel").
		Str("status", h.Status).
		Interface("features", h.Features).
		Interface("location", h.Location).
		Msg("chat backend healthy")
	return &h, nil
}

func (c *Client) do(ctx context.Context, op, method, target string, body []byte) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, errors.Wrap(err, "channel: build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	logger := log.With().Str("component", "channel").Str("op", op).Str("request_id", requestID).Logger()
	logger.Debug().Str("url", target).Msg("sending request")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("chat backend unreachable")
		return nil, 0, &Error{Sentinel: ErrUnreachable, Op: op, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		logger.Warn().Err(err).Msg("reading response body failed")
		return nil, res.StatusCode, &Error{Sentinel: ErrUnreachable, Op: op, Err: err}
	}

	logger.Debug().Int("status", res.StatusCode).Dur("elapsed", time.Since(start)).Msg("response received")

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, res.StatusCode, &Error{
			Sentinel: ErrHTTPStatus,
			Op:       op,
			Status:   res.StatusCode,
		}
	}
	return raw, res.StatusCode, nil
}
