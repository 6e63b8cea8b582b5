// Package mailbox talks to a tempmail.plus style disposable-mailbox provider
// and owns address generation and sender normalization for inbound mail.
package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// ErrUpstream marks provider-side failures (network, non-200, bad payload).
// Callers log and keep going; the poll loop never dies on a bad cycle.
var ErrUpstream = errors.New("mailbox provider unavailable")

const (
	DefaultBaseURL      = "https://tempmail.plus"
	DefaultDomain       = "mailto.plus"
	DefaultFetchTimeout = 10 * time.Second
	DefaultPollInterval = 3 * time.Second
	DefaultPreviewLimit = 500
)

// Message is one mail item as returned by the provider listing.
type Message struct {
	ID      uint64
	Subject string
	From    string
	Text    string
	HTML    string
}

type listingPayload struct {
	MailList []struct {
		MailID  json.Number `json:"mail_id"`
		Subject string      `json:"subject"`
		From    string      `json:"from"`
		Text    string      `json:"text"`
		HTML    string      `json:"html"`
	} `json:"mail_list"`
}

// Client fetches inbox listings over the provider's JSON API.
type Client struct {
	baseURL string
	http    *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultFetchTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// List returns the inbox for addr, newest first.
// Entries whose id cannot be ordered numerically are an upstream error:
// the dedup cursor depends on a total order over ids.
func (c *Client) List(ctx context.Context, addr string) ([]Message, error) {
	q := url.Values{}
	q.Set("email", addr)
	q.Set("first_id", "0")
	q.Set("epin", "")
	u := c.baseURL + "/api/mails?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var payload listingPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}

	msgs := make([]Message, 0, len(payload.MailList))
	for _, it := range payload.MailList {
		id, err := strconv.ParseUint(it.MailID.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: non-numeric mail_id %q", ErrUpstream, it.MailID.String())
		}
		msgs = append(msgs, Message{
			ID:      id,
			Subject: it.Subject,
			From:    it.From,
			Text:    it.Text,
			HTML:    it.HTML,
		})
	}

	// Providers return newest first; enforce it rather than trust it.
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })
	return msgs, nil
}
