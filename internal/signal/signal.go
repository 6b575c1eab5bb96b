package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Client talks to a signal-cli REST API on behalf of one account.
type Client struct {
	apiURL string
	number string
	http   *http.Client

	mu       sync.Mutex
	groupIDs map[string]string
}

// NewClient creates a client for the given account number.
func NewClient(apiURL, number string) *Client {
	return &Client{
		apiURL:   strings.TrimRight(apiURL, "/"),
		number:   number,
		http:     &http.Client{Timeout: 15 * time.Second},
		groupIDs: make(map[string]string),
	}
}

// Number is the account the client acts for.
func (c *Client) Number() string {
	return c.number
}

// ReceiveEvents fetches pending envelopes for the account.
func (c *Client) ReceiveEvents(ctx context.Context) ([]Envelope, error) {
	endpoint := fmt.Sprintf("%s/v1/receive/%s", c.apiURL, url.PathEscape(c.number))
	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var wrappers []EnvelopeWrapper
	if err := json.Unmarshal(body, &wrappers); err != nil {
		// Some versions answer with a single object.
		var single EnvelopeWrapper
		if err2 := json.Unmarshal(body, &single); err2 != nil {
			return nil, fmt.Errorf("decode receive response: %w", err)
		}
		wrappers = append(wrappers, single)
	}
	log.Debug().Str("number", c.number).Int("events", len(wrappers)).Msg("Received events")

	events := make([]Envelope, 0, len(wrappers))
	for _, w := range wrappers {
		events = append(events, w.Envelope)
	}
	return events, nil
}

// GroupPublicID resolves an internal group ID to the ID used for sending.
// Successful lookups are cached for the lifetime of the client.
func (c *Client) GroupPublicID(ctx context.Context, internalID string) (string, error) {
	c.mu.Lock()
	id, ok := c.groupIDs[internalID]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	endpoint := fmt.Sprintf("%s/v1/groups/%s", c.apiURL, url.PathEscape(c.number))
	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("groups: %w", err)
	}
	var groups []Group
	if err := json.Unmarshal(body, &groups); err != nil {
		return "", fmt.Errorf("decode groups: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range groups {
		if g.InternalID != "" && g.ID != "" {
			c.groupIDs[g.InternalID] = g.ID
		}
	}
	if id, ok := c.groupIDs[internalID]; ok {
		return id, nil
	}
	return "", fmt.Errorf("public group id not found for internal id: %s", internalID)
}

// SendMessage posts message to a single recipient (number or group ID).
func (c *Client) SendMessage(ctx context.Context, to, message string) error {
	payload, err := json.Marshal(SendRequest{Message: message, Number: c.number, Recipients: []string{to}})
	if err != nil {
		return err
	}
	if _, err := c.do(ctx, http.MethodPost, c.apiURL+"/v2/send", payload); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	log.Debug().Str("to", to).Int("length", len(message)).Msg("Sent message")
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}
