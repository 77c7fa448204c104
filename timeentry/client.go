// Package timeentry talks to the "current time entry" endpoint of the remote
// time-tracking API. One call, no state, no retries.
package timeentry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.clickup.com/api"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// Payload is the raw JSON body of a 2xx or 5xx response.
type Payload struct {
	StatusCode int
	Class      ErrorClass // ClassSuccess or ClassServerError
	Body       []byte
}

// Config holds client configuration.
type Config struct {
	BaseURL    string       // API root, DefaultBaseURL if empty
	Credential string       // sent verbatim as Authorization header (no "Bearer")
	AccountID  string       // team id
	HTTP       *http.Client // required, owned by the caller
}

// Validate checks if all required config fields are present.
func (c Config) Validate() error {
	if c.Credential == "" {
		return fmt.Errorf("Credential required")
	}
	if c.AccountID == "" {
		return fmt.Errorf("AccountID required")
	}
	if c.HTTP == nil {
		return fmt.Errorf("HTTP client required")
	}
	return nil
}

// Client fetches the current time entry for one credential/account pair.
// The credential is fixed at construction; a new credential needs a new Client.
type Client struct {
	http       *http.Client
	url        string
	credential string
}

// New creates a client bound to one credential and account.
func New(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	base := config.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		http:       config.HTTP,
		url:        CurrentEntryURL(base, config.AccountID),
		credential: config.Credential,
	}, nil
}

// CurrentEntryURL builds the endpoint URL for an account.
func CurrentEntryURL(baseURL, accountID string) string {
	return strings.TrimSuffix(baseURL, "/") + "/v2/team/" + url.PathEscape(accountID) + "/time_entries/current"
}

// URL returns the endpoint this client polls.
func (c *Client) URL() string {
	return c.url
}

// FetchCurrent issues one authenticated GET.
//
// 2xx and 5xx responses with a JSON body are returned as Payload.
// 401/403 yield ClassAuthFailure, other 4xx ClassClientError, network
// failures and non-JSON bodies ClassTransport (all as *FetchError).
func (c *Client) FetchCurrent(ctx context.Context) (Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Payload{}, &FetchError{Class: ClassTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.credential)

	resp, err := c.http.Do(req)
	if err != nil {
		return Payload{}, &FetchError{Class: ClassTransport, Err: err}
	}
	defer resp.Body.Close()

	class := classifyStatus(resp.StatusCode)
	if class == ClassAuthFailure || class == ClassClientError {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Payload{}, &FetchError{Class: class, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Payload{}, &FetchError{Class: ClassTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if !json.Valid(body) {
		return Payload{}, &FetchError{
			Class:      ClassTransport,
			StatusCode: resp.StatusCode,
			Err:        errors.New("response body is not valid JSON"),
		}
	}

	return Payload{StatusCode: resp.StatusCode, Class: class, Body: body}, nil
}

// Close releases idle connections of the underlying transport.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
