package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Priya8975/quakewatch/internal/domain"
)

// DefaultURL is the Kandilli observatory live feed.
const DefaultURL = "https://api.orhanaydogdu.com.tr/deprem/kandilli/live"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 8 << 20

// RawRecord is one feed entry as decoded from JSON. Numbers are kept as
// json.Number so ids and coordinates survive unchanged.
type RawRecord map[string]any

type envelope struct {
	Status *bool           `json:"status"`
	Result json.RawMessage `json:"result"`
}

// Client fetches the upstream feed.
type Client struct {
	url        string
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a feed client. The timeout bounds the whole request,
// including reading the body.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		userAgent: "quakewatch/1.0",
	}
}

// URL returns the configured feed endpoint.
func (c *Client) URL() string {
	return c.url
}

// FetchLatest performs one GET against the feed and returns at most
// domain.MaxSnapshotSize records in feed order.
func (c *Client) FetchLatest(ctx context.Context) ([]RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &FetchError{Kind: Network, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: Network, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &FetchError{
			Kind:       BadStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response from %s", c.url),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Kind: Network, Err: fmt.Errorf("reading body: %w", err)}
	}

	return decodeEnvelope(body)
}

func decodeEnvelope(body []byte) ([]RawRecord, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &FetchError{Kind: Malformed, Err: fmt.Errorf("decoding envelope: %w", err)}
	}
	if env.Status == nil {
		return nil, &FetchError{Kind: Malformed, Err: errors.New("envelope has no status flag")}
	}
	if !*env.Status {
		return nil, &FetchError{Kind: BadStatus, Err: errors.New("feed reported status false")}
	}
	if len(env.Result) == 0 || bytes.Equal(bytes.TrimSpace(env.Result), []byte("null")) {
		return nil, &FetchError{Kind: Malformed, Err: errors.New("envelope has no result list")}
	}

	dec := json.NewDecoder(bytes.NewReader(env.Result))
	dec.UseNumber()

	var records []RawRecord
	if err := dec.Decode(&records); err != nil {
		return nil, &FetchError{Kind: Malformed, Err: fmt.Errorf("decoding result list: %w", err)}
	}

	if len(records) > domain.MaxSnapshotSize {
		records = records[:domain.MaxSnapshotSize]
	}
	if records == nil {
		records = []RawRecord{}
	}
	return records, nil
}
