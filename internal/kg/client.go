// Package kg queries the external knowledge graph over its SPARQL endpoint.
// The endpoint is an external collaborator: this package only builds
// queries, executes them synchronously and maps result bindings.
package kg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable indicates the SPARQL endpoint rejected or failed the query.
var ErrUnavailable = errors.New("kg: knowledge graph unavailable")

const (
	contentTypeQuery   = "application/sparql-query"
	acceptResultsJSON  = "application/sparql-results+json"
	defaultHTTPTimeout = 15 * time.Second
	maxResponseBytes   = 8 << 20
)

// Client executes SPARQL SELECT queries against one endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client, used by tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient constructs a client for the given SPARQL endpoint URL.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("kg: endpoint is required")
	}
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Results is the SPARQL JSON results document.
type Results struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]Binding `json:"bindings"`
	} `json:"results"`
}

// Binding is one variable binding in a result row.
type Binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Select posts a SELECT query and decodes the JSON results.
func (c *Client) Select(ctx context.Context, query string) (*Results, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(query))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentTypeQuery)
	req.Header.Set("Accept", acceptResultsJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: endpoint returned %d", ErrUnavailable, resp.StatusCode)
	}

	var results Results
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&results); err != nil {
		return nil, fmt.Errorf("%w: decode results: %v", ErrUnavailable, err)
	}
	return &results, nil
}
