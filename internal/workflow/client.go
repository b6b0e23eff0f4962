package workflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	apiPrefix             = "/api/ai-agent/"
	defaultEndpoint       = "http://localhost:8080"
	defaultRequestTimeout = 15 * time.Second
	errorBodyLimit        = 512
	maxSnapshotBytes      = 1 << 20
)

// Client exposes the four operations of the remote email-drafting workflow.
// Implementations perform a single round trip per call and never retry.
type Client interface {
	Start(ctx context.Context, workflowID string) error
	Describe(ctx context.Context, workflowID string) (Snapshot, error)
	Request(ctx context.Context, workflowID, text string) error
	SaveDraft(ctx context.Context, workflowID, text string) error
}

// Config describes how to build an HTTP client.
type Config struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewFromEnv builds an HTTP client, falling back to MAILPILOT_ENDPOINT and
// then to a local default when no endpoint is configured.
func NewFromEnv(cfg Config) (*HTTPClient, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if env := os.Getenv("MAILPILOT_ENDPOINT"); env != "" {
			endpoint = env
		} else {
			endpoint = defaultEndpoint
		}
	}
	cfg.Endpoint = endpoint
	return NewHTTPClient(cfg)
}

// NewHTTPClient returns a Client speaking the /api/ai-agent HTTP surface.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid workflow endpoint %q: %w", cfg.Endpoint, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid workflow endpoint %q: scheme must be http or https", cfg.Endpoint)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid workflow endpoint %q: missing host", cfg.Endpoint)
	}
	return &HTTPClient{
		base:   base,
		client: pickHTTPClient(cfg.HTTPClient, cfg.Timeout),
	}, nil
}

func pickHTTPClient(custom *http.Client, timeout time.Duration) *http.Client {
	if custom != nil {
		return custom
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &http.Client{Timeout: timeout}
}

// HTTPClient is the net/http implementation of Client.
type HTTPClient struct {
	base   *url.URL
	client *http.Client
}

// Endpoint returns the base URL the client talks to.
func (c *HTTPClient) Endpoint() string {
	return c.base.String()
}

func (c *HTTPClient) Start(ctx context.Context, workflowID string) error {
	_, err := c.call(ctx, OpStart, url.Values{"workflowId": {workflowID}})
	return err
}

func (c *HTTPClient) Describe(ctx context.Context, workflowID string) (Snapshot, error) {
	body, err := c.call(ctx, OpDescribe, url.Values{"workflowId": {workflowID}})
	if err != nil {
		return Snapshot{}, err
	}
	snapshot, err := DecodeSnapshot(body)
	if err != nil {
		return Snapshot{}, &RemoteError{Op: OpDescribe, Kind: ParseError, Err: err}
	}
	return snapshot, nil
}

func (c *HTTPClient) Request(ctx context.Context, workflowID, text string) error {
	_, err := c.call(ctx, OpRequest, url.Values{"workflowId": {workflowID}, "request": {text}})
	return err
}

func (c *HTTPClient) SaveDraft(ctx context.Context, workflowID, text string) error {
	_, err := c.call(ctx, OpSaveDraft, url.Values{"workflowId": {workflowID}, "draft": {text}})
	return err
}

func (c *HTTPClient) call(ctx context.Context, op Op, params url.Values) ([]byte, error) {
	target := *c.base
	target.Path = strings.TrimRight(target.Path, "/") + apiPrefix + string(op)
	target.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, &RemoteError{Op: op, Kind: TransportError, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: op, Kind: TransportError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, &RemoteError{
			Op:         op,
			Kind:       ServerError,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, &RemoteError{Op: op, Kind: TransportError, Err: err}
	}
	return body, nil
}
