package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 4096

// StatusError is returned when a target service answers with a non 2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from a target service.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Client pushes entity representations to a single target service.
// It holds no state beyond its credentials; callers own retries.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the target. base is the underlying round tripper,
// http.DefaultTransport when nil.
func New(cfg TargetConfig, base http.RoundTripper) (*Client, error) {
	if base == nil {
		base = http.DefaultTransport
	}

	src, err := tokenSource(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
			Transport: &oauth2.Transport{
				Source: src,
				Base:   otelhttp.NewTransport(base),
			},
		},
	}, nil
}

func (c *Client) Name() string {
	return c.name
}

// Send issues method against <base>/api/<path>/ with body encoded as JSON.
// A nil body sends no content.
func (c *Client) Send(ctx context.Context, method, path string, body any) error {
	url := c.baseURL + "/api/" + strings.Trim(path, "/") + "/"

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Method:     method,
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(msg)),
	}
}

// Clients indexes target clients by name.
type Clients map[string]*Client

// NewClients creates a client per configured target.
func NewClients(targets []TargetConfig, base http.RoundTripper) (Clients, error) {
	clients := make(Clients, len(targets))
	for _, t := range targets {
		c, err := New(t, base)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", t.Name, err)
		}
		clients[t.Name] = c
	}
	return clients, nil
}

func tokenSource(cfg TargetConfig) (oauth2.TokenSource, error) {
	if cfg.SigningSecretEnv != "" {
		secret := os.Getenv(cfg.SigningSecretEnv)
		if secret == "" {
			return nil, fmt.Errorf("signing secret %s is not set", cfg.SigningSecretEnv)
		}
		return oauth2.ReuseTokenSource(nil, &assertionSource{
			secret:   []byte(secret),
			audience: cfg.Name,
			ttl:      5 * time.Minute,
		}), nil
	}

	if cfg.Token == "" {
		return nil, errors.New("no credentials configured")
	}

	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.Token,
		TokenType:   cfg.AuthScheme,
	}), nil
}
