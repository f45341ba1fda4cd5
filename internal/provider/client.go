// Package provider speaks HTTP to the remote execution backends.
package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

// MaxResponseBytes bounds how much of a provider response is read.
const MaxResponseBytes = 4 << 20

const userAgent = "execrelay/1.0"

// Client invokes one remote provider.
type Client struct {
	provider domain.Provider
	http     *http.Client
}

// NewClient creates a Client for p. A nil httpClient selects NewHTTPClient().
func NewClient(p domain.Provider, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Client{provider: p, http: httpClient}
}

// NewClients builds a Client for every remote provider, keyed by provider id.
func NewClients(providers []domain.Provider, httpClient *http.Client) map[string]*Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	out := make(map[string]*Client, len(providers))
	for _, p := range providers {
		if p.IsClientSide() {
			continue
		}
		out[p.ID] = NewClient(p, httpClient)
	}
	return out
}

// NewHTTPClient returns a pooled client without an overall timeout; every
// call is bounded by the caller's context instead.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

// ID returns the provider id.
func (c *Client) ID() string {
	return c.provider.ID
}

// Invoke submits req and returns the raw response payload.
func (c *Client) Invoke(ctx context.Context, req *domain.ExecutionRequest) ([]byte, error) {
	body, path, err := c.requestBody(req)
	if err != nil {
		return nil, c.fail(domain.KindProviderUnavailable, fmt.Errorf("provider: encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return nil, c.fail(domain.KindProviderUnavailable, fmt.Errorf("provider: build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, c.fail(domain.KindProviderUnavailable,
				fmt.Errorf("provider: timed out after %s: %w", c.provider.Timeout, err))
		}
		return nil, c.fail(domain.KindProviderUnavailable, fmt.Errorf("provider: invoke: %w", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, c.fail(domain.KindProviderUnavailable, fmt.Errorf("provider: read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, c.fail(domain.KindProviderRateLimited, fmt.Errorf("provider: upstream returned %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, c.fail(domain.KindProviderUnavailable,
			fmt.Errorf("provider: upstream returned %d: %s", resp.StatusCode, snippet(payload)))
	case len(payload) > MaxResponseBytes:
		return nil, c.fail(domain.KindMalformedProviderResponse, fmt.Errorf("provider: response exceeds %d bytes", MaxResponseBytes))
	}
	return payload, nil
}

// Ping issues a cheap GET against the provider's liveness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(c.pingPath()), nil)
	if err != nil {
		return fmt.Errorf("provider: build ping: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("provider: ping %s: %w", c.provider.ID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider: ping %s: status %d", c.provider.ID, resp.StatusCode)
	}
	return nil
}

type genericRequest struct {
	Language string `json:"language"`
	Version  string `json:"version,omitempty"`
	Source   string `json:"source"`
	Stdin    string `json:"stdin"`
	Timeout  int64  `json:"timeout"`
}

type pistonFile struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

type pistonRequest struct {
	Language   string       `json:"language"`
	Version    string       `json:"version"`
	Files      []pistonFile `json:"files"`
	Stdin      string       `json:"stdin"`
	RunTimeout int64        `json:"run_timeout,omitempty"`
}

type judge0Request struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin"`
}

func (c *Client) requestBody(req *domain.ExecutionRequest) ([]byte, string, error) {
	target := c.provider.Target(req.Language)
	timeoutMs := c.provider.Timeout.Milliseconds()

	switch c.provider.Adapter {
	case domain.AdapterPiston:
		version := target.Version
		if version == "" {
			version = "*"
		}
		body, err := json.Marshal(pistonRequest{
			Language:   target.Name,
			Version:    version,
			Files:      []pistonFile{{Content: req.SourceCode}},
			Stdin:      req.Stdin,
			RunTimeout: timeoutMs,
		})
		return body, "/execute", err
	case domain.AdapterJudge0:
		if target.ID == 0 {
			return nil, "", fmt.Errorf("no judge0 language id for %q", req.Language)
		}
		body, err := json.Marshal(judge0Request{
			SourceCode: req.SourceCode,
			LanguageID: target.ID,
			Stdin:      req.Stdin,
		})
		return body, "/submissions?base64_encoded=false&wait=true", err
	default:
		body, err := json.Marshal(genericRequest{
			Language: target.Name,
			Version:  target.Version,
			Source:   req.SourceCode,
			Stdin:    req.Stdin,
			Timeout:  timeoutMs,
		})
		return body, "/execute", err
	}
}

func (c *Client) pingPath() string {
	switch c.provider.Adapter {
	case domain.AdapterPiston:
		return "/runtimes"
	case domain.AdapterJudge0:
		return "/about"
	default:
		return "/health"
	}
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.provider.BaseURL, "/") + path
}

func (c *Client) authorize(r *http.Request) {
	r.Header.Set("User-Agent", userAgent)
	if c.provider.APIKey == "" {
		return
	}
	if c.provider.APIHeader == "" {
		r.Header.Set("Authorization", "Bearer "+c.provider.APIKey)
		return
	}
	r.Header.Set(c.provider.APIHeader, c.provider.APIKey)
}

func (c *Client) fail(kind domain.ErrorKind, err error) error {
	return domain.ProviderError(kind, c.provider.ID, err)
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
