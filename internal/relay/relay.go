package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nascraft/internal/logging"
	"nascraft/internal/version"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 16 << 20
)

var (
	ErrURLRequired       = errors.New("url is required")
	ErrUnsupportedScheme = errors.New("only http and https urls can be fetched")
	ErrBodyTooLarge      = errors.New("response body exceeds limit")
)

// Request describes a pass-through fetch. Body is raw bytes.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// Response mirrors the upstream reply. Header names are lowercased and
// repeated values are joined with ", ".
type Response struct {
	Status     int               `json:"status"`
	StatusText string            `json:"status_text"`
	Headers    map[string]string `json:"headers"`
	Body       []byte            `json:"body"`
}

type Options struct {
	HTTPClient   *http.Client
	Timeout      time.Duration
	MaxBodyBytes int64
	Logger       *logging.Logger
}

type Client struct {
	http         *http.Client
	maxBodyBytes int64
	logger       *logging.Logger
}

func NewClient(options Options) *Client {
	client := options.HTTPClient
	if client == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBody := options.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Client{http: client, maxBodyBytes: maxBody, logger: options.Logger}
}

// Fetch performs the request and returns the upstream status, headers and
// body. Non-2xx statuses are returned as responses, not errors.
func (c *Client) Fetch(ctx context.Context, request Request) (Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target, err := parseTarget(request.URL)
	if err != nil {
		return Response{}, err
	}
	method := strings.ToUpper(strings.TrimSpace(request.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(request.Body) > 0 {
		body = bytes.NewReader(request.Body)
	}
	outbound, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return Response{}, fmt.Errorf("build request failed: %w", err)
	}
	for key, value := range request.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		outbound.Header.Set(key, value)
	}
	if outbound.Header.Get("User-Agent") == "" {
		outbound.Header.Set("User-Agent", version.UserAgent())
	}

	started := time.Now()
	upstream, err := c.http.Do(outbound)
	if err != nil {
		c.logWarn("relay request failed", map[string]string{
			"method": method,
			"host":   target.Host,
			"error":  err.Error(),
		})
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer upstream.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(upstream.Body, c.maxBodyBytes+1))
	if err != nil {
		return Response{}, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(payload)) > c.maxBodyBytes {
		return Response{}, ErrBodyTooLarge
	}

	response := Response{
		Status:     upstream.StatusCode,
		StatusText: statusText(upstream),
		Headers:    flattenHeaders(upstream.Header),
		Body:       payload,
	}
	c.logDebug("relay request finished", map[string]string{
		"method":     method,
		"host":       target.Host,
		"status":     fmt.Sprint(response.Status),
		"elapsed_ms": fmt.Sprint(time.Since(started).Milliseconds()),
	})
	return response, nil
}

func parseTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrURLRequired
	}
	target, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	switch strings.ToLower(target.Scheme) {
	case "http", "https":
	default:
		return nil, ErrUnsupportedScheme
	}
	if target.Host == "" {
		return nil, fmt.Errorf("invalid url %q: missing host", raw)
	}
	return target, nil
}

func statusText(response *http.Response) string {
	text := http.StatusText(response.StatusCode)
	if status := strings.TrimSpace(response.Status); status != "" {
		if _, reason, ok := strings.Cut(status, " "); ok && reason != "" {
			text = reason
		}
	}
	return text
}

func flattenHeaders(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for key, values := range header {
		flat[strings.ToLower(key)] = strings.Join(values, ", ")
	}
	return flat
}

func (c *Client) logWarn(message string, fields map[string]string) {
	if c.logger == nil {
		return
	}
	c.logger.Warn(message, fields)
}

func (c *Client) logDebug(message string, fields map[string]string) {
	if c.logger == nil {
		return
	}
	c.logger.Debug(message, fields)
}
