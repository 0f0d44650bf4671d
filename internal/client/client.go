// Package client talks to a running nascraftd over its loopback API.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nascraft/internal/discovery"
	"nascraft/internal/version"
)

type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

type Status struct {
	App               string    `json:"app"`
	Version           string    `json:"version"`
	ServerTime        time.Time `json:"server_time"`
	StartedAt         time.Time `json:"started_at"`
	DiscoveryStrategy string    `json:"discovery_strategy"`
	WatchedDirs       int       `json:"watched_dirs"`
	LogFilePath       string    `json:"log_file_path"`
	Capabilities      struct {
		OS        string `json:"os"`
		FileWatch bool   `json:"file_watch"`
		Multicast bool   `json:"multicast"`
	} `json:"capabilities"`
}

type LogInfo struct {
	LogFilePath string `json:"log_file_path"`
	MaxBytes    int64  `json:"max_bytes"`
}

type DiscoverOptions struct {
	Timeout        time.Duration
	BroadcastAddrs []string
}

// Client holds the server address and credentials. The zero HTTP client
// falls back to http.DefaultClient.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Token   string
}

func New(httpClient *http.Client, baseURL, token string) *Client {
	return &Client{HTTP: httpClient, BaseURL: baseURL, Token: token}
}

func (c *Client) Status() (Status, error) {
	var status Status
	err := c.doJSON(http.MethodGet, "/api/status", nil, &status, http.StatusOK)
	return status, err
}

func (c *Client) Discover(options DiscoverOptions) ([]discovery.Server, error) {
	payload := struct {
		TimeoutMS      int64    `json:"timeout_ms,omitempty"`
		BroadcastAddrs []string `json:"broadcast_addrs,omitempty"`
	}{
		TimeoutMS:      options.Timeout.Milliseconds(),
		BroadcastAddrs: options.BroadcastAddrs,
	}
	servers := []discovery.Server{}
	err := c.doJSON(http.MethodPost, "/api/discovery", payload, &servers, http.StatusOK)
	return servers, err
}

func (c *Client) Browse(serviceType string, timeout time.Duration) ([]discovery.Server, error) {
	query := url.Values{}
	if serviceType = strings.TrimSpace(serviceType); serviceType != "" {
		query.Set("service", serviceType)
	}
	if timeout > 0 {
		query.Set("timeout_ms", strconv.FormatInt(timeout.Milliseconds(), 10))
	}
	path := "/api/discovery/mdns"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	servers := []discovery.Server{}
	err := c.doJSON(http.MethodGet, path, nil, &servers, http.StatusOK)
	return servers, err
}

func (c *Client) WatchDirs() ([]string, error) {
	var payload struct {
		Dirs []string `json:"dirs"`
	}
	if err := c.doJSON(http.MethodGet, "/api/watch-dirs", nil, &payload, http.StatusOK); err != nil {
		return nil, err
	}
	return payload.Dirs, nil
}

func (c *Client) SetWatchDirs(dirs []string) error {
	if dirs == nil {
		dirs = []string{}
	}
	payload := map[string][]string{"dirs": dirs}
	return c.doJSON(http.MethodPut, "/api/watch-dirs", payload, nil, http.StatusNoContent)
}

func (c *Client) LogInfo() (LogInfo, error) {
	var info LogInfo
	err := c.doJSON(http.MethodGet, "/api/logs/info", nil, &info, http.StatusOK)
	return info, err
}

// ReadLog returns up to maxBytes from the end of the log file. Zero uses the
// server default.
func (c *Client) ReadLog(maxBytes int64) (string, error) {
	path := "/api/logs"
	if maxBytes > 0 {
		path += "?max_bytes=" + strconv.FormatInt(maxBytes, 10)
	}
	response, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return "", readHTTPError(response)
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("read log response: %w", err)
	}
	return string(body), nil
}

func (c *Client) WebLog(level, message string) error {
	payload := map[string]string{"level": level, "message": message}
	return c.doJSON(http.MethodPost, "/api/logs/web", payload, nil, http.StatusNoContent)
}

func (c *Client) doJSON(method, path string, payload any, out any, expected int) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	response, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expected {
		return readHTTPError(response)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(method, path string, body io.Reader) (*http.Response, error) {
	if c == nil {
		return nil, errors.New("client is nil")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}

	request, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("User-Agent", version.UserAgent())
	addToken(request, c.Token)

	response, err := ensureClient(c.HTTP).Do(request)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return response, nil
}

func ensureClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return http.DefaultClient
}

func addToken(request *http.Request, token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	request.Header.Set("Authorization", "Bearer "+token)
}

func readHTTPError(response *http.Response) *HTTPError {
	httpErr := &HTTPError{StatusCode: response.StatusCode, Message: response.Status}
	body, _ := io.ReadAll(io.LimitReader(response.Body, 64<<10))
	text := strings.TrimSpace(string(body))
	if text == "" {
		return httpErr
	}
	httpErr.Message = text
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if strings.TrimSpace(payload.Error) != "" {
			httpErr.Message = payload.Error
		}
		httpErr.Code = payload.Code
	}
	return httpErr
}
