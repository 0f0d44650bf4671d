package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nascraft/internal/version"
)

func TestFetchRelaysRequestAndResponse(t *testing.T) {
	var gotMethod, gotAgent, gotCustom, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAgent = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Device")
		payload, _ := io.ReadAll(r.Body)
		gotBody = string(payload)
		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "stored")
	}))
	t.Cleanup(server.Close)

	client := NewClient(Options{HTTPClient: server.Client()})
	response, err := client.Fetch(context.Background(), Request{
		Method:  "post",
		URL:     server.URL + "/upload",
		Headers: map[string]string{"X-Device": "phone"},
		Body:    []byte("hello"),
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotMethod != http.MethodPost || gotBody != "hello" || gotCustom != "phone" {
		t.Fatalf("unexpected upstream request %s %q %q", gotMethod, gotBody, gotCustom)
	}
	if gotAgent != version.UserAgent() {
		t.Fatalf("expected default user agent, got %q", gotAgent)
	}
	if response.Status != http.StatusCreated || response.StatusText != "Created" {
		t.Fatalf("unexpected status %d %q", response.Status, response.StatusText)
	}
	if response.Headers["x-multi"] != "a, b" || response.Headers["content-type"] != "text/plain" {
		t.Fatalf("unexpected headers %v", response.Headers)
	}
	if string(response.Body) != "stored" {
		t.Fatalf("unexpected body %q", response.Body)
	}
}

func TestFetchReturnsErrorStatusesAsResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	response, err := NewClient(Options{HTTPClient: server.Client()}).Fetch(context.Background(), Request{URL: server.URL})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if response.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", response.Status)
	}
	if !strings.Contains(string(response.Body), "missing") {
		t.Fatalf("unexpected body %q", response.Body)
	}
}

func TestFetchValidatesURL(t *testing.T) {
	client := NewClient(Options{})
	if _, err := client.Fetch(context.Background(), Request{}); !errors.Is(err, ErrURLRequired) {
		t.Fatalf("expected ErrURLRequired, got %v", err)
	}
	if _, err := client.Fetch(context.Background(), Request{URL: "file:///etc/passwd"}); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
	if _, err := client.Fetch(context.Background(), Request{URL: "http://"}); err == nil {
		t.Fatalf("expected missing host to fail")
	}
}

func TestFetchLimitsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	t.Cleanup(server.Close)

	client := NewClient(Options{HTTPClient: server.Client(), MaxBodyBytes: 16})
	if _, err := client.Fetch(context.Background(), Request{URL: server.URL}); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestFetchUnreachableHost(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	address := server.URL
	server.Close()

	if _, err := NewClient(Options{}).Fetch(context.Background(), Request{URL: address}); err == nil {
		t.Fatalf("expected connection failure")
	}
}
