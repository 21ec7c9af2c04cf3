package catalog

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const halleyJSON = `[{"object":"1P/Halley","object_name":"1P/Halley","e":"0.9671","i_deg":"162.26","w_deg":"111.33","node_deg":"58.42","q_au_1":"0.586","q_au_2":"35.08","p_yr":"75.32","tp_tdb":"2446470.5","moid_au":"0.0638"}]`

const enckeJSON = `[{"object":"2P/Encke","object_name":"2P/Encke","e":"0.8483","i_deg":"11.78","w_deg":"186.54","node_deg":"334.57","q_au_1":"0.336","q_au_2":"4.09","p_yr":"3.30","tp_tdb":"2456618.2","moid_au":"0.1735"}]`

// TestFetcherBodyLimit verifies that responses exceeding the 50 MB limit
// return an error instead of consuming unbounded memory.
func TestFetcherBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		chunk := strings.Repeat("A", 1024*1024)
		for i := 0; i < 52; i++ {
			if _, err := w.Write([]byte(chunk)); err != nil {
				return // Client closed connection.
			}
		}
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL, testLogger)
	_, err := fetcher.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for oversized response, got nil")
	}
	if !strings.Contains(err.Error(), "byte limit") {
		t.Errorf("expected body limit error, got: %v", err)
	}
}

// TestFetcherSuccess verifies a single source is returned verbatim.
func TestFetcherSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(halleyJSON))
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL, testLogger)
	data, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != halleyJSON {
		t.Errorf("body mismatch: got %d bytes, want %d", len(data), len(halleyJSON))
	}
}

// TestFetcherHTTPError verifies error handling for non-200 responses.
func TestFetcherHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL, testLogger)
	_, err := fetcher.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
}

// TestFetcherExtraURLs verifies that extra URLs are fetched and merged into one array.
func TestFetcherExtraURLs(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(halleyJSON))
	}))
	defer primary.Close()

	extra := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(enckeJSON))
	}))
	defer extra.Close()

	fetcher := NewFetcher(primary.URL, testLogger, extra.URL)
	data, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bodies, err := ParseNEO(bytes.NewReader(data), 0, testLogger)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(bodies) != 2 {
		t.Fatalf("expected 2 bodies, got %d", len(bodies))
	}

	names := map[string]bool{}
	for _, b := range bodies {
		names[b.Name] = true
	}
	if !names["1p-halley"] {
		t.Error("missing 1P/Halley")
	}
	if !names["2p-encke"] {
		t.Error("missing 2P/Encke")
	}
}

// TestFetcherExtraURLFailure verifies that a failing extra URL doesn't break the primary fetch.
func TestFetcherExtraURLFailure(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(halleyJSON))
	}))
	defer primary.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance</html>"))
	}))
	defer garbage.Close()

	fetcher := NewFetcher(primary.URL, testLogger, failing.URL, garbage.URL)
	data, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("primary fetch should succeed even when extras fail: %v", err)
	}

	bodies, err := ParseNEO(bytes.NewReader(data), 0, testLogger)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(bodies) != 1 {
		t.Fatalf("expected 1 body (primary only), got %d", len(bodies))
	}
	if bodies[0].Name != "1p-halley" {
		t.Errorf("expected 1p-halley, got %s", bodies[0].Name)
	}
}

func TestFetcherDefaultURL(t *testing.T) {
	if got := NewFetcher("", testLogger).SourceURL(); got != DefaultSourceURL {
		t.Errorf("SourceURL() = %q, want %q", got, DefaultSourceURL)
	}
	u, err := url.Parse(DefaultSourceURL)
	if err != nil {
		t.Fatalf("parsing DefaultSourceURL: %v", err)
	}
	if got := u.Query().Get("$limit"); got != "50" {
		t.Errorf("$limit = %q, want 50", got)
	}
}
