package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultSourceURL is the NASA open data catalog of near-Earth comet orbital
// elements, capped server-side at 50 records.
const DefaultSourceURL = "https://data.nasa.gov/resource/b67r-rgxc.json?$limit=50"

// maxBodyBytes caps a single response so a misbehaving source cannot exhaust memory.
const maxBodyBytes = 50 << 20

// Fetcher retrieves raw NEO records (a JSON array) from a primary source and
// any number of extra sources.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URL. Failures fetching an
// extra URL are logged and do not fail the fetch.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured primary source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch downloads the primary source and every extra source and returns their
// records merged into a single JSON array.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	primary, err := f.get(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}
	if len(f.extraURLs) == 0 {
		return primary, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(primary, &records); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.sourceURL, err)
	}

	for _, u := range f.extraURLs {
		data, err := f.get(ctx, u)
		if err != nil {
			f.logger.Warn("extra NEO source fetch failed", "url", u, "error", err)
			continue
		}
		var extra []json.RawMessage
		if err := json.Unmarshal(data, &extra); err != nil {
			f.logger.Warn("extra NEO source is not a JSON array", "url", u, "error", err)
			continue
		}
		records = append(records, extra...)
	}

	merged, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encoding merged records: %w", err)
	}
	return merged, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching NEO data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}

	return body, nil
}
