package scraper

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/Vicktor007/WisePrice/internal/config"
	"github.com/Vicktor007/WisePrice/internal/models"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	maxBodySize = 10 << 20 // product pages over 10 MB are not worth parsing
)

// Fetcher issues HTTP GETs for product pages through a credentialed forward
// proxy. Every request gets a freshly randomized session id appended to the
// proxy username, so consecutive fetches look like independent clients
// upstream. Transport errors are not retried here; they propagate as
// transient failures.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(cfg config.Proxy, timeout time.Duration) *Fetcher {
	transport := &http.Transport{
		// The proxy presents its own certificate; verification is disabled
		// the same way the upstream session-rotation setup requires.
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	if cfg.Username != "" {
		transport.Proxy = func(*http.Request) (*url.URL, error) {
			return proxyURL(cfg, rand.Intn(1_000_000)), nil
		}
	}

	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Fetch returns the raw page markup. An HTTP 404 classifies the listing as
// gone; any other failure is transient.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	const op = "scraper.Fetcher.Fetch"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &GoneError{Reason: models.ReasonNotFound}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}

	return body, nil
}

// proxyURL builds the per-request proxy address with a rotated session id.
func proxyURL(cfg config.Proxy, session int) *url.URL {
	return &url.URL{
		Scheme: "http",
		User:   url.UserPassword(fmt.Sprintf("%s-session-%d", cfg.Username, session), cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
}
