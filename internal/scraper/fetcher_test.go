package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Vicktor007/WisePrice/internal/config"
	"github.com/Vicktor007/WisePrice/internal/models"
)

func newTestFetcher() *Fetcher {
	// Empty username disables the proxy so the test server is hit directly.
	return NewFetcher(config.Proxy{}, 5*time.Second)
}

func TestFetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if string(body) != "<html>ok</html>" {
		t.Errorf("body = %q", body)
	}
}

func TestFetch404IsGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL)

	reason, ok := AsGone(err)
	if !ok {
		t.Fatalf("expected GoneError, got %v", err)
	}
	if reason != models.ReasonNotFound {
		t.Errorf("reason = %s; want %s", reason, models.ReasonNotFound)
	}
}

func TestFetchServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for status 500")
	}
	if _, ok := AsGone(err); ok {
		t.Error("status 500 must not classify the listing as gone")
	}
}

func TestProxyURLSessionRotation(t *testing.T) {
	cfg := config.Proxy{
		Host:     "brd.superproxy.io",
		Port:     33335,
		Username: "brd-customer-x",
		Password: "secret",
	}

	u := proxyURL(cfg, 421337)

	if u.Host != "brd.superproxy.io:33335" {
		t.Errorf("host = %q", u.Host)
	}
	if got := u.User.Username(); got != "brd-customer-x-session-421337" {
		t.Errorf("username = %q; want session suffix", got)
	}
	if pw, _ := u.User.Password(); pw != "secret" {
		t.Errorf("password not carried through")
	}

	// Distinct sessions produce distinct proxy identities.
	if other := proxyURL(cfg, 7); other.User.Username() == u.User.Username() {
		t.Error("expected different usernames for different sessions")
	}
	if !strings.HasPrefix(u.User.Username(), cfg.Username+"-session-") {
		t.Errorf("username %q missing session prefix", u.User.Username())
	}
}
