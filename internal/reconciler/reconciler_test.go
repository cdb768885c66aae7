package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Vicktor007/WisePrice/internal/config"
	"github.com/Vicktor007/WisePrice/internal/models"
	"github.com/Vicktor007/WisePrice/internal/notifier"
	"github.com/Vicktor007/WisePrice/internal/scraper"
)

type fakeStorage struct {
	mu       sync.Mutex
	products []models.Product
	updates  map[string]*models.Snapshot
	stats    map[string][3]float64
	deleted  []string
	failures map[string]int
}

func newFakeStorage(products ...models.Product) *fakeStorage {
	s := &fakeStorage{
		products: products,
		updates:  make(map[string]*models.Snapshot),
		stats:    make(map[string][3]float64),
		failures: make(map[string]int),
	}
	for _, p := range products {
		s.failures[p.URL] = p.FailureCount
	}
	return s
}

func (s *fakeStorage) AllProducts(context.Context) ([]models.Product, error) {
	return s.products, nil
}

func (s *fakeStorage) UpdateScraped(_ context.Context, productID int64, snap *models.Snapshot, lowest, highest, average float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[snap.URL] = snap
	s.stats[snap.URL] = [3]float64{lowest, highest, average}
	return nil
}

func (s *fakeStorage) DeleteProductByURL(ctx context.Context, url string) error {
	// Like the pool, refuse work on an expired context.
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, url)
	return nil
}

func (s *fakeStorage) IncrementFailureCount(ctx context.Context, url string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[url]++
	return s.failures[url], nil
}

type fakeScraper struct {
	snapshots map[string]*models.Snapshot
	errs      map[string]error
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (*models.Snapshot, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if snap, ok := f.snapshots[url]; ok {
		return snap, nil
	}
	return nil, errors.New("no fixture for " + url)
}

// blockingScraper hangs until the per-item deadline expires, like a stuck
// upstream fetch.
type blockingScraper struct{}

func (blockingScraper) Scrape(ctx context.Context, _ string) (*models.Snapshot, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []notifier.Type
}

func (d *fakeDispatcher) NotifyBestEffort(_ context.Context, _ models.Product, notifType notifier.Type) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, notifType)
}

func testConfig() config.Reconciler {
	return config.Reconciler{
		MaxDuration:       time.Minute,
		ItemTimeout:       time.Second,
		WorkerPoolSize:    2,
		MaxScrapeFailures: 3,
	}
}

func trackedProduct(url string, prices ...float64) models.Product {
	p := models.Product{
		ID:    int64(len(url)),
		URL:   url,
		Title: "Widget",
	}
	for i, price := range prices {
		p.PriceHistory = append(p.PriceHistory, models.PricePoint{
			Price: price,
			Date:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
		})
		p.CurrentPrice = price
	}
	if len(prices) > 0 {
		p.LowestPrice = prices[0]
		p.HighestPrice = prices[0]
	}
	return p
}

func snapshotFor(url string, price float64) *models.Snapshot {
	return &models.Snapshot{
		URL:           url,
		Title:         "Widget",
		Currency:      "$",
		CurrentPrice:  price,
		OriginalPrice: price,
	}
}

func deletedReason(report models.Report, url string) (models.DeletionReason, bool) {
	for _, d := range report.DeletedProducts {
		if d.URL == url {
			return d.Reason, true
		}
	}
	return "", false
}

// One run over three products: A scrapes normally, B is a hard 404, C fails
// transiently at its quarantine threshold.
func TestRunMixedOutcomes(t *testing.T) {
	const (
		urlA = "https://www.amazon.com/dp/A"
		urlB = "https://www.amazon.com/dp/B"
		urlC = "https://www.amazon.com/dp/C"
	)

	productA := trackedProduct(urlA, 55, 52)
	productB := trackedProduct(urlB, 10)
	productC := trackedProduct(urlC, 10)
	productC.FailureCount = 2

	storage := newFakeStorage(productA, productB, productC)
	scr := &fakeScraper{
		snapshots: map[string]*models.Snapshot{urlA: snapshotFor(urlA, 48)},
		errs: map[string]error{
			urlB: &scraper.GoneError{Reason: models.ReasonNotFound},
			urlC: errors.New("tls handshake timeout"),
		},
	}
	dispatcher := &fakeDispatcher{}

	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)), storage, scr, dispatcher, nil, testConfig())

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.UpdatedProducts) != 1 {
		t.Fatalf("updated = %d; want 1", len(report.UpdatedProducts))
	}
	if len(report.DeletedProducts) != 2 {
		t.Fatalf("deleted = %d; want 2", len(report.DeletedProducts))
	}

	if reason, ok := deletedReason(report, urlB); !ok || reason != models.ReasonNotFound {
		t.Errorf("product B reason = %v, %v; want NOT_FOUND", reason, ok)
	}
	if reason, ok := deletedReason(report, urlC); !ok || reason != models.ReasonUnknownError {
		t.Errorf("product C reason = %v, %v; want UNKNOWN_ERROR", reason, ok)
	}

	updated := report.UpdatedProducts[0]
	if updated.URL != urlA {
		t.Fatalf("updated URL = %s", updated.URL)
	}

	// History [$55, $52] re-scraped at $48: prior entries intact, stats over
	// the merged sequence.
	prices := make([]float64, 0, len(updated.PriceHistory))
	for _, point := range updated.PriceHistory {
		prices = append(prices, point.Price)
	}
	if len(prices) != 3 || prices[0] != 55 || prices[1] != 52 || prices[2] != 48 {
		t.Errorf("history = %v; want [55 52 48]", prices)
	}
	if updated.LowestPrice != 48 {
		t.Errorf("lowest = %v; want 48", updated.LowestPrice)
	}
	if updated.HighestPrice != 55 {
		t.Errorf("highest = %v; want 55", updated.HighestPrice)
	}
	if want := (55.0 + 52.0 + 48.0) / 3.0; updated.AveragePrice != want {
		t.Errorf("average = %v; want %v", updated.AveragePrice, want)
	}

	if stats := storage.stats[urlA]; stats != [3]float64{48, 55, (55.0 + 52.0 + 48.0) / 3.0} {
		t.Errorf("persisted stats = %v", stats)
	}
}

func TestRunQuarantineBelowThreshold(t *testing.T) {
	const url = "https://www.amazon.com/dp/Q"

	storage := newFakeStorage(trackedProduct(url, 10))
	scr := &fakeScraper{errs: map[string]error{url: errors.New("connection reset")}}

	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)), storage, scr, &fakeDispatcher{}, nil, testConfig())

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.DeletedProducts) != 0 {
		t.Errorf("deleted = %v; a first transient failure must not delete", report.DeletedProducts)
	}
	if len(storage.deleted) != 0 {
		t.Errorf("storage deletions = %v; want none", storage.deleted)
	}
	if storage.failures[url] != 1 {
		t.Errorf("failure count = %d; want 1", storage.failures[url])
	}
}

// A scrape that burns its whole item budget must still be bookkept: the
// failure counter advances, and a product at the threshold is deleted.
func TestRunTimedOutScrapeStillQuarantined(t *testing.T) {
	const (
		urlFresh       = "https://www.amazon.com/dp/T1"
		urlAtThreshold = "https://www.amazon.com/dp/T2"
	)

	fresh := trackedProduct(urlFresh, 10)
	atThreshold := trackedProduct(urlAtThreshold, 10)
	atThreshold.FailureCount = 2

	storage := newFakeStorage(fresh, atThreshold)

	cfg := testConfig()
	cfg.ItemTimeout = 20 * time.Millisecond

	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)), storage, blockingScraper{}, &fakeDispatcher{}, nil, cfg)

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if storage.failures[urlFresh] != 1 {
		t.Errorf("failure count = %d; want 1 after a timed-out scrape", storage.failures[urlFresh])
	}
	if _, ok := deletedReason(report, urlFresh); ok {
		t.Errorf("product below the threshold was deleted")
	}

	if reason, ok := deletedReason(report, urlAtThreshold); !ok || reason != models.ReasonUnknownError {
		t.Errorf("product at threshold: reason = %v, %v; want UNKNOWN_ERROR deletion", reason, ok)
	}
}

func TestRunNotifiesOnlySubscribedProducts(t *testing.T) {
	const (
		urlSubscribed = "https://www.amazon.com/dp/S"
		urlLonely     = "https://www.amazon.com/dp/L"
	)

	subscribed := trackedProduct(urlSubscribed, 55, 52)
	subscribed.Users = []models.Subscriber{{Email: "a@example.com"}}
	lonely := trackedProduct(urlLonely, 55, 52)

	storage := newFakeStorage(subscribed, lonely)
	scr := &fakeScraper{snapshots: map[string]*models.Snapshot{
		urlSubscribed: snapshotFor(urlSubscribed, 48), // lowest ever
		urlLonely:     snapshotFor(urlLonely, 48),     // lowest ever, but nobody to tell
	}}
	dispatcher := &fakeDispatcher{}

	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)), storage, scr, dispatcher, nil, testConfig())

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(dispatcher.calls) != 1 || dispatcher.calls[0] != notifier.TypeLowestPrice {
		t.Errorf("dispatch calls = %v; want exactly one LOWEST_PRICE", dispatcher.calls)
	}
}

func TestRunNoNotificationWithoutNotableChange(t *testing.T) {
	const url = "https://www.amazon.com/dp/N"

	p := trackedProduct(url, 55, 52)
	p.Users = []models.Subscriber{{Email: "a@example.com"}}

	storage := newFakeStorage(p)
	scr := &fakeScraper{snapshots: map[string]*models.Snapshot{url: snapshotFor(url, 53)}}
	dispatcher := &fakeDispatcher{}

	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)), storage, scr, dispatcher, nil, testConfig())

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(dispatcher.calls) != 0 {
		t.Errorf("dispatch calls = %v; want none", dispatcher.calls)
	}
}
