package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Vicktor007/WisePrice/internal/config"
	"github.com/Vicktor007/WisePrice/internal/lib/history"
	sl "github.com/Vicktor007/WisePrice/internal/lib/logger"
	"github.com/Vicktor007/WisePrice/internal/models"
	"github.com/Vicktor007/WisePrice/internal/notifier"
	"github.com/Vicktor007/WisePrice/internal/scraper"
)

type Scraper interface {
	Scrape(ctx context.Context, url string) (*models.Snapshot, error)
}

type Storage interface {
	AllProducts(ctx context.Context) ([]models.Product, error)
	UpdateScraped(ctx context.Context, productID int64, snap *models.Snapshot, lowest, highest, average float64) error
	DeleteProductByURL(ctx context.Context, url string) error
	IncrementFailureCount(ctx context.Context, url string) (int, error)
}

type Dispatcher interface {
	NotifyBestEffort(ctx context.Context, product models.Product, notifType notifier.Type)
}

type Cache interface {
	Invalidate(ctx context.Context, productID int64) error
}

// Reconciler re-scrapes every tracked product, merges the observation into
// the stored history, deletes listings that are definitively gone and
// dispatches notifications for notable changes. Items are processed by a
// bounded worker pool; each item is persisted as soon as it completes, so a
// run cut short by its deadline loses only the items not yet processed.
type Reconciler struct {
	log      *slog.Logger
	storage  Storage
	scraper  Scraper
	notifier Dispatcher
	cache    Cache
	cfg      config.Reconciler
}

func New(
	log *slog.Logger,
	storage Storage,
	scr Scraper,
	dispatcher Dispatcher,
	cache Cache,
	cfg config.Reconciler,
) *Reconciler {
	return &Reconciler{
		log:      log,
		storage:  storage,
		scraper:  scr,
		notifier: dispatcher,
		cache:    cache,
		cfg:      cfg,
	}
}

type outcome struct {
	updated *models.Product
	deleted *models.DeletedProduct
}

// bookkeepTimeout bounds the quarantine/deletion writes that follow a failed
// scrape. They run on their own context: when the failure was the item
// deadline itself, the item context is already expired.
const bookkeepTimeout = 5 * time.Second

// Run performs one full reconciliation pass and returns the aggregate report.
// Individual item failures are isolated and logged; only failing to load the
// worklist fails the run itself.
func (r *Reconciler) Run(ctx context.Context) (models.Report, error) {
	const op = "reconciler.Run"

	ctx, cancel := context.WithTimeout(ctx, r.cfg.MaxDuration)
	defer cancel()

	products, err := r.storage.AllProducts(ctx)
	if err != nil {
		return models.Report{}, fmt.Errorf("%s: %w", op, err)
	}

	r.log.Info("reconciliation run started", slog.Int("products", len(products)))

	report := models.Report{
		UpdatedProducts: []models.Product{},
		DeletedProducts: []models.DeletedProduct{},
	}

	jobs := make(chan models.Product)

	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := r.cfg.WorkerPoolSize
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for product := range jobs {
				out := r.processProduct(ctx, product)

				mu.Lock()
				if out.updated != nil {
					report.UpdatedProducts = append(report.UpdatedProducts, *out.updated)
				}
				if out.deleted != nil {
					report.DeletedProducts = append(report.DeletedProducts, *out.deleted)
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, product := range products {
		select {
		case <-ctx.Done():
			r.log.Warn("run deadline reached, remaining products deferred to next run")
			break feed
		case jobs <- product:
		}
	}
	close(jobs)

	wg.Wait()

	r.log.Info("reconciliation run finished",
		slog.Int("updated", len(report.UpdatedProducts)),
		slog.Int("deleted", len(report.DeletedProducts)),
	)

	return report, nil
}

// processProduct handles one tracked product within its own timeout and
// failure boundary; a panic or error here never escapes to the run.
func (r *Reconciler) processProduct(ctx context.Context, current models.Product) (out outcome) {
	const op = "reconciler.processProduct"

	log := r.log.With(slog.String("op", op), slog.String("url", current.URL))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic while processing product", slog.Any("panic", rec))
			out = outcome{}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ItemTimeout)
	defer cancel()

	snap, err := r.scraper.Scrape(ctx, current.URL)
	if err != nil {
		// A hung fetch burns the whole item budget, so the failure
		// bookkeeping must not inherit the expired deadline.
		bctx, bcancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepTimeout)
		defer bcancel()

		if reason, ok := scraper.AsGone(err); ok {
			return r.deleteProduct(bctx, current, reason)
		}
		return r.quarantine(bctx, current, err)
	}

	merged := append(current.PriceHistory, models.PricePoint{
		Price: snap.CurrentPrice,
		Date:  time.Now(),
	})

	lowest := history.Lowest(merged)
	highest := history.Highest(merged)
	average := history.Average(merged)

	if err := r.storage.UpdateScraped(ctx, current.ID, snap, lowest, highest, average); err != nil {
		log.Error("failed to persist update", sl.Err(err))
		return outcome{}
	}

	r.invalidate(ctx, current.ID)

	updated := mergeProduct(current, snap, merged, lowest, highest, average)

	if notifType, ok := notifier.Classify(current, snap); ok && len(updated.Users) > 0 {
		r.notifier.NotifyBestEffort(ctx, updated, notifType)
	}

	return outcome{updated: &updated}
}

// deleteProduct terminates a listing's lifecycle after a definitive 404 or
// soft-404. No notification is sent for removals.
func (r *Reconciler) deleteProduct(ctx context.Context, current models.Product, reason models.DeletionReason) outcome {
	if err := r.storage.DeleteProductByURL(ctx, current.URL); err != nil {
		r.log.Error("failed to delete product",
			sl.Err(err),
			slog.String("url", current.URL),
			slog.String("reason", string(reason)),
		)
		return outcome{}
	}

	r.invalidate(ctx, current.ID)

	r.log.Info("product deleted",
		slog.String("url", current.URL),
		slog.String("reason", string(reason)),
	)

	return outcome{deleted: &models.DeletedProduct{URL: current.URL, Reason: reason}}
}

// quarantine records a transient scrape failure. A product is deleted only
// after reaching the consecutive-failure threshold, so a single flaky fetch
// or parse never kills a tracked listing.
func (r *Reconciler) quarantine(ctx context.Context, current models.Product, cause error) outcome {
	count, err := r.storage.IncrementFailureCount(ctx, current.URL)
	if err != nil {
		r.log.Error("failed to record scrape failure", sl.Err(err), slog.String("url", current.URL))
		return outcome{}
	}

	if count >= r.cfg.MaxScrapeFailures {
		return r.deleteProduct(ctx, current, models.ReasonUnknownError)
	}

	r.log.Warn("scrape failed, product quarantined",
		sl.Err(cause),
		slog.String("url", current.URL),
		slog.Int("failure_count", count),
		slog.Int("max_failures", r.cfg.MaxScrapeFailures),
	)

	return outcome{}
}

func (r *Reconciler) invalidate(ctx context.Context, productID int64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, productID); err != nil {
		r.log.Warn("cache invalidation failed", sl.Err(err), slog.Int64("product_id", productID))
	}
}

// mergeProduct combines the stored record with a fresh snapshot and the
// recomputed stats into the updated product the report carries.
func mergeProduct(
	current models.Product,
	snap *models.Snapshot,
	merged []models.PricePoint,
	lowest, highest, average float64,
) models.Product {
	updated := current

	updated.Title = snap.Title
	updated.Currency = snap.Currency
	updated.Image = snap.Image
	updated.Description = snap.Description
	updated.CurrentPrice = snap.CurrentPrice
	updated.OriginalPrice = snap.OriginalPrice
	updated.DiscountRate = snap.DiscountRate
	updated.IsOutOfStock = snap.IsOutOfStock
	updated.PriceHistory = merged
	updated.LowestPrice = lowest
	updated.HighestPrice = highest
	updated.AveragePrice = average
	updated.FailureCount = 0
	updated.UpdatedAt = time.Now()

	return updated
}
