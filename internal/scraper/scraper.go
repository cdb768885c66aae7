package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/Vicktor007/WisePrice/internal/models"
)

// ErrNoPrice is returned when neither the current nor the original price
// location yields a parseable value. The snapshot is rejected rather than
// persisted with a non-numeric price.
var ErrNoPrice = errors.New("no parseable price found")

// GoneError marks a scrape that definitively determined the listing no
// longer exists, either via HTTP 404 or a soft-404 heuristic. Any other
// scrape failure is transient.
type GoneError struct {
	Reason models.DeletionReason
}

func (e *GoneError) Error() string {
	return fmt.Sprintf("listing gone: %s", e.Reason)
}

// AsGone reports whether err classifies the listing as permanently gone and,
// if so, returns the deletion reason.
func AsGone(err error) (models.DeletionReason, bool) {
	var gone *GoneError
	if errors.As(err, &gone) {
		return gone.Reason, true
	}
	return "", false
}

type Scraper struct {
	fetcher *Fetcher
}

func New(fetcher *Fetcher) *Scraper {
	return &Scraper{fetcher: fetcher}
}

// Scrape fetches the product page and extracts a snapshot from it.
func (s *Scraper) Scrape(ctx context.Context, url string) (*models.Snapshot, error) {
	const op = "scraper.Scrape"

	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		if _, ok := AsGone(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return Extract(url, page)
}
