package products

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	sl "github.com/Vicktor007/WisePrice/internal/lib/logger"
	"github.com/Vicktor007/WisePrice/internal/models"
	"github.com/Vicktor007/WisePrice/internal/storage"
)

// ErrNotAmazonURL rejects submissions that do not look like an Amazon
// product link.
var ErrNotAmazonURL = errors.New("not a valid Amazon product URL")

type RedisStorage interface {
	SaveProduct(ctx context.Context, product models.Product) error
	Product(ctx context.Context, productID int64) (models.Product, error)
}

type PostgresStorage interface {
	SaveProduct(ctx context.Context, snap *models.Snapshot) (int64, error)
	ProductByID(ctx context.Context, productID int64) (models.Product, error)
	ProductByURL(ctx context.Context, url string) (models.Product, error)
	AddSubscriber(ctx context.Context, productID int64, email string) error
	RemoveSubscriber(ctx context.Context, url, email string) error
}

type Scraper interface {
	Scrape(ctx context.Context, url string) (*models.Snapshot, error)
}

type Welcomer interface {
	SendWelcome(ctx context.Context, product models.Product, email string) error
}

type TokenParser interface {
	ParseUnsubscribeToken(token string) (url, email string, err error)
}

// ProductOperator orchestrates product submission, lookup and subscription
// management over the scraper, the database and the cache.
type ProductOperator struct {
	log      *slog.Logger
	Redis    RedisStorage
	Postgres PostgresStorage
	Scraper  Scraper
	Notifier Welcomer
	Tokens   TokenParser
}

func New(
	log *slog.Logger,
	pg PostgresStorage,
	r RedisStorage,
	scr Scraper,
	notifier Welcomer,
	tokens TokenParser,
) *ProductOperator {
	return &ProductOperator{
		log:      log,
		Redis:    r,
		Postgres: pg,
		Scraper:  scr,
		Notifier: notifier,
		Tokens:   tokens,
	}
}

// TrackProduct scrapes a submitted URL and stores the first snapshot. When a
// subscriber email is supplied it is registered and greeted. Scrape failures
// propagate so the handler can distinguish gone listings from transient
// trouble.
func (p *ProductOperator) TrackProduct(ctx context.Context, productURL, email string) (int64, error) {
	if !IsValidAmazonURL(productURL) {
		return 0, ErrNotAmazonURL
	}

	snap, err := p.Scraper.Scrape(ctx, productURL)
	if err != nil {
		return 0, err
	}

	productID, err := p.Postgres.SaveProduct(ctx, snap)
	if err != nil {
		return 0, err
	}

	if email != "" {
		if err := p.subscribe(ctx, productID, productURL, email); err != nil {
			// The product itself is tracked; a failed subscription must not
			// undo that.
			p.log.Error("failed to subscribe submitter",
				sl.Err(err),
				slog.String("url", productURL),
			)
		}
	}

	return productID, nil
}

// ProductByID returns a product, preferring the cache and falling back to
// the database.
func (p *ProductOperator) ProductByID(ctx context.Context, productID int64) (models.Product, error) {
	product, err := p.Redis.Product(ctx, productID)
	switch {
	case err == nil:
		return product, nil

	case !errors.Is(err, storage.ErrProductNotFound):
		return models.Product{}, err
	}

	product, err = p.Postgres.ProductByID(ctx, productID)
	if err != nil {
		return models.Product{}, err
	}

	_ = p.Redis.SaveProduct(ctx, product)

	return product, nil
}

// ProductByURL looks a product up by its listing URL. URL lookups always hit
// the database, but the result is cached for subsequent id lookups.
func (p *ProductOperator) ProductByURL(ctx context.Context, productURL string) (models.Product, error) {
	product, err := p.Postgres.ProductByURL(ctx, productURL)
	if err != nil {
		return models.Product{}, err
	}

	_ = p.Redis.SaveProduct(ctx, product)

	return product, nil
}

// Subscribe registers an email for an already tracked product.
func (p *ProductOperator) Subscribe(ctx context.Context, productURL, email string) error {
	product, err := p.Postgres.ProductByURL(ctx, productURL)
	if err != nil {
		return err
	}

	return p.subscribe(ctx, product.ID, productURL, email)
}

func (p *ProductOperator) subscribe(ctx context.Context, productID int64, productURL, email string) error {
	if err := p.Postgres.AddSubscriber(ctx, productID, email); err != nil {
		return err
	}

	product, err := p.Postgres.ProductByID(ctx, productID)
	if err != nil {
		return err
	}

	if err := p.Notifier.SendWelcome(ctx, product, email); err != nil {
		// Subscription is in place; the greeting is best effort.
		p.log.Error("failed to queue welcome email",
			sl.Err(err),
			slog.String("url", productURL),
		)
	}

	return nil
}

// Unsubscribe removes the subscription a signed token was issued for.
func (p *ProductOperator) Unsubscribe(ctx context.Context, token string) error {
	productURL, email, err := p.Tokens.ParseUnsubscribeToken(token)
	if err != nil {
		return err
	}

	return p.Postgres.RemoveSubscriber(ctx, productURL, email)
}

// IsValidAmazonURL loosely gates submissions the way the search form does:
// the hostname must contain "amazon.com", contain "amazon.", or end with
// "amazon". This is a convenience check, not a security boundary.
func IsValidAmazonURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return false
	}

	return strings.Contains(hostname, "amazon.com") ||
		strings.Contains(hostname, "amazon.") ||
		strings.HasSuffix(hostname, "amazon")
}
