package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Vicktor007/WisePrice/internal/config"
	"github.com/Vicktor007/WisePrice/internal/models"
	"github.com/Vicktor007/WisePrice/internal/storage"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%s: ping failed: %w", op, err)
	}

	repo := &PostgresRepo{pool: pool}

	if err := repo.bootstrap(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return repo, nil
}

// bootstrap creates the schema when it does not exist yet.
func (r *PostgresRepo) bootstrap(ctx context.Context) error {
	const op = "storage.postgres.bootstrap"

	const schema = `
		CREATE TABLE IF NOT EXISTS products (
			id              BIGSERIAL PRIMARY KEY,
			url             TEXT NOT NULL UNIQUE,
			title           TEXT NOT NULL,
			currency        TEXT NOT NULL DEFAULT '$',
			image           TEXT NOT NULL DEFAULT '',
			description     TEXT NOT NULL DEFAULT '',
			current_price   DOUBLE PRECISION NOT NULL CHECK (current_price >= 0),
			original_price  DOUBLE PRECISION NOT NULL CHECK (original_price >= 0),
			discount_rate   INT NOT NULL DEFAULT 0,
			category        TEXT NOT NULL DEFAULT 'category',
			reviews_count   INT NOT NULL DEFAULT 0,
			stars           DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_out_of_stock BOOLEAN NOT NULL DEFAULT FALSE,
			lowest_price    DOUBLE PRECISION NOT NULL,
			highest_price   DOUBLE PRECISION NOT NULL,
			average_price   DOUBLE PRECISION NOT NULL,
			failure_count   INT NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS price_history (
			id          BIGSERIAL PRIMARY KEY,
			product_id  BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			price       DOUBLE PRECISION NOT NULL CHECK (price >= 0),
			observed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_price_history_product
			ON price_history (product_id, observed_at);

		CREATE TABLE IF NOT EXISTS subscribers (
			id         BIGSERIAL PRIMARY KEY,
			product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			email      TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (product_id, email)
		);
	`

	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SaveProduct upserts a freshly scraped snapshot keyed by URL and appends the
// observed price to the history. On first save the derived stats all equal
// the current price.
func (r *PostgresRepo) SaveProduct(ctx context.Context, snap *models.Snapshot) (int64, error) {
	const op = "storage.postgres.SaveProduct"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			fmt.Printf("failed to rollback transaction: %v\n", err)
		}
	}()

	const query = `
		INSERT INTO products (
			url, title, currency, image, description,
			current_price, original_price, discount_rate,
			category, reviews_count, stars, is_out_of_stock,
			lowest_price, highest_price, average_price
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $6, $6, $6)
		ON CONFLICT (url) DO UPDATE SET
			title           = EXCLUDED.title,
			currency        = EXCLUDED.currency,
			image           = EXCLUDED.image,
			description     = EXCLUDED.description,
			current_price   = EXCLUDED.current_price,
			original_price  = EXCLUDED.original_price,
			discount_rate   = EXCLUDED.discount_rate,
			is_out_of_stock = EXCLUDED.is_out_of_stock,
			failure_count   = 0,
			updated_at      = now()
		RETURNING id
	`

	var id int64

	err = tx.QueryRow(ctx, query,
		snap.URL, snap.Title, snap.Currency, snap.Image, snap.Description,
		snap.CurrentPrice, snap.OriginalPrice, snap.DiscountRate,
		snap.Category, snap.ReviewsCount, snap.Stars, snap.IsOutOfStock,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to save product: %w", op, err)
	}

	const historyQuery = `INSERT INTO price_history (product_id, price) VALUES ($1, $2)`

	if _, err := tx.Exec(ctx, historyQuery, id, snap.CurrentPrice); err != nil {
		return 0, fmt.Errorf("%s: failed to append price history: %w", op, err)
	}

	const statsQuery = `
		UPDATE products SET
			lowest_price  = h.lowest,
			highest_price = h.highest,
			average_price = h.average
		FROM (
			SELECT MIN(price) AS lowest, MAX(price) AS highest, AVG(price) AS average
			FROM price_history WHERE product_id = $1
		) h
		WHERE id = $1
	`

	if _, err := tx.Exec(ctx, statsQuery, id); err != nil {
		return 0, fmt.Errorf("%s: failed to recompute stats: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", op, err)
	}

	return id, nil
}

const productColumns = `
	id, url, title, currency, image, description,
	current_price, original_price, discount_rate,
	category, reviews_count, stars, is_out_of_stock,
	lowest_price, highest_price, average_price,
	failure_count, created_at, updated_at
`

func scanProduct(row pgx.Row) (models.Product, error) {
	var p models.Product

	err := row.Scan(
		&p.ID, &p.URL, &p.Title, &p.Currency, &p.Image, &p.Description,
		&p.CurrentPrice, &p.OriginalPrice, &p.DiscountRate,
		&p.Category, &p.ReviewsCount, &p.Stars, &p.IsOutOfStock,
		&p.LowestPrice, &p.HighestPrice, &p.AveragePrice,
		&p.FailureCount, &p.CreatedAt, &p.UpdatedAt,
	)

	return p, err
}

// Products returns one page of tracked products for listing, without history
// or subscribers.
func (r *PostgresRepo) Products(ctx context.Context, limit, offset int64) ([]models.Product, int64, error) {
	const op = "storage.postgres.Products"

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			fmt.Printf("failed to rollback transaction: %v\n", err)
		}
	}()

	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := tx.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: query: %w", op, err)
	}

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("%s: scan: %w", op, err)
		}
		products = append(products, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: rows: %w", op, err)
	}

	var total int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("%s: commit: %w", op, err)
	}

	return products, total, nil
}

// AllProducts returns every tracked product with its full price history and
// subscriber set, as the reconciliation job consumes them.
func (r *PostgresRepo) AllProducts(ctx context.Context) ([]models.Product, error) {
	const op = "storage.postgres.AllProducts"

	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: query products: %w", op, err)
	}

	var products []models.Product
	index := make(map[int64]int)

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("%s: scan product: %w", op, err)
		}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	historyRows, err := r.pool.Query(ctx,
		`SELECT product_id, price, observed_at FROM price_history ORDER BY product_id, observed_at, id`)
	if err != nil {
		return nil, fmt.Errorf("%s: query history: %w", op, err)
	}

	for historyRows.Next() {
		var productID int64
		var point models.PricePoint

		if err := historyRows.Scan(&productID, &point.Price, &point.Date); err != nil {
			historyRows.Close()
			return nil, fmt.Errorf("%s: scan history: %w", op, err)
		}

		if i, ok := index[productID]; ok {
			products[i].PriceHistory = append(products[i].PriceHistory, point)
		}
	}
	historyRows.Close()
	if err := historyRows.Err(); err != nil {
		return nil, fmt.Errorf("%s: history rows: %w", op, err)
	}

	subscriberRows, err := r.pool.Query(ctx,
		`SELECT product_id, email, created_at FROM subscribers ORDER BY product_id, id`)
	if err != nil {
		return nil, fmt.Errorf("%s: query subscribers: %w", op, err)
	}

	for subscriberRows.Next() {
		var productID int64
		var sub models.Subscriber

		if err := subscriberRows.Scan(&productID, &sub.Email, &sub.CreatedAt); err != nil {
			subscriberRows.Close()
			return nil, fmt.Errorf("%s: scan subscriber: %w", op, err)
		}

		if i, ok := index[productID]; ok {
			products[i].Users = append(products[i].Users, sub)
		}
	}
	subscriberRows.Close()
	if err := subscriberRows.Err(); err != nil {
		return nil, fmt.Errorf("%s: subscriber rows: %w", op, err)
	}

	return products, nil
}

// ProductByID returns a single product with history and subscribers.
func (r *PostgresRepo) ProductByID(ctx context.Context, productID int64) (models.Product, error) {
	const op = "storage.postgres.ProductByID"

	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Product{}, storage.ErrProductNotFound
		}
		return models.Product{}, fmt.Errorf("%s: failed to scan product: %w", op, err)
	}

	if err := r.attachRelations(ctx, &p); err != nil {
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

// ProductByURL returns a single product with history and subscribers.
func (r *PostgresRepo) ProductByURL(ctx context.Context, url string) (models.Product, error) {
	const op = "storage.postgres.ProductByURL"

	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE url = $1`, url)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Product{}, storage.ErrProductNotFound
		}
		return models.Product{}, fmt.Errorf("%s: failed to scan product: %w", op, err)
	}

	if err := r.attachRelations(ctx, &p); err != nil {
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

func (r *PostgresRepo) attachRelations(ctx context.Context, p *models.Product) error {
	historyRows, err := r.pool.Query(ctx,
		`SELECT price, observed_at FROM price_history WHERE product_id = $1 ORDER BY observed_at, id`, p.ID)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}

	for historyRows.Next() {
		var point models.PricePoint
		if err := historyRows.Scan(&point.Price, &point.Date); err != nil {
			historyRows.Close()
			return fmt.Errorf("scan history: %w", err)
		}
		p.PriceHistory = append(p.PriceHistory, point)
	}
	historyRows.Close()
	if err := historyRows.Err(); err != nil {
		return fmt.Errorf("history rows: %w", err)
	}

	subscriberRows, err := r.pool.Query(ctx,
		`SELECT email, created_at FROM subscribers WHERE product_id = $1 ORDER BY id`, p.ID)
	if err != nil {
		return fmt.Errorf("query subscribers: %w", err)
	}

	for subscriberRows.Next() {
		var sub models.Subscriber
		if err := subscriberRows.Scan(&sub.Email, &sub.CreatedAt); err != nil {
			subscriberRows.Close()
			return fmt.Errorf("scan subscriber: %w", err)
		}
		p.Users = append(p.Users, sub)
	}
	subscriberRows.Close()
	if err := subscriberRows.Err(); err != nil {
		return fmt.Errorf("subscriber rows: %w", err)
	}

	return nil
}

// UpdateScraped merges a reconciliation observation into the stored product:
// scalar fields from the snapshot, one appended history point, derived stats
// recomputed over the full history, failure counter reset.
func (r *PostgresRepo) UpdateScraped(
	ctx context.Context,
	productID int64,
	snap *models.Snapshot,
	lowest, highest, average float64,
) error {
	const op = "storage.postgres.UpdateScraped"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			fmt.Printf("failed to rollback transaction: %v\n", err)
		}
	}()

	const historyQuery = `INSERT INTO price_history (product_id, price) VALUES ($1, $2)`

	if _, err := tx.Exec(ctx, historyQuery, productID, snap.CurrentPrice); err != nil {
		return fmt.Errorf("%s: failed to append price history: %w", op, err)
	}

	const query = `
		UPDATE products SET
			title           = $1,
			currency        = $2,
			image           = $3,
			description     = $4,
			current_price   = $5,
			original_price  = $6,
			discount_rate   = $7,
			is_out_of_stock = $8,
			lowest_price    = $9,
			highest_price   = $10,
			average_price   = $11,
			failure_count   = 0,
			updated_at      = now()
		WHERE id = $12
	`

	cmd, err := tx.Exec(ctx, query,
		snap.Title, snap.Currency, snap.Image, snap.Description,
		snap.CurrentPrice, snap.OriginalPrice, snap.DiscountRate, snap.IsOutOfStock,
		lowest, highest, average,
		productID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmd.RowsAffected() == 0 {
		return storage.ErrProductNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

// DeleteProductByURL permanently removes a product; history and subscribers
// cascade.
func (r *PostgresRepo) DeleteProductByURL(ctx context.Context, url string) error {
	const op = "storage.postgres.DeleteProductByURL"

	cmd, err := r.pool.Exec(ctx, `DELETE FROM products WHERE url = $1`, url)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmd.RowsAffected() == 0 {
		return storage.ErrProductNotFound
	}

	return nil
}

// IncrementFailureCount bumps the consecutive scrape-failure counter and
// returns the new value.
func (r *PostgresRepo) IncrementFailureCount(ctx context.Context, url string) (int, error) {
	const op = "storage.postgres.IncrementFailureCount"

	const query = `
		UPDATE products
		SET failure_count = failure_count + 1,
			updated_at = now()
		WHERE url = $1
		RETURNING failure_count
	`

	var count int

	err := r.pool.QueryRow(ctx, query, url).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, storage.ErrProductNotFound
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}

// AddSubscriber registers an email for a product's notifications.
func (r *PostgresRepo) AddSubscriber(ctx context.Context, productID int64, email string) error {
	const op = "storage.postgres.AddSubscriber"

	const query = `INSERT INTO subscribers (product_id, email) VALUES ($1, $2)`

	if _, err := r.pool.Exec(ctx, query, productID, email); err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == storage.UniqueViolation {
			return storage.ErrAlreadySubscribed
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RemoveSubscriber drops one email's subscription to one product.
func (r *PostgresRepo) RemoveSubscriber(ctx context.Context, url, email string) error {
	const op = "storage.postgres.RemoveSubscriber"

	const query = `
		DELETE FROM subscribers
		WHERE email = $2
		  AND product_id = (SELECT id FROM products WHERE url = $1)
	`

	cmd, err := r.pool.Exec(ctx, query, url, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmd.RowsAffected() == 0 {
		return storage.ErrSubscriberNotFound
	}

	return nil
}

// Close закрывает соединение с базой данных.
func (r *PostgresRepo) Close() {
	r.pool.Close()
}

// dsn формирует конфигурацию базы данных.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
