package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Vicktor007/WisePrice/internal/models"
	"github.com/Vicktor007/WisePrice/internal/storage"
)

type RedisRepo struct {
	client     *redis.Client
	DefaultTTL time.Duration
}

func New(ctx context.Context, address string, db int, defaultTTL time.Duration) (*RedisRepo, error) {
	const op = "storage.redis.New"

	rdb := redis.NewClient(&redis.Options{
		Addr: address,
		DB:   db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client:     rdb,
		DefaultTTL: defaultTTL,
	}, nil
}

func (r *RedisRepo) SaveProduct(ctx context.Context, product models.Product) error {
	const op = "storage.redis.SaveProduct"

	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	key := fmt.Sprintf("product:%d", product.ID)

	if err := r.client.Set(
		ctx,
		key,
		data,
		r.DefaultTTL,
	).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisRepo) Product(ctx context.Context, productID int64) (models.Product, error) {
	const op = "storage.redis.Product"

	var product models.Product

	key := fmt.Sprintf("product:%d", productID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return product, storage.ErrProductNotFound
		}
		return product, fmt.Errorf("%s: %w", op, err)
	}

	if err := json.Unmarshal(data, &product); err != nil {
		return product, fmt.Errorf("%s: %w", op, err)
	}

	return product, nil
}

// Invalidate drops a cached product after a reconciliation update so readers
// do not see stale stats for the full TTL.
func (r *RedisRepo) Invalidate(ctx context.Context, productID int64) error {
	const op = "storage.redis.Invalidate"

	if err := r.client.Del(ctx, fmt.Sprintf("product:%d", productID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Close закрывает соединение с базой данных.
func (r *RedisRepo) Close() {
	r.client.Close()
}
