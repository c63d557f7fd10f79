package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"signalhub/internal/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ReportCache keeps single reports by id. A miss is (nil, nil).
type ReportCache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewReportCache(r *Redis, ttl time.Duration) *ReportCache {
	return &ReportCache{
		client: r.Client,
		prefix: "report:",
		ttl:    ttl,
	}
}

func (c *ReportCache) key(id uuid.UUID) string {
	return c.prefix + id.String()
}

func (c *ReportCache) Get(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var r domain.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *ReportCache) Set(ctx context.Context, r *domain.Report) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(r.ID), b, c.ttl).Err()
}

func (c *ReportCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, c.key(id)).Err()
}
