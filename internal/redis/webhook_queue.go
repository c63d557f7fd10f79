package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"signalhub/internal/domain"
	"signalhub/pkg/e"

	goredis "github.com/redis/go-redis/v9"
)

type WebhookQueue struct {
	client *goredis.Client
	key    string
}

func NewWebhookQueue(client *goredis.Client, key string) *WebhookQueue {
	return &WebhookQueue{client: client, key: key}
}

func (q *WebhookQueue) Enqueue(ctx context.Context, payload domain.StatusChangedWebhook) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, b).Err()
}

// BRPop returns e.ErrWebHookEmpty when nothing arrived within timeout.
func (q *WebhookQueue) BRPop(ctx context.Context, timeout time.Duration) (domain.StatusChangedWebhook, error) {
	var p domain.StatusChangedWebhook

	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return p, e.ErrWebHookEmpty
		}
		return p, err
	}
	if len(res) < 2 {
		return p, e.ErrWebHookEmpty
	}
	if err := json.Unmarshal([]byte(res[1]), &p); err != nil {
		return p, err
	}
	return p, nil
}
