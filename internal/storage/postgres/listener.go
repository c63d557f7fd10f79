package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"signalhub/internal/domain"
	"signalhub/pkg/e"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChangeChannel is the NOTIFY channel written by the reports trigger.
const ChangeChannel = "report_changes"

// Listener turns NOTIFY payloads from the reports trigger into ChangeEvents.
type Listener struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	backoff time.Duration
}

func NewListener(pool *pgxpool.Pool, logger *slog.Logger) *Listener {
	return &Listener{pool: pool, logger: logger, backoff: 2 * time.Second}
}

// Run blocks until ctx is done, reconnecting after connection loss.
func (l *Listener) Run(ctx context.Context, handle func(domain.ChangeEvent)) {
	const op = "postgres.Listener.Run"

	for {
		err := l.listen(ctx, handle)
		if ctx.Err() != nil {
			l.logger.Info("change listener stopped", slog.String("reason", ctx.Err().Error()))
			return
		}
		l.logger.Error("change listener dropped, reconnecting",
			slog.String("op", op),
			slog.Any("error", err),
			slog.Duration("backoff", l.backoff),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.backoff):
		}
	}
}

func (l *Listener) listen(ctx context.Context, handle func(domain.ChangeEvent)) error {
	const op = "postgres.Listener.listen"

	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return e.WrapError(ctx, op, err)
	}
	// A LISTENing connection must not go back to the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ChangeChannel}.Sanitize()); err != nil {
		return e.WrapError(ctx, op, err)
	}
	l.logger.Info("listening for report changes", slog.String("channel", ChangeChannel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return e.WrapError(ctx, op, err)
		}

		ev, err := DecodeChange([]byte(n.Payload))
		if err != nil {
			l.logger.Warn("undecodable change payload", slog.String("op", op), slog.Any("error", err))
			continue
		}
		handle(ev)
	}
}

var errBadChange = errors.New("change payload missing kind or report")

func DecodeChange(payload []byte) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, err
	}
	switch ev.Kind {
	case domain.EventInsert, domain.EventUpdate, domain.EventDelete:
	default:
		return ev, errBadChange
	}
	if ev.Report == nil {
		return ev, errBadChange
	}
	ev.Report.CreatedAt = ev.Report.CreatedAt.UTC()
	if ev.Previous != nil {
		ev.Previous.CreatedAt = ev.Previous.CreatedAt.UTC()
	}
	return ev, nil
}
