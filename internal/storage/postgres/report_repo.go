package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"signalhub/internal/domain"
	"signalhub/internal/query"
	"signalhub/pkg/e"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reportColumns = `id, type, description, latitude, longitude, photo_url, status, user_id, created_at`

type ReportRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewReportRepo(pool *pgxpool.Pool, logger *slog.Logger) *ReportRepo {
	return &ReportRepo{pool: pool, logger: logger}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*domain.Report, error) {
	var r domain.Report
	if err := row.Scan(
		&r.ID,
		&r.Type,
		&r.Description,
		&r.Latitude,
		&r.Longitude,
		&r.PhotoURL,
		&r.Status,
		&r.OwnerID,
		&r.CreatedAt,
	); err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func (p *ReportRepo) Create(ctx context.Context, report *domain.Report) (*domain.Report, error) {
	const op = "postgres.Report.Create"

	const query = `
		INSERT INTO reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + reportColumns

	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}

	stored, err := scanReport(p.pool.QueryRow(ctx, query,
		report.ID,
		report.Type,
		report.Description,
		report.Latitude,
		report.Longitude,
		report.PhotoURL,
		report.Status,
		report.OwnerID,
		report.CreatedAt,
	))
	if err != nil {
		p.logger.Error("db insert failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}

	return stored, nil
}

func (p *ReportRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	const op = "postgres.Report.Get"

	const query = `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`

	r, err := scanReport(p.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		p.logger.Error("db queryrow scan failed", slog.String("op", op), slog.Any("error", err), slog.String("id", id.String()))
		return nil, e.WrapError(ctx, op, err)
	}

	return r, nil
}

// haversineSQL mirrors query.Haversine; $lat, $lng, $radius are substituted.
const haversineSQL = `2 * %[4]v * asin(least(1, sqrt(
	power(sin(radians(latitude - $%[1]d) / 2), 2) +
	cos(radians($%[1]d)) * cos(radians(latitude)) *
	power(sin(radians(longitude - $%[2]d) / 2), 2)
))) <= $%[3]d`

func whereClause(f domain.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Type != "" {
		args = append(args, f.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Geo != nil {
		args = append(args, f.Geo.Latitude, f.Geo.Longitude, f.Geo.RadiusKM)
		n := len(args)
		conds = append(conds, fmt.Sprintf(haversineSQL, n-2, n-1, n, query.EarthRadiusKM))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query counts and slices inside one repeatable-read snapshot so the total
// always describes the same set the page was cut from.
func (p *ReportRepo) Query(ctx context.Context, plan query.Plan) ([]*domain.Report, int64, error) {
	const op = "postgres.Report.Query"

	where, args := whereClause(plan.Filter)

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		p.logger.Error("db begin failed", slog.String("op", op), slog.Any("error", err))
		return nil, 0, e.WrapError(ctx, op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var total int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM reports`+where, args...).Scan(&total); err != nil {
		p.logger.Error("db count failed", slog.String("op", op), slog.Any("error", err))
		return nil, 0, e.WrapError(ctx, op, err)
	}

	items := make([]*domain.Report, 0, plan.Limit)
	if int64(plan.Offset) < total {
		listArgs := append(args, plan.Limit, plan.Offset)
		listQuery := fmt.Sprintf(`SELECT %s FROM reports%s ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d`,
			reportColumns, where, len(listArgs)-1, len(listArgs))

		rows, err := tx.Query(ctx, listQuery, listArgs...)
		if err != nil {
			p.logger.Error("db query failed", slog.String("op", op), slog.Any("error", err))
			return nil, 0, e.WrapError(ctx, op, err)
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanReport(rows)
			if err != nil {
				p.logger.Error("row scan failed", slog.String("op", op), slog.Any("error", err))
				return nil, 0, e.WrapError(ctx, op, err)
			}
			items = append(items, r)
		}
		if err := rows.Err(); err != nil {
			p.logger.Error("rows err", slog.String("op", op), slog.Any("error", err))
			return nil, 0, e.WrapError(ctx, op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		p.logger.Error("db commit failed", slog.String("op", op), slog.Any("error", err))
		return nil, 0, e.WrapError(ctx, op, err)
	}

	return items, total, nil
}

func (p *ReportRepo) Update(ctx context.Context, report *domain.Report) (*domain.Report, error) {
	const op = "postgres.Report.Update"

	const query = `
		UPDATE reports
		SET type        = $2,
			description = $3,
			latitude    = $4,
			longitude   = $5,
			photo_url   = $6,
			status      = $7
		WHERE id = $1
		RETURNING ` + reportColumns

	stored, err := scanReport(p.pool.QueryRow(ctx, query,
		report.ID,
		report.Type,
		report.Description,
		report.Latitude,
		report.Longitude,
		report.PhotoURL,
		report.Status,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		p.logger.Error("db update failed", slog.String("op", op), slog.Any("error", err), slog.String("id", report.ID.String()))
		return nil, e.WrapError(ctx, op, err)
	}

	return stored, nil
}

// Delete removes the row permanently and returns it as it was.
func (p *ReportRepo) Delete(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	const op = "postgres.Report.Delete"

	const query = `DELETE FROM reports WHERE id = $1 RETURNING ` + reportColumns

	deleted, err := scanReport(p.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		p.logger.Error("db delete failed", slog.String("op", op), slog.Any("error", err), slog.String("id", id.String()))
		return nil, e.WrapError(ctx, op, err)
	}

	return deleted, nil
}
