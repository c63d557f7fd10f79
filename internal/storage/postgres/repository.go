package postgres

import (
	"context"

	"signalhub/internal/domain"
	"signalhub/internal/query"

	"github.com/google/uuid"
)

type ReportRepository interface {
	Create(ctx context.Context, report *domain.Report) (*domain.Report, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	Query(ctx context.Context, plan query.Plan) ([]*domain.Report, int64, error)
	Update(ctx context.Context, report *domain.Report) (*domain.Report, error)
	Delete(ctx context.Context, id uuid.UUID) (*domain.Report, error)
}

var _ ReportRepository = (*ReportRepo)(nil)

func (p *Postgres) ReportStore() ReportRepository { return p.Reports }
