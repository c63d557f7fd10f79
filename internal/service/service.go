package service

import (
	"context"

	"signalhub/internal/domain"
	"signalhub/internal/query"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=mocks/mock.go

// ReportService is the boundary the HTTP layer talks to. Guard and
// validation run here exactly once per mutation.
type ReportService interface {
	List(ctx context.Context, f domain.Filter) (*domain.ReportPage, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	Create(ctx context.Context, p domain.Principal, req domain.CreateReportRequest) (*domain.Report, error)
	Update(ctx context.Context, p domain.Principal, id uuid.UUID, req domain.UpdateReportRequest) (*domain.Report, error)
	Delete(ctx context.Context, p domain.Principal, id uuid.UUID) error
	Subscribe(h func(domain.ChangeEvent)) (unsubscribe func())
}

type PhotoService interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

type ReportRepository interface {
	Create(ctx context.Context, report *domain.Report) (*domain.Report, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	Query(ctx context.Context, plan query.Plan) ([]*domain.Report, int64, error)
	Update(ctx context.Context, report *domain.Report) (*domain.Report, error)
	Delete(ctx context.Context, id uuid.UUID) (*domain.Report, error)
}

// ReportCache returns (nil, nil) on a miss.
type ReportCache interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	Set(ctx context.Context, report *domain.Report) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

type WebhookQueue interface {
	Enqueue(ctx context.Context, payload domain.StatusChangedWebhook) error
}

type ChangeFeed interface {
	Subscribe(h func(domain.ChangeEvent)) (unsubscribe func())
}

// PhotoStore puts an already checked image and returns its public URL.
type PhotoStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type Service struct {
	Reports ReportService
	Photos  PhotoService
}

func NewService(reports ReportService, photos PhotoService) *Service {
	return &Service{
		Reports: reports,
		Photos:  photos,
	}
}
