package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"signalhub/internal/domain"
	"signalhub/internal/query"
	"signalhub/pkg/e"

	"github.com/google/uuid"
)

type Reports struct {
	repo     ReportRepository
	cache    ReportCache
	webhooks WebhookQueue
	feed     ChangeFeed
	logger   *slog.Logger
	now      func() time.Time
}

// NewReports wires the report use cases. cache, webhooks and feed may be nil.
func NewReports(repo ReportRepository, cache ReportCache, webhooks WebhookQueue, feed ChangeFeed, logger *slog.Logger) *Reports {
	return &Reports{
		repo:     repo,
		cache:    cache,
		webhooks: webhooks,
		feed:     feed,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Reports) WithClock(now func() time.Time) *Reports {
	s.now = now
	return s
}

func (s *Reports) List(ctx context.Context, f domain.Filter) (*domain.ReportPage, error) {
	const op = "service.Reports.List"

	if errs := f.Validate(); len(errs) > 0 {
		return nil, e.NewValidationError(errs...)
	}

	plan := query.New(f)
	items, total, err := s.repo.Query(ctx, plan)
	if err != nil {
		s.logger.Error("query failed", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if items == nil {
		items = []*domain.Report{}
	}

	return &domain.ReportPage{
		Reports: items,
		Total:   total,
		Page:    f.Page,
		Limit:   f.Limit,
	}, nil
}

func (s *Reports) Get(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	const op = "service.Reports.Get"

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.Warn("cache get failed", slog.String("op", op), slog.Any("error", err))
		} else if cached != nil {
			return cached, nil
		}
	}

	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, r); err != nil {
			s.logger.Warn("cache set failed", slog.String("op", op), slog.Any("error", err))
		}
	}
	return r, nil
}

func (s *Reports) Create(ctx context.Context, p domain.Principal, req domain.CreateReportRequest) (*domain.Report, error) {
	const op = "service.Reports.Create"

	if p.ID == "" {
		return nil, fmt.Errorf("%s: %w", op, e.ErrUnauthenticated)
	}

	candidate := req.ToReport(p.ID, s.now())
	res := candidate.Validate()
	errs := append(req.MissingFields(), res.Errors...)
	if len(errs) > 0 {
		return nil, e.NewValidationError(errs...)
	}

	stored, err := s.repo.Create(ctx, candidate)
	if err != nil {
		s.logger.Error("create failed", slog.String("op", op), slog.Any("error", err))
		return nil, err
	}

	s.logger.Info("report created",
		slog.String("id", stored.ID.String()),
		slog.String("owner", stored.OwnerID),
		slog.String("type", string(stored.Type)),
	)
	return stored, nil
}

func (s *Reports) Update(ctx context.Context, p domain.Principal, id uuid.UUID, req domain.UpdateReportRequest) (*domain.Report, error) {
	const op = "service.Reports.Update"

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanMutate(p, current) {
		s.logger.Warn("update denied", slog.String("op", op), slog.String("principal", p.ID), slog.String("id", id.String()))
		return nil, e.NewForbidden(domain.ForbiddenReason(domain.OpModify))
	}

	merged := req.Apply(current)
	if res := merged.Validate(); !res.IsValid {
		return nil, e.NewValidationError(res.Errors...)
	}

	updated, err := s.repo.Update(ctx, merged)
	if err != nil {
		s.logger.Error("update failed", slog.String("op", op), slog.Any("error", err))
		return nil, err
	}
	s.invalidate(ctx, op, id)

	if updated.Status != current.Status {
		s.notifyStatus(ctx, p, current.Status, updated)
	}
	return updated, nil
}

func (s *Reports) Delete(ctx context.Context, p domain.Principal, id uuid.UUID) error {
	const op = "service.Reports.Delete"

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !domain.CanMutate(p, current) {
		s.logger.Warn("delete denied", slog.String("op", op), slog.String("principal", p.ID), slog.String("id", id.String()))
		return e.NewForbidden(domain.ForbiddenReason(domain.OpDelete))
	}

	if _, err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("delete failed", slog.String("op", op), slog.Any("error", err))
		return err
	}
	s.invalidate(ctx, op, id)

	s.logger.Info("report deleted", slog.String("id", id.String()), slog.String("by", p.ID))
	return nil
}

// Subscribe registers h for every row change, unfiltered.
func (s *Reports) Subscribe(h func(domain.ChangeEvent)) func() {
	if s.feed == nil {
		return func() {}
	}
	return s.feed.Subscribe(h)
}

func (s *Reports) invalidate(ctx context.Context, op string, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("cache invalidate failed", slog.String("op", op), slog.Any("error", err))
	}
}

func (s *Reports) notifyStatus(ctx context.Context, p domain.Principal, from domain.ReportStatus, r *domain.Report) {
	if s.webhooks == nil {
		return
	}
	payload := domain.StatusChangedWebhook{
		ReportID:  r.ID,
		OwnerID:   r.OwnerID,
		From:      from,
		To:        r.Status,
		ChangedBy: p.ID,
		ChangedAt: s.now().UTC(),
	}
	if err := s.webhooks.Enqueue(ctx, payload); err != nil {
		s.logger.Error("enqueue webhook failed", slog.Any("error", err))
		return
	}
	s.logger.Info("webhook enqueued", slog.String("report_id", r.ID.String()), slog.String("to", string(r.Status)))
}
