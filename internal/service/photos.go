package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"signalhub/pkg/e"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var allowedPhotoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type Photos struct {
	store    PhotoStore
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
	observe  func(result string)
}

func NewPhotos(store PhotoStore, maxBytes int64, logger *slog.Logger) *Photos {
	return &Photos{
		store:    store,
		maxBytes: maxBytes,
		logger:   logger,
		now:      time.Now,
		observe:  func(string) {},
	}
}

func (p *Photos) WithClock(now func() time.Time) *Photos {
	p.now = now
	return p
}

// OnResult is called once per upload with "ok" or the UploadError kind.
func (p *Photos) OnResult(fn func(result string)) *Photos {
	p.observe = fn
	return p
}

// Upload sniffs the content, stores it under reports/<date>/<uuid>.<ext>
// and returns the public URL. Every failure is an *e.UploadError.
func (p *Photos) Upload(ctx context.Context, data []byte) (string, error) {
	const op = "service.Photos.Upload"

	url, err := p.upload(ctx, data)
	if err != nil {
		var ue *e.UploadError
		if !errors.As(err, &ue) {
			ue = e.NewUploadError(e.UploadServer, err)
			err = ue
		}
		p.observe(string(ue.Kind))
		p.logger.Warn("photo upload failed", slog.String("op", op), slog.String("kind", string(ue.Kind)), slog.Any("error", err))
		return "", err
	}

	p.observe("ok")
	return url, nil
}

func (p *Photos) upload(ctx context.Context, data []byte) (string, error) {
	if int64(len(data)) > p.maxBytes {
		return "", e.NewUploadError(e.UploadTooLarge, fmt.Errorf("%d bytes exceeds %d", len(data), p.maxBytes))
	}
	if len(data) == 0 {
		return "", e.NewUploadError(e.UploadUnsupportedFormat, errors.New("empty file"))
	}

	mt := mimetype.Detect(data)
	ext, ok := allowedPhotoTypes[mt.String()]
	if !ok {
		return "", e.NewUploadError(e.UploadUnsupportedFormat, fmt.Errorf("content type %s", mt.String()))
	}

	key := fmt.Sprintf("reports/%s/%s%s", p.now().UTC().Format("2006-01-02"), uuid.NewString(), ext)
	return p.store.Put(ctx, key, data, mt.String())
}
