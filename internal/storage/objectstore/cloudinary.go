package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"signalhub/internal/config"
	"signalhub/pkg/e"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Cloudinary stores photos as image assets; the key minus its extension
// becomes the public id.
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
	logger *slog.Logger
}

func NewCloudinary(cfg config.PhotoConfig, logger *slog.Logger) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudinaryCloud, cfg.CloudinaryKey, cfg.CloudinarySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloudinary client: %w", err)
	}
	cld.Config.URL.Secure = true

	logger.Info("Cloudinary storage initialized", slog.String("cloud", cfg.CloudinaryCloud), slog.String("folder", cfg.CloudinaryFolder))
	return &Cloudinary{cld: cld, folder: cfg.CloudinaryFolder, logger: logger}, nil
}

func (c *Cloudinary) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	resp, err := c.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:     publicID(key),
		Folder:       c.folder,
		ResourceType: "image",
	})
	if err != nil {
		return "", classify(err, 0)
	}
	if resp.Error.Message != "" {
		return "", e.NewUploadError(e.UploadServer, errors.New(resp.Error.Message))
	}

	c.logger.Info("photo stored", slog.String("key", key), slog.String("url", resp.SecureURL))
	return resp.SecureURL, nil
}

func publicID(key string) string {
	return strings.TrimSuffix(key, path.Ext(key))
}
