package objectstore

import (
	"context"
	"errors"
	"net"

	"signalhub/pkg/e"
)

// classify maps a store failure onto network (never reached the store, or
// timed out) or server (the store answered with an error).
func classify(err error, status int) error {
	var netErr net.Error
	switch {
	case status > 0:
		return e.NewUploadError(e.UploadServer, err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return e.NewUploadError(e.UploadNetwork, err)
	default:
		return e.NewUploadError(e.UploadServer, err)
	}
}
