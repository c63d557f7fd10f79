package e

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func Wrap(message string, err error) error {
	return fmt.Errorf("%s: %w", message, err)
}

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidInput    = errors.New("invalid input")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUpstream        = errors.New("upstream failure")
	ErrInternal        = errors.New("internal error")
	ErrDeadline        = errors.New("deadline exceeded")
	ErrCanceled        = errors.New("context canceled")
	ErrWebHookEmpty    = errors.New("webhook queue is empty")
)

// ValidationError carries every failed rule, in rule order.
type ValidationError struct {
	Errors []string
}

func NewValidationError(msgs ...string) *ValidationError {
	return &ValidationError{Errors: msgs}
}

func (v *ValidationError) Error() string {
	return "validation failed: " + strings.Join(v.Errors, "; ")
}

func (v *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

type ForbiddenError struct {
	Reason string
}

func (f *ForbiddenError) Error() string          { return f.Reason }
func (f *ForbiddenError) Is(target error) bool   { return target == ErrForbidden }
func NewForbidden(reason string) *ForbiddenError { return &ForbiddenError{Reason: reason} }

// Collaborators named in UpstreamError.
const (
	CollaboratorStorage       = "storage"
	CollaboratorIdentity      = "identity"
	CollaboratorObjectStorage = "object_storage"
	CollaboratorCache         = "cache"
)

// UpstreamError wraps a collaborator failure. It is never retried here.
type UpstreamError struct {
	Collaborator string
	Err          error
}

func (u *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", u.Collaborator, u.Err)
}

func (u *UpstreamError) Unwrap() error        { return u.Err }
func (u *UpstreamError) Is(target error) bool { return target == ErrUpstream }

func Upstream(collaborator string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Collaborator: collaborator, Err: err}
}

type UploadErrorKind string

const (
	UploadTooLarge          UploadErrorKind = "too_large"
	UploadUnsupportedFormat UploadErrorKind = "unsupported_format"
	UploadNetwork           UploadErrorKind = "network"
	UploadServer            UploadErrorKind = "server"
)

type UploadError struct {
	Kind UploadErrorKind
	Err  error
}

func (u *UploadError) Error() string {
	if u.Err == nil {
		return "upload failed: " + string(u.Kind)
	}
	return fmt.Sprintf("upload failed: %s: %v", u.Kind, u.Err)
}

func (u *UploadError) Unwrap() error        { return u.Err }
func (u *UploadError) Is(target error) bool { return target == ErrUpstream }

func NewUploadError(kind UploadErrorKind, err error) *UploadError {
	return &UploadError{Kind: kind, Err: err}
}

// WrapError maps storage driver and context errors onto the taxonomy above.
func WrapError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Upstream(CollaboratorStorage, fmt.Errorf("%s: %w", op, ErrDeadline))
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, ErrCanceled)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", op, ErrConflict)
		case "23503", "23514", "22P02":
			return fmt.Errorf("%s: %w", op, ErrInvalidInput)
		default:
			return Upstream(CollaboratorStorage, fmt.Errorf("%s: pg error %s: %w", op, pgErr.Code, err))
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return Upstream(CollaboratorStorage, fmt.Errorf("%s: %w", op, err))
}
