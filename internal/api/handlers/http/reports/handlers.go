package reports

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"signalhub/internal/domain"
	"signalhub/internal/middleware"
	"signalhub/pkg/e"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

//go:generate mockgen -source=handlers.go -destination=mocks/mock.go
type Reports interface {
	List(ctx context.Context, f domain.Filter) (*domain.ReportPage, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	Create(ctx context.Context, p domain.Principal, req domain.CreateReportRequest) (*domain.Report, error)
	Update(ctx context.Context, p domain.Principal, id uuid.UUID, req domain.UpdateReportRequest) (*domain.Report, error)
	Delete(ctx context.Context, p domain.Principal, id uuid.UUID) error
	Subscribe(h func(domain.ChangeEvent)) (unsubscribe func())
}

type Photos interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

const (
	streamBuffer     = 64
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Handler struct {
	logger         *slog.Logger
	Reports        Reports
	Photos         Photos
	maxUploadBytes int64
}

func NewHandler(logger *slog.Logger, reports Reports, photos Photos, maxUploadBytes int64) *Handler {
	return &Handler{
		logger:         logger,
		Reports:        reports,
		Photos:         photos,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	reqID := chimw.GetReqID(r.Context())
	if reqID == "" {
		return h.logger
	}
	return h.logger.With(slog.String("request_id", reqID))
}

func (h *Handler) ReportList(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("ReportList", slog.String("remote", r.RemoteAddr))

	f, problems := parseFilter(r.URL.Query())
	if len(problems) > 0 {
		h.handleError(w, r, e.NewValidationError(problems...))
		return
	}

	page, err := h.Reports.List(r.Context(), f)
	if err != nil {
		h.handleListError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, page)
}

func (h *Handler) ReportGet(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("ReportGet", slog.String("remote", r.RemoteAddr))

	id, ok := h.reportID(w, r)
	if !ok {
		return
	}

	rep, err := h.Reports.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) ReportCreate(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("ReportCreate", slog.String("remote", r.RemoteAddr))

	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.handleError(w, r, e.ErrUnauthenticated)
		return
	}

	var req domain.CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		l.Warn("invalid JSON", slog.String("error", err.Error()))
		h.writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", nil)
		return
	}

	l.Info("creating report",
		slog.String("type", string(req.Type)),
		slog.String("owner", p.ID),
	)

	rep, err := h.Reports.Create(r.Context(), p, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, rep)
}

func (h *Handler) ReportUpdate(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("ReportUpdate", slog.String("remote", r.RemoteAddr))

	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.handleError(w, r, e.ErrUnauthenticated)
		return
	}

	id, ok := h.reportID(w, r)
	if !ok {
		return
	}

	var req domain.UpdateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		l.Warn("invalid JSON", slog.String("error", err.Error()))
		h.writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", nil)
		return
	}

	rep, err := h.Reports.Update(r.Context(), p, id, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("report updated", slog.String("id", id.String()), slog.String("by", p.ID))
	h.writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) ReportDelete(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("ReportDelete", slog.String("remote", r.RemoteAddr))

	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.handleError(w, r, e.ErrUnauthenticated)
		return
	}

	id, ok := h.reportID(w, r)
	if !ok {
		return
	}

	if err := h.Reports.Delete(r.Context(), p, id); err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("report deleted", slog.String("id", id.String()), slog.String("by", p.ID))
	w.WriteHeader(http.StatusNoContent)
}

// PhotoUpload accepts a multipart form with the image in the "file" field.
func (h *Handler) PhotoUpload(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("PhotoUpload", slog.String("remote", r.RemoteAddr))

	// Multipart framing needs some room on top of the image itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.handleError(w, r, e.NewUploadError(e.UploadTooLarge, err))
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_form", `multipart field "file" is required`, nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.handleError(w, r, e.NewUploadError(e.UploadTooLarge, err))
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_form", "could not read uploaded file", nil)
		return
	}

	url, err := h.Photos.Upload(r.Context(), data)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("photo uploaded", slog.Int("bytes", len(data)))
	h.writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

// Me returns the principal resolved from the bearer token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.handleError(w, r, e.ErrUnauthenticated)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// ReportStream upgrades to a websocket and forwards change events until the
// peer goes away. A slow peer loses events rather than stalling the feed.
func (h *Handler) ReportStream(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	l.Info("stream connected", slog.String("remote", r.RemoteAddr))

	events := make(chan domain.ChangeEvent, streamBuffer)
	unsubscribe := h.Reports.Subscribe(func(ev domain.ChangeEvent) {
		select {
		case events <- ev:
		default:
			l.Warn("stream queue full, dropping event", slog.String("kind", string(ev.Kind)))
		}
	})
	defer unsubscribe()

	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			l.Info("stream disconnected", slog.String("remote", r.RemoteAddr))
			return
		case <-r.Context().Done():
			return
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				l.Warn("stream write failed", slog.Any("error", err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) reportID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.log(r).Warn("invalid id", slog.String("id", chi.URLParam(r, "id")))
		h.writeError(w, http.StatusBadRequest, "invalid_id", "report id must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
