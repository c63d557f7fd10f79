package reports

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"signalhub/internal/domain"
	"signalhub/pkg/e"
)

type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	l := h.log(r)

	var (
		validation *e.ValidationError
		forbidden  *e.ForbiddenError
		upload     *e.UploadError
		upstream   *e.UpstreamError
	)

	switch {
	case errors.As(err, &validation):
		l.Info("validation failed", slog.String("path", r.URL.Path), slog.Any("details", validation.Errors))
		h.writeError(w, http.StatusBadRequest, "validation_failed", "report failed validation", validation.Errors)
	case errors.Is(err, e.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
	case errors.Is(err, e.ErrUnauthenticated):
		h.writeError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid bearer token", nil)
	case errors.As(err, &forbidden):
		l.Warn("forbidden", slog.String("path", r.URL.Path), slog.String("reason", forbidden.Reason))
		h.writeError(w, http.StatusForbidden, "forbidden", forbidden.Reason, nil)
	case errors.Is(err, e.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "report not found", nil)
	case errors.Is(err, e.ErrConflict):
		h.writeError(w, http.StatusConflict, "conflict", "report already exists", nil)
	case errors.As(err, &upload):
		h.writeUploadError(w, r, upload)
	case errors.As(err, &upstream):
		l.Error("upstream failure",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("collaborator", upstream.Collaborator),
			slog.Any("error", err),
		)
		h.writeError(w, http.StatusBadGateway, "upstream_failed", upstream.Collaborator+" failed", nil)
	default:
		l.Error("handler error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		h.writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

// handleListError keeps query failures distinct from an empty page.
func (h *Handler) handleListError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *e.ValidationError
	if errors.As(err, &validation) {
		h.handleError(w, r, err)
		return
	}

	h.log(r).Error("list failed", slog.Any("error", err))

	status := http.StatusInternalServerError
	if errors.Is(err, e.ErrUpstream) {
		status = http.StatusBadGateway
	}
	h.writeError(w, status, "list_failed", "could not list reports", nil)
}

func (h *Handler) writeUploadError(w http.ResponseWriter, r *http.Request, err *e.UploadError) {
	switch err.Kind {
	case e.UploadTooLarge:
		h.writeError(w, http.StatusRequestEntityTooLarge, string(err.Kind), "photo is too large", nil)
	case e.UploadUnsupportedFormat:
		h.writeError(w, http.StatusUnsupportedMediaType, string(err.Kind), "photo must be jpeg, png or webp", nil)
	default:
		h.log(r).Error("photo upload failed", slog.String("kind", string(err.Kind)), slog.Any("error", err))
		h.writeError(w, http.StatusBadGateway, string(err.Kind), "photo storage failed", nil)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, kind, msg string, details []string) {
	h.writeJSON(w, code, errorBody{Error: kind, Message: msg, Details: details})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// parseFilter turns list query parameters into a Filter. Range checks are
// left to the service; only malformed values are reported here.
func parseFilter(q url.Values) (domain.Filter, []string) {
	var problems []string

	page, err := parseInt(q.Get("page"), domain.DefaultPage)
	if err != nil {
		problems = append(problems, "page must be an integer")
	}
	limit, err := parseInt(q.Get("limit"), domain.DefaultLimit)
	if err != nil {
		problems = append(problems, "limit must be an integer")
	}

	f := domain.Filter{
		Page:   page,
		Limit:  limit,
		Type:   domain.ReportType(q.Get("type")),
		Status: domain.ReportStatus(q.Get("status")),
	}

	lat, lng, radius := q.Get("lat"), q.Get("lng"), q.Get("radius_km")
	switch {
	case lat == "" && lng == "" && radius == "":
	case lat == "" || lng == "" || radius == "":
		problems = append(problems, "lat, lng and radius_km must be given together")
	default:
		geo := &domain.GeoFilter{}
		if geo.Latitude, err = strconv.ParseFloat(lat, 64); err != nil {
			problems = append(problems, "lat must be a number")
		}
		if geo.Longitude, err = strconv.ParseFloat(lng, 64); err != nil {
			problems = append(problems, "lng must be a number")
		}
		if geo.RadiusKM, err = strconv.ParseFloat(radius, 64); err != nil {
			problems = append(problems, "radius_km must be a number")
		}
		f.Geo = geo
	}

	return f, problems
}

func parseInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
