package reports_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"signalhub/internal/api/handlers/http/reports"
	mock_reports "signalhub/internal/api/handlers/http/reports/mocks"
	"signalhub/internal/domain"
	"signalhub/internal/middleware"
	"signalhub/pkg/e"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), &slog.HandlerOptions{Level: slog.LevelError}))
}

func newHandler(t *testing.T) (*reports.Handler, *mock_reports.MockReports, *mock_reports.MockPhotos) {
	t.Helper()
	ctrl := gomock.NewController(t)
	rs := mock_reports.NewMockReports(ctrl)
	ps := mock_reports.NewMockPhotos(ctrl)
	return reports.NewHandler(newTestLogger(), rs, ps, 1<<20), rs, ps
}

func addChiURLParam(r *http.Request, key, val string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, val)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func asPrincipal(r *http.Request, p domain.Principal) *http.Request {
	return r.WithContext(middleware.WithPrincipal(r.Context(), p))
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json response: %v, body=%s", err, rr.Body.String())
	}
	return out
}

func sampleReport(owner string) *domain.Report {
	return &domain.Report{
		ID:          uuid.New(),
		Type:        domain.ReportRoad,
		Description: "Pothole on Main St near bridge",
		Latitude:    48.85,
		Longitude:   2.35,
		Status:      domain.StatusNew,
		OwnerID:     owner,
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestReportList_Defaults(t *testing.T) {
	t.Parallel()

	h, rs, _ := newHandler(t)
	want := &domain.ReportPage{Reports: []*domain.Report{sampleReport("a")}, Total: 1, Page: 1, Limit: 20}

	rs.EXPECT().
		List(gomock.Any(), domain.Filter{Page: 1, Limit: 20}).
		Return(want, nil)

	rr := httptest.NewRecorder()
	h.ReportList(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d, body=%s", rr.Code, rr.Body.String())
	}
	got := decodeJSON[domain.ReportPage](t, rr)
	if got.Total != 1 || got.Page != 1 || got.Limit != 20 || len(got.Reports) != 1 {
		t.Fatalf("unexpected page: %+v", got)
	}
}

func TestReportList_ParsesFilter(t *testing.T) {
	t.Parallel()

	h, rs, _ := newHandler(t)
	wantFilter := domain.Filter{
		Page:   2,
		Limit:  5,
		Type:   domain.ReportRoad,
		Status: domain.StatusResolved,
		Geo:    &domain.GeoFilter{Latitude: 48.85, Longitude: 2.35, RadiusKM: 1.5},
	}

	rs.EXPECT().
		List(gomock.Any(), wantFilter).
		Return(&domain.ReportPage{Reports: []*domain.Report{}, Total: 0, Page: 2, Limit: 5}, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/reports?page=2&limit=5&type=road&status=resolved&lat=48.85&lng=2.35&radius_km=1.5", nil)
	rr := httptest.NewRecorder()
	h.ReportList(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d, body=%s", rr.Code, rr.Body.String())
	}
}

func TestReportList_PartialGeo_400(t *testing.T) {
	t.Parallel()

	h, _, _ := newHandler(t)

	rr := httptest.NewRecorder()
	h.ReportList(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports?lat=48.85&page=x", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	got := decodeJSON[errorResponse](t, rr)
	if got.Error != "validation_failed" || len(got.Details) != 2 {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestReportList_Failure_IsNotEmptyPage(t *testing.T) {
	t.Parallel()

	h, rs, _ := newHandler(t)
	rs.EXPECT().
		List(gomock.Any(), gomock.Any()).
		Return(nil, e.Upstream(e.CollaboratorStorage, fmt.Errorf("connection refused")))

	rr := httptest.NewRecorder()
	h.ReportList(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", rr.Code)
	}
	if got := decodeJSON[errorResponse](t, rr); got.Error != "list_failed" {
		t.Fatalf("expected list_failed, got %+v", got)
	}
}

func TestReportList_InvalidFilterFromService_400(t *testing.T) {
	t.Parallel()

	h, rs, _ := newHandler(t)
	rs.EXPECT().
		List(gomock.Any(), gomock.Any()).
		Return(nil, e.NewValidationError("limit must be at most 100"))

	rr := httptest.NewRecorder()
	h.ReportList(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports?limit=500", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestReportGet_InvalidID_400(t *testing.T) {
	t.Parallel()

	h, _, _ := newHandler(t)

	req := addChiURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/reports/nope", nil), "id", "nope")
	rr := httptest.NewRecorder()
	h.ReportGet(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestReportGet_NotFound_404(t *testing.T) {
	t.Parallel()

	h, rs, _ := newHandler(t)
	id := uuid.New()
	rs.EXPECT().Get(gomock.Any(), id).Return(nil, fmt.Errorf("postgres.Report.Get: %w", e.ErrNotFound))

	req := addChiURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+id.String(), nil), "id", id.String())
	rr := httptest.NewRecorder()
	h.ReportGet(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestReportCreate_NoPrincipal_401(t *testing.T) {
	t.Parallel()

	h, _, _ := newHandler(t)

	rr := httptest.NewRecorder()
	h.ReportCreate(rr, httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(`{}`)))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestReportCreate_OK(t *testing.T) {
	t.Parallel()

	h, rs, _ := newHandler(t)
	alice := domain.Principal{ID: "alice", Role: domain.RoleCitizen}
	want := sampleReport("alice")

	rs.EXPECT().
		Create(gomock.Any(), alice, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.Principal, req domain.CreateReportRequest) (*domain.Report, error) {
			if req.Type != domain.ReportRoad || req.Latitude == nil || *req.Latitude != 48.85 {
				t.Errorf("unexpected request: %+v", req)
			}
			return want, nil
		})

	body := `{"type":"road","description":"Pothole on Main St near bridge","latitude":48.85,"longitude":2.35,"user_id":"mallory"}`
	req := asPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(body)), alice)
	rr := httptest.NewRecorder()
	h.ReportCreate(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d, body=%s", rr.Code, rr.Body.String())
	}
	got := decodeJSON[domain.Report](t, rr)
	if got.ID != want.ID || got.OwnerID != "alice" {
		t.Fatalf("unexpected report: %+v", got)
	}
}

func TestReportCreate_InvalidJSON_400(t *testing.T) {
	t.Parallel()

	h, _, _ := newHandler(t)
	req := asPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(`{`)),
		domain.Principal{ID: "alice"})
	rr := httptest.NewRecorder()
	h.ReportCreate(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestReportCreate_Validation_CarriesEveryRule(t *testing.T) {
	t.Parallel()

	h, rs, _ := newHandler(t)
	rs.EXPECT().
		Create(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, e.NewValidationError("type is invalid", "description must be 10-500 characters"))

	req := asPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(`{"type":"x"}`)),
		domain.Principal{ID: "alice"})
	rr := httptest.NewRecorder()
	h.ReportCreate(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	got := decodeJSON[errorResponse](t, rr)
	if got.Error != "validation_failed" || len(got.Details) != 2 {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestReportUpdate_Forbidden_403(t *testing.T) {
	t.Parallel()

	h, rs, _ := newHandler(t)
	id := uuid.New()
	bob := domain.Principal{ID: "bob", Role: domain.RoleCitizen}

	rs.EXPECT().
		Update(gomock.Any(), bob, id, gomock.Any()).
		Return(nil, e.NewForbidden(domain.ForbiddenReason(domain.OpModify)))

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/reports/"+id.String(), strings.NewReader(`{"status":"resolved"}`))
	req = asPrincipal(addChiURLParam(req, "id", id.String()), bob)
	rr := httptest.NewRecorder()
	h.ReportUpdate(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
	if got := decodeJSON[errorResponse](t, rr); got.Message != "not authorized to modify this report" {
		t.Fatalf("unexpected message %q", got.Message)
	}
}

func TestReportUpdate_OK(t *testing.T) {
	t.Parallel()

	h, rs, _ := newHandler(t)
	alice := domain.Principal{ID: "alice"}
	want := sampleReport("alice")
	want.Status = domain.StatusResolved
	resolved := domain.StatusResolved

	rs.EXPECT().
		Update(gomock.Any(), alice, want.ID, domain.UpdateReportRequest{Status: &resolved}).
		Return(want, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/reports/"+want.ID.String(), strings.NewReader(`{"status":"resolved"}`))
	req = asPrincipal(addChiURLParam(req, "id", want.ID.String()), alice)
	rr := httptest.NewRecorder()
	h.ReportUpdate(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := decodeJSON[domain.Report](t, rr); got.Status != domain.StatusResolved {
		t.Fatalf("unexpected status %q", got.Status)
	}
}

func TestReportDelete_204(t *testing.T) {
	t.Parallel()

	h, rs, _ := newHandler(t)
	id := uuid.New()
	admin := domain.Principal{ID: "root", Role: domain.RoleAdmin}
	rs.EXPECT().Delete(gomock.Any(), admin, id).Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/reports/"+id.String(), nil)
	req = asPrincipal(addChiURLParam(req, "id", id.String()), admin)
	rr := httptest.NewRecorder()
	h.ReportDelete(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}
}

func TestReportDelete_Upstream_502(t *testing.T) {
	t.Parallel()

	h, rs, _ := newHandler(t)
	id := uuid.New()
	rs.EXPECT().Delete(gomock.Any(), gomock.Any(), id).
		Return(e.Upstream(e.CollaboratorStorage, context.DeadlineExceeded))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/reports/"+id.String(), nil)
	req = asPrincipal(addChiURLParam(req, "id", id.String()), domain.Principal{ID: "alice"})
	rr := httptest.NewRecorder()
	h.ReportDelete(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", rr.Code)
	}
}

func multipartRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "photo.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestPhotoUpload_OK(t *testing.T) {
	t.Parallel()

	h, _, ps := newHandler(t)
	data := []byte("\x89PNG\r\n\x1a\nrest")
	ps.EXPECT().Upload(gomock.Any(), data).Return("https://cdn.example.com/reports/2026-03-01/a.png", nil)

	rr := httptest.NewRecorder()
	h.PhotoUpload(rr, multipartRequest(t, "file", data))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := decodeJSON[map[string]string](t, rr); got["url"] == "" {
		t.Fatalf("missing url: %v", got)
	}
}

func TestPhotoUpload_MissingField_400(t *testing.T) {
	t.Parallel()

	h, _, _ := newHandler(t)
	rr := httptest.NewRecorder()
	h.PhotoUpload(rr, multipartRequest(t, "image", []byte("x")))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestPhotoUpload_ErrorKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind e.UploadErrorKind
		code int
	}{
		{e.UploadTooLarge, http.StatusRequestEntityTooLarge},
		{e.UploadUnsupportedFormat, http.StatusUnsupportedMediaType},
		{e.UploadNetwork, http.StatusBadGateway},
		{e.UploadServer, http.StatusBadGateway},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.kind), func(t *testing.T) {
			t.Parallel()

			h, _, ps := newHandler(t)
			ps.EXPECT().Upload(gomock.Any(), gomock.Any()).Return("", e.NewUploadError(tc.kind, nil))

			rr := httptest.NewRecorder()
			h.PhotoUpload(rr, multipartRequest(t, "file", []byte("GIF89a")))

			if rr.Code != tc.code {
				t.Fatalf("expected %d got %d", tc.code, rr.Code)
			}
			if got := decodeJSON[errorResponse](t, rr); got.Error != string(tc.kind) {
				t.Fatalf("expected %s got %+v", tc.kind, got)
			}
		})
	}
}

func TestMe(t *testing.T) {
	t.Parallel()

	h, _, _ := newHandler(t)
	p := domain.Principal{ID: "alice", Role: domain.RoleAdmin}

	rr := httptest.NewRecorder()
	h.Me(rr, asPrincipal(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), p))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if got := decodeJSON[domain.Principal](t, rr); got != p {
		t.Fatalf("unexpected principal %+v", got)
	}
}

func TestReportStream_ForwardsEvents(t *testing.T) {
	t.Parallel()

	h, rs, _ := newHandler(t)

	subscribed := make(chan func(domain.ChangeEvent), 1)
	unsubscribed := make(chan struct{})
	rs.EXPECT().Subscribe(gomock.Any()).DoAndReturn(func(fn func(domain.ChangeEvent)) func() {
		subscribed <- fn
		return func() { close(unsubscribed) }
	})

	srv := httptest.NewServer(http.HandlerFunc(h.ReportStream))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var publish func(domain.ChangeEvent)
	select {
	case publish = <-subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never subscribed")
	}

	rep := sampleReport("alice")
	publish(domain.ChangeEvent{Kind: domain.EventInsert, Report: rep})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got domain.ChangeEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Kind != domain.EventInsert || got.Report == nil || got.Report.ID != rep.ID {
		t.Fatalf("unexpected event %+v", got)
	}

	_ = conn.Close()
	select {
	case <-unsubscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not released after disconnect")
	}
}
