package audithttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noteguard/noteguard/internal/audit"
	"github.com/noteguard/noteguard/internal/rbac"
	"github.com/noteguard/noteguard/internal/shared"
	"github.com/noteguard/noteguard/internal/view"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	err         error
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, s.err
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, s.err
}

func newAuditRouter(t *testing.T, service *stubTimelineService) http.Handler {
	t.Helper()
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	handler := NewHandler(nil, service, templates, shared.NewCSRFManager("test-secret"))
	handler.now = func() time.Time { return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/admin/audit", handler.MountRoutes)
	return r
}

func adminRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := shared.ContextWithSession(req.Context(), &shared.Session{ID: "sess-1"})
	ctx = shared.ContextWithIdentity(ctx, &shared.Identity{PrincipalID: 7, SessionID: "sess-1", Role: rbac.RoleAdmin})
	return req.WithContext(ctx)
}

func TestTimelineRendersRows(t *testing.T) {
	rows := []audit.TimelineRow{{At: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), Actor: "admin@example.com", Action: shared.AuditSessionEvicted, ClientIP: "10.0.0.1"}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	router := newAuditRouter(t, service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/audit?from=2026-03-01&to=2026-03-15&action=auth.session_evicted"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "admin@example.com") || !strings.Contains(body, "auth.session_evicted") {
		t.Fatalf("expected row in response: %s", body)
	}
	if service.lastFilters.From.Format(time.DateOnly) != "2026-03-01" {
		t.Fatalf("unexpected filters: %+v", service.lastFilters)
	}
	if service.lastFilters.Action != shared.AuditSessionEvicted {
		t.Fatalf("expected action filter, got %q", service.lastFilters.Action)
	}
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	service := &stubTimelineService{}
	router := newAuditRouter(t, service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/audit"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := service.lastFilters.From.Format(time.DateOnly); got != "2026-03-08" {
		t.Fatalf("expected default from 2026-03-08, got %s", got)
	}
	if service.lastFilters.PageSize != defaultPageSize {
		t.Fatalf("expected default page size, got %d", service.lastFilters.PageSize)
	}
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	cases := []string{
		"/admin/audit?from=2026-03-20&to=2026-03-01",
		"/admin/audit?from=2025-01-01&to=2026-03-01",
		"/admin/audit?to=yesterday",
		"/admin/audit?page=0",
		"/admin/audit?page_size=abc",
	}
	for _, target := range cases {
		rr := httptest.NewRecorder()
		newAuditRouter(t, &stubTimelineService{}).ServeHTTP(rr, adminRequest(http.MethodGet, target))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func TestTimelineServiceFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	newAuditRouter(t, &stubTimelineService{err: errors.New("db down")}).ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/audit"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestExportCSV(t *testing.T) {
	rows := []audit.TimelineRow{{Actor: "admin@example.com", Action: shared.AuditLogin}}
	service := &stubTimelineService{exportRows: rows}
	router := newAuditRouter(t, service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/audit/export.csv?from=2026-03-01&to=2026-03-05"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ctype := rr.Header().Get("Content-Type"); !strings.Contains(ctype, "text/csv") {
		t.Fatalf("unexpected content-type: %s", ctype)
	}
	if !strings.Contains(rr.Body.String(), "admin@example.com,auth.login") {
		t.Fatalf("unexpected csv: %s", rr.Body.String())
	}
}

func TestExportIsRateLimitedPerPrincipal(t *testing.T) {
	router := newAuditRouter(t, &stubTimelineService{})
	var last int
	for i := 0; i <= exportRateLimit; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/audit/export.csv"))
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d exports, got %d", exportRateLimit, last)
	}
}
