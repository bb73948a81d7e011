package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cribnosh/cribnosh-backend/api/middleware"
	"github.com/cribnosh/cribnosh-backend/internal/changes"
	"github.com/cribnosh/cribnosh-backend/internal/notifications"
	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type testNotificationsService struct {
	markReadFn    func(ctx context.Context, userID, notificationID uuid.UUID) error
	markAllReadFn func(ctx context.Context, userID uuid.UUID) (int64, error)
	listFn        func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
}

func (s *testNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, userID, notificationID)
	}
	return nil
}

func (s *testNotificationsService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, userID)
	}
	return 0, nil
}

func (s *testNotificationsService) SendOrderNotification(context.Context, notifications.SendOrderNotificationInput) (*notifications.OrderNotificationDTO, error) {
	return nil, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func withActor(req *http.Request, roles ...enums.UserRole) (*http.Request, auth.Actor) {
	if len(roles) == 0 {
		roles = []enums.UserRole{enums.RoleCustomer}
	}
	actor := auth.Actor{UserID: uuid.New(), Roles: roles}
	return req.WithContext(middleware.WithActor(req.Context(), actor)), actor
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestMarkNotificationReadSuccess(t *testing.T) {
	notificationID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+notificationID.String()+"/read", nil)
	req, actor := withActor(req)
	req = addRouteParam(req, "notificationId", notificationID.String())

	called := false
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, uid, nid uuid.UUID) error {
			called = true
			if uid != actor.UserID {
				t.Fatalf("unexpected user %s", uid)
			}
			if nid != notificationID {
				t.Fatalf("unexpected notification %s", nid)
			}
			return nil
		},
	}

	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !called {
		t.Fatal("expected service called")
	}
	var envelope struct {
		Data map[string]bool `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !envelope.Data["read"] {
		t.Fatal("response missing read flag")
	}
}

func TestMarkNotificationReadRequiresActor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+uuid.NewString()+"/read", nil)
	req = addRouteParam(req, "notificationId", uuid.NewString())
	resp := httptest.NewRecorder()
	MarkNotificationRead(&testNotificationsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestMarkNotificationReadInvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/invalid/read", nil)
	req, _ = withActor(req)
	req = addRouteParam(req, "notificationId", "invalid")
	resp := httptest.NewRecorder()
	MarkNotificationRead(&testNotificationsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req, _ = withActor(req)
	req = addRouteParam(req, "notificationId", uuid.NewString())
	svc := &testNotificationsService{
		markReadFn: func(context.Context, uuid.UUID, uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		},
	}
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestMarkAllNotificationsReadSuccess(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read-all", nil)
	req, actor := withActor(req)
	svc := &testNotificationsService{
		markAllReadFn: func(ctx context.Context, uid uuid.UUID) (int64, error) {
			if uid != actor.UserID {
				t.Fatalf("unexpected user %s", uid)
			}
			return 5, nil
		},
	}

	resp := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data map[string]float64 `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["updated"] != 5 {
		t.Fatalf("expected updated=5 got %v", envelope.Data["updated"])
	}
}

func TestListNotificationsParsesQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=10&unreadOnly=true&cursor=abc", nil)
	req, actor := withActor(req)

	var got notifications.ListParams
	svc := &testNotificationsService{
		listFn: func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
			got = params
			return &notifications.ListResult{Items: []notifications.NotificationDTO{}}, nil
		},
	}
	resp := httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if got.UserID != actor.UserID || got.Limit != 10 || !got.UnreadOnly || got.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", got)
	}
}

func TestListNotificationsRejectsBadLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=500", nil)
	req, _ = withActor(req)
	resp := httptest.NewRecorder()
	ListNotifications(&testNotificationsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

type stubChangeFeed struct {
	input changes.ListSinceInput
}

func (s *stubChangeFeed) ListSince(_ context.Context, input changes.ListSinceInput) (*changes.ChangeList, error) {
	s.input = input
	return &changes.ChangeList{Changes: []changes.ChangeDTO{}}, nil
}

func TestListChangesParsesCursorAndAfter(t *testing.T) {
	after := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/changes?cursor=42&after="+after.Format(time.RFC3339), nil)
	req, actor := withActor(req)
	feed := &stubChangeFeed{}

	resp := httptest.NewRecorder()
	ListChanges(feed, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !feed.input.After.Equal(after) || feed.input.Cursor != 42 || feed.input.Actor.UserID != actor.UserID {
		t.Fatalf("unexpected input %+v", feed.input)
	}

	for _, query := range []string{"after=yesterday", "cursor=-3", "cursor=abc"} {
		req = httptest.NewRequest(http.MethodGet, "/api/v1/changes?"+query, nil)
		req, _ = withActor(req)
		resp = httptest.NewRecorder()
		ListChanges(feed, testLogger())(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", query, resp.Code)
		}
	}
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReadyReportsFailures(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	resp := httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}})(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{err: context.DeadlineExceeded}})(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if resp.Header().Get(envHeader) != "test" {
		t.Fatalf("expected env header")
	}
}
