package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cribnosh/cribnosh-backend/api/controllers"
	"github.com/cribnosh/cribnosh-backend/internal/support"
	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type allowSessions struct{}

func (allowSessions) HasSession(context.Context, string) (bool, error) {
	return true, nil
}

type stubSupport struct {
	support.Service
	assigned bool
}

func (s *stubSupport) AssignAgent(_ context.Context, input support.AssignInput) (*support.CaseDTO, error) {
	s.assigned = true
	return &support.CaseDTO{ID: input.CaseID}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:  config.AppConfig{Env: "test"},
		JWT:  config.JWTConfig{Secret: "router-secret", Issuer: "cribnosh-test", ExpirationMinutes: 15},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

func newTestRouter(t *testing.T, supportSvc support.Service) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	h := NewRouter(Dependencies{
		Config:   cfg,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Gatherer: reg,
		Metrics:  metrics.NewHTTPMetrics(reg),
		Sessions: allowSessions{},
		Checks:   map[string]controllers.Pinger{"db": stubPinger{}, "redis": stubPinger{}},
		Support:  supportSvc,
	})
	return h, cfg
}

func bearer(t *testing.T, cfg *config.Config, roles ...enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{
		UserID: uuid.New(),
		Roles:  roles,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthEndpoints(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestMetricsEndpointExposesHTTPHistogram(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "cribnosh_http_request_duration_seconds") {
		t.Fatalf("expected http histogram in output")
	}
}

func TestAPIRequiresToken(t *testing.T) {
	h, cfg := newTestRouter(t, nil)

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.RoleCustomer))
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAdminRoutesRequireOperator(t *testing.T) {
	h, cfg := newTestRouter(t, &stubSupport{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/logs", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.RoleChef))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestAdminAssignReachesSupport(t *testing.T) {
	svc := &stubSupport{}
	h, cfg := newTestRouter(t, svc)

	body := `{"agent_id":"` + uuid.NewString() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/support/cases/"+uuid.NewString()+"/assign", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t, cfg, enums.RoleStaff))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !svc.assigned {
		t.Fatalf("expected AssignAgent to be called")
	}
}

func TestOrderNotificationsRequireChefOrOperator(t *testing.T) {
	h, cfg := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+uuid.NewString()+"/notifications", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, cfg, enums.RoleCustomer))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
