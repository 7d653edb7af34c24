package stream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/auth"
	"github.com/opshub/pkg/config"
	"github.com/opshub/pkg/middleware"
	"github.com/opshub/pkg/router"
	"github.com/opshub/services/ops/internal/permission"
)

type denyAll struct{}

func (denyAll) HasAny(context.Context, int64, ...permission.Name) (bool, error) { return false, nil }
func (denyAll) HasAll(context.Context, int64, ...permission.Name) (bool, error) { return false, nil }

func newStreamApp(t *testing.T) (*fiber.App, *Registry, *auth.JWTManager) {
	t.Helper()
	jwt := auth.NewJWTManager(&config.JWTConfig{Secret: "k", Issuer: "t", Expire: 60})
	reg := NewRegistry(WithHeartbeatInterval(0))
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	router.Register(app, permission.Guards(middleware.JWTAuth(jwt), denyAll{}), NewHandler(reg))
	return app, reg, jwt
}

func TestStreamRejectsMissingOrInvalidToken(t *testing.T) {
	app, reg, _ := newStreamApp(t)

	cases := map[string]string{
		"missing": "/api/stream",
		"invalid": "/api/stream?token=nope",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
	if reg.TotalConnections() != 0 {
		t.Fatal("rejected request registered a connection")
	}
}

func TestStreamFirstFrameIsConnected(t *testing.T) {
	app, reg, jwt := newStreamApp(t)
	token, _ := jwt.GenerateToken(7, "alice")

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		resp, err := app.Test(req, -1)
		done <- result{resp, err}
	}()

	// 首帧在登记前写出，登记后关闭以结束响应
	waitFor(t, func() bool { return reg.ConnectionCount(7) == 1 })
	reg.CloseAll()

	res := <-done
	if res.err != nil {
		t.Fatal(res.err)
	}
	if res.resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.resp.StatusCode)
	}
	if ct := res.resp.Header.Get(fiber.HeaderContentType); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}
	body, err := io.ReadAll(res.resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	want := "event: connected\ndata: {\"userId\":7}\n\n"
	if !strings.HasPrefix(string(body), want) {
		t.Fatalf("body = %q, want prefix %q", body, want)
	}
}

func TestStatsRequiresPermission(t *testing.T) {
	app, _, jwt := newStreamApp(t)
	token, _ := jwt.GenerateToken(7, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/stream/stats", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}
