package realtime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/auth"
	"github.com/opshub/pkg/config"
	"github.com/opshub/pkg/middleware"
	"github.com/opshub/pkg/router"
)

func newWSApp(t *testing.T) (*fiber.App, *Gateway) {
	t.Helper()
	jwt := auth.NewJWTManager(&config.JWTConfig{Secret: "k", Issuer: "t", Expire: 60})
	g := NewGateway(memberStore{})
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	router.Register(app, router.Middlewares{}, NewTransport(g, jwt, time.Second))
	return app, g
}

func upgradeRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set(fiber.HeaderConnection, "Upgrade")
	req.Header.Set(fiber.HeaderUpgrade, "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	return req
}

func TestHandshakeRejectsBeforeUpgrade(t *testing.T) {
	app, g := newWSApp(t)
	other := auth.NewJWTManager(&config.JWTConfig{Secret: "other", Issuer: "t", Expire: 60})
	foreign, _ := other.GenerateToken(7, "mallory")

	cases := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"missing token", upgradeRequest("/ws"), http.StatusUnauthorized},
		{"garbage token", upgradeRequest("/ws?token=nope"), http.StatusUnauthorized},
		{"wrong signature", upgradeRequest("/ws?token=" + foreign), http.StatusUnauthorized},
		{"plain http", httptest.NewRequest(http.MethodGet, "/ws", nil), http.StatusUpgradeRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(tc.req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}
	if g.IsOnline(7) {
		t.Fatal("rejected handshake registered a socket")
	}
}
