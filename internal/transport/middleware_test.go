package transport

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/birthday-reminder/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestIDReachesUserContext(t *testing.T) {
	t.Parallel()

	app := NewApp(zap.NewNop(), nil)
	app.Get("/ping", func(c *fiber.Ctx) error {
		id, ok := observability.RequestIDFromContext(c.UserContext())
		if !ok {
			return errors.New("request id missing from context")
		}
		return c.SendString(id)
	})

	t.Run("inbound header is kept", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(fiber.HeaderXRequestID, "req-123")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		if string(body) != "req-123" {
			t.Fatalf("body = %q, want req-123", string(body))
		}
		if got := resp.Header.Get(fiber.HeaderXRequestID); got != "req-123" {
			t.Fatalf("response header = %q", got)
		}
	})

	t.Run("missing header is generated", func(t *testing.T) {
		t.Parallel()

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		if len(body) != 36 || resp.Header.Get(fiber.HeaderXRequestID) != string(body) {
			t.Fatalf("expected generated uuid, body=%q header=%q", string(body), resp.Header.Get(fiber.HeaderXRequestID))
		}
	})
}

func TestErrorHandlerRendersJSON(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	app := NewApp(zap.New(core), nil)
	app.Get("/missing", func(*fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "not found: user 9")
	})
	app.Get("/boom", func(*fiber.Ctx) error {
		return errors.New("database is locked")
	})

	tests := []struct {
		path     string
		status   int
		body     string
		logLevel zapcore.Level
	}{
		{path: "/missing", status: fiber.StatusNotFound, body: `{"error":"not found: user 9"}`, logLevel: zapcore.WarnLevel},
		{path: "/boom", status: fiber.StatusInternalServerError, body: `{"error":"database is locked"}`, logLevel: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != tt.status || strings.TrimSpace(string(body)) != tt.body {
			t.Fatalf("%s: status=%d body=%s", tt.path, resp.StatusCode, string(body))
		}

		entries := logs.FilterField(zap.String("path", tt.path)).All()
		if len(entries) != 1 || entries[0].Level != tt.logLevel {
			t.Fatalf("%s: unexpected log entries %+v", tt.path, entries)
		}
		if _, ok := entries[0].ContextMap()["requestId"]; !ok {
			t.Fatalf("%s: expected requestId in log fields", tt.path)
		}
	}
}
