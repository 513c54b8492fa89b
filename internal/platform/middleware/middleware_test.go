package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := RequestID()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}

	rid, _ := c.Get("request_id").(string)
	if rid == "" {
		t.Error("request_id not set on context")
	}
	if rec.Header().Get("X-Request-ID") != rid {
		t.Error("X-Request-ID response header does not match context value")
	}
}

func TestRequestIDHonorsIncomingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := RequestID()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if rid, _ := c.Get("request_id").(string); rid != "req-123" {
		t.Errorf("request_id = %q, want req-123", rid)
	}
}

func TestRecoveryConvertsPanicTo500(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	handler := Recovery(logger)(func(c echo.Context) error {
		panic("boom")
	})

	err := handler(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", httpErr.Code)
	}
}
