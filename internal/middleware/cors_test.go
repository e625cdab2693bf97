package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"news-cors-proxy/internal/config"
)

var testCORS = config.CORSConfig{
	AllowOrigin:  "*",
	AllowMethods: "GET, POST, OPTIONS",
	AllowHeaders: "Content-Type",
}

func TestCORS_Preflight(t *testing.T) {
	e := echo.New()
	e.Use(CORS(testCORS))
	called := false
	e.Any("/*", func(c echo.Context) error {
		called = true
		return c.String(http.StatusTeapot, "should not run")
	})

	for _, path := range []string{"/", "/?url=x&apiKey=y", "/anything/else", "/healthz"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rec.Body.String())
			}
			want := map[string]string{
				"Access-Control-Allow-Origin":  "*",
				"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
				"Access-Control-Allow-Headers": "Content-Type",
			}
			for k, v := range want {
				if got := rec.Header().Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
		})
	}

	if called {
		t.Error("handler should not run for preflight requests")
	}
}

func TestCORS_AllowOriginOnEveryResponse(t *testing.T) {
	e := echo.New()
	e.Use(CORS(testCORS))
	e.GET("/ok", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/ok", http.StatusOK},
		{"/fail", http.StatusInternalServerError},
		{"/missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
			}
			if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "" {
				t.Errorf("Access-Control-Allow-Methods = %q, want it only on preflight", got)
			}
		})
	}
}

func TestCORS_ConfiguredOrigin(t *testing.T) {
	cfg := testCORS
	cfg.AllowOrigin = "https://example.github.io"

	e := echo.New()
	e.Use(CORS(cfg))
	e.GET("/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != cfg.AllowOrigin {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, cfg.AllowOrigin)
	}
}
