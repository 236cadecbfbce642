package auth_test

import (
	"net/http/httptest"
	"testing"

	"portfolio-persist/core/middleware/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(cfg auth.Config) *fiber.App {
	app := fiber.New()
	app.Use(auth.New(cfg))
	app.Get("/persistence/status", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/metrics", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app
}

func TestAuth(t *testing.T) {
	app := newApp(auth.Config{ApiKey: "secret", Skip: []string{"/metrics"}})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"MissingKey", "/persistence/status", "", fiber.StatusUnauthorized},
		{"WrongKey", "/persistence/status", "nope", fiber.StatusUnauthorized},
		{"ValidKey", "/persistence/status", "secret", fiber.StatusOK},
		{"SkippedPath", "/metrics", "", fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set(auth.Header, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	t.Run("QueryParameter", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/persistence/status?api_key=secret", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("Disabled", func(t *testing.T) {
		resp, err := newApp(auth.Config{}).Test(httptest.NewRequest("GET", "/persistence/status", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}
