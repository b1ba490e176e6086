package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

func TestLogger_LogsRenderedStatus(t *testing.T) {
	tests := []struct {
		name       string
		handler    fiber.Handler
		wantStatus int
		wantLevel  string
	}{
		{
			name:       "success",
			handler:    func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) },
			wantStatus: 204,
			wantLevel:  "INFO",
		},
		{
			name:       "client error",
			handler:    func(c *fiber.Ctx) error { return domain.ErrSiteNotFound },
			wantStatus: 404,
			wantLevel:  "WARN",
		},
		{
			name:       "server error",
			handler:    func(c *fiber.Ctx) error { return domain.ErrInternal },
			wantStatus: 500,
			wantLevel:  "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(discardLogger())})
			app.Use(Logger(logger))
			app.Get("/x", tt.handler)

			resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var line map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, "http request", line["msg"])
			assert.Equal(t, tt.wantLevel, line["level"])
			assert.EqualValues(t, tt.wantStatus, line["status"])
			assert.Equal(t, "/x", line["path"])
		})
	}
}

func TestLogger_IncludesSite(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	app := fiber.New()
	app.Use(Logger(logger))
	app.Get("/x", func(c *fiber.Ctx) error {
		c.Locals(LocalSite, &domain.Site{Slug: "plant-north"})
		c.Locals(LocalDeviceID, "kiosk-2")
		return c.SendStatus(fiber.StatusOK)
	})

	_, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "plant-north", line["site"])
	assert.Equal(t, "kiosk-2", line["device_id"])
}
