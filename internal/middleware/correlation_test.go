package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-autograder/internal/middleware"
)

func correlationApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CorrelationIDFromContext(c.UserContext()) + "|" + middleware.GetCorrelationID(c))
	})
	return app
}

func TestCorrelationIDPropagation(t *testing.T) {
	cases := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{name: "correlation header", headers: map[string]string{"X-Correlation-ID": "grade-run-42"}, expected: "grade-run-42"},
		{name: "request id fallback", headers: map[string]string{"X-Request-ID": "req-7"}, expected: "req-7"},
		{name: "correlation wins", headers: map[string]string{"X-Correlation-ID": "a", "X-Request-ID": "b"}, expected: "a"},
		{name: "too long", headers: map[string]string{"X-Correlation-ID": strings.Repeat("x", 65)}},
		{name: "control characters", headers: map[string]string{"X-Correlation-ID": "bad id"}},
		{name: "missing"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}

			resp, err := correlationApp().Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			id := resp.Header.Get(middleware.CorrelationHeader)
			if tc.expected != "" {
				require.Equal(t, tc.expected, id)
			} else {
				_, err := uuid.Parse(id)
				require.NoError(t, err)
			}

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equal(t, id+"|"+id, string(body))
		})
	}
}

func TestContextWithCorrelationIgnoresBlank(t *testing.T) {
	ctx := middleware.ContextWithCorrelation(nil, "  ")
	require.NotNil(t, ctx)
	require.Empty(t, middleware.CorrelationIDFromContext(ctx))

	ctx = middleware.ContextWithCorrelation(ctx, " drain-1 ")
	require.Equal(t, "drain-1", middleware.CorrelationIDFromContext(ctx))
}
