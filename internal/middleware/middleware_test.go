package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-autograder/internal/middleware"
	"github.com/noah-isme/gema-autograder/internal/observability"
)

func TestRateLimitRejectsBurst(t *testing.T) {
	app := fiber.New()
	app.Post("/start", middleware.RateLimit("grading_start", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/start", nil), -1)
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}

	require.Equal(t, []int{fiber.StatusAccepted, fiber.StatusAccepted, fiber.StatusTooManyRequests}, statuses)
}

func TestObservabilityCountsAPIRoutesOnly(t *testing.T) {
	app := fiber.New()
	logger := zerolog.Nop()
	middleware.Register(app, middleware.Config{Logger: &logger, DisableAccessLog: true})
	app.Get("/api/v1/grading/history/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNotFound)
	})
	app.Get("/api/v1/grading/queue/events", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	route := "/api/v1/grading/history/:id"
	requests := observability.APIRequests().WithLabelValues(http.MethodGet, route, "404")
	errorsBefore := testutil.ToFloat64(observability.APIErrors().WithLabelValues(http.MethodGet, route, "404"))
	before := testutil.ToFloat64(requests)
	streamBefore := testutil.ToFloat64(observability.APIRequests().WithLabelValues(http.MethodGet, "/api/v1/grading/queue/events", "200"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/grading/history/abc", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(middleware.CorrelationHeader))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/grading/queue/events", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Equal(t, before+1, testutil.ToFloat64(requests))
	require.Equal(t, errorsBefore+1, testutil.ToFloat64(observability.APIErrors().WithLabelValues(http.MethodGet, route, "404")))
	require.Equal(t, streamBefore, testutil.ToFloat64(observability.APIRequests().WithLabelValues(http.MethodGet, "/api/v1/grading/queue/events", "200")))
}
