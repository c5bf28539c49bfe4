package main

import (
	"bufio"
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/Abraxas-365/remodel/pkg/broadcastx"
	"github.com/Abraxas-365/remodel/pkg/broadcastx/bxsse"
	"github.com/Abraxas-365/remodel/pkg/dlqx"
	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/jobs"
	"github.com/Abraxas-365/remodel/pkg/jobx"
	"github.com/Abraxas-365/remodel/pkg/logx"
	"github.com/Abraxas-365/remodel/pkg/sessiontoken"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// serverDeps is what the HTTP surface needs from the container.
type serverDeps struct {
	Jobs        *jobx.Client
	DeadLetters *dlqx.DeadLetters
	Broadcaster *broadcastx.Broadcaster
	Tokens      *sessiontoken.Service
	Health      func(ctx context.Context) map[string]error

	// UploadDir is served under /uploads when set.
	UploadDir   string
	CORSOrigins string
	Debug       bool
	Heartbeat   time.Duration
}

func newServer(d serverDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Remodel API",
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler(d.Debug),
		BodyLimit:             1 * 1024 * 1024,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  d.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods:  "GET, POST, OPTIONS",
		ExposeHeaders: fiber.HeaderXRequestID,
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${respHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	app.Get("/health", healthCheckHandler(d))

	if d.UploadDir != "" {
		app.Static(uploadsRoute, d.UploadDir)
	}

	api := app.Group("/api/v1")
	api.Post("/jobs/:queue", enqueueHandler(d))
	api.Get("/jobs/:id", jobStatusHandler(d))
	api.Get("/dlq/:queue", deadLettersHandler(d))
	api.Get("/sessions/:sessionId/events", sessionEventsHandler(d))

	app.Use(notFoundHandler)
	return app
}

// ============================================================================
// Handler Functions
// ============================================================================

func healthCheckHandler(d serverDeps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{"status": "healthy", "service": "remodel"}
		if d.Health != nil {
			for name, err := range d.Health(c.UserContext()) {
				if err != nil {
					health[name] = "unhealthy"
					health[name+"_error"] = err.Error()
					health["status"] = "degraded"
				} else {
					health[name] = "healthy"
				}
			}
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

// enqueueHandler validates the body against the queue schema before it is
// stored, so producers learn about bad payloads synchronously.
func enqueueHandler(d serverDeps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		queue, err := url.PathUnescape(c.Params("queue"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid queue name")
		}

		payload := append([]byte(nil), c.Body()...)
		if err := jobs.Validate(queue, payload); err != nil {
			return err
		}

		requestID := c.GetRespHeader(fiber.HeaderXRequestID)
		ctx := logx.ContextWithRequestID(c.UserContext(), requestID)

		opts := []jobx.EnqueueOption{jobx.WithRequestID(requestID)}
		if delay := c.Query("delay"); delay != "" {
			dur, err := time.ParseDuration(delay)
			if err != nil || dur < 0 {
				return fiber.NewError(fiber.StatusBadRequest, "invalid delay")
			}
			opts = append(opts, jobx.WithDelay(dur))
		}

		id, err := d.Jobs.Enqueue(ctx, queue, payload, opts...)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"jobId": id, "queue": queue})
	}
}

func jobStatusHandler(d serverDeps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		info, err := d.Jobs.GetJob(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(info)
	}
}

func deadLettersHandler(d serverDeps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d.DeadLetters == nil {
			return fiber.NewError(fiber.StatusNotFound, "dead letters are disabled")
		}
		queue, err := url.PathUnescape(c.Params("queue"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid queue name")
		}
		entries, err := d.DeadLetters.List(c.UserContext(), queue, c.QueryInt("limit", 50))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"queue": queue, "entries": entries})
	}
}

// sessionEventsHandler streams the session channel as Server-Sent Events.
// EventSource cannot set headers, so the token may also come as ?token=.
func sessionEventsHandler(d serverDeps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Params("sessionId")
		if _, err := d.Tokens.Authorize(bearerToken(c), sessionID); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		sub, err := d.Broadcaster.Subscribe(ctx, broadcastx.SessionChannel(sessionID))
		if err != nil {
			cancel()
			return err
		}

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		heartbeat := d.Heartbeat
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer cancel()
			defer sub.Close()
			if err := bxsse.Stream(ctx, w, sub, heartbeat); err != nil {
				logx.WithError(err).WithField("session_id", sessionID).Debug("sse: stream closed")
			}
		}))
		return nil
	}
}

func bearerToken(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
	})
}

// ============================================================================
// Error Handler
// ============================================================================

// globalErrorHandler converts errors to the JSON error envelope.
func globalErrorHandler(debug bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID := c.GetRespHeader(fiber.HeaderXRequestID)
		logx.WithFields(logx.Fields{
			"path":       c.Path(),
			"method":     c.Method(),
			"ip":         c.IP(),
			"request_id": requestID,
		}).Errorf("Request error: %v", err)

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error":      fe.Message,
				"code":       "FIBER_ERROR",
				"status":     fe.Code,
				"request_id": requestID,
			})
		}

		var e *errx.Error
		if errors.As(err, &e) {
			response := fiber.Map{
				"error":      e.Message,
				"code":       e.Code,
				"type":       string(e.Type),
				"status":     e.HTTPStatus,
				"request_id": requestID,
			}
			if len(e.Details) > 0 {
				response["details"] = e.Details
			}
			if debug && e.Err != nil {
				response["underlying_error"] = e.Err.Error()
			}
			return c.Status(e.HTTPStatus).JSON(response)
		}

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":      "Internal Server Error",
			"type":       "INTERNAL",
			"code":       "INTERNAL_ERROR",
			"request_id": requestID,
		})
	}
}

// startServer listens until ctx ends, then drains connections.
func startServer(ctx context.Context, app *fiber.App, port string) error {
	errCh := make(chan error, 1)
	go func() {
		logx.Infof("🚀 Server listening on port %s", port)
		logx.Infof("💚 Health Check: http://localhost:%s/health", port)
		errCh <- app.Listen(":" + port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logx.Info("Shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}
	logx.Info("✅ Server exited successfully")
	return nil
}
