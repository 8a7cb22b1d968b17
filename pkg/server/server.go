package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/sentinelsec/sentinel-core/pkg/config"
	"github.com/sentinelsec/sentinel-core/pkg/version"
)

const AdminHealthPath = "/__/health"

// Server defines the common behavior for the process servers.
type Server interface {
	Run() error
	Shutdown() error
}

type BaseServer struct {
	Config         *config.Config
	Logger         *logrus.Logger
	Router         *fiber.App
	metricsApp     *fiber.App
	metricsStarted bool
}

func NewBaseServer(config *config.Config, logger *logrus.Logger) *BaseServer {
	r := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReduceMemoryUsage:     true,
		Network:               fiber.NetworkTCP,
		EnablePrintRoutes:     false,
		BodyLimit:             1024 * 1024,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	r.Server().NoDefaultServerHeader = true
	r.Server().NoDefaultDate = true
	r.Server().NoDefaultContentType = true

	return &BaseServer{
		Config: config,
		Logger: logger,
		Router: r,
	}
}

// setupHealthCheck adds the health check endpoints to the server
func (s *BaseServer) setupHealthCheck() {
	s.Router.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "healthy",
			"version": version.Version,
			"time":    time.Now().Format(time.RFC3339),
		})
	})
	s.Router.Get(AdminHealthPath, func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
}

func (s *BaseServer) setupMetricsEndpoint() {
	if !s.Config.Metrics.Enabled {
		s.Logger.Info("prometheus metrics are disabled by configuration")
		return
	}
	if s.metricsStarted {
		return
	}
	s.metricsStarted = true

	metricsApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	metricsApp.Use(recover.New())

	metricsApp.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	s.metricsApp = metricsApp

	// Metrics listen on their own port so the scrape surface stays
	// separate from the ops API.
	go func() {
		port := s.Config.Server.MetricsPort
		addr := fmt.Sprintf(":%d", port)
		if err := metricsApp.Listen(addr); err != nil {
			if !strings.Contains(err.Error(), "address already in use") {
				s.Logger.WithError(err).Error("Failed to start metrics server")
			}
		}
	}()
}

func (s *BaseServer) shutdownMetrics() error {
	if s.metricsApp == nil {
		return nil
	}
	return s.metricsApp.Shutdown()
}
