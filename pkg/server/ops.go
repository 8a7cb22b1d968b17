package server

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/sentinelsec/sentinel-core/pkg/config"
	"github.com/sentinelsec/sentinel-core/pkg/scanner"
)

// StatsSource exposes the pipeline snapshot served on /stats.
type StatsSource interface {
	Collect() scanner.Stats
}

// OpsServer is the operational surface of the scan pipeline: health
// checks, the stats snapshot and the prometheus scrape endpoint. The
// pipeline itself has no HTTP ingress; traffic arrives over the event
// bus.
type OpsServer struct {
	*BaseServer
	stats StatsSource
}

func NewOpsServer(config *config.Config, logger *logrus.Logger, stats StatsSource) *OpsServer {
	s := &OpsServer{
		BaseServer: NewBaseServer(config, logger),
		stats:      stats,
	}
	s.setupRoutes()
	s.setupHealthCheck()
	return s
}

func (s *OpsServer) Run() error {
	s.setupMetricsEndpoint()

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	s.Logger.WithField("addr", addr).Info("Starting ops server")
	return s.Router.Listen(addr)
}

func (s *OpsServer) setupRoutes() {
	s.Router.Get("/stats", func(ctx *fiber.Ctx) error {
		if s.stats == nil {
			return ctx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "stats are not available",
			})
		}
		return ctx.Status(fiber.StatusOK).JSON(s.stats.Collect())
	})
}

func (s *OpsServer) Shutdown() error {
	if err := s.shutdownMetrics(); err != nil {
		s.Logger.WithError(err).WithField("component", "metrics").Error("Failed to stop metrics server")
	}
	return s.Router.Shutdown()
}

var _ Server = (*OpsServer)(nil)
