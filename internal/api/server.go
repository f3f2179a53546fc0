package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fundingflow/config"
	"fundingflow/internal/metrics"
	"fundingflow/internal/model"
	"fundingflow/internal/refresh"
	"fundingflow/logger"
)

const defaultPort = "3011"

// FundingSource runs one aggregation. *engine.Engine satisfies it.
type FundingSource interface {
	Fundings(ctx context.Context, sel model.Selection) ([]model.FundingRate, error)
}

// SnapshotSource exposes the latest background result. *refresh.Refresher
// satisfies it.
type SnapshotSource interface {
	Latest() refresh.Snapshot
}

// Server hosts the HTTP API in front of the aggregation engine.
type Server struct {
	cfg           config.ServerConfig
	app           config.FundingflowConfig
	prometheus    bool
	source        FundingSource
	snapshots     SnapshotSource
	exchanges     []model.ExchangeID
	log           *logger.Log
	metricStore   *metricStore
	logStore      *logStore
	sampler       *resourceSampler
	metricHandler metrics.MetricHandlerID
	httpServer    *http.Server
}

// NewServer returns nil when the server is disabled. snapshots may be nil
// when background refresh is off.
func NewServer(cfg *config.Config, source FundingSource, snapshots SnapshotSource, exchanges []model.ExchangeID, log *logger.Log) (*Server, error) {
	if !cfg.Server.Enabled {
		return nil, nil
	}
	if source == nil {
		return nil, errors.New("api: funding source is required")
	}
	if log == nil {
		log = logger.GetLogger()
	}

	serverCfg := cfg.Server
	serverCfg.Address = normalizeAddress(serverCfg.Address)
	if serverCfg.DefaultExchanges == nil {
		serverCfg.DefaultExchanges = map[string]bool{}
	}

	if serverCfg.History <= 0 {
		serverCfg.History = defaultHistory
	}

	metricStore := newMetricStore(serverCfg.History)
	logStore := newLogStore(serverCfg.History)
	log.AddHook(logStore)

	return &Server{
		cfg:           serverCfg,
		app:           cfg.Fundingflow,
		prometheus:    cfg.Metrics.Prometheus,
		source:        source,
		snapshots:     snapshots,
		exchanges:     exchanges,
		log:           log,
		metricStore:   metricStore,
		logStore:      logStore,
		sampler:       newResourceSampler(serverCfg.History, serverCfg.ResourceInterval, log),
		metricHandler: metrics.RegisterMetricHandler(metricStore.handle),
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.sampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.WithComponent("api").WithFields(logger.Fields{"address": s.cfg.Address}).Info("api server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.logStore != nil {
		s.logStore.close()
	}
	if s.sampler != nil {
		s.sampler.stop()
	}
}

// Address reports the network address the server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.log))
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/fundings", s.handleFundings)
	router.GET("/fundings/latest", s.handleLatest)
	router.GET("/healthz", s.handleHealth)
	router.GET("/debug/metrics", s.handleMetricEvents)
	router.GET("/debug/logs", s.handleLogs)
	router.GET("/debug/resources", s.handleResources)
	if s.prometheus {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return router, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:" + defaultPort
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = defaultPort
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, defaultPort)
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, defaultPort)
	}

	return addr
}
