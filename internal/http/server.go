package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jmehdipour/sms-relay/internal/config"
	"github.com/jmehdipour/sms-relay/internal/http/middleware"
	"github.com/jmehdipour/sms-relay/internal/metrics"
	"github.com/jmehdipour/sms-relay/internal/repository"
)

// Deps are the services behind the routes. Reports and Dedup are optional.
type Deps struct {
	Relay   MessageHandler
	Reports repository.CHBroadcastsRepository
	Dedup   middleware.Deduper
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, logger *zap.Logger, deps Deps) *Server {
	logger = logger.With(zap.String("component", "http"))

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), requestLogger(logger))

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// webhook
	var hookMW []echo.MiddlewareFunc
	if cfg.Webhook.ValidateSignature {
		hookMW = append(hookMW, middleware.TwilioSignatureMiddleware(cfg.Webhook.AuthToken, cfg.Webhook.PublicURL))
	}
	if deps.Dedup != nil {
		hookMW = append(hookMW, middleware.DedupMiddleware(deps.Dedup))
	}
	path := cfg.Webhook.Path
	if path == "" {
		path = "/sms/inbound"
	}
	e.POST(path, inboundSMSHandler(deps.Relay, logger), hookMW...)

	// reports
	if deps.Reports != nil {
		v1 := e.Group("/v1", middleware.APIKeyMiddleware(cfg.HTTP.APIKeys))
		v1.GET("/reports/broadcasts", listBroadcastsHandler(deps.Reports))
	}

	return &Server{e: e, log: logger}
}

func (s *Server) Start(addr string) error {
	s.log.Info("listening", zap.String("addr", addr))
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return echoMid.RequestLoggerWithConfig(echoMid.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echoMid.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}

func echoLogLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}

// ServeHTTP lets the server be driven without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }
