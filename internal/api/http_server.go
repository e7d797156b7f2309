package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cuebook/internal/config"
	"cuebook/internal/domain"
	"cuebook/internal/metrics"
	"cuebook/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// FailedTasks lists outbox deliveries that ran out of retries.
type FailedTasks interface {
	Failed(ctx context.Context) ([]models.OutboxTask, error)
}

// RateChecker counts calls per key in fixed windows.
type RateChecker interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Services are the engine operations exposed over HTTP. Outbox, Limits and
// ExportDir are optional. With ExportDir set, revenue exports are also kept
// on disk.
type Services struct {
	Bookings  domain.BookingService
	Payments  domain.PaymentService
	Wallets   domain.WalletService
	Dashboard domain.DashboardService
	Outbox    FailedTasks
	Limits    RateChecker
	ExportDir string
}

const (
	paymentPrepareLimit  = 5
	paymentPrepareWindow = time.Minute
)

// HTTPServer exposes the booking engine as a JSON API.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     Services
	echo    *echo.Echo
	keys    *keyring
	limiter *rateLimiter
	log     zerolog.Logger
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "http").Logger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New()}

	s := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		echo:    e,
		keys:    newKeyring(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
		log:     log,
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(s.accessLog)
	e.Use(middleware.Recover())
	e.Use(s.rateLimit)

	s.routes()
	return s
}

func (s *HTTPServer) routes() {
	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	v1 := s.echo.Group("/api/v1")
	v1.GET("/clubs/:id/availability", s.handleAvailability)

	user := v1.Group("", bearerAuth(s.cfg.Auth))
	user.POST("/bookings", s.handleCreateBooking)
	user.GET("/bookings", s.handleListBookings)
	user.GET("/bookings/:id", s.handleGetBooking)
	user.POST("/bookings/:id/cancel", s.handleCancel)
	user.POST("/bookings/:id/check-in", s.handleCheckIn)
	user.POST("/bookings/:id/check-out", s.handleCheckOut)
	user.GET("/bookings/:id/end-play", s.handlePreviewEndPlay)
	user.POST("/bookings/:id/end-play", s.handleEndPlay)
	user.POST("/clubs/:id/walk-ins", s.handleWalkIn)
	user.POST("/payments", s.handlePreparePayment)
	user.GET("/wallet", s.handleWallet)
	user.GET("/wallet/ledger", s.handleLedger)
	user.POST("/wallet/withdraw", s.handleWithdraw)
	user.GET("/clubs/:id/revenue", s.handleRevenue)
	user.GET("/clubs/:id/revenue/export", s.handleRevenueExport)

	v1.POST("/payments/webhook", s.handlePaymentWebhook, s.apiKeyAuth(PermWritePayments))
	v1.GET("/admin/outbox/failed", s.handleFailedOutbox, s.apiKeyAuth(PermReadOutbox))
}

// Handler returns the routed handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

func (s *HTTPServer) Start() error {
	s.echo.Server.ReadHeaderTimeout = 5 * time.Second
	s.echo.Server.WriteTimeout = 30 * time.Second

	addr := fmt.Sprintf(":%d", s.cfg.HTTP.Port)
	s.log.Info().Str("addr", addr).Msg("HTTP API listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *HTTPServer) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		code := c.Response().Status
		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		metrics.IncHTTP(path, strconv.Itoa(code))

		ev := s.log.Info()
		if code >= http.StatusInternalServerError {
			ev = s.log.Error()
		}
		ev.
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", code).
			Dur("duration", time.Since(start)).
			Msg("http request")
		return nil
	}
}

func (s *HTTPServer) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := strings.TrimSpace(c.Request().Header.Get(s.keys.apiKeyHeader))
		if key == "" {
			key = c.RealIP()
		}
		if !s.limiter.allow(key) {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}
		return next(c)
	}
}

func (s *HTTPServer) apiKeyAuth(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.cfg.Auth.Enabled {
				return next(c)
			}
			h := c.Request().Header
			_, err := s.keys.check(h.Get(s.keys.apiKeyHeader), h.Get(s.keys.extraHeader), permission)
			switch {
			case err == nil:
				return next(c)
			case errors.Is(err, errPermissionDenied):
				return echo.NewHTTPError(http.StatusForbidden, err.Error())
			default:
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
		}
	}
}

func (s *HTTPServer) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		code int
		body = map[string]string{}
		he   *echo.HTTPError
	)
	if errors.As(err, &he) {
		code = he.Code
		body["error"] = fmt.Sprint(he.Message)
	} else {
		code = httpStatus(err)
		body["kind"] = string(domain.KindOf(err))
		body["error"] = err.Error()
		if code == http.StatusInternalServerError {
			s.log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
			body["error"] = "internal error"
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, body)
}

func bindAndValidate(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if err := c.Validate(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
