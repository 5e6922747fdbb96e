package server

import (
	"context"
	"errors"
	"net/http"

	"schoolfest-backend/internal/client"
	"schoolfest-backend/internal/config"
	"schoolfest-backend/internal/handler"
	authmw "schoolfest-backend/internal/middleware"
	"schoolfest-backend/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo           *echo.Echo
	jwtSecret      string
	schoolHandler  *handler.SchoolHandler
	eventHandler   *handler.EventHandler
	batchHandler   *handler.BatchHandler
	paymentHandler *handler.PaymentHandler
	adminHandler   *handler.AdminHandler
	webhookHandler *handler.WebhookHandler
}

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func NewServer(
	cfg *config.Config,
	schoolService service.SchoolService,
	eventService service.EventService,
	batchService service.BatchService,
	paymentService service.PaymentService,
	settlementService service.SettlementService,
	invoiceService service.InvoiceService,
	webhookService service.WebhookService,
) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Validator = &CustomValidator{validator: validator.New()}

	s := &Server{
		echo:           e,
		jwtSecret:      cfg.Auth.JWTSecret,
		schoolHandler:  handler.NewSchoolHandler(schoolService),
		eventHandler:   handler.NewEventHandler(eventService),
		batchHandler:   handler.NewBatchHandler(batchService),
		paymentHandler: handler.NewPaymentHandler(paymentService),
		adminHandler:   handler.NewAdminHandler(schoolService, eventService, settlementService, invoiceService),
		webhookHandler: handler.NewWebhookHandler(webhookService),
	}

	e.HTTPErrorHandler = s.httpErrorHandler
	s.setupRoutes()
	return s
}

// httpErrorHandler maps the service sentinels onto status codes so
// handlers can just return errors.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		_ = c.JSON(httpErr.Code, map[string]interface{}{"error": httpErr.Message})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrNotCompleted),
		errors.Is(err, client.ErrBadSignature):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrGateway):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
		_ = c.JSON(status, map[string]string{"error": "internal server error"})
		return
	}
	_ = c.JSON(status, map[string]string{"error": err.Error()})
}

func (s *Server) setupRoutes() {
	// -------- gateway webhooks (unauthenticated, signature-verified) --------
	s.echo.POST("/webhooks/:gateway", s.webhookHandler.Handle)

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	api.POST("/schools/register", s.schoolHandler.Register)
	api.POST("/schools/login", s.schoolHandler.Login)
	api.POST("/admin/login", s.adminHandler.Login)

	api.GET("/events", s.eventHandler.List)
	api.GET("/events/:slug", s.eventHandler.GetBySlug)

	// -------- school: batches + payments --------
	school := api.Group("", authmw.JWT(s.jwtSecret), authmw.RequireRole("school"))
	school.POST("/batches", s.batchHandler.Create)
	school.GET("/batches", s.batchHandler.List)
	school.GET("/batches/:reference", s.batchHandler.Get)
	school.GET("/batches/:reference/registrations", s.batchHandler.Registrations)
	school.POST("/batches/:reference/cancel", s.batchHandler.Cancel)
	school.POST("/payments/initiate", s.paymentHandler.Initiate)
	school.POST("/payments/verify/:gateway", s.paymentHandler.Verify)
	school.POST("/payments/offline", s.paymentHandler.SubmitOffline)
	school.GET("/payments/braintree/client-token", s.paymentHandler.BraintreeClientToken)

	// -------- admin --------
	admin := api.Group("", authmw.JWT(s.jwtSecret), authmw.RequireRole("admin"))
	admin.PUT("/payments/:id/verify", s.adminHandler.VerifyOfflinePayment)
	admin.PUT("/payments/:id/reject", s.adminHandler.RejectOfflinePayment)
	admin.POST("/admin/events", s.adminHandler.CreateEvent)
	admin.PUT("/admin/events/:id", s.adminHandler.UpdateEvent)
	admin.POST("/admin/batches/:reference/invoice", s.adminHandler.RegenerateInvoice)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
