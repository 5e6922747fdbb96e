package handler

import (
	"net/http"

	"schoolfest-backend/internal/dto"
	"schoolfest-backend/internal/service"

	"github.com/labstack/echo/v4"
)

type AdminHandler struct {
	schoolService     service.SchoolService
	eventService      service.EventService
	settlementService service.SettlementService
	invoiceService    service.InvoiceService
}

func NewAdminHandler(
	schoolService service.SchoolService,
	eventService service.EventService,
	settlementService service.SettlementService,
	invoiceService service.InvoiceService,
) *AdminHandler {
	return &AdminHandler{
		schoolService:     schoolService,
		eventService:      eventService,
		settlementService: settlementService,
		invoiceService:    invoiceService,
	}
}

func adminFromContext(c echo.Context) string {
	subject, _ := c.Get("subject").(string)
	return subject
}

func (h *AdminHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	resp, err := h.schoolService.AdminLogin(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) CreateEvent(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.UpsertEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	event, err := h.eventService.Create(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, event)
}

func (h *AdminHandler) UpdateEvent(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.UpsertEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	event, err := h.eventService.Update(ctx, c.Param("id"), &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, event)
}

// VerifyOfflinePayment confirms a bank transfer after the admin has seen
// the money arrive. This is the offline counterpart of a success webhook.
func (h *AdminHandler) VerifyOfflinePayment(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.settlementService.VerifyOfflinePayment(ctx, c.Param("id"), adminFromContext(c)); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "verified"})
}

func (h *AdminHandler) RejectOfflinePayment(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.RejectPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.settlementService.RejectOfflinePayment(ctx, c.Param("id"), adminFromContext(c), req.Reason); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "rejected"})
}

func (h *AdminHandler) RegenerateInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	url, err := h.invoiceService.RegenerateByReference(ctx, c.Param("reference"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"invoice_pdf_url": url})
}
