package handler

import (
	"net/http"

	"schoolfest-backend/internal/dto"
	"schoolfest-backend/internal/service"

	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func (h *PaymentHandler) Initiate(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.InitiatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	resp, err := h.paymentService.Initiate(ctx, schoolIDFromContext(c), &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// Verify is the client-driven fallback for when the payer returns before
// the gateway's webhook lands.
func (h *PaymentHandler) Verify(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.VerifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	resp, err := h.paymentService.VerifyOnline(ctx, c.Param("gateway"), req.GatewayOrderID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *PaymentHandler) SubmitOffline(c echo.Context) error {
	ctx := c.Request().Context()

	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "receipt file required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read receipt upload")
	}
	defer file.Close()

	sub := &service.OfflineSubmission{
		BatchReference: c.FormValue("batch_reference"),
		TransactionRef: c.FormValue("transaction_ref"),
		Receipt:        file,
		ReceiptName:    fileHeader.Filename,
		ContentType:    fileHeader.Header.Get("Content-Type"),
	}

	resp, err := h.paymentService.SubmitOffline(ctx, schoolIDFromContext(c), sub)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *PaymentHandler) BraintreeClientToken(c echo.Context) error {
	ctx := c.Request().Context()

	token, err := h.paymentService.ClientToken(ctx, "braintree")
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"client_token": token})
}
