package handler

import (
	"io"
	"net/http"

	"schoolfest-backend/internal/service"

	"github.com/labstack/echo/v4"
)

type WebhookHandler struct {
	webhookService service.WebhookService
}

func NewWebhookHandler(webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// Handle ingests one gateway delivery. A 200 here is a promise to the
// gateway that it never needs to send this delivery again, so it is only
// returned once the event record is durable.
func (h *WebhookHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()
	gateway := c.Param("gateway")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	result, err := h.webhookService.Ingest(ctx, gateway, body, c.Request().Header)
	if err != nil {
		return err
	}

	if result.Duplicate {
		return c.JSON(http.StatusOK, map[string]string{"status": "already processed"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
