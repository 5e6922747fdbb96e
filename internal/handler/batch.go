package handler

import (
	"net/http"

	"schoolfest-backend/internal/dto"
	"schoolfest-backend/internal/service"

	"github.com/labstack/echo/v4"
)

type BatchHandler struct {
	batchService service.BatchService
}

func NewBatchHandler(batchService service.BatchService) *BatchHandler {
	return &BatchHandler{
		batchService: batchService,
	}
}

func schoolIDFromContext(c echo.Context) string {
	schoolID, _ := c.Get("school_id").(string)
	return schoolID
}

func (h *BatchHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CreateBatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	resp, err := h.batchService.Create(ctx, schoolIDFromContext(c), &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, resp)
}

func (h *BatchHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	resp, err := h.batchService.ListForSchool(ctx, schoolIDFromContext(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *BatchHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	resp, err := h.batchService.GetByReference(ctx, schoolIDFromContext(c), c.Param("reference"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *BatchHandler) Registrations(c echo.Context) error {
	ctx := c.Request().Context()

	registrations, err := h.batchService.ListRegistrations(ctx, schoolIDFromContext(c), c.Param("reference"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, registrations)
}

func (h *BatchHandler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.batchService.Cancel(ctx, schoolIDFromContext(c), c.Param("reference")); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}
