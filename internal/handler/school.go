package handler

import (
	"net/http"

	"schoolfest-backend/internal/dto"
	"schoolfest-backend/internal/service"

	"github.com/labstack/echo/v4"
)

type SchoolHandler struct {
	schoolService service.SchoolService
}

func NewSchoolHandler(schoolService service.SchoolService) *SchoolHandler {
	return &SchoolHandler{
		schoolService: schoolService,
	}
}

func (h *SchoolHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.RegisterSchoolRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	resp, err := h.schoolService.Register(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, resp)
}

func (h *SchoolHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	resp, err := h.schoolService.Login(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}
