package handler

import (
	"net/http"

	"schoolfest-backend/internal/service"

	"github.com/labstack/echo/v4"
)

type EventHandler struct {
	eventService service.EventService
}

func NewEventHandler(eventService service.EventService) *EventHandler {
	return &EventHandler{
		eventService: eventService,
	}
}

func (h *EventHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	events, err := h.eventService.ListPublished(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, events)
}

func (h *EventHandler) GetBySlug(c echo.Context) error {
	ctx := c.Request().Context()

	event, err := h.eventService.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, event)
}
