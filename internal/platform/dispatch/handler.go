package dispatch

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler exposes endpoint management over HTTP.
type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// RegisterRoutes binds the webhook management routes to g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.RegisterEndpoint)
	g.GET("", h.ListEndpoints)
	g.GET("/:id", h.GetEndpoint)
	g.DELETE("/:id", h.DeleteEndpoint)
	g.POST("/:id/pause", h.PauseEndpoint)
	g.POST("/:id/resume", h.ResumeEndpoint)
	g.GET("/:id/deliveries", h.ListDeliveries)
}

type registerRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

func (h *Handler) RegisterEndpoint(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ep, err := h.dispatcher.RegisterEndpoint(c.Request().Context(), req.URL, req.Secret, req.Events)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, ep)
}

func (h *Handler) ListEndpoints(c echo.Context) error {
	eps, err := h.dispatcher.store.ListEndpoints(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, eps)
}

func (h *Handler) GetEndpoint(c echo.Context) error {
	ep, err := h.dispatcher.store.GetEndpoint(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "endpoint not found")
	}
	return c.JSON(http.StatusOK, ep)
}

func (h *Handler) DeleteEndpoint(c echo.Context) error {
	if err := h.dispatcher.store.DeleteEndpoint(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "endpoint not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) setStatus(c echo.Context, status string) error {
	ctx := c.Request().Context()
	ep, err := h.dispatcher.store.GetEndpoint(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "endpoint not found")
	}
	ep.Status = status
	if err := h.dispatcher.store.UpdateEndpoint(ctx, ep); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) PauseEndpoint(c echo.Context) error {
	return h.setStatus(c, "paused")
}

func (h *Handler) ResumeEndpoint(c echo.Context) error {
	return h.setStatus(c, "active")
}

func (h *Handler) ListDeliveries(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	deliveries, total, err := h.dispatcher.store.ListDeliveries(c.Request().Context(), c.Param("id"), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  deliveries,
		"total": total,
	})
}
