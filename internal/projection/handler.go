package projection

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medchain/registry/pkg/pagination"
)

// Handler serves the archived event stream.
type Handler struct {
	store *StorePG
}

func NewHandler(store *StorePG) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/events", h.ListEvents)
	g.GET("/events/counts", h.CountByType)
}

func (h *Handler) ListEvents(c echo.Context) error {
	p := pagination.FromContext(c)
	events, total, err := h.store.ListEvents(
		c.Request().Context(),
		c.QueryParam("patient_id"),
		c.QueryParam("type"),
		p.Limit, p.Offset,
	)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if events == nil {
		events = []*StoredEvent{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, p.Limit, p.Offset))
}

func (h *Handler) CountByType(c echo.Context) error {
	counts, err := h.store.CountByType(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, counts)
}
