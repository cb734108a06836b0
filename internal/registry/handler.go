package registry

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/medchain/registry/internal/platform/auth"
	"github.com/medchain/registry/pkg/pagination"
)

// Handler exposes the registry over HTTP. All mutating routes require an
// authenticated principal; the registry itself decides whether that
// principal may perform the operation. Verification routes are public.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.RegisterPatient)
	api.GET("/patients/:id", h.GetPatient)
	api.POST("/patients/:id/deactivate", h.DeactivatePatient)

	api.POST("/patients/:id/authorizations", h.AuthorizeDoctor)
	api.DELETE("/patients/:id/authorizations/:doctor", h.RevokeDoctor)
	api.GET("/patients/:id/authorizations/:doctor", h.GetAuthorization)

	api.POST("/records", h.AddRecord)
	api.GET("/records/:hash", h.GetRecord)
	api.GET("/patients/:id/records", h.GetPatientRecords)
	api.GET("/verify/:hash", h.VerifyRecord)

	api.POST("/roles/grant", h.GrantRole)
	api.POST("/roles/revoke", h.RevokeRole)
	api.GET("/roles/:role/:principal", h.HasRole)

	api.POST("/system/pause", h.Pause)
	api.POST("/system/unpause", h.Unpause)
	api.GET("/system/status", h.Status)

	api.GET("/stats", h.Stats)
	api.GET("/events", h.ListEvents)
}

// httpError maps the registry error taxonomy onto HTTP status codes:
// unknown patient and missing lookups are 404, missing authority is 403,
// bad or conflicting input is 400, and a paused system is 503.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrUnknownPatient):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotAuthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrSystemPaused):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrAlreadyRegistered),
		errors.Is(err, ErrDuplicateRecord),
		errors.Is(err, ErrLastAdmin):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// principal extracts the authenticated caller set by the auth middleware.
func principal(c echo.Context) (Principal, *echo.HTTPError) {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "no authenticated principal")
	}
	return Principal(p), nil
}

type eventResponse struct {
	Event *Event `json:"event"`
}

// -- Patients --

type registerPatientRequest struct {
	PatientID    string `json:"patient_id"`
	IdentityHash string `json:"identity_hash"`
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	actor, herr := principal(c)
	if herr != nil {
		return herr
	}
	var req registerPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hash, err := ParseHash(req.IdentityHash)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ev, err := h.svc.RegisterPatient(actor, req.PatientID, hash)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, eventResponse{Event: ev})
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, ok := h.svc.GetPatient(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeactivatePatient(c echo.Context) error {
	actor, herr := principal(c)
	if herr != nil {
		return herr
	}
	ev, err := h.svc.DeactivatePatient(actor, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, eventResponse{Event: ev})
}

// -- Authorizations --

type authorizeRequest struct {
	Doctor string `json:"doctor"`
}

func (h *Handler) AuthorizeDoctor(c echo.Context) error {
	actor, herr := principal(c)
	if herr != nil {
		return herr
	}
	var req authorizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ev, err := h.svc.AuthorizeDoctor(actor, c.Param("id"), Principal(req.Doctor))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, eventResponse{Event: ev})
}

func (h *Handler) RevokeDoctor(c echo.Context) error {
	actor, herr := principal(c)
	if herr != nil {
		return herr
	}
	ev, err := h.svc.RevokeDoctor(actor, c.Param("id"), Principal(c.Param("doctor")))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, eventResponse{Event: ev})
}

func (h *Handler) GetAuthorization(c echo.Context) error {
	authorized := h.svc.IsAuthorizedDoctor(c.Param("id"), Principal(c.Param("doctor")))
	return c.JSON(http.StatusOK, map[string]bool{"authorized": authorized})
}

// -- Records --

type addRecordRequest struct {
	PatientID  string `json:"patient_id"`
	RecordHash string `json:"record_hash"`
	RecordType string `json:"record_type"`
}

type addRecordResponse struct {
	Record *Record `json:"record"`
	Event  *Event  `json:"event"`
}

func (h *Handler) AddRecord(c echo.Context) error {
	actor, herr := principal(c)
	if herr != nil {
		return herr
	}
	var req addRecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hash, err := ParseHash(req.RecordHash)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, ev, err := h.svc.AddRecord(actor, req.PatientID, hash, req.RecordType)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, addRecordResponse{Record: rec, Event: ev})
}

func (h *Handler) GetRecord(c echo.Context) error {
	hash, err := ParseHash(c.Param("hash"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, ok := h.svc.GetRecord(hash)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetPatientRecords(c echo.Context) error {
	hashes, err := h.svc.GetPatientRecords(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	if hashes == nil {
		hashes = []Hash{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id": c.Param("id"),
		"records":    hashes,
	})
}

func (h *Handler) VerifyRecord(c echo.Context) error {
	hash, err := ParseHash(c.Param("hash"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"verified": h.svc.VerifyRecord(hash)})
}

// -- Roles --

type roleRequest struct {
	Role      string `json:"role"`
	Principal string `json:"principal"`
}

func (h *Handler) GrantRole(c echo.Context) error {
	actor, herr := principal(c)
	if herr != nil {
		return herr
	}
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ev, err := h.svc.GrantRole(actor, Role(req.Role), Principal(req.Principal))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, eventResponse{Event: ev})
}

func (h *Handler) RevokeRole(c echo.Context) error {
	actor, herr := principal(c)
	if herr != nil {
		return herr
	}
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ev, err := h.svc.RevokeRole(actor, Role(req.Role), Principal(req.Principal))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, eventResponse{Event: ev})
}

func (h *Handler) HasRole(c echo.Context) error {
	has := h.svc.HasRole(Role(c.Param("role")), Principal(c.Param("principal")))
	return c.JSON(http.StatusOK, map[string]bool{"has_role": has})
}

// -- Circuit breaker --

func (h *Handler) Pause(c echo.Context) error {
	actor, herr := principal(c)
	if herr != nil {
		return herr
	}
	ev, err := h.svc.Pause(actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, eventResponse{Event: ev})
}

func (h *Handler) Unpause(c echo.Context) error {
	actor, herr := principal(c)
	if herr != nil {
		return herr
	}
	ev, err := h.svc.Unpause(actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, eventResponse{Event: ev})
}

func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"paused": h.svc.Paused()})
}

// -- Facade reads --

func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Snapshot())
}

// ListEvents returns a page of the event log. "after" is the last sequence
// number the caller has already seen.
func (h *Handler) ListEvents(c echo.Context) error {
	p := pagination.FromContext(c)
	after, _ := strconv.ParseUint(c.QueryParam("after"), 10, 64)
	events := h.svc.Log().Since(after, p.Limit)
	if events == nil {
		events = []Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  h.svc.Log().Len(),
	})
}
