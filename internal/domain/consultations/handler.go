package consultations

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/auth"
	"github.com/dralejandroc/MINDHUB-sub003/pkg/pagination"
)

type Handler struct {
	svc       *Service
	autosaver *Autosaver
}

func NewHandler(svc *Service, autosaver *Autosaver) *Handler {
	return &Handler{svc: svc, autosaver: autosaver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "psychiatrist", "psychologist"))
	g.POST("/consultations", h.Open)
	g.GET("/consultations", h.List)
	g.GET("/consultations/:id", h.Get)
	g.PATCH("/consultations/:id/fields", h.QueueFields)
	g.POST("/consultations/:id/save", h.Save)
	g.POST("/consultations/:id/finalize", h.Finalize)
	g.GET("/consultations/:id/save-status", h.SaveStatus)
}

func (h *Handler) Open(c echo.Context) error {
	var params OpenParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.Open(c.Request().Context(), params)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	h.autosaver.Track(d.ID)
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) List(c echo.Context) error {
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// QueueFields accepts field edits for deferred persistence on the next
// autosave tick.
func (h *Handler) QueueFields(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var fields map[string]string
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(fields) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to save")
	}
	// The draft must exist and still be editable before edits are queued.
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	if d.Status == StatusFinalized {
		ferr := &apperr.AlreadyFinalizedError{ID: d.ID.String()}
		return echo.NewHTTPError(apperr.HTTPStatus(ferr), ferr.Error())
	}
	h.autosaver.QueueChange(id, fields)
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

// Save persists field edits immediately, bypassing the autosave interval.
func (h *Handler) Save(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var fields map[string]string
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.Save(c.Request().Context(), id, fields)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Finalize(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	// Pending autosave edits must land before the completion check runs.
	if err := h.autosaver.Flush(id); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	d, err := h.svc.Finalize(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	h.autosaver.Untrack(d.ID)
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) SaveStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ev, ok := h.autosaver.LastEvent(id)
	if !ok {
		return c.JSON(http.StatusOK, map[string]string{"state": "idle"})
	}
	return c.JSON(http.StatusOK, ev)
}
