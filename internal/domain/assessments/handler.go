package assessments

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/auth"
	"github.com/dralejandroc/MINDHUB-sub003/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole("admin", "psychiatrist", "psychologist", "nurse"))
	clinical.POST("/assessments", h.Create)
	clinical.GET("/assessments", h.List)
	clinical.GET("/assessments/:id", h.Get)
	clinical.GET("/assessments/:id/results", h.Results)
	clinical.GET("/assessments/:id/responses", h.Responses)
	clinical.GET("/assessments/:id/responses/:item/history", h.ResponseHistory)
	clinical.POST("/assessments/:id/cancel", h.Cancel)
	clinical.POST("/assessments/:id/invalidate", h.Invalidate)
	clinical.POST("/assessments/:id/revalidate", h.Revalidate)

	// Response capture also serves self-administered flows.
	capture := api.Group("", auth.RequireRole("admin", "psychiatrist", "psychologist", "nurse", "patient"))
	capture.POST("/assessments/:id/start", h.Start)
	capture.POST("/assessments/:id/responses", h.RecordResponse)
}

func (h *Handler) Create(c echo.Context) error {
	var params CreateParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Create(c.Request().Context(), params)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var filter ListFilter
	if p := c.QueryParam("patient_id"); p != "" {
		id, err := uuid.Parse(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filter.PatientID = id
	}
	if p := c.QueryParam("scale_id"); p != "" {
		id, err := uuid.Parse(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid scale_id")
		}
		filter.ScaleID = id
	}
	filter.Status = Status(c.QueryParam("status"))

	items, total, err := h.svc.List(c.Request().Context(), filter, pg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Start(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Start(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) RecordResponse(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var params RecordParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.RecordResponse(c.Request().Context(), id, params)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, body.Reason)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Invalidate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Notes string `json:"notes"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Invalidate(c.Request().Context(), id, body.Notes)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Revalidate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Revalidate(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Results(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	results, err := h.svc.Results(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, results)
}

func (h *Handler) Responses(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.Responses(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ResponseHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	item, err := strconv.Atoi(c.Param("item"))
	if err != nil || item < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item")
	}
	items, err := h.svc.ResponseHistory(c.Request().Context(), id, item)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
