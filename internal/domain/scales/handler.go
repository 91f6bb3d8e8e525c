package scales

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
	readGroup := api.Group("", auth.RequireRole("admin", "psychiatrist", "psychologist", "nurse"))
	readGroup.GET("/scales", h.List)
	readGroup.GET("/scales/:id", h.Get)

	writeGroup := api.Group("", auth.RequireRole("admin"))
	writeGroup.POST("/scales", h.Publish)
	writeGroup.DELETE("/scales/:id", h.Retire)
}

func (h *Handler) Publish(c echo.Context) error {
	var def ScaleDefinition
	if err := c.Bind(&def); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Publish(c.Request().Context(), &def); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, def)
}

func (h *Handler) Get(c echo.Context) error {
	// Accepts either a definition id or an abbreviation.
	raw := c.Param("id")
	ctx := c.Request().Context()
	var (
		def *ScaleDefinition
		err error
	)
	if id, perr := uuid.Parse(raw); perr == nil {
		def, err = h.svc.Get(ctx, id)
	} else {
		def, err = h.svc.GetByAbbreviation(ctx, raw)
	}
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, def)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := ListFilter{
		Category: c.QueryParam("category"),
		Language: c.QueryParam("language"),
	}
	if ageParam := c.QueryParam("age"); ageParam != "" {
		age, err := strconv.Atoi(ageParam)
		if err != nil || age < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid age")
		}
		filter.Age = age
	}
	items, total, err := h.svc.List(c.Request().Context(), filter, pg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Retire(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Retire(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
