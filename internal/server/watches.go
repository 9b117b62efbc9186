package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/briefer/internal/research"
	"github.com/mohammad-safakhou/briefer/internal/store"
)

// WatchesHandler manages recurring research queries.
type WatchesHandler struct {
	Store *store.Store
}

func (h *WatchesHandler) Register(api *echo.Group) {
	api.GET("/watches", h.list)
	api.POST("/watches", h.create)
	api.DELETE("/watches/:id", h.remove)
}

func (h *WatchesHandler) create(c echo.Context) error {
	var req CreateWatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if strings.TrimSpace(req.ScheduleCron) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "schedule_cron is required")
	}
	depth, err := parseDepth(req.Depth)
	if err != nil {
		return err
	}
	if depth == "" {
		depth = research.DepthStandard
	}
	id, err := h.Store.CreateWatch(c.Request().Context(), userID(c), req.Query, string(depth), req.ScheduleCron)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *WatchesHandler) list(c echo.Context) error {
	recs, err := h.Store.ListWatches(c.Request().Context(), userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]WatchResponse, 0, len(recs))
	for _, w := range recs {
		resp := WatchResponse{
			ID:           w.ID,
			Query:        w.Query,
			Depth:        w.Depth,
			ScheduleCron: w.ScheduleCron,
		}
		if w.LastRunAt != nil {
			resp.LastRunAt = w.LastRunAt.UTC().Format(time.RFC3339)
		}
		out = append(out, resp)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *WatchesHandler) remove(c echo.Context) error {
	err := h.Store.DeleteWatch(c.Request().Context(), c.Param("id"), userID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "watch not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
