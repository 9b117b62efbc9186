package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/briefer/internal/jobs"
	"github.com/mohammad-safakhou/briefer/internal/research"
	"github.com/mohammad-safakhou/briefer/internal/store"
)

// JobsHandler serves research intake, job polling, resume and reports.
type JobsHandler struct {
	Tracker *jobs.Tracker
	Store   *store.Store
	Runner  *Runner
}

func (h *JobsHandler) Register(api *echo.Group) {
	api.POST("/research", h.submit)
	api.GET("/jobs", h.list)
	api.GET("/jobs/:id", h.status)
	api.POST("/jobs/:id/resume", h.resume)
	api.GET("/jobs/:id/report", h.report)
}

func (h *JobsHandler) submit(c echo.Context) error {
	var req ResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	depth, err := parseDepth(req.Depth)
	if err != nil {
		return err
	}
	// Resolve auto-detected depth here so the tracker and store record the
	// depth the pipeline will actually run.
	depth = research.ResolveDepth(depth, req.Query)
	job, err := h.Tracker.Create(c.Request().Context(), userID(c), req.Query, req.Context, depth)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	go h.Runner.Execute(job.ID, research.Request{
		JobID:   job.ID,
		Query:   job.Query,
		Context: job.Context,
		Depth:   job.Depth,
	})
	return c.JSON(http.StatusAccepted, JobAccepted{JobID: job.ID})
}

func parseDepth(s string) (research.Depth, error) {
	switch research.Depth(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case research.DepthQuick:
		return research.DepthQuick, nil
	case research.DepthStandard:
		return research.DepthStandard, nil
	case research.DepthDeep:
		return research.DepthDeep, nil
	}
	return "", echo.NewHTTPError(http.StatusBadRequest, "depth must be quick, standard or deep")
}

func (h *JobsHandler) list(c echo.Context) error {
	out := h.Tracker.List(userID(c))
	statuses := make([]JobStatusResponse, 0, len(out))
	for _, j := range out {
		statuses = append(statuses, h.statusView(j))
	}
	return c.JSON(http.StatusOK, statuses)
}

func (h *JobsHandler) status(c echo.Context) error {
	job, ok := h.lookup(c)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, h.statusView(job))
}

// lookup serves from the tracker first and falls back to the store so jobs
// survive a process restart.
func (h *JobsHandler) lookup(c echo.Context) (jobs.Job, bool) {
	id := c.Param("id")
	if job, ok := h.Tracker.Get(id); ok {
		if job.UserID != userID(c) {
			return jobs.Job{}, false
		}
		return job, true
	}
	rec, ok, err := h.Store.GetJob(c.Request().Context(), id)
	if err != nil || !ok || rec.UserID != userID(c) {
		return jobs.Job{}, false
	}
	return h.Tracker.Adopt(rec), true
}

func (h *JobsHandler) statusView(j jobs.Job) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:     j.ID,
		Query:     j.Query,
		Depth:     string(j.Depth),
		Status:    string(j.Status),
		Phase:     j.Phase,
		Progress:  j.Progress,
		Error:     j.Error,
		Resumable: j.Resumable,
	}
	if j.Status == jobs.StatusCompleted {
		resp.ResultLocation = "/api/jobs/" + j.ID + "/report"
	}
	return resp
}

func (h *JobsHandler) resume(c echo.Context) error {
	job, ok := h.lookup(c)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	if job.Status != jobs.StatusFailed || !job.Resumable {
		return echo.NewHTTPError(http.StatusConflict, "job is not resumable")
	}
	if _, _, ok, err := h.Store.GetJobCheckpoint(c.Request().Context(), job.ID); err != nil || !ok {
		return echo.NewHTTPError(http.StatusConflict, "no checkpoint for job")
	}
	if err := h.Tracker.Resume(c.Request().Context(), job.ID); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	go h.Runner.Resume(job.ID)
	return c.JSON(http.StatusAccepted, JobAccepted{JobID: job.ID})
}

func (h *JobsHandler) report(c echo.Context) error {
	job, ok := h.lookup(c)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	rec, found, err := h.Store.GetReport(c.Request().Context(), job.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "report not ready")
	}
	return c.JSON(http.StatusOK, ReportResponse{
		JobID:      rec.JobID,
		Synthesis:  rec.Synthesis,
		Strategic:  rec.Strategic,
		QASummary:  rec.QASummary,
		Stats:      rec.Stats,
		HumanHours: rec.HumanHours,
		CostUSD:    rec.CostUSD,
	})
}
