package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tempora/schedgate/internal/scheduler"
)

// OpsHandler exposes the interval jobs (currently only the expiry
// sweep) for inspection and manual control.  Operators can check the
// loop status, trigger a run immediately, or stop and restart the loop
// without redeploying.
type OpsHandler struct {
	Jobs map[string]*scheduler.Job
}

// NewOpsHandler constructs an OpsHandler over a fixed set of named jobs.
func NewOpsHandler(jobs map[string]*scheduler.Job) *OpsHandler {
	if jobs == nil {
		jobs = map[string]*scheduler.Job{}
	}
	return &OpsHandler{Jobs: jobs}
}

func (h *OpsHandler) job(c echo.Context) (*scheduler.Job, error) {
	j, ok := h.Jobs[c.Param("name")]
	if !ok {
		return nil, c.JSON(http.StatusNotFound, echo.Map{"detail": "job not found"})
	}
	return j, nil
}

// JobStatus handles GET /v1/ops/jobs/:name.
func (h *OpsHandler) JobStatus(c echo.Context) error {
	j, err := h.job(c)
	if j == nil {
		return err
	}
	return c.JSON(http.StatusOK, j.Status())
}

// RunJob handles POST /v1/ops/jobs/:name/run.  It executes the job once
// and reports the outcome together with the refreshed status.
func (h *OpsHandler) RunJob(c echo.Context) error {
	j, err := h.job(c)
	if j == nil {
		return err
	}
	runErr := j.RunNow(c.Request().Context())
	resp := echo.Map{"status": j.Status()}
	if runErr != nil {
		resp["detail"] = runErr.Error()
		return c.JSON(http.StatusInternalServerError, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// StartJob handles POST /v1/ops/jobs/:name/start.
func (h *OpsHandler) StartJob(c echo.Context) error {
	j, err := h.job(c)
	if j == nil {
		return err
	}
	if err := j.Start(); err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"detail": err.Error()})
	}
	return c.JSON(http.StatusOK, j.Status())
}

// StopJob handles POST /v1/ops/jobs/:name/stop.
func (h *OpsHandler) StopJob(c echo.Context) error {
	j, err := h.job(c)
	if j == nil {
		return err
	}
	if err := j.Stop(); err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"detail": err.Error()})
	}
	return c.JSON(http.StatusOK, j.Status())
}
