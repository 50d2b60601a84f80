package ingestion

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/yarrow/internal/repositories/ingestionrun"
	"github.com/Ramsey-B/yarrow/pkg/connectors"
	"github.com/Ramsey-B/yarrow/pkg/ingest"
	"github.com/Ramsey-B/yarrow/pkg/models"
)

// Register registers ingestion run routes
func Register(g *echo.Group) {
	g.POST("/runs", TriggerIngestion)
	g.GET("/runs/:id", GetRun)
	g.GET("/runs", ListRuns)
}

// TriggerIngestion starts an ingestion run over the requested sources, or
// every registered source when none are named. The run executes in the
// background; the response carries the run id for polling.
func TriggerIngestion(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.TriggerIngestionRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, registry, err := ectoinject.GetContext[*connectors.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	for _, code := range req.Sources {
		if _, ok := registry.Get(code); !ok {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown source '%s'", code)
		}
	}

	var lookback time.Duration
	if req.Lookback != "" {
		lookback, err = time.ParseDuration(req.Lookback)
		if err != nil || lookback <= 0 {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid lookback '%s'", req.Lookback)
		}
	}

	ctx, orchestrator, err := ectoinject.GetContext[*ingest.Orchestrator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := orchestrator.TriggerRun(ctx, models.RunTriggerManual, req.Sources, lookback)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, models.TriggerIngestionResponse{
		RunID:  run.ID,
		Status: run.Status,
	})
}

// GetRun returns the summary of one ingestion run, including per-source
// outcomes persisted so far
func GetRun(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*ingestionrun.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}

// ListRuns returns the most recent ingestion runs
func ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 20
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if limit <= 0 || limit > 100 {
		return httperror.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 100")
	}

	ctx, repo, err := ectoinject.GetContext[*ingestionrun.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	runs, err := repo.ListRecent(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, runs)
}
