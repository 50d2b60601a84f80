package risk

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/risk"
)

// Register registers risk recalculation routes
func Register(g *echo.Group) {
	g.POST("/recalculations", TriggerRecalculation)
}

// TriggerRecalculation recomputes risk scores over the canonical dataset.
// Scope "all" covers everything; "changed-since" narrows to recalls updated
// after the given timestamp.
func TriggerRecalculation(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.TriggerRecalculationRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Scope == "" {
		req.Scope = models.RecalculationScopeAll
	}

	switch req.Scope {
	case models.RecalculationScopeAll:
		if req.ChangedSince != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "changed_since is only valid with scope 'changed-since'")
		}
	case models.RecalculationScopeChangedSince:
		if req.ChangedSince == nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "changed_since is required with scope 'changed-since'")
		}
	default:
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown scope '%s'", req.Scope)
	}

	ctx, recalculator, err := ectoinject.GetContext[*risk.Recalculator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	summary, err := recalculator.Recalculate(ctx, req.ChangedSince)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, summary)
}
