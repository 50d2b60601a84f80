package recalls

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/yarrow/internal/repositories/recall"
	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/search"
	"github.com/Ramsey-B/yarrow/pkg/validation"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Register registers recall routes
func Register(g *echo.Group) {
	g.GET("/search", Search)
	g.GET("/:id", GetRecall)
}

// Search runs a fuzzy search over the recall search index
func Search(c echo.Context) error {
	ctx := c.Request().Context()

	req := models.SearchRequest{Limit: defaultLimit}
	err := echo.QueryParamsBinder(c).
		String("query", &req.Query).
		Strings("countries", &req.Countries).
		Strings("categories", &req.Categories).
		Strings("hazard_types", &req.HazardTypes).
		Int("min_risk_score", &req.MinRiskScore).
		Float64("min_similarity", &req.MinSimilarity).
		Int("limit", &req.Limit).
		Int("offset", &req.Offset).
		BindError()
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}

	if _, err := validation.Validate(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Limit <= 0 || req.Limit > maxLimit {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "limit must be between 1 and %d", maxLimit)
	}
	if req.Offset < 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "offset must not be negative")
	}
	if req.MinSimilarity < 0 || req.MinSimilarity > 1 {
		return httperror.NewHTTPError(http.StatusBadRequest, "min_similarity must be between 0 and 1")
	}

	ctx, maintainer, err := ectoinject.GetContext[*search.Maintainer](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resp, err := maintainer.Search(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// GetRecall returns one canonical recall by id
func GetRecall(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*recall.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rec, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rec)
}
