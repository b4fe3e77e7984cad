package review

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/productsync/pkg/processor"
	"github.com/Ramsey-B/productsync/pkg/store"
)

// MaxListLimit bounds the limit query parameter
const MaxListLimit = 1000

// ResolveRequest closes a review. Without an entity_id the record becomes a
// new catalog entity.
type ResolveRequest struct {
	EntityID string `json:"entity_id"`
}

// Register registers review queue routes
func Register(g *echo.Group) {
	g.GET("", ListReviewQueue)
	g.POST("/:id/resolve", ResolveReview)
}

// ListReviewQueue lists needs_review decisions that have not been resolved,
// oldest first
func ListReviewQueue(c echo.Context) error {
	ctx := c.Request().Context()

	limit := store.DefaultReviewQueueLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, MaxListLimit)
	}

	ctx, st, err := ectoinject.GetContext[store.Store](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	decisions, err := st.ListReviewQueue(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, decisions)
}

// ResolveReview links the reviewed record to an entity or creates a new one
func ResolveReview(c echo.Context) error {
	ctx := c.Request().Context()
	decisionID := c.Param("id")

	var req ResolveRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}

	ctx, proc, err := ectoinject.GetContext[*processor.Processor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	decision, err := proc.ResolveReview(ctx, decisionID, req.EntityID)
	if err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"review_id":   decisionID,
			"decision_id": decision.ID,
			"entity_id":   decision.EntityIDValue(),
		}).Info("Resolved review")
	}

	return c.JSON(http.StatusOK, decision)
}
