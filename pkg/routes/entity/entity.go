package entity

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/processor"
	"github.com/Ramsey-B/productsync/pkg/store"
)

// MergeRequest folds another entity into the one named in the path
type MergeRequest struct {
	SupersededID string `json:"superseded_id"`
}

// Register registers catalog entity routes
func Register(g *echo.Group) {
	g.GET("/:id", GetEntity)
	g.GET("/:id/records", GetEntityRecords)
	g.POST("/:id/merge", MergeEntity)
}

// GetEntity gets a catalog entity by ID. Superseded entities are returned
// with superseded_by set.
func GetEntity(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, st, err := ectoinject.GetContext[store.Store](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entity, err := st.GetEntity(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entity)
}

// GetEntityRecords gets the source records linked to an entity
func GetEntityRecords(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, st, err := ectoinject.GetContext[store.Store](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entity, err := st.GetEntity(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	records := make([]*models.ProductRecord, 0, len(entity.RecordIDs))
	for _, id := range entity.RecordIDs {
		record, err := st.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		records = append(records, record)
	}

	return c.JSON(http.StatusOK, records)
}

// MergeEntity supersedes the entity in the body with the one in the path
func MergeEntity(c echo.Context) error {
	ctx := c.Request().Context()
	survivorID := c.Param("id")

	var req MergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SupersededID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "superseded_id is required")
	}

	ctx, proc, err := ectoinject.GetContext[*processor.Processor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	survivor, err := proc.MergeEntities(ctx, survivorID, req.SupersededID)
	if err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"survivor_id":   survivorID,
			"superseded_id": req.SupersededID,
		}).Info("Merged catalog entities")
	}

	return c.JSON(http.StatusOK, survivor)
}
