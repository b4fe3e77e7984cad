package product

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/productsync/pkg/context"
	"github.com/Ramsey-B/productsync/pkg/ingest"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/processor"
)

// MaxBatchSize bounds the records accepted by one batch request
const MaxBatchSize = 1000

// BatchRequest is a set of records resolved together
type BatchRequest struct {
	Records []*models.ProductRecord `json:"records"`
}

// BatchResult is the outcome for one record of a batch. Exactly one of
// Decision and Error is set.
type BatchResult struct {
	Index      int                   `json:"index"`
	Source     string                `json:"source"`
	ExternalID string                `json:"external_id"`
	Decision   *models.MatchDecision `json:"decision,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// BatchResponse carries per-record results in request order
type BatchResponse struct {
	Results []BatchResult  `json:"results"`
	Summary ingest.Summary `json:"summary"`
}

// Register registers product record routes
func Register(g *echo.Group) {
	g.POST("/resolve", ResolveProduct)
	g.POST("/batch", ResolveBatch)
}

// ResolveProduct resolves one record and returns its decision
func ResolveProduct(c echo.Context) error {
	ctx := c.Request().Context()

	var record models.ProductRecord
	if err := c.Bind(&record); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	defaultSource(ctx, &record)

	ctx, proc, err := ectoinject.GetContext[*processor.Processor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	decision, err := proc.Resolve(ctx, &record)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, decision)
}

// ResolveBatch resolves records concurrently. A failing record is reported
// in its result and does not fail the request.
func ResolveBatch(c echo.Context) error {
	ctx := c.Request().Context()

	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Records) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "records is required")
	}
	if len(req.Records) > MaxBatchSize {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "at most %d records per batch", MaxBatchSize)
	}
	for i, record := range req.Records {
		if record == nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "record %d is null", i)
		}
		defaultSource(ctx, record)
	}

	ctx, proc, err := ectoinject.GetContext[*processor.Processor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	results := proc.ProcessBatch(ctx, req.Records)

	resp := BatchResponse{
		Results: make([]BatchResult, len(results)),
		Summary: ingest.Summarize(results),
	}
	for i, r := range results {
		resp.Results[i] = BatchResult{
			Index:      r.Index,
			Source:     r.Record.Source,
			ExternalID: r.Record.ExternalID,
			Decision:   r.Decision,
		}
		if r.Err != nil {
			resp.Results[i].Error = r.Err.Error()
		}
	}

	return c.JSON(http.StatusOK, resp)
}

func defaultSource(ctx context.Context, record *models.ProductRecord) {
	if record.Source == "" {
		record.Source = appctx.GetSource(ctx)
	}
}
