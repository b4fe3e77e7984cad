package processor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

// RecordResult is the outcome for one record of a batch. Exactly one of
// Decision and Err is set.
type RecordResult struct {
	Index    int
	Record   *models.ProductRecord
	Decision *models.MatchDecision
	Err      error
}

// ProcessBatch resolves records on a bounded worker pool. A failing record
// never affects the others. Once ctx is cancelled no new record starts and
// the remaining results carry the context error; decisions committed before
// that stay valid.
func (p *Processor) ProcessBatch(ctx context.Context, records []*models.ProductRecord) []RecordResult {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ProcessBatch")
	defer span.End()

	results := make([]RecordResult, len(records))

	var g errgroup.Group
	g.SetLimit(p.cfg.WorkerCount)

	for i, record := range records {
		results[i] = RecordResult{Index: i, Record: record}
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			decision, err := p.Resolve(ctx, record)
			results[i].Decision = decision
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"records": len(records),
		"failed":  failed,
	}).Info("Processed batch")

	return results
}
