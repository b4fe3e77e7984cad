package processor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/metrics"
)

// withTransientRetry retries fn with exponential backoff while it fails with
// a TransientStoreError. Any other error stops immediately and is returned as is.
func (p *Processor) withTransientRetry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.TransientInitialInterval
	b.MaxInterval = p.cfg.TransientMaxInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.TransientMaxRetries)), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil || pserrors.IsTransientStoreError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		metrics.RecordTransientRetry(op)
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"op":   op,
			"wait": wait.String(),
		}).Warn("Transient store failure, retrying")
	})
}
