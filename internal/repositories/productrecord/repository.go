package productrecord

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/productsync/pkg/database"
	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/store"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

const table = "product_records"

var columns = []string{"id", "source", "external_id", "title", "description", "attributes", "observed_at", "fingerprint", "created_at"}

// Repository handles product record persistence. Records are write-once.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func insertQuery(record *models.ProductRecord) (string, []any) {
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(record.ID, record.Source, record.ExternalID, record.Title, record.Description, record.Attributes, record.ObservedAt, record.Fingerprint, record.CreatedAt)
	ib.OnConflictDoNothing()
	return ib.Build()
}

// Insert stores record unless a record with the same id exists.
func (r *Repository) Insert(ctx context.Context, record *models.ProductRecord) error {
	ctx, span := tracing.StartSpan(ctx, "productrecord.Repository.Insert")
	defer span.End()

	query, args := insertQuery(record)
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record_id": record.ID}).Error("Failed to insert product record")
		return pserrors.NewTransientStoreError("product_records.insert", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.ProductRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "productrecord.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var record models.ProductRecord
	if err := database.Conn(ctx, r.db).GetContext(ctx, &record, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, store.NotFound("product record", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get product record")
		return nil, pserrors.NewTransientStoreError("product_records.get", err)
	}
	return &record, nil
}
