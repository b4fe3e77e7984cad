package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/kafka"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/redis"
)

type fakeResolver struct {
	err     error
	records []*models.ProductRecord
}

func (f *fakeResolver) Resolve(_ context.Context, record *models.ProductRecord) (*models.MatchDecision, error) {
	f.records = append(f.records, record)
	if f.err != nil {
		return nil, f.err
	}
	return &models.MatchDecision{
		ID:       "d-1",
		RecordID: models.RecordID(record.Source, record.ExternalID),
		Kind:     models.DecisionKindNewEntity,
	}, nil
}

type fakeSink struct {
	entries []*redis.DLQEntry
	err     error
}

func (f *fakeSink) Add(_ context.Context, entry *redis.DLQEntry) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.entries = append(f.entries, entry)
	return "1-0", nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func message(value string) *kafka.IncomingMessage {
	return &kafka.IncomingMessage{
		Key:       "k",
		Value:     []byte(value),
		Topic:     "product-records",
		Partition: 2,
		Offset:    41,
	}
}

const validRecord = `{"source":"shop-a","external_id":"sku-1","title":"Acme Widget 5000","attributes":{"brand":"Acme"}}`

func TestHandler_Handle(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		resolveErr error
		wantErr    bool
		wantReason redis.DeadLetterReason
	}{
		{
			name:  "resolved record is committed",
			value: validRecord,
		},
		{
			name:       "undecodable payload is parked",
			value:      `{"source":`,
			wantReason: redis.DeadLetterReasonDecode,
		},
		{
			name:       "unknown fields are parked",
			value:      `{"source":"shop-a","external_id":"sku-1","colour":"red"}`,
			wantReason: redis.DeadLetterReasonDecode,
		},
		{
			name:       "rejected record is parked",
			value:      validRecord,
			resolveErr: pserrors.NewNormalizationError("r", "title", "title is empty after normalization"),
			wantReason: redis.DeadLetterReasonRejected,
		},
		{
			name:       "unexpected failure is parked",
			value:      validRecord,
			resolveErr: errors.New("embedder exploded"),
			wantReason: redis.DeadLetterReasonFailed,
		},
		{
			name:       "transient failure is redelivered",
			value:      validRecord,
			resolveErr: pserrors.NewTransientStoreError("commit_entity", errors.New("connection reset")),
			wantErr:    true,
		},
		{
			name:       "cancellation is redelivered",
			value:      validRecord,
			resolveErr: context.Canceled,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{err: tt.resolveErr}
			sink := &fakeSink{}
			h := NewHandler(resolver, sink, testLogger())

			err := h.Handle(context.Background(), message(tt.value))
			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, sink.entries)
				return
			}
			require.NoError(t, err)

			if tt.wantReason == "" {
				assert.Empty(t, sink.entries)
				return
			}
			require.Len(t, sink.entries, 1)
			entry := sink.entries[0]
			assert.Equal(t, tt.wantReason, entry.Reason)
			assert.Equal(t, "product-records", entry.Topic)
			assert.Equal(t, 2, entry.Partition)
			assert.Equal(t, int64(41), entry.Offset)
			assert.Equal(t, tt.value, entry.Payload)
			assert.NotEmpty(t, entry.ErrorMessage)
		})
	}
}

func TestHandler_ParkedRecordCarriesIdentity(t *testing.T) {
	resolver := &fakeResolver{err: pserrors.NewNormalizationError("r", "title", "empty")}
	sink := &fakeSink{}
	h := NewHandler(resolver, sink, testLogger())

	require.NoError(t, h.Handle(context.Background(), message(validRecord)))
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "shop-a", sink.entries[0].Source)
	assert.Equal(t, "sku-1", sink.entries[0].ExternalID)
}

func TestHandler_DeadLetterFailureRedelivers(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("boom")}
	sink := &fakeSink{err: errors.New("redis down")}
	h := NewHandler(resolver, sink, testLogger())

	err := h.Handle(context.Background(), message(validRecord))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestHandler_NoDeadLetterQueueDrops(t *testing.T) {
	h := NewHandler(&fakeResolver{}, nil, testLogger())
	assert.NoError(t, h.Handle(context.Background(), message(`not json`)))
}
