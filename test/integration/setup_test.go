package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/productsync/pkg/database"
	"github.com/Ramsey-B/productsync/pkg/embedding"
	"github.com/Ramsey-B/productsync/pkg/events"
	"github.com/Ramsey-B/productsync/pkg/graph"
	"github.com/Ramsey-B/productsync/pkg/ingest"
	"github.com/Ramsey-B/productsync/pkg/kafka"
	"github.com/Ramsey-B/productsync/pkg/matching"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/normalization"
	"github.com/Ramsey-B/productsync/pkg/processor"
	"github.com/Ramsey-B/productsync/pkg/redis"
	"github.com/Ramsey-B/productsync/pkg/store"
	"github.com/Ramsey-B/productsync/pkg/store/memory"
	"github.com/Ramsey-B/productsync/pkg/store/postgres"
)

// The suite runs on the in-memory store. Set PRODUCTSYNC_TEST_DB_HOST (and
// optionally _PORT, _USER, _PASSWORD, _NAME) to run it against Postgres.
const envTestDBHost = "PRODUCTSYNC_TEST_DB_HOST"

// fixedScorer scores by "record title|candidate title", both normalized.
type fixedScorer map[string]float64

func (f fixedScorer) Score(a, b *models.ProductForm) float64 {
	return f[a.Title+"|"+b.Title]
}

type capturePublisher struct {
	mu       sync.Mutex
	messages []*kafka.OutgoingMessage
}

func (p *capturePublisher) Publish(_ context.Context, msg *kafka.OutgoingMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturePublisher) events() []*events.DecisionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*events.DecisionEvent, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, m.Value.(*events.DecisionEvent))
	}
	return out
}

type captureExecutor struct {
	mu         sync.Mutex
	statements []graph.Statement
}

func (e *captureExecutor) ExecuteStatements(_ context.Context, stmts []graph.Statement) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statements = append(e.statements, stmts...)
	return nil
}

type captureDLQ struct {
	mu      sync.Mutex
	entries []*redis.DLQEntry
}

func (d *captureDLQ) Add(_ context.Context, entry *redis.DLQEntry) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, entry)
	return strconv.Itoa(len(d.entries)), nil
}

// testContext wires the whole pipeline the way the service does, with the
// outbound edges (Kafka, Memgraph, Redis streams) captured in memory.
type testContext struct {
	ctx       context.Context
	store     store.Store
	processor *processor.Processor
	handler   *ingest.Handler
	publisher *capturePublisher
	graph     *captureExecutor
	dlq       *captureDLQ
	offset    int64
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func setupTestContext(t *testing.T, scorer processor.Scorer) *testContext {
	t.Helper()
	logger := testLogger()

	tc := &testContext{
		ctx:       context.Background(),
		store:     newTestStore(t, logger),
		publisher: &capturePublisher{},
		graph:     &captureExecutor{},
		dlq:       &captureDLQ{},
	}

	mcfg := matching.DefaultConfig()
	normalizer := normalization.NewNormalizer(embedding.NewHashingEmbedder(256), normalization.DefaultConfig(), logger)
	if scorer == nil {
		scorer = matching.NewSimilarityScorer(mcfg)
	}
	pcfg := processor.DefaultConfig()
	pcfg.TransientInitialInterval = time.Millisecond
	pcfg.TransientMaxInterval = 5 * time.Millisecond

	tc.processor = processor.NewProcessor(
		logger,
		tc.store,
		normalizer,
		matching.NewRetriever(tc.store, normalizer, mcfg, logger),
		scorer,
		matching.NewResolver(mcfg),
		pcfg,
	)
	tc.processor.SetNotifier(events.NewEmitter(tc.publisher, logger))
	tc.processor.SetProjector(graph.NewCatalogProjector(tc.graph, logger))
	tc.handler = ingest.NewHandler(tc.processor, tc.dlq, logger)
	return tc
}

func newTestStore(t *testing.T, logger ectologger.Logger) store.Store {
	t.Helper()
	host := os.Getenv(envTestDBHost)
	if host == "" {
		return memory.New()
	}
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	port, _ := strconv.Atoi(envOr(envTestDBHost+"_PORT", "5432"))
	db, err := database.Open(database.Config{
		Host:     host,
		Port:     port,
		User:     envOr(envTestDBHost+"_USER", "postgres"),
		Password: os.Getenv(envTestDBHost + "_PASSWORD"),
		Name:     envOr(envTestDBHost+"_NAME", "productsync_test"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(context.Background()))

	folder, err := filepath.Abs(filepath.Join("..", "..", "db", "pg"))
	require.NoError(t, err)
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: folder})
	require.NoError(t, migrations.MigratePostgres(db.DB.DB))

	_, err = db.ExecContext(context.Background(),
		"TRUNCATE match_decisions, catalog_blocks, entity_tokens, entity_records, catalog_entities, product_records")
	require.NoError(t, err)

	return postgres.New(db, logger)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func product(source, externalID, title, brand string) *models.ProductRecord {
	attrs := models.Attributes{}
	if brand != "" {
		attrs["brand"] = brand
	}
	return &models.ProductRecord{
		Source:     source,
		ExternalID: externalID,
		Title:      title,
		Attributes: attrs,
		ObservedAt: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
	}
}

// deliver pushes record through the Kafka handler as a JSON message.
func (tc *testContext) deliver(t *testing.T, record any) error {
	t.Helper()
	value, err := json.Marshal(record)
	require.NoError(t, err)
	tc.offset++
	return tc.handler.Handle(tc.ctx, &kafka.IncomingMessage{
		Topic:     "product-records",
		Partition: 0,
		Offset:    tc.offset,
		Key:       fmt.Sprintf("key-%d", tc.offset),
		Value:     value,
		Timestamp: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
	})
}

// decisionFor returns the latest decision for a record.
func (tc *testContext) decisionFor(t *testing.T, source, externalID string) *models.MatchDecision {
	t.Helper()
	d, err := tc.store.FindDecision(tc.ctx, source, externalID)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func (tc *testContext) entityCount(t *testing.T) int {
	t.Helper()
	n, err := tc.store.CountEntities(tc.ctx)
	require.NoError(t, err)
	return n
}
