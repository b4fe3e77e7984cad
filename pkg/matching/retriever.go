package matching

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/productsync/pkg/embedding"
	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/store"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

// Mode says how candidates were loaded.
type Mode string

const (
	ModeExact Mode = "exact"
	ModeIndex Mode = "index"
)

// Reembedder refreshes stored forms produced by an older embedding model.
type Reembedder interface {
	EmbeddingVersion() string
	Reembed(ctx context.Context, form *models.ProductForm) (bool, error)
}

// Candidate is a catalog entity with its embedding similarity to the record.
type Candidate struct {
	Entity     *models.CatalogEntity
	Similarity float64
}

// CandidateSet holds at most MaxCandidates entities, best first, and the
// revision they were read at: the record's block in index mode, the whole
// catalog in exact mode.
type CandidateSet struct {
	Candidates []Candidate
	Mode       Mode
	Guard      models.CommitGuard
	Scanned    int
}

// Retriever narrows the catalog to plausible candidates.
//
// In index mode a candidate is only considered if it shares the record's block
// key or at least one title token.
type Retriever struct {
	store      store.Store
	reembedder Reembedder
	cfg        Config
	logger     ectologger.Logger
}

func NewRetriever(st store.Store, reembedder Reembedder, cfg Config, logger ectologger.Logger) *Retriever {
	return &Retriever{
		store:      st,
		reembedder: reembedder,
		cfg:        cfg,
		logger:     logger,
	}
}

// Retrieve returns an empty set, not an error, when nothing is plausible. A
// stale candidate that cannot be re-embedded fails the retrieval with a
// TransientStoreError rather than being left out.
func (r *Retriever) Retrieve(ctx context.Context, record *models.NormalizedRecord) (*CandidateSet, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Retriever.Retrieve")
	defer span.End()

	total, err := r.store.CountEntities(ctx)
	if err != nil {
		return nil, err
	}

	query := store.CandidateQuery{BlockKey: record.BlockKey}
	mode := ModeExact
	if total <= r.cfg.ExactSearchThreshold {
		query.All = true
	} else {
		mode = ModeIndex
		query.Tokens = record.Form.Tokens
		query.Limit = r.cfg.IndexFetchLimit
	}

	page, err := r.store.LoadCandidates(ctx, query)
	if err != nil {
		return nil, err
	}

	set := &CandidateSet{
		Mode:    mode,
		Guard:   models.CommitGuard{BlockKey: page.BlockKey, Revision: page.Revision},
		Scanned: len(page.Entities),
	}

	version := r.reembedder.EmbeddingVersion()
	for _, entity := range page.Entities {
		if entity.Representative.EmbeddingVersion != version {
			if _, err := r.reembedder.Reembed(ctx, &entity.Representative); err != nil {
				r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"entity_id": entity.ID,
				}).Error("Failed to re-embed candidate")
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, pserrors.NewTransientStoreError("reembed_candidate", err)
			}
		}

		sim := embedding.Cosine(record.Form.Embedding, entity.Representative.Embedding)
		if sim < r.cfg.MinSimilarity {
			continue
		}
		set.Candidates = append(set.Candidates, Candidate{Entity: entity, Similarity: sim})
	}

	sort.SliceStable(set.Candidates, func(i, j int) bool {
		if set.Candidates[i].Similarity != set.Candidates[j].Similarity {
			return set.Candidates[i].Similarity > set.Candidates[j].Similarity
		}
		return set.Candidates[i].Entity.ID < set.Candidates[j].Entity.ID
	})
	if len(set.Candidates) > r.cfg.MaxCandidates {
		set.Candidates = set.Candidates[:r.cfg.MaxCandidates]
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"record_id":  record.RecordID,
		"mode":       mode,
		"scanned":    set.Scanned,
		"candidates": len(set.Candidates),
	}).Debug("Retrieved candidates")

	return set, nil
}
