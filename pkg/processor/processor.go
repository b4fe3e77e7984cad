// Package processor drives product records through normalization, retrieval,
// scoring and resolution, and commits the outcome to the catalog.
package processor

import (
	"context"
	stderrors "errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/fingerprint"
	"github.com/Ramsey-B/productsync/pkg/matching"
	"github.com/Ramsey-B/productsync/pkg/metrics"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/normalization"
	"github.com/Ramsey-B/productsync/pkg/store"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

// Scorer compares a record's form with a candidate's representative form.
type Scorer interface {
	Score(a, b *models.ProductForm) float64
}

// Notifier is told about auto-merged and needs-review decisions.
type Notifier interface {
	Notify(ctx context.Context, decision *models.MatchDecision) error
}

// Projector mirrors committed catalog changes into a read model.
type Projector interface {
	ProjectDecision(ctx context.Context, decision *models.MatchDecision) error
	ProjectSupersession(ctx context.Context, supersededID, survivorID string) error
}

// Processor resolves records one at a time or in batches. It is safe for
// concurrent use.
type Processor struct {
	logger     ectologger.Logger
	store      store.Store
	normalizer *normalization.Normalizer
	retriever  *matching.Retriever
	scorer     Scorer
	resolver   *matching.Resolver
	locker     KeyLocker
	notifier   Notifier
	projector  Projector
	validate   *validator.Validate
	cfg        Config
	now        func() time.Time
}

// NewProcessor creates a processor with an in-process key locker and no
// notifier or projector.
func NewProcessor(
	logger ectologger.Logger,
	st store.Store,
	normalizer *normalization.Normalizer,
	retriever *matching.Retriever,
	scorer Scorer,
	resolver *matching.Resolver,
	cfg Config,
) *Processor {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Processor{
		logger:     logger,
		store:      st,
		normalizer: normalizer,
		retriever:  retriever,
		scorer:     scorer,
		resolver:   resolver,
		locker:     NewLocalKeyLocker(),
		validate:   validate,
		cfg:        cfg.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetLocker replaces the key locker, e.g. with a RedisKeyLocker.
func (p *Processor) SetLocker(locker KeyLocker) {
	p.locker = locker
}

func (p *Processor) SetNotifier(notifier Notifier) {
	p.notifier = notifier
}

func (p *Processor) SetProjector(projector Projector) {
	p.projector = projector
}

// Resolve decides and commits the outcome for one record. Re-submitting a
// (source, external id) pair returns the latest existing decision unchanged.
func (p *Processor) Resolve(ctx context.Context, record *models.ProductRecord) (*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.Resolve")
	defer span.End()

	start := time.Now()
	decision, fresh, err := p.resolve(ctx, record)
	if err != nil {
		metrics.RecordResolveFailure(time.Since(start).Seconds())
		return nil, err
	}
	if fresh {
		metrics.RecordDecision(string(decision.Kind), decision.Reason, time.Since(start).Seconds())
		p.publish(ctx, decision)
	}
	return decision, nil
}

func (p *Processor) resolve(ctx context.Context, record *models.ProductRecord) (*models.MatchDecision, bool, error) {
	if err := p.prepare(ctx, record); err != nil {
		return nil, false, err
	}

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"record_id":   record.ID,
		"source":      record.Source,
		"external_id": record.ExternalID,
	})

	if existing, err := p.existingDecision(ctx, record); err != nil || existing != nil {
		return existing, false, err
	}

	nr, err := p.normalizer.Normalize(ctx, record)
	if err != nil {
		var normErr *pserrors.NormalizationError
		if stderrors.As(err, &normErr) {
			metrics.RecordRejected(normErr.Field)
			log.WithError(err).Warn("Rejected product record")
		}
		return nil, false, err
	}

	unlock, err := p.locker.Lock(ctx, nr.LockKey)
	if err != nil {
		log.WithError(err).Error("Failed to acquire record lock")
		return nil, false, err
	}
	defer unlock()

	// Another worker may have resolved the same record while we waited.
	if existing, err := p.existingDecision(ctx, record); err != nil || existing != nil {
		return existing, false, err
	}

	decision, err := p.resolveWithAttempts(ctx, record, nr)
	if err != nil {
		log.WithError(err).Error("Failed to resolve product record")
		return nil, false, err
	}

	log.WithFields(map[string]any{
		"decision":  decision.Kind,
		"reason":    decision.Reason,
		"entity_id": decision.EntityIDValue(),
		"score":     decision.Score,
	}).Info("Resolved product record")

	return decision, true, nil
}

// prepare validates the record and derives its id and fingerprint.
func (p *Processor) prepare(ctx context.Context, record *models.ProductRecord) error {
	if err := p.validate.StructCtx(ctx, record); err != nil {
		field, msg := "", err.Error()
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			field = verrs[0].Field()
			msg = field + " failed '" + verrs[0].Tag() + "' validation"
		}
		metrics.RecordRejected(field)
		return pserrors.NewNormalizationError(models.RecordID(record.Source, record.ExternalID), field, msg)
	}

	record.ID = models.RecordID(record.Source, record.ExternalID)
	record.Fingerprint = fingerprint.Generate(record.FingerprintData())
	record.ObservedAt = observedAtOrNow(record.ObservedAt, p.now())
	return nil
}

func (p *Processor) existingDecision(ctx context.Context, record *models.ProductRecord) (*models.MatchDecision, error) {
	var existing *models.MatchDecision
	err := p.withTransientRetry(ctx, "find_decision", func() error {
		var err error
		existing, err = p.store.FindDecision(ctx, record.Source, record.ExternalID)
		return err
	})
	if err != nil || existing == nil {
		return nil, err
	}

	changed := fingerprint.HasChanged(existing.RecordFingerprint, record.Fingerprint)
	if changed {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"record_id":   record.ID,
			"decision_id": existing.ID,
		}).Warn("Record content changed since it was resolved; keeping existing decision")
	}
	metrics.RecordIdempotentHit(changed)
	return existing, nil
}

// resolveWithAttempts retries the retrieve-score-commit cycle on commit
// conflicts and escalates to review when attempts run out.
func (p *Processor) resolveWithAttempts(ctx context.Context, record *models.ProductRecord, nr *models.NormalizedRecord) (*models.MatchDecision, error) {
	var lastScored []models.ScoredCandidate

	for attempt := 1; attempt <= p.cfg.MaxCommitAttempts; attempt++ {
		var decision *models.MatchDecision
		err := p.withTransientRetry(ctx, "resolve", func() error {
			set, err := p.retriever.Retrieve(ctx, nr)
			if err != nil {
				return err
			}
			metrics.RecordCandidates(string(set.Mode), len(set.Candidates))

			scored := p.score(nr, set)
			lastScored = scored
			outcome := p.resolver.Resolve(scored)

			decision, err = p.commit(ctx, record, nr, set, scored, outcome)
			return err
		})
		if err == nil {
			return decision, nil
		}
		if !pserrors.IsCommitConflictError(err) {
			return nil, err
		}

		metrics.RecordCommitConflict(false)
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_id": record.ID,
			"attempt":   attempt,
		}).Warn("Commit conflict, retrying with fresh candidates")
	}

	metrics.RecordCommitConflict(true)
	return p.escalate(ctx, record, lastScored)
}

func (p *Processor) score(nr *models.NormalizedRecord, set *matching.CandidateSet) []models.ScoredCandidate {
	scored := make([]models.ScoredCandidate, 0, len(set.Candidates))
	for _, c := range set.Candidates {
		scored = append(scored, models.ScoredCandidate{
			EntityID: c.Entity.ID,
			Title:    c.Entity.DisplayTitle,
			Score:    p.scorer.Score(&nr.Form, &c.Entity.Representative),
		})
	}
	matching.SortCandidates(scored)
	return scored
}

func (p *Processor) newDecision(record *models.ProductRecord, kind models.DecisionKind, reason string, score float64, scored []models.ScoredCandidate) *models.MatchDecision {
	return &models.MatchDecision{
		ID:                uuid.New().String(),
		RecordID:          record.ID,
		Source:            record.Source,
		ExternalID:        record.ExternalID,
		Score:             score,
		Kind:              kind,
		Reason:            reason,
		Rationale:         append(models.Rationale{}, scored...),
		RecordFingerprint: record.Fingerprint,
		EmbeddingVersion:  p.normalizer.EmbeddingVersion(),
		CreatedAt:         p.now(),
	}
}

func (p *Processor) commit(
	ctx context.Context,
	record *models.ProductRecord,
	nr *models.NormalizedRecord,
	set *matching.CandidateSet,
	scored []models.ScoredCandidate,
	outcome matching.Outcome,
) (*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.commit")
	defer span.End()

	decision := p.newDecision(record, outcome.Kind, outcome.Reason, outcome.Score, scored)
	guard := set.Guard

	var entity *models.CatalogEntity
	switch outcome.Kind {
	case models.DecisionKindNewEntity:
		entity = newEntity(record, nr)
	case models.DecisionKindAutoMerge:
		for _, c := range set.Candidates {
			if c.Entity.ID == outcome.EntityID {
				entity = c.Entity.Clone()
				break
			}
		}
		if entity == nil {
			return nil, pserrors.NewCommitConflictError(outcome.EntityID, guard.BlockKey, "resolved entity is not among the candidates")
		}
		linkRecord(entity, record, nr)
	}
	if entity != nil {
		id := entity.ID
		decision.EntityID = &id
	}

	err := p.store.WithTx(ctx, func(ctx context.Context) error {
		if err := p.store.SaveRecord(ctx, record); err != nil {
			return err
		}
		if entity != nil {
			if err := p.store.CommitEntity(ctx, entity, &guard); err != nil {
				return err
			}
		}
		return p.store.AppendDecision(ctx, decision)
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}

// escalate records a review decision after repeated commit conflicts. If the
// record was decided concurrently, that decision is returned instead.
func (p *Processor) escalate(ctx context.Context, record *models.ProductRecord, scored []models.ScoredCandidate) (*models.MatchDecision, error) {
	var score float64
	if len(scored) > 0 {
		score = scored[0].Score
	}
	decision := p.newDecision(record, models.DecisionKindNeedsReview, models.ReasonCommitConflict, score, scored)

	err := p.withTransientRetry(ctx, "escalate", func() error {
		return p.store.WithTx(ctx, func(ctx context.Context) error {
			if err := p.store.SaveRecord(ctx, record); err != nil {
				return err
			}
			return p.store.AppendDecision(ctx, decision)
		})
	})
	if pserrors.IsCommitConflictError(err) {
		if existing, findErr := p.store.FindDecision(ctx, record.Source, record.ExternalID); findErr == nil && existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"record_id": record.ID,
	}).Warn("Escalated record to review after repeated commit conflicts")
	return decision, nil
}

// publish hands a committed decision to the notifier and projector. Failures
// are logged and never undo the decision.
func (p *Processor) publish(ctx context.Context, decision *models.MatchDecision) {
	log := p.logger.WithContext(ctx).WithFields(map[string]any{"decision_id": decision.ID})

	if p.notifier != nil && (decision.Kind == models.DecisionKindNeedsReview || decision.Kind == models.DecisionKindAutoMerge) {
		if err := p.notifier.Notify(ctx, decision); err != nil {
			log.WithError(err).Error("Failed to notify decision")
		}
	}
	if p.projector != nil {
		if err := p.projector.ProjectDecision(ctx, decision); err != nil {
			log.WithError(err).Error("Failed to project decision")
		}
	}
}

// ResolveReview closes an open review. With a target entity the record is
// linked to it, otherwise a new entity is created for the record.
func (p *Processor) ResolveReview(ctx context.Context, decisionID, targetEntityID string) (*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ResolveReview")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"decision_id": decisionID,
		"entity_id":   targetEntityID,
	})

	review, err := p.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if review.Kind != models.DecisionKindNeedsReview {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "decision %s is not awaiting review", decisionID)
	}

	record, err := p.store.GetRecord(ctx, review.RecordID)
	if err != nil {
		return nil, err
	}
	nr, err := p.normalizer.Normalize(ctx, record)
	if err != nil {
		return nil, err
	}

	unlock, err := p.locker.Lock(ctx, nr.LockKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var decision *models.MatchDecision
	attempt := func() error {
		var entity *models.CatalogEntity
		var guard *models.CommitGuard
		kind := models.DecisionKindReviewNew

		if targetEntityID != "" {
			target, err := p.store.GetEntity(ctx, targetEntityID)
			if err != nil {
				return err
			}
			if target.IsSuperseded() {
				return pserrors.NewCommitConflictError(target.ID, "", "entity was superseded by "+*target.SupersededBy)
			}
			if _, err := p.normalizer.Reembed(ctx, &target.Representative); err != nil {
				return err
			}
			linkRecord(target, record, nr)
			entity = target
			kind = models.DecisionKindReviewMerge
		} else {
			// A new entity is guarded like any other creation, so a record
			// resolving concurrently cannot create a second one unseen.
			set, err := p.retriever.Retrieve(ctx, nr)
			if err != nil {
				return err
			}
			guard = &set.Guard
			entity = newEntity(record, nr)
		}

		decision = p.newDecision(record, kind, models.ReasonManualReview, review.Score, review.Rationale)
		id := entity.ID
		decision.EntityID = &id
		resolves := review.ID
		decision.ResolvesDecisionID = &resolves

		return p.store.WithTx(ctx, func(ctx context.Context) error {
			if err := p.store.CommitEntity(ctx, entity, guard); err != nil {
				return err
			}
			return p.store.AppendDecision(ctx, decision)
		})
	}

	for n := 1; ; n++ {
		err = p.withTransientRetry(ctx, "resolve_review", attempt)
		if err == nil || !pserrors.IsCommitConflictError(err) || n >= p.cfg.MaxCommitAttempts {
			break
		}
		metrics.RecordCommitConflict(false)
		log.WithError(err).WithFields(map[string]any{"attempt": n}).Warn("Commit conflict while resolving review, retrying")
	}
	if err != nil {
		log.WithError(err).Error("Failed to resolve review")
		return nil, err
	}

	metrics.RecordDecision(string(decision.Kind), decision.Reason, 0)
	log.WithFields(map[string]any{"decision": decision.Kind}).Info("Resolved review")
	p.publish(ctx, decision)
	return decision, nil
}

// MergeEntities folds superseded into survivor. The superseded entity keeps
// existing with superseded_by set and never appears as a candidate again. An
// entity_merge decision is appended in the same transaction so the decision
// log alone rebuilds the catalog.
func (p *Processor) MergeEntities(ctx context.Context, survivorID, supersededID string) (*models.CatalogEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.MergeEntities")
	defer span.End()

	if survivorID == supersededID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "an entity cannot be merged into itself")
	}

	var survivor *models.CatalogEntity
	var decision *models.MatchDecision
	err := p.withTransientRetry(ctx, "merge_entities", func() error {
		var err error
		survivor, err = p.store.GetEntity(ctx, survivorID)
		if err != nil {
			return err
		}
		superseded, err := p.store.GetEntity(ctx, supersededID)
		if err != nil {
			return err
		}
		for _, e := range []*models.CatalogEntity{survivor, superseded} {
			if e.IsSuperseded() {
				return pserrors.NewCommitConflictError(e.ID, "", "entity was already superseded")
			}
			if _, err := p.normalizer.Reembed(ctx, &e.Representative); err != nil {
				return err
			}
		}

		absorbEntity(survivor, superseded)
		decision = p.mergeDecision(survivor, superseded)

		return p.store.WithTx(ctx, func(ctx context.Context) error {
			if err := p.store.SupersedeEntity(ctx, superseded, survivor.ID); err != nil {
				return err
			}
			if err := p.store.CommitEntity(ctx, survivor, nil); err != nil {
				return err
			}
			return p.store.AppendDecision(ctx, decision)
		})
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"survivor_id":   survivorID,
			"superseded_id": supersededID,
		}).Error("Failed to merge entities")
		return nil, err
	}

	if p.projector != nil {
		if err := p.projector.ProjectSupersession(ctx, supersededID, survivorID); err != nil {
			p.logger.WithContext(ctx).WithError(err).Error("Failed to project supersession")
		}
	}

	metrics.RecordDecision(string(decision.Kind), decision.Reason, 0)
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"survivor_id":   survivorID,
		"superseded_id": supersededID,
		"decision_id":   decision.ID,
		"records":       len(survivor.RecordIDs),
	}).Info("Merged catalog entities")
	return survivor, nil
}

// mergeDecision records superseded folding into survivor. The rationale
// carries the superseded entity so the log reads without the entity rows.
func (p *Processor) mergeDecision(survivor, superseded *models.CatalogEntity) *models.MatchDecision {
	survivorID, supersededID := survivor.ID, superseded.ID
	return &models.MatchDecision{
		ID:                 uuid.New().String(),
		EntityID:           &survivorID,
		SupersededEntityID: &supersededID,
		Kind:               models.DecisionKindEntityMerge,
		Reason:             models.ReasonEntityMerge,
		Rationale: models.Rationale{{
			EntityID: supersededID,
			Title:    superseded.DisplayTitle,
		}},
		EmbeddingVersion: p.normalizer.EmbeddingVersion(),
		CreatedAt:        p.now(),
	}
}
