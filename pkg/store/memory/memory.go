// Package memory is an in-process catalog store. It backs tests and the
// embedded mode of the CLI.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps the catalog in maps guarded by a single RWMutex.
// Writes inside WithTx are staged and applied at commit under the write lock,
// after every staged check passed.
type Store struct {
	mu sync.RWMutex

	entities     map[string]*models.CatalogEntity
	blocks       map[string]map[string]struct{}
	tokens       map[string]map[string]struct{}
	revisions    map[string]int64
	records      map[string]*models.ProductRecord
	recordEntity map[string]string

	decisions    []*models.MatchDecision
	decisionByID map[string]*models.MatchDecision
	resolvedBy   map[string]string
	seq          int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		entities:     map[string]*models.CatalogEntity{},
		blocks:       map[string]map[string]struct{}{},
		tokens:       map[string]map[string]struct{}{},
		revisions:    map[string]int64{},
		records:      map[string]*models.ProductRecord{},
		recordEntity: map[string]string{},
		decisionByID: map[string]*models.MatchDecision{},
		resolvedBy:   map[string]string{},
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// op is one staged write. check runs against committed state, apply mutates it.
type op struct {
	check func(s *Store) error
	apply func(s *Store)
}

type txKey struct{}

type txn struct {
	ops []op
}

func txFrom(ctx context.Context) *txn {
	tx, _ := ctx.Value(txKey{}).(*txn)
	return tx
}

// WithTx runs fn with a staged transaction on the context. Nested calls join
// the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	tx := &txn{}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range tx.ops {
		if err := o.check(s); err != nil {
			return err
		}
	}
	for _, o := range tx.ops {
		o.apply(s)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, o op) error {
	if tx := txFrom(ctx); tx != nil {
		tx.ops = append(tx.ops, o)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := o.check(s); err != nil {
		return err
	}
	o.apply(s)
	return nil
}

func (s *Store) CountEntities(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.entities {
		if !e.IsSuperseded() {
			count++
		}
	}
	return count, nil
}

func (s *Store) LoadCandidates(ctx context.Context, query store.CandidateQuery) (*store.CandidatePage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scope := query.BlockKey
	if query.All {
		scope = store.CatalogScope
	}
	page := &store.CandidatePage{BlockKey: scope, Revision: s.revisions[scope]}

	if query.All {
		ids := make([]string, 0, len(s.entities))
		for id, e := range s.entities {
			if !e.IsSuperseded() {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		for _, id := range ids {
			page.Entities = append(page.Entities, s.entities[id].Clone())
		}
		return page, nil
	}

	// Rank index hits: same block first, then by shared tokens.
	hits := map[string]int{}
	for id := range s.blocks[query.BlockKey] {
		hits[id] += len(query.Tokens) + 1
	}
	for _, token := range query.Tokens {
		for id := range s.tokens[token] {
			hits[id]++
		}
	}

	ids := make([]string, 0, len(hits))
	for id := range hits {
		if !s.entities[id].IsSuperseded() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if hits[ids[i]] != hits[ids[j]] {
			return hits[ids[i]] > hits[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if query.Limit > 0 && len(ids) > query.Limit {
		ids = ids[:query.Limit]
	}
	for _, id := range ids {
		page.Entities = append(page.Entities, s.entities[id].Clone())
	}
	return page, nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (*models.CatalogEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, store.NotFound("catalog entity", id)
	}
	return e.Clone(), nil
}

func (s *Store) CommitEntity(ctx context.Context, entity *models.CatalogEntity, guard *models.CommitGuard) error {
	staged := entity.Clone()
	var g *models.CommitGuard
	if guard != nil {
		cp := *guard
		g = &cp
	}

	return s.exec(ctx, op{
		check: func(s *Store) error {
			if g != nil && s.revisions[g.BlockKey] != g.Revision {
				return pserrors.NewCommitConflictError(staged.ID, g.BlockKey, "block revision changed")
			}
			existing, ok := s.entities[staged.ID]
			if staged.Version == 0 {
				if ok {
					return pserrors.NewCommitConflictError(staged.ID, "", "entity already exists")
				}
				return nil
			}
			switch {
			case !ok:
				return pserrors.NewCommitConflictError(staged.ID, "", "entity does not exist")
			case existing.Version != staged.Version:
				return pserrors.NewCommitConflictError(staged.ID, "", "entity version changed")
			case existing.IsSuperseded():
				return pserrors.NewCommitConflictError(staged.ID, "", "entity was superseded")
			}
			return nil
		},
		apply: func(s *Store) {
			now := s.now()
			if existing, ok := s.entities[staged.ID]; ok {
				s.unindex(existing)
				staged.CreatedAt = existing.CreatedAt
			} else if staged.CreatedAt.IsZero() {
				staged.CreatedAt = now
			}
			staged.Version++
			staged.UpdatedAt = now

			s.entities[staged.ID] = staged
			s.index(staged)
			for _, rid := range staged.RecordIDs {
				s.recordEntity[rid] = staged.ID
			}

			s.revisions[staged.BlockKey]++
			if g != nil && g.BlockKey != staged.BlockKey {
				s.revisions[g.BlockKey]++
			}
			if g == nil || g.BlockKey != store.CatalogScope {
				s.revisions[store.CatalogScope]++
			}

			entity.Version = staged.Version
			entity.CreatedAt = staged.CreatedAt
			entity.UpdatedAt = staged.UpdatedAt
		},
	})
}

func (s *Store) SupersedeEntity(ctx context.Context, entity *models.CatalogEntity, survivorID string) error {
	id, version := entity.ID, entity.Version

	return s.exec(ctx, op{
		check: func(s *Store) error {
			existing, ok := s.entities[id]
			switch {
			case !ok:
				return store.NotFound("catalog entity", id)
			case id == survivorID:
				return pserrors.NewCommitConflictError(id, "", "entity cannot supersede itself")
			case existing.IsSuperseded():
				return pserrors.NewCommitConflictError(id, "", "entity was already superseded")
			case existing.Version != version:
				return pserrors.NewCommitConflictError(id, "", "entity version changed")
			}
			return nil
		},
		apply: func(s *Store) {
			existing := s.entities[id]
			s.unindex(existing)
			for _, rid := range existing.RecordIDs {
				if s.recordEntity[rid] == id {
					delete(s.recordEntity, rid)
				}
			}

			survivor := survivorID
			existing.SupersededBy = &survivor
			existing.RecordIDs = nil
			existing.Version++
			existing.UpdatedAt = s.now()
			s.revisions[existing.BlockKey]++
			s.revisions[store.CatalogScope]++

			entity.SupersededBy = &survivor
			entity.RecordIDs = nil
			entity.Version = existing.Version
			entity.UpdatedAt = existing.UpdatedAt
		},
	})
}

func (s *Store) SaveRecord(ctx context.Context, record *models.ProductRecord) error {
	staged := *record
	staged.Attributes = make(models.Attributes, len(record.Attributes))
	for k, v := range record.Attributes {
		staged.Attributes[k] = v
	}

	return s.exec(ctx, op{
		check: func(*Store) error { return nil },
		apply: func(s *Store) {
			if _, ok := s.records[staged.ID]; ok {
				return
			}
			if staged.CreatedAt.IsZero() {
				staged.CreatedAt = s.now()
			}
			s.records[staged.ID] = &staged
		},
	})
}

func (s *Store) GetRecord(ctx context.Context, id string) (*models.ProductRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, store.NotFound("product record", id)
	}
	cp := *r
	return &cp, nil
}

func (s *Store) AppendDecision(ctx context.Context, decision *models.MatchDecision) error {
	staged := copyDecision(decision)

	return s.exec(ctx, op{
		check: func(s *Store) error {
			if _, ok := s.decisionByID[staged.ID]; ok {
				return pserrors.NewCommitConflictError("", "", "decision "+staged.ID+" already exists")
			}
			if staged.ResolvesDecisionID != nil {
				if _, ok := s.resolvedBy[*staged.ResolvesDecisionID]; ok {
					return pserrors.NewCommitConflictError("", "", "decision "+*staged.ResolvesDecisionID+" was already resolved")
				}
				return nil
			}
			if staged.SupersededEntityID != nil {
				for _, d := range s.decisions {
					if d.SupersededEntityID != nil && *d.SupersededEntityID == *staged.SupersededEntityID {
						return pserrors.NewCommitConflictError(*staged.SupersededEntityID, "", "entity was already merged away")
					}
				}
				return nil
			}
			if staged.Kind.IsPrimary() {
				for _, d := range s.decisions {
					if d.RecordID == staged.RecordID && d.Kind.IsPrimary() {
						return pserrors.NewCommitConflictError("", "", "record "+staged.RecordID+" already has a decision")
					}
				}
			}
			return nil
		},
		apply: func(s *Store) {
			s.seq++
			staged.Sequence = s.seq
			if staged.CreatedAt.IsZero() {
				staged.CreatedAt = s.now()
			}
			s.decisions = append(s.decisions, staged)
			s.decisionByID[staged.ID] = staged
			if staged.ResolvesDecisionID != nil {
				s.resolvedBy[*staged.ResolvesDecisionID] = staged.ID
			}

			decision.Sequence = staged.Sequence
			decision.CreatedAt = staged.CreatedAt
		},
	})
}

func (s *Store) FindDecision(ctx context.Context, source, externalID string) (*models.MatchDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.decisions) - 1; i >= 0; i-- {
		d := s.decisions[i]
		if d.Source == source && d.ExternalID == externalID {
			return copyDecision(d), nil
		}
	}
	return nil, nil
}

func (s *Store) GetDecision(ctx context.Context, id string) (*models.MatchDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.decisionByID[id]
	if !ok {
		return nil, store.NotFound("match decision", id)
	}
	return copyDecision(d), nil
}

func (s *Store) ListReviewQueue(ctx context.Context, limit int) ([]*models.MatchDecision, error) {
	if limit <= 0 {
		limit = store.DefaultReviewQueueLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.MatchDecision{}
	for _, d := range s.decisions {
		if d.Kind != models.DecisionKindNeedsReview {
			continue
		}
		if _, resolved := s.resolvedBy[d.ID]; resolved {
			continue
		}
		out = append(out, copyDecision(d))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// RecordEntity returns the entity a record is linked to, if any.
func (s *Store) RecordEntity(recordID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.recordEntity[recordID]
	return id, ok
}

// Decisions returns every decision in sequence order.
func (s *Store) Decisions() []*models.MatchDecision {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.MatchDecision, 0, len(s.decisions))
	for _, d := range s.decisions {
		out = append(out, copyDecision(d))
	}
	return out
}

func (s *Store) index(e *models.CatalogEntity) {
	if e.IsSuperseded() {
		return
	}
	addTo(s.blocks, e.BlockKey, e.ID)
	for _, t := range e.Representative.Tokens {
		addTo(s.tokens, t, e.ID)
	}
}

func (s *Store) unindex(e *models.CatalogEntity) {
	removeFrom(s.blocks, e.BlockKey, e.ID)
	for _, t := range e.Representative.Tokens {
		removeFrom(s.tokens, t, e.ID)
	}
}

func addTo(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		set = map[string]struct{}{}
		m[key] = set
	}
	set[id] = struct{}{}
}

func removeFrom(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}

func copyDecision(d *models.MatchDecision) *models.MatchDecision {
	cp := *d
	cp.Rationale = append(models.Rationale(nil), d.Rationale...)
	if d.EntityID != nil {
		id := *d.EntityID
		cp.EntityID = &id
	}
	if d.ResolvesDecisionID != nil {
		id := *d.ResolvesDecisionID
		cp.ResolvesDecisionID = &id
	}
	if d.SupersededEntityID != nil {
		id := *d.SupersededEntityID
		cp.SupersededEntityID = &id
	}
	return &cp
}
