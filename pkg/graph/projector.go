package graph

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

// Node labels and relationship types of the catalog graph.
const (
	LabelProductRecord = "ProductRecord"
	LabelCatalogEntity = "CatalogEntity"

	RelLinkedTo     = "LINKED_TO"
	RelCandidateOf  = "CANDIDATE_OF"
	RelSupersededBy = "SUPERSEDED_BY"
)

// StatementExecutor runs Cypher statements atomically. *Client implements it.
type StatementExecutor interface {
	ExecuteStatements(ctx context.Context, stmts []Statement) error
}

// CatalogProjector mirrors decisions and supersessions as graph edges:
// records LINKED_TO their entity, review records CANDIDATE_OF each
// candidate, and merged-away entities SUPERSEDED_BY their survivor.
type CatalogProjector struct {
	executor StatementExecutor
	logger   ectologger.Logger
}

func NewCatalogProjector(executor StatementExecutor, logger ectologger.Logger) *CatalogProjector {
	return &CatalogProjector{
		executor: executor,
		logger:   logger,
	}
}

func (p *CatalogProjector) ProjectDecision(ctx context.Context, decision *models.MatchDecision) error {
	ctx, span := tracing.StartSpan(ctx, "graph.CatalogProjector.ProjectDecision")
	defer span.End()

	if err := p.executor.ExecuteStatements(ctx, DecisionStatements(decision)); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"decision_id": decision.ID,
			"record_id":   decision.RecordID,
		}).Error("Failed to project decision")
		return err
	}
	return nil
}

func (p *CatalogProjector) ProjectSupersession(ctx context.Context, supersededID, survivorID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.CatalogProjector.ProjectSupersession")
	defer span.End()

	if err := p.executor.ExecuteStatements(ctx, SupersessionStatements(supersededID, survivorID)); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"superseded_id": supersededID,
			"survivor_id":   survivorID,
		}).Error("Failed to project supersession")
		return err
	}
	return nil
}

// DecisionStatements builds the writes for one decision. The record node is
// upserted for every record decision; linking decisions also clear any
// CANDIDATE_OF edges left by an earlier review. entity_merge decisions have
// no record and replay as a supersession.
func DecisionStatements(d *models.MatchDecision) []Statement {
	if d.Kind == models.DecisionKindEntityMerge {
		if d.SupersededEntityID == nil {
			return nil
		}
		return SupersessionStatements(*d.SupersededEntityID, d.EntityIDValue())
	}

	stmts := []Statement{{
		Cypher: `MERGE (r:ProductRecord {id: $record_id})
			SET r.source = $source, r.external_id = $external_id, r.last_decision = $kind`,
		Params: map[string]any{
			"record_id":   d.RecordID,
			"source":      d.Source,
			"external_id": d.ExternalID,
			"kind":        string(d.Kind),
		},
	}}

	if entityID := d.EntityIDValue(); entityID != "" {
		stmts = append(stmts,
			Statement{
				Cypher: `MATCH (r:ProductRecord {id: $record_id})-[c:CANDIDATE_OF]->() DELETE c`,
				Params: map[string]any{"record_id": d.RecordID},
			},
			Statement{
				Cypher: `MATCH (r:ProductRecord {id: $record_id})
					MERGE (e:CatalogEntity {id: $entity_id})
					MERGE (r)-[l:LINKED_TO]->(e)
					SET l.decision_id = $decision_id, l.score = $score, l.kind = $kind`,
				Params: map[string]any{
					"record_id":   d.RecordID,
					"entity_id":   entityID,
					"decision_id": d.ID,
					"score":       d.Score,
					"kind":        string(d.Kind),
				},
			},
		)
		return stmts
	}

	if d.Kind == models.DecisionKindNeedsReview && len(d.Rationale) > 0 {
		candidates := make([]map[string]any, 0, len(d.Rationale))
		for _, c := range d.Rationale {
			candidates = append(candidates, map[string]any{"entity_id": c.EntityID, "score": c.Score})
		}
		stmts = append(stmts, Statement{
			Cypher: `MATCH (r:ProductRecord {id: $record_id})
				UNWIND $candidates AS c
				MERGE (e:CatalogEntity {id: c.entity_id})
				MERGE (r)-[rel:CANDIDATE_OF]->(e)
				SET rel.score = c.score, rel.decision_id = $decision_id`,
			Params: map[string]any{
				"record_id":   d.RecordID,
				"decision_id": d.ID,
				"candidates":  candidates,
			},
		})
	}
	return stmts
}

// SupersessionStatements points superseded at survivor and moves its record links.
func SupersessionStatements(supersededID, survivorID string) []Statement {
	params := map[string]any{
		"superseded_id": supersededID,
		"survivor_id":   survivorID,
	}
	return []Statement{
		{
			Cypher: `MERGE (a:CatalogEntity {id: $superseded_id})
				MERGE (b:CatalogEntity {id: $survivor_id})
				MERGE (a)-[:SUPERSEDED_BY]->(b)`,
			Params: params,
		},
		{
			Cypher: `MATCH (r:ProductRecord)-[l:LINKED_TO]->(a:CatalogEntity {id: $superseded_id})
				MATCH (b:CatalogEntity {id: $survivor_id})
				MERGE (r)-[n:LINKED_TO]->(b)
				SET n.decision_id = l.decision_id, n.score = l.score, n.kind = l.kind
				DELETE l`,
			Params: params,
		},
	}
}
