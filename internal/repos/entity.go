package repos

import (
	"context"
	"encoding/json"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/types"
)

// ExtractedEntity is one mention produced by the enrichment step.
type ExtractedEntity struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Aliases   []string `json:"aliases"`
	Relevance float64  `json:"relevance"`
}

type EntityRepo interface {
	Resolve(ctx context.Context, tx *gorm.DB, name string, aliases []string) (*types.Entity, error)
	LinkToChunk(ctx context.Context, chunkID uuid.UUID, extracted ExtractedEntity) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Entity, error)
}

type entityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEntityRepo(db *gorm.DB, baseLog *logger.Logger) EntityRepo {
	repoLog := baseLog.With("repo", "EntityRepo")
	return &entityRepo{db: db, log: repoLog}
}

// Resolve finds the best existing entity for an extracted mention: among
// entities whose name or aliases intersect {name} ∪ aliases, the one with
// the largest intersection wins, oldest created_at on ties. Returns nil
// when no candidate matches.
func (r *entityRepo) Resolve(ctx context.Context, tx *gorm.DB, name string, aliases []string) (*types.Entity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	terms := mentionTerms(name, aliases)
	if len(terms) == 0 {
		return nil, nil
	}

	q := transaction.WithContext(ctx).Model(&types.Entity{}).Where("name IN ?", terms)
	for _, t := range terms {
		elem, err := json.Marshal([]string{t})
		if err != nil {
			return nil, err
		}
		q = q.Or("aliases @> ?", string(elem))
	}

	var candidates []*types.Entity
	if err := q.Order("created_at ASC").Find(&candidates).Error; err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	termSet := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		termSet[t] = struct{}{}
	}

	var best *types.Entity
	bestScore := -1
	for _, cand := range candidates {
		score := 0
		if _, ok := termSet[cand.Name]; ok {
			score++
		}
		for _, a := range decodeStringArray(cand.Aliases) {
			if _, ok := termSet[a]; ok {
				score++
			}
		}
		// strict > keeps the oldest candidate on equal scores
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	return best, nil
}

// LinkToChunk resolves (or creates) the entity for a mention inside one
// transaction, grows its alias set by union, and upserts the
// (entity, chunk) link. An existing link is left unchanged.
func (r *entityRepo) LinkToChunk(ctx context.Context, chunkID uuid.UUID, extracted ExtractedEntity) error {
	return r.db.Transaction(func(transaction *gorm.DB) error {
		entity, err := r.Resolve(ctx, transaction, extracted.Name, extracted.Aliases)
		if err != nil {
			return err
		}

		if entity != nil {
			merged, grew := unionAliases(decodeStringArray(entity.Aliases), extracted.Aliases)
			if grew {
				encoded, err := encodeStringArray(merged)
				if err != nil {
					return err
				}
				if err := transaction.WithContext(ctx).
					Model(&types.Entity{}).
					Where("id = ?", entity.ID).
					Update("aliases", encoded).Error; err != nil {
					return err
				}
			}
		} else {
			entityType := extracted.Type
			if entityType == "" {
				entityType = types.EntityTypeConcept
			}
			encoded, err := encodeStringArray(extracted.Aliases)
			if err != nil {
				return err
			}
			entity = &types.Entity{
				Name:       extracted.Name,
				Aliases:    encoded,
				EntityType: entityType,
			}
			if err := transaction.WithContext(ctx).Create(entity).Error; err != nil {
				return err
			}
		}

		relevance := extracted.Relevance
		if relevance <= 0 {
			relevance = 1.0
		}
		link := &types.EntityLink{
			EntityID:       entity.ID,
			ChunkID:        chunkID,
			RelevanceScore: relevance,
		}
		return transaction.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "entity_id"}, {Name: "chunk_id"}},
				DoNothing: true,
			}).
			Create(link).Error
	})
}

func (r *entityRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Entity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var entity types.Entity
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

func mentionTerms(name string, aliases []string) []string {
	seen := make(map[string]struct{}, len(aliases)+1)
	out := make([]string, 0, len(aliases)+1)
	for _, t := range append([]string{name}, aliases...) {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// unionAliases merges extras into existing; grew reports whether the union
// is strictly larger than existing. Order of existing aliases is kept.
func unionAliases(existing, extras []string) (merged []string, grew bool) {
	seen := make(map[string]struct{}, len(existing))
	merged = make([]string, 0, len(existing)+len(extras))
	for _, a := range existing {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		merged = append(merged, a)
	}
	for _, a := range extras {
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		merged = append(merged, a)
		grew = true
	}
	return merged, grew
}

func decodeStringArray(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func encodeStringArray(values []string) (datatypes.JSON, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
