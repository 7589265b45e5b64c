package repos

import (
	"context"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/types"
)

type ChunkAIUpdate struct {
	ChunkID       uuid.UUID
	Text          string
	VisualSummary string
}

type ChunkRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) ([]*types.Chunk, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Chunk, error)
	GetIdentitiesByDocumentIDs(ctx context.Context, tx *gorm.DB, docIDs []uuid.UUID) ([]*types.Chunk, error)
	UpdateAIData(ctx context.Context, tx *gorm.DB, updates []ChunkAIUpdate) error
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	repoLog := baseLog.With("repo", "ChunkRepo")
	return &chunkRepo{db: db, log: repoLog}
}

// CreateBatch inserts all chunks inside one transaction and returns them
// with ids assigned, preserving input order.
func (r *chunkRepo) CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) ([]*types.Chunk, error) {
	if len(chunks) == 0 {
		return []*types.Chunk{}, nil
	}

	// Keep batches small because Text is large
	const batchSize = 100

	insert := func(transaction *gorm.DB) error {
		return transaction.WithContext(ctx).CreateInBatches(chunks, batchSize).Error
	}

	if tx != nil {
		if err := insert(tx); err != nil {
			return nil, err
		}
		return chunks, nil
	}
	if err := r.db.Transaction(func(transaction *gorm.DB) error {
		return insert(transaction)
	}); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Chunk
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) GetIdentitiesByDocumentIDs(ctx context.Context, tx *gorm.DB, docIDs []uuid.UUID) ([]*types.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Chunk
	if len(docIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("document_id IN ? AND is_identity = ?", docIDs, true).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateAIData writes refined text and visual summaries in one transaction.
func (r *chunkRepo) UpdateAIData(ctx context.Context, tx *gorm.DB, updates []ChunkAIUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	apply := func(transaction *gorm.DB) error {
		for _, u := range updates {
			if err := transaction.WithContext(ctx).
				Model(&types.Chunk{}).
				Where("id = ?", u.ChunkID).
				Updates(map[string]interface{}{
					"text":           u.Text,
					"visual_summary": u.VisualSummary,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	}

	if tx != nil {
		return apply(tx)
	}
	return r.db.Transaction(func(transaction *gorm.DB) error {
		return apply(transaction)
	})
}
