package repos

import (
	"context"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/types"
)

type DocumentRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, filename string) (*types.Document, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Document, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	repoLog := baseLog.With("repo", "DocumentRepo")
	return &documentRepo{db: db, log: repoLog}
}

// Upsert creates the document row on first ingest of a filename and
// returns the existing row on later ingests of the same filename.
func (r *documentRepo) Upsert(ctx context.Context, tx *gorm.DB, filename string) (*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	doc := &types.Document{Filename: filename}
	if err := transaction.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns:   []clause.Column{{Name: "filename"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"filename": filename}),
			},
			clause.Returning{},
		).
		Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *documentRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Document
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
