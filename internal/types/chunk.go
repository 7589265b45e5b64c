package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ChunkTypeIdentity = "identity"
	ChunkTypeContent  = "content"
	ChunkTypeTOC      = "toc"
)

// IdentityChunkIndex is the sentinel ordinal for a document's identity card.
const IdentityChunkIndex = -1

type Chunk struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID     uuid.UUID       `gorm:"type:uuid;not null;index;index:idx_chunk_doc_index,priority:1" json:"document_id"`
	Document       *Document       `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`
	ChunkIndex     int             `gorm:"column:chunk_index;not null;index:idx_chunk_doc_index,priority:2" json:"chunk_index"`
	Text           string          `gorm:"column:text;not null" json:"text"`
	VisualSummary  string          `gorm:"column:visual_summary;not null;default:''" json:"visual_summary"`
	Headings       datatypes.JSON  `gorm:"type:jsonb;column:headings" json:"headings"`
	HeadingFull    string          `gorm:"column:heading_full;not null;default:''" json:"heading_full"`
	PageNumbers    datatypes.JSON  `gorm:"type:jsonb;column:page_numbers" json:"page_numbers"`
	Tables         datatypes.JSON  `gorm:"type:jsonb;column:tables" json:"tables"`
	ImagesURLs     datatypes.JSON  `gorm:"type:jsonb;column:images_urls" json:"images_urls"`
	ChunkType      string          `gorm:"column:chunk_type;not null;default:'content';index" json:"chunk_type"`
	IsIdentity     bool            `gorm:"column:is_identity;not null;default:false;index" json:"is_identity"`
	CreatedAt      time.Time       `gorm:"not null;default:now()" json:"created_at"`
}

func (Chunk) TableName() string {
	return "chunk"
}
