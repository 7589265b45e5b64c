package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EntityTypePerson  = "PERSON"
	EntityTypePlace   = "PLACE"
	EntityTypeConcept = "CONCEPT"
	EntityTypeEvent   = "EVENT"
)

type Entity struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name            string          `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Aliases         datatypes.JSON  `gorm:"type:jsonb;column:aliases" json:"aliases"`
	EntityType      string          `gorm:"column:entity_type;not null;default:'CONCEPT'" json:"entity_type"`
	GlobalSummary   string          `gorm:"column:global_summary;not null;default:''" json:"global_summary"`
	CreatedAt       time.Time       `gorm:"not null;default:now()" json:"created_at"`
}

func (Entity) TableName() string {
	return "entity"
}

type EntityLink struct {
	ID                  uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EntityID            uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_entity_link_pair,priority:1" json:"entity_id"`
	Entity              *Entity     `gorm:"constraint:OnDelete:CASCADE;foreignKey:EntityID;references:ID" json:"entity,omitempty"`
	ChunkID             uuid.UUID   `gorm:"type:uuid;not null;index;uniqueIndex:idx_entity_link_pair,priority:2" json:"chunk_id"`
	Chunk               *Chunk      `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChunkID;references:ID" json:"chunk,omitempty"`
	RelevanceScore      float64     `gorm:"column:relevance_score;not null;default:1.0" json:"relevance_score"`
	ContextDescription  string      `gorm:"column:context_description;not null;default:''" json:"context_description"`
}

func (EntityLink) TableName() string {
	return "entity_link"
}
