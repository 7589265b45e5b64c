package types

import (
	"time"
	"github.com/google/uuid"
)

type Document struct {
	ID          uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Filename    string      `gorm:"column:filename;not null;uniqueIndex" json:"filename"`
	CreatedAt   time.Time   `gorm:"not null;default:now()" json:"created_at"`
}

func (Document) TableName() string {
	return "document"
}
