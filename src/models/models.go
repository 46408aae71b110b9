package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProcessRecord one successfully processed upload
type ProcessRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	Task        string `gorm:"size:64;index"`
	Prompt      string `gorm:"type:text"`
	ModelID     string `gorm:"size:128"`
	ResultKind  string `gorm:"size:16"`
	Result      string `gorm:"type:text"`
	MermaidCode string `gorm:"type:text"`
	CodeBlocks  datatypes.JSON
	ImageFormat string `gorm:"size:16"`
	ImageSize   int64
	DurationMS  int64
	CreatedAt   time.Time `gorm:"index"`
}
