package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"granite-vision-go/src/core/result"
	"granite-vision-go/src/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry data recorded for one processed upload
type Entry struct {
	RequestID   string
	Task        string
	Prompt      string
	ModelID     string
	Result      result.Result
	ImageFormat string
	ImageSize   int64
	Duration    time.Duration
}

// Store persists ProcessRecords
type Store struct {
	db *gorm.DB
}

// NewStore migrates the schema and returns the store
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&models.ProcessRecord{}); err != nil {
		return nil, fmt.Errorf("migrate process records: %w", err)
	}
	return &Store{db: db}, nil
}

// Save writes one record. An empty RequestID gets a fresh uuid.
func (s *Store) Save(ctx context.Context, e Entry) (*models.ProcessRecord, error) {
	id := e.RequestID
	if id == "" {
		id = uuid.NewString()
	}

	record := &models.ProcessRecord{
		ID:          id,
		Task:        e.Task,
		Prompt:      e.Prompt,
		ModelID:     e.ModelID,
		ResultKind:  string(e.Result.Kind),
		Result:      e.Result.Text,
		ImageFormat: e.ImageFormat,
		ImageSize:   e.ImageSize,
		DurationMS:  e.Duration.Milliseconds(),
	}
	if e.Result.MermaidCode != nil {
		record.MermaidCode = *e.Result.MermaidCode
	}
	if e.Result.CodeBlocks != nil {
		blocks, err := json.Marshal(e.Result.CodeBlocks)
		if err != nil {
			return nil, fmt.Errorf("encode code blocks: %w", err)
		}
		record.CodeBlocks = datatypes.JSON(blocks)
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("save process record: %w", err)
	}
	return record, nil
}

// Recent returns up to limit records, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]models.ProcessRecord, error) {
	var records []models.ProcessRecord
	err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list process records: %w", err)
	}
	return records, nil
}

// Get loads one record by id
func (s *Store) Get(ctx context.Context, id string) (*models.ProcessRecord, error) {
	var record models.ProcessRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
