package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SlotRecord is the row backing one slot in the SQL store.
type SlotRecord struct {
	Slot      string `gorm:"column:slot;primaryKey;size:64"`
	Value     []byte `gorm:"column:value;not null"`
	UpdatedAt time.Time
}

// TableName provides the explicit table binding for GORM.
func (SlotRecord) TableName() string {
	return "storage_slots"
}

// SQLStore keeps slots in a single table through gorm (sqlite or postgres).
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore returns a store on db. Call Migrate before first use on a fresh database.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the slot table.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&SlotRecord{}); err != nil {
		return fmt.Errorf("migrate storage_slots: %w", err)
	}
	return nil
}

// Get reads the slot row.
func (s *SQLStore) Get(ctx context.Context, slot string) ([]byte, error) {
	if err := validateSlot(slot); err != nil {
		return nil, err
	}
	var rec SlotRecord
	err := s.db.WithContext(ctx).Where("slot = ?", slot).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sql get slot %s: %w", slot, err)
	}
	return rec.Value, nil
}

// Put upserts the slot row.
func (s *SQLStore) Put(ctx context.Context, slot string, value []byte) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	rec := SlotRecord{Slot: slot, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("sql put slot %s: %w", slot, err)
	}
	return nil
}

// Delete removes the slot row.
func (s *SQLStore) Delete(ctx context.Context, slot string) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("slot = ?", slot).Delete(&SlotRecord{}).Error; err != nil {
		return fmt.Errorf("sql delete slot %s: %w", slot, err)
	}
	return nil
}
