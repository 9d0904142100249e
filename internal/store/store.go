package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mazda-bridge-backend/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	UpsertVehicles(ctx context.Context, vehicles []model.Vehicle) error
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)

	CreateCommandRecord(ctx context.Context, rec *model.CommandRecord) error
	GetCommandRecordByVisit(ctx context.Context, vehicleID, visitNo string) (*model.CommandRecord, error)
	UpdateCommandState(ctx context.Context, id, state string, checkedAt time.Time) error
	ListCommandRecords(ctx context.Context, limit int) ([]model.CommandRecord, error)

	RecordPollFailure(ctx context.Context, failure *model.PollFailure) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection for the API handlers and the
// notification worker pool.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpsertVehicles refreshes the vehicle registry from a fetched vehicle
// list. Vehicles that left the account are kept; their snapshots simply
// stop refreshing.
func (s *gormStore) UpsertVehicles(ctx context.Context, vehicles []model.Vehicle) error {
	if len(vehicles) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vin", "nickname", "model_year", "carline_name", "is_electric", "updated_at"}),
	}).Create(&vehicles).Error
	if err != nil {
		return fmt.Errorf("batch upsert vehicles failed: %w", err)
	}
	return nil
}

func (s *gormStore) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	var vehicles []model.Vehicle
	if err := s.db.WithContext(ctx).Order("id").Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}

func (s *gormStore) CreateCommandRecord(ctx context.Context, rec *model.CommandRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create command record for vehicle %s: %w", rec.VehicleID, err)
	}
	return nil
}

func (s *gormStore) GetCommandRecordByVisit(ctx context.Context, vehicleID, visitNo string) (*model.CommandRecord, error) {
	var rec model.CommandRecord
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ? AND visit_no = ?", vehicleID, visitNo).
		Order("issued_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) UpdateCommandState(ctx context.Context, id, state string, checkedAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.CommandRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"state": state, "checked_at": checkedAt}).Error
	if err != nil {
		return fmt.Errorf("failed to update command record %s: %w", id, err)
	}
	return nil
}

func (s *gormStore) ListCommandRecords(ctx context.Context, limit int) ([]model.CommandRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []model.CommandRecord
	if err := s.db.WithContext(ctx).Order("issued_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *gormStore) RecordPollFailure(ctx context.Context, failure *model.PollFailure) error {
	if err := s.db.WithContext(ctx).Create(failure).Error; err != nil {
		return fmt.Errorf("failed to record poll failure for vehicle %s: %w", failure.VehicleID, err)
	}
	return nil
}
