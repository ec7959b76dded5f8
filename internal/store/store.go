// Package store is the postgres implementation of delivery.Store.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/delivery"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ delivery.Store = (*Store)(nil)

// settingsColumns are the owner-editable columns. The trigger state is only
// written by ClaimDelivery, ReleaseDelivery and UpdateCheckIn.
var settingsColumns = []string{
	"is_enabled", "is_active", "check_in_frequency",
	"recipients", "include_data", "message", "updated_at",
}

// settingsUpsert never moves an existing last_check_in: a save built from a
// row read before a concurrent check-in would otherwise roll it back. Only a
// row without one takes the value stamped on first enable.
func settingsUpsert() clause.OnConflict {
	set := clause.AssignmentColumns(settingsColumns)
	set = append(set, clause.Assignment{
		Column: clause.Column{Name: "last_check_in"},
		Value:  gorm.Expr("COALESCE(last_wish_settings.last_check_in, EXCLUDED.last_check_in)"),
	})
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: set,
	}
}

func (s *Store) ListSettings(ctx context.Context, f delivery.SettingsFilter) ([]models.CheckInSettings, error) {
	q := s.db.WithContext(ctx).Preload("User")
	if f.Enabled != nil {
		q = q.Where("is_enabled = ?", *f.Enabled)
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}
	if f.DeliveryTriggered != nil {
		q = q.Where("delivery_triggered = ?", *f.DeliveryTriggered)
	}
	var out []models.CheckInSettings
	if err := q.Order("user_id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list last wish settings: %w", err)
	}
	return out, nil
}

func (s *Store) GetSettings(ctx context.Context, userID uuid.UUID) (*models.CheckInSettings, error) {
	var out models.CheckInSettings
	err := s.db.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, delivery.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get last wish settings: %w", err)
	}
	return &out, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings *models.CheckInSettings) error {
	err := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(settingsUpsert()).
		Create(settings).Error
	if err != nil {
		return fmt.Errorf("save last wish settings: %w", err)
	}
	return nil
}

// ClaimDelivery is a single conditional UPDATE; postgres serialises
// concurrent writers on the row, so exactly one of them sees RowsAffected=1.
func (s *Store) ClaimDelivery(ctx context.Context, c delivery.Claim) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.CheckInSettings{}).
		Where("user_id = ? AND delivery_triggered = ? AND last_check_in = ?", c.UserID, false, c.LastCheckIn).
		Updates(map[string]any{
			"delivery_triggered": true,
			"triggered_at":       c.At,
			"episode_id":         c.EpisodeID,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim delivery: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) ReleaseDelivery(ctx context.Context, c delivery.Claim) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.CheckInSettings{}).
		Where("user_id = ? AND delivery_triggered = ? AND episode_id = ?", c.UserID, true, c.EpisodeID).
		Updates(map[string]any{
			"delivery_triggered": false,
			"triggered_at":       nil,
			"episode_id":         nil,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("release delivery: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) UpdateCheckIn(ctx context.Context, userID uuid.UUID, at time.Time) error {
	// postgres keeps microseconds; store what a later read will return.
	at = at.UTC().Truncate(time.Microsecond)
	res := s.db.WithContext(ctx).
		Model(&models.CheckInSettings{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"last_check_in":      at,
			"delivery_triggered": false,
			"triggered_at":       nil,
			"episode_id":         nil,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update check-in: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return delivery.ErrNotFound
	}
	return nil
}

func (s *Store) InsertDeliveryRecord(ctx context.Context, r *models.DeliveryRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("insert delivery record: %w", err)
	}
	return nil
}

// FinishDeliveryRecord moves a pending record to its terminal state. A record
// that already left pending is never rewritten.
func (s *Store) FinishDeliveryRecord(ctx context.Context, id uuid.UUID, o delivery.DeliveryOutcome) error {
	res := s.db.WithContext(ctx).
		Model(&models.DeliveryRecord{}).
		Where("id = ? AND delivery_status = ?", id, models.DeliveryPending).
		Updates(map[string]any{
			"delivery_status": o.Status,
			"message_id":      o.MessageID,
			"attempts":        o.Attempts,
			"sent_at":         o.SentAt,
			"error_message":   o.ErrorMessage,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("finish delivery record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("finish delivery record %s: %w", id, delivery.ErrNotFound)
	}
	return nil
}

func (s *Store) ListDeliveryRecords(ctx context.Context, q delivery.DeliveryQuery) ([]models.DeliveryRecord, error) {
	db := s.db.WithContext(ctx).Where("user_id = ?", q.UserID)
	if !q.From.IsZero() {
		db = db.Where("created_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		db = db.Where("created_at <= ?", q.To)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	var out []models.DeliveryRecord
	if err := db.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list delivery records: %w", err)
	}
	return out, nil
}
