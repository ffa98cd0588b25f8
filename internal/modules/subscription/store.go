package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/letterspace/core/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateEmail means the email already exists in any status.
	ErrDuplicateEmail = errors.New("email is already subscribed")
	// ErrSubscriberNotFound means the id has no row.
	ErrSubscriberNotFound = errors.New("subscriber not found")
)

// SubscriberStore is the persistence contract the state machine relies on.
// Uniqueness of email and the pending→confirmed transition are enforced by
// single atomic statements in the store, never by application-level locking.
type SubscriberStore interface {
	// InsertPending creates a new pending subscriber. Fails with
	// ErrDuplicateEmail when the email exists in any status.
	InsertPending(ctx context.Context, email, name string) (*models.SubscriberModel, error)

	// GetByID fetches one subscriber or ErrSubscriberNotFound.
	GetByID(ctx context.Context, id string) (*models.SubscriberModel, error)

	// MarkConfirmed transitions pending→confirmed. Returns true when this
	// call made the transition, false when the row was already confirmed
	// (idempotent no-op), ErrSubscriberNotFound when the id has no row.
	MarkConfirmed(ctx context.Context, id string) (bool, error)

	// EachConfirmed streams confirmed subscribers in batches without
	// loading the whole table. Iteration stops when fn returns an error.
	EachConfirmed(ctx context.Context, batchSize int, fn func(*models.SubscriberModel) error) error
}

// GormStore implements SubscriberStore on MySQL via GORM.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (s *GormStore) InsertPending(ctx context.Context, email, name string) (*models.SubscriberModel, error) {
	sub := models.SubscriberModel{
		Email:  email,
		Name:   name,
		Status: models.SubscriberPending,
	}
	if err := s.db.WithContext(ctx).Create(&sub).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert subscriber: %w", err)
	}
	return &sub, nil
}

func (s *GormStore) GetByID(ctx context.Context, id string) (*models.SubscriberModel, error) {
	var sub models.SubscriberModel
	if err := s.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("load subscriber: %w", err)
	}
	return &sub, nil
}

func (s *GormStore) MarkConfirmed(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.SubscriberModel{}).
		Where("id = ? AND status = ?", id, models.SubscriberPending).
		Update("status", models.SubscriberConfirmed)
	if result.Error != nil {
		return false, fmt.Errorf("mark confirmed: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	// No row transitioned: either already confirmed or missing.
	if _, err := s.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *GormStore) EachConfirmed(ctx context.Context, batchSize int, fn func(*models.SubscriberModel) error) error {
	if batchSize <= 0 {
		batchSize = 200
	}
	var batch []models.SubscriberModel
	result := s.db.WithContext(ctx).
		Where("status = ?", models.SubscriberConfirmed).
		Order("id").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				if err := fn(&batch[i]); err != nil {
					return err
				}
			}
			return nil
		})
	if result.Error != nil {
		return fmt.Errorf("iterate confirmed subscribers: %w", result.Error)
	}
	return nil
}

// isDuplicateKey recognizes a unique-constraint violation from either GORM's
// translated error or the raw MySQL driver error (1062).
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
