package visits

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Store persists visit and custom events. It only ever inserts.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewStore wraps an open connection.
func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Append stores one finalized visit.
func (s *Store) Append(ctx context.Context, event *VisitEvent) error {
	err := sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(event).Error
	})
	if err != nil {
		return fmt.Errorf("failed to store visit event: %w", err)
	}
	return nil
}

// AppendCustom stores one auxiliary event.
func (s *Store) AppendCustom(ctx context.Context, event *CustomEvent) error {
	err := sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(event).Error
	})
	if err != nil {
		return fmt.Errorf("failed to store custom event: %w", err)
	}
	return nil
}

// BySession returns a session's visits in ingest order.
func (s *Store) BySession(ctx context.Context, sessionKey string) ([]VisitEvent, error) {
	var events []VisitEvent
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionKey).
		Order("timestamp ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching visits for session: %w", err)
	}
	return events, nil
}
