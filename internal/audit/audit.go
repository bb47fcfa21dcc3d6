// Package audit persists an append-only trail of every message sent through
// the bus. It is a write path for the core; the read side exists only for
// operators (CLI queries, dashboard views) and never feeds back into routing.
package audit

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/hollandm/switchboard/internal/message"
	"github.com/hollandm/switchboard/internal/models"
)

// Store writes and queries audit records.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a migrated GORM handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Append records one message. Records are write-once; callers never update
// or delete them. Safe for concurrent use.
func (s *Store) Append(msg *message.Message) error {
	if msg == nil {
		return fmt.Errorf("audit: message is required")
	}
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("audit: marshal payload for %s: %w", msg.ID, err)
	}
	rec := models.Record{
		MessageID:     msg.ID,
		Sender:        msg.Sender,
		Recipient:     msg.Recipient,
		Kind:          msg.Kind.String(),
		Payload:       string(payload),
		Priority:      msg.Priority,
		Timestamp:     msg.Timestamp,
		CorrelationID: msg.CorrelationID,
		ExpiresAt:     msg.ExpiresAt,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("audit: append %s: %w", msg.ID, err)
	}
	return nil
}

// Recent returns the most recent records, newest first.
func (s *Store) Recent(limit int) ([]models.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []models.Record
	if err := s.db.Order("id DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	return recs, nil
}

// ForAgent returns the most recent records sent to or from an agent,
// newest first.
func (s *Store) ForAgent(agentID string, limit int) ([]models.Record, error) {
	if agentID == "" {
		return nil, fmt.Errorf("audit: agentID is required")
	}
	if limit <= 0 {
		limit = 50
	}
	var recs []models.Record
	if err := s.db.Where("sender = ? OR recipient = ?", agentID, agentID).
		Order("id DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("audit: for agent %s: %w", agentID, err)
	}
	return recs, nil
}

// ByCorrelation returns every record in a query/response exchange, oldest
// first.
func (s *Store) ByCorrelation(correlationID string) ([]models.Record, error) {
	if correlationID == "" {
		return nil, fmt.Errorf("audit: correlationID is required")
	}
	var recs []models.Record
	if err := s.db.Where("correlation_id = ?", correlationID).
		Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("audit: by correlation %s: %w", correlationID, err)
	}
	return recs, nil
}

// Count returns the total number of records.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.Model(&models.Record{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("audit: count: %w", err)
	}
	return n, nil
}
