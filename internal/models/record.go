// Package models holds the GORM models persisted by the coordination core.
package models

import "time"

// Record is the append-only audit copy of a message that passed through the
// bus. Rows are written once and never updated; nothing in the core reads
// them back to drive routing.
type Record struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	MessageID     string `gorm:"size:64;not null;uniqueIndex"`
	Sender        string `gorm:"size:64;not null"`
	Recipient     string `gorm:"size:64;not null;index"`
	Kind          string `gorm:"size:16;not null"`
	Payload       string `gorm:"type:text"`
	Priority      int    `gorm:"not null"`
	Timestamp     time.Time
	CorrelationID string `gorm:"size:64;index"`
	ExpiresAt     *time.Time
	Processed     bool `gorm:"default:false"` // reserved; never set by the core
	CreatedAt     time.Time
}
