package models

import "time"

// DefaultHistoryLimit is how many processed message ids are retained
const DefaultHistoryLimit = 2000

// ProcessedMessage records a provider message id once all of its attachments were resolved.
// ID is monotonic and orders eviction (oldest first).
type ProcessedMessage struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	MessageID   string    `gorm:"column:message_id;uniqueIndex"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

// TableName specifies the table name for GORM
func (ProcessedMessage) TableName() string {
	return "processed_message"
}
