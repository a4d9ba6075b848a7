// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// RoomSnapshotModel persists the latest snapshot for a room, keyed by room id.
// Write-through on every phase transition and on Join/Leave during an active game.
type RoomSnapshotModel struct {
	gorm.Model
	RoomID   string                 `gorm:"uniqueIndex;not null"`
	Phase    string                 `gorm:"not null"`
	Snapshot map[string]interface{} `gorm:"type:jsonb;not null"`
}

// GameHistoryModel is a write-once record of a finished game.
type GameHistoryModel struct {
	gorm.Model
	RoomID     string                 `gorm:"index;not null"`
	Winner     string                 `gorm:"not null"`
	Record     map[string]interface{} `gorm:"type:jsonb;not null"`
	FinishedAt time.Time              `gorm:"not null"`
}

// SessionModel is the persisted session:<session_id> entry.
type SessionModel struct {
	gorm.Model
	SessionID string    `gorm:"uniqueIndex;not null"`
	UserID    string    `gorm:"index;not null"`
	Username  string    `gorm:"not null"`
	Nickname  string
	Avatar    string
	ExpiresAt time.Time `gorm:"not null"`
}
