// persistence/interface.go
package persistence

import (
	"fmt"

	"github.com/undercover/server/models"
)

// Database is the persistence boundary. Write-through of snapshots is
// best-effort: failures are logged and never surfaced to the client.
type Database interface {
	SaveRoomSnapshot(snap *models.RoomSnapshot) error
	LoadRoomSnapshot(roomID string) (*models.RoomSnapshot, error)
	DeleteRoomSnapshot(roomID string) error

	SaveGameHistory(rec *models.GameHistoryRecord) error

	SaveSession(rec *models.SessionRecord) error
	LoadSession(sessionID string) (*models.SessionRecord, error)
	DeleteSession(sessionID string) error

	Close() error
}

var ErrRecordNotFound = fmt.Errorf("record not found")
