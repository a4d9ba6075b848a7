// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/undercover/server/models"
)

// GormPostgreSQL is the concrete persistence adapter: room snapshots,
// write-once game history, and session records, all JSONB-backed.
type GormPostgreSQL struct {
	db *gorm.DB
}

func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gl := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&models.RoomSnapshotModel{},
		&models.GameHistoryModel{},
		&models.SessionModel{},
	); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func toJSONMap(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *GormPostgreSQL) SaveRoomSnapshot(snap *models.RoomSnapshot) error {
	payload, err := toJSONMap(snap)
	if err != nil {
		return err
	}

	var row models.RoomSnapshotModel
	result := p.db.Where("room_id = ?", snap.ID).First(&row)
	if result.Error == gorm.ErrRecordNotFound {
		row = models.RoomSnapshotModel{RoomID: snap.ID, Phase: string(snap.Phase), Snapshot: payload}
		return p.db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.Phase = string(snap.Phase)
	row.Snapshot = payload
	return p.db.Save(&row).Error
}

func (p *GormPostgreSQL) LoadRoomSnapshot(roomID string) (*models.RoomSnapshot, error) {
	var row models.RoomSnapshotModel
	if err := p.db.Where("room_id = ?", roomID).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	b, err := json.Marshal(row.Snapshot)
	if err != nil {
		return nil, err
	}
	var snap models.RoomSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (p *GormPostgreSQL) DeleteRoomSnapshot(roomID string) error {
	return p.db.Where("room_id = ?", roomID).Delete(&models.RoomSnapshotModel{}).Error
}

func (p *GormPostgreSQL) SaveGameHistory(rec *models.GameHistoryRecord) error {
	payload, err := toJSONMap(rec)
	if err != nil {
		return err
	}
	row := models.GameHistoryModel{
		RoomID:     rec.RoomID,
		Winner:     string(rec.Winner),
		Record:     payload,
		FinishedAt: rec.FinishedAt,
	}
	return p.db.Create(&row).Error
}

func (p *GormPostgreSQL) SaveSession(rec *models.SessionRecord) error {
	var row models.SessionModel
	result := p.db.Where("session_id = ?", rec.SessionID).First(&row)
	if result.Error == gorm.ErrRecordNotFound {
		row = models.SessionModel{
			SessionID: rec.SessionID,
			UserID:    rec.UserID,
			Username:  rec.Username,
			Nickname:  rec.Nickname,
			Avatar:    rec.Avatar,
			ExpiresAt: rec.ExpiresAt,
		}
		return p.db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.UserID = rec.UserID
	row.Username = rec.Username
	row.Nickname = rec.Nickname
	row.Avatar = rec.Avatar
	row.ExpiresAt = rec.ExpiresAt
	return p.db.Save(&row).Error
}

func (p *GormPostgreSQL) LoadSession(sessionID string) (*models.SessionRecord, error) {
	var row models.SessionModel
	if err := p.db.Where("session_id = ?", sessionID).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &models.SessionRecord{
		SessionID: row.SessionID,
		UserID:    row.UserID,
		Username:  row.Username,
		Nickname:  row.Nickname,
		Avatar:    row.Avatar,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

func (p *GormPostgreSQL) DeleteSession(sessionID string) error {
	return p.db.Where("session_id = ?", sessionID).Delete(&models.SessionModel{}).Error
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
