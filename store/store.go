// Package store persists small device/session preferences (last lens
// choice, last HTTP port) across restarts of the embedding
// application. This is explicitly distinct from recording video or
// frame data, which remains out of scope for the whole system.
package store

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tomeksn/fitnessmirror/media"
)

// DevicePreference is the single-row preferences record for this
// device.
type DevicePreference struct {
	ID       uint `gorm:"primaryKey"`
	Lens     int  // mirrors media.Lens
	LastPort int
}

// Store wraps a gorm.DB scoped to DevicePreference.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at path and
// migrates the preferences table.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&DevicePreference{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// LoadLens returns the last-used lens, defaulting to media.Back if no
// preference has been saved yet.
func (s *Store) LoadLens() (media.Lens, error) {
	pref, err := s.loadOrCreate()
	if err != nil {
		return media.Back, err
	}
	return media.Lens(pref.Lens), nil
}

// SaveLens persists the given lens as the device's default.
func (s *Store) SaveLens(lens media.Lens) error {
	pref, err := s.loadOrCreate()
	if err != nil {
		return err
	}
	pref.Lens = int(lens)
	if err := s.db.Save(pref).Error; err != nil {
		return fmt.Errorf("store: save lens: %w", err)
	}
	return nil
}

// LoadLastPort returns the last HTTP port the signaling server bound
// to, or 0 if none has been saved.
func (s *Store) LoadLastPort() (int, error) {
	pref, err := s.loadOrCreate()
	if err != nil {
		return 0, err
	}
	return pref.LastPort, nil
}

// SaveLastPort persists the signaling server's bound port.
func (s *Store) SaveLastPort(port int) error {
	pref, err := s.loadOrCreate()
	if err != nil {
		return err
	}
	pref.LastPort = port
	if err := s.db.Save(pref).Error; err != nil {
		return fmt.Errorf("store: save port: %w", err)
	}
	return nil
}

func (s *Store) loadOrCreate() (*DevicePreference, error) {
	var pref DevicePreference
	err := s.db.FirstOrCreate(&pref, DevicePreference{ID: 1}).Error
	if err != nil {
		return nil, fmt.Errorf("store: load preferences: %w", err)
	}
	return &pref, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: get sql.DB: %w", err)
	}
	return sqlDB.Close()
}
