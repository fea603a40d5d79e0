// Package storage keeps the raw snapshot history dashboardd recomputes views
// from.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"
)

var (
	// ErrPathRequired is returned when the backing store path is missing.
	ErrPathRequired = errors.New("dashboardd storage path must be configured")
	// ErrNotFound is returned when an account has no stored snapshot.
	ErrNotFound = errors.New("snapshot not found")
	// ErrUnsupportedDriver is returned for drivers other than sqlite and postgres.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Snapshot is one persisted snapshot payload.
type Snapshot struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChainID     uint64    `gorm:"not null;index:idx_snapshot_account,priority:1"`
	Account     string    `gorm:"size:42;not null;index:idx_snapshot_account,priority:2"`
	Fingerprint string    `gorm:"size:64;not null"`
	Payload     []byte    `gorm:"not null"`
	RecordCount int       `gorm:"not null"`
	ReceivedAt  time.Time `gorm:"not null;index:idx_snapshot_account,priority:3"`
}

// Storage wraps the dashboardd persistence layer.
type Storage struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the configured backend and migrates the schema.
func Open(driver, dsn string) (*Storage, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrPathRequired
	}
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Storage{db: db, now: time.Now}, nil
}

// AutoMigrate applies the snapshot schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Snapshot{})
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Fingerprint is the hex BLAKE3 digest of a payload.
func Fingerprint(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Save persists a payload for the account. When the payload matches the
// latest stored snapshot the existing row is returned with duplicate set.
func (s *Storage) Save(ctx context.Context, chainID uint64, account string, payload []byte, records int) (snap Snapshot, duplicate bool, err error) {
	if s == nil || s.db == nil {
		return Snapshot{}, false, fmt.Errorf("storage not configured")
	}
	fingerprint := Fingerprint(payload)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest Snapshot
		res := tx.Where("chain_id = ? AND account = ?", chainID, account).
			Order("received_at DESC").Limit(1).Find(&latest)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 && latest.Fingerprint == fingerprint {
			snap, duplicate = latest, true
			return nil
		}
		snap = Snapshot{
			ID:          uuid.New(),
			ChainID:     chainID,
			Account:     account,
			Fingerprint: fingerprint,
			Payload:     payload,
			RecordCount: records,
			ReceivedAt:  s.now().UTC(),
		}
		return tx.Create(&snap).Error
	})
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot: %w", err)
	}
	return snap, duplicate, nil
}

// Latest returns the most recent snapshot for the account on the chain.
func (s *Storage) Latest(ctx context.Context, chainID uint64, account string) (Snapshot, error) {
	var snap Snapshot
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND account = ?", chainID, account).
		Order("received_at DESC").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

// History lists up to limit snapshots for the account, newest first. The
// payloads are omitted.
func (s *Storage) History(ctx context.Context, chainID uint64, account string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Snapshot
	err := s.db.WithContext(ctx).
		Select("id", "chain_id", "account", "fingerprint", "record_count", "received_at").
		Where("chain_id = ? AND account = ?", chainID, account).
		Order("received_at DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("snapshot history: %w", err)
	}
	return out, nil
}

// Prune deletes snapshots received before the cutoff, always keeping the
// newest snapshot of every account.
func (s *Storage) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Exec(`
        DELETE FROM snapshots
        WHERE received_at < ?
          AND received_at < (
            SELECT MAX(latest.received_at) FROM snapshots AS latest
            WHERE latest.chain_id = snapshots.chain_id AND latest.account = snapshots.account
          )
    `, before.UTC())
	if res.Error != nil {
		return 0, fmt.Errorf("prune snapshots: %w", res.Error)
	}
	return res.RowsAffected, nil
}
