// Package database persists snapshots, prediction outcomes and the
// last-write-wins settings/profile objects behind gorm, with SQLite as the
// default and PostgreSQL when the DSN looks like a postgres URL.
package database

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aurumlabs/goldwatch/internal/engine"
)

type Database struct {
	db *gorm.DB
}

// SnapshotRecord is one persisted tick. UnitAdjusted marks rows whose price
// was already converted out of the minor currency unit, so reloading history
// never converts twice.
type SnapshotRecord struct {
	ID           uint  `gorm:"primaryKey;autoIncrement"`
	TimestampMs  int64 `gorm:"index"`
	GoldPrice    float64
	RawPriceText string
	UnitAdjusted bool
	FieldsJSON   string
	CreatedAt    time.Time
}

// OutcomeRecord is one resolved prediction.
type OutcomeRecord struct {
	ID            uint  `gorm:"primaryKey;autoIncrement"`
	PredictedAtMs int64 `gorm:"index"`
	ResolvedAtMs  int64
	BasePrice     float64
	RealizedPrice float64
	PUp           float64
	PredictedUp   bool
	ActualUp      bool
	Correct       bool
	Brier         float64
	CreatedAt     time.Time
}

// KVRecord holds the settings and profile objects as JSON, last write wins.
type KVRecord struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

const (
	kvSettings = "settings"
	kvProfile  = "profile"
)

func New(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&SnapshotRecord{}, &OutcomeRecord{}, &KVRecord{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// SaveSnapshot appends one normalized tick. Persisted rows are always
// unit-adjusted.
func (d *Database) SaveSnapshot(s engine.Snapshot) error {
	fields, err := json.Marshal(s.Fields)
	if err != nil {
		return err
	}
	return d.db.Create(&SnapshotRecord{
		TimestampMs:  s.TimestampMs,
		GoldPrice:    s.GoldPrice,
		RawPriceText: s.RawPriceText,
		UnitAdjusted: true,
		FieldsJSON:   string(fields),
	}).Error
}

// QuerySnapshots returns snapshots at or after sinceMs, ascending, capped at
// limit. Rows persisted before unit adjustment was tracked are converted
// once on load.
func (d *Database) QuerySnapshots(sinceMs int64, limit int) ([]engine.Snapshot, error) {
	var rows []SnapshotRecord
	q := d.db.Where("timestamp_ms >= ?", sinceMs).Order("timestamp_ms ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	snaps := make([]engine.Snapshot, 0, len(rows))
	for _, r := range rows {
		price, _ := engine.AdjustMinorUnit(r.GoldPrice, r.UnitAdjusted)
		s := engine.Snapshot{
			TimestampMs:  r.TimestampMs,
			GoldPrice:    price,
			RawPriceText: r.RawPriceText,
			Fields:       map[engine.FeatureKey]engine.Field{},
		}
		if r.FieldsJSON != "" {
			if err := json.Unmarshal([]byte(r.FieldsJSON), &s.Fields); err != nil {
				log.Warn().Err(err).Int64("ts", r.TimestampMs).Msg("skipping malformed fields blob")
			}
		}
		snaps = append(snaps, s)
	}
	return snaps, nil
}

// DeleteSnapshotsBefore removes rows older than tsMs (retention sweep).
func (d *Database) DeleteSnapshotsBefore(tsMs int64) error {
	return d.db.Where("timestamp_ms < ?", tsMs).Delete(&SnapshotRecord{}).Error
}

// SaveOutcome appends one resolved prediction.
func (d *Database) SaveOutcome(r engine.ResolvedPrediction) error {
	return d.db.Create(&OutcomeRecord{
		PredictedAtMs: r.TimestampMs,
		ResolvedAtMs:  r.ResolvedAtMs,
		BasePrice:     r.BasePrice,
		RealizedPrice: r.RealizedPrice,
		PUp:           r.PUp,
		PredictedUp:   r.PredictedUp,
		ActualUp:      r.ActualUp,
		Correct:       r.Correct,
		Brier:         r.Brier,
	}).Error
}

// RecentOutcomes returns the newest resolved predictions, newest first.
func (d *Database) RecentOutcomes(limit int) ([]OutcomeRecord, error) {
	var rows []OutcomeRecord
	err := d.db.Order("resolved_at_ms DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// SaveSettings stores the settings object, last write wins.
func (d *Database) SaveSettings(s engine.Settings) error {
	return d.saveKV(kvSettings, s)
}

// LoadSettings returns the stored settings, or ok=false when none exist.
func (d *Database) LoadSettings() (engine.Settings, bool, error) {
	var s engine.Settings
	ok, err := d.loadKV(kvSettings, &s)
	return s, ok, err
}

// SaveProfile stores the profile object, last write wins.
func (d *Database) SaveProfile(p engine.Profile) error {
	return d.saveKV(kvProfile, p)
}

// LoadProfile returns the stored profile, or ok=false when none exist.
func (d *Database) LoadProfile() (engine.Profile, bool, error) {
	var p engine.Profile
	ok, err := d.loadKV(kvProfile, &p)
	return p, ok, err
}

func (d *Database) saveKV(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return d.db.Save(&KVRecord{Key: key, Value: string(data)}).Error
}

func (d *Database) loadKV(key string, out any) (bool, error) {
	var rec KVRecord
	err := d.db.First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(rec.Value), out)
}
