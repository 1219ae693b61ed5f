// Package storage implements the persistence sink on top of gorm.
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/lcalzada-xor/wsensor/internal/core/ports"
)

const frameBatch = 100

// SinkError is a failed sink call. Fatal errors mean the database is gone
// and the sensor cannot keep its records; anything else was rolled back
// and skipped.
type SinkError struct {
	Op    string
	Fatal bool
	Err   error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Op, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// IsFatal marks the error for ports.IsFatal.
func (e *SinkError) IsFatal() bool { return e.Fatal }

// GormAdapter implements ports.Sink on any gorm dialect.
type GormAdapter struct {
	db     *gorm.DB
	driver string
	logger *slog.Logger
}

// Open connects to dsn, installs the tracing plugin and migrates the
// schema.
func Open(dsn string, log *slog.Logger) (*GormAdapter, error) {
	dialector, name, err := Dialector(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return NewGormAdapter(db, name, log)
}

// NewGormAdapter wraps an open database.
func NewGormAdapter(db *gorm.DB, driverName string, log *slog.Logger) (*GormAdapter, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("tracing plugin: %w", err)
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormAdapter{db: db, driver: driverName, logger: log.With("component", "storage", "driver", driverName)}, nil
}

// Driver returns the dialect name.
func (a *GormAdapter) Driver() string { return a.driver }

func (a *GormAdapter) SensorUp(ctx context.Context, s domain.Session) error {
	m := SessionModel{ID: s.ID, Hostname: s.Hostname, Kernel: s.Kernel, Start: s.Start}
	return a.wrap("sensor_up", a.db.WithContext(ctx).Create(&m).Error)
}

func (a *GormAdapter) SensorDown(ctx context.Context, session string, at time.Time) error {
	err := a.db.WithContext(ctx).Model(&SessionModel{}).
		Where("id = ?", session).
		Update("stop", at).Error
	return a.wrap("sensor_down", err)
}

func (a *GormAdapter) RadioUp(ctx context.Context, session string, r domain.RadioRecord) error {
	m := toRadioModel(session, r)
	return a.wrap("radio_up", a.db.WithContext(ctx).Create(&m).Error)
}

// RadioDown closes the radio's latest open period in session.
func (a *GormAdapter) RadioDown(ctx context.Context, session, mac string, at time.Time) error {
	err := a.db.WithContext(ctx).Model(&RadioModel{}).
		Where("session = ? AND mac = ? AND down IS NULL", session, mac).
		Update("down", at).Error
	return a.wrap("radio_down", err)
}

func (a *GormAdapter) Antenna(ctx context.Context, session, mac string, ant domain.Antenna) error {
	m := AntennaModel{
		Session: session,
		MAC:     mac,
		Count:   ant.Count,
		Gain:    ant.Gain,
		Type:    ant.Type,
		Loss:    ant.Loss,
		XYZ:     ant.XYZ,
		At:      time.Now(),
	}
	return a.wrap("antenna", a.db.WithContext(ctx).Create(&m).Error)
}

// Frames stores a batch in one transaction; a failed batch is rolled back
// as a whole.
func (a *GormAdapter) Frames(ctx context.Context, recs []domain.FrameRecord) error {
	if len(recs) == 0 {
		return nil
	}
	models := make([]FrameModel, len(recs))
	for i, r := range recs {
		models[i] = toFrameModel(r)
	}
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(models, frameBatch).Error
	})
	return a.wrap("frames", err)
}

func (a *GormAdapter) Location(ctx context.Context, session string, fix domain.Location) error {
	m := LocationModel{
		Session:   session,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Altitude:  fix.Altitude,
		Source:    fix.Source,
		TS:        fix.TS,
	}
	return a.wrap("location", a.db.WithContext(ctx).Create(&m).Error)
}

// RecentFrames returns the newest frames of session, newest first.
func (a *GormAdapter) RecentFrames(ctx context.Context, session string, limit int) ([]domain.FrameRecord, error) {
	var models []FrameModel
	err := a.db.WithContext(ctx).
		Where("session = ?", session).
		Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, a.wrap("recent_frames", err)
	}
	out := make([]domain.FrameRecord, len(models))
	for i, m := range models {
		out[i] = toFrameRecord(m)
	}
	return out, nil
}

// FrameCount returns how many frames session stored.
func (a *GormAdapter) FrameCount(ctx context.Context, session string) (int64, error) {
	var n int64
	err := a.db.WithContext(ctx).Model(&FrameModel{}).Where("session = ?", session).Count(&n).Error
	return n, a.wrap("frame_count", err)
}

func (a *GormAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// wrap classifies err. Lost connections are fatal; constraint and query
// errors are not.
func (a *GormAdapter) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	fatal := errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, sql.ErrTxDone) ||
		strings.Contains(err.Error(), "database is closed")
	if !fatal {
		a.logger.Debug("Sink call failed", "op", op, "error", err)
	}
	return &SinkError{Op: op, Fatal: fatal, Err: err}
}

// Ensure interface compliance
var _ ports.Sink = (*GormAdapter)(nil)
