package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/anicoll/sensor-monitor/internal/pkg/database/migration"
	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

// SQLite is the embedded store, the default when no server database is configured.
type SQLite struct {
	db *gorm.DB
}

var _ Store = (*SQLite)(nil)

func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_busy_timeout=5000&_foreign_keys=on"
	if err := migration.Migrate(migration.SQLite, dsn); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; one connection turns lock contention into queueing.
	sqlDB.SetMaxOpenConns(1)

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLite) WriteReadings(ctx context.Context, readings model.Readings) error {
	if len(readings) == 0 {
		return nil
	}
	rows := make(model.Readings, len(readings))
	for i, r := range readings {
		r.ID = 0
		r.Timestamp = r.Timestamp.UTC()
		rows[i] = r
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

func (s *SQLite) GetLatestReading(ctx context.Context, sensorType model.SensorType) (model.Reading, error) {
	var r model.Reading
	err := s.db.WithContext(ctx).
		Where("sensor_type = ?", sensorType).
		Order("timestamp DESC").
		Order("id DESC").
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Reading{}, ErrNotFound
	}
	return r, err
}

func (s *SQLite) GetLatestReadings(ctx context.Context) (model.Readings, error) {
	var readings model.Readings
	err := s.db.WithContext(ctx).Raw(`
	SELECT r.id, r.sensor_type, r.value, r.unit, r.timestamp, r.batch_id
	FROM sensor_readings r
	INNER JOIN (
		SELECT sensor_type, MAX(timestamp) AS max_timestamp
		FROM sensor_readings
		GROUP BY sensor_type
	) latest ON r.sensor_type = latest.sensor_type AND r.timestamp = latest.max_timestamp
	`).Scan(&readings).Error
	if err != nil {
		return nil, err
	}
	return sortByType(readings.Latest()), nil
}

func (s *SQLite) GetReadings(ctx context.Context, sensorType model.SensorType, from, to time.Time) (model.Readings, error) {
	var readings model.Readings
	err := s.db.WithContext(ctx).
		Where("sensor_type = ? AND timestamp BETWEEN ? AND ?", sensorType, from.UTC(), to.UTC()).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&readings).Error
	return readings, err
}

func (s *SQLite) GetHistory(ctx context.Context, sensorType model.SensorType, limit int) (model.Readings, error) {
	var readings model.Readings
	err := s.db.WithContext(ctx).
		Where("sensor_type = ?", sensorType).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&readings).Error
	return readings, err
}

func (s *SQLite) GetSensorTypes(ctx context.Context) ([]model.SensorType, error) {
	var types []model.SensorType
	err := s.db.WithContext(ctx).
		Model(&model.Reading{}).
		Distinct("sensor_type").
		Order("sensor_type").
		Pluck("sensor_type", &types).Error
	return types, err
}

func (s *SQLite) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("timestamp < ?", olderThan.UTC()).
		Delete(&model.Reading{})
	return result.RowsAffected, result.Error
}

func (s *SQLite) GetThreshold(ctx context.Context, sensorType model.SensorType) (model.Threshold, error) {
	var t model.Threshold
	err := s.db.WithContext(ctx).Where("sensor_type = ?", sensorType).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		t = sensorType.DefaultThreshold()
		return t, s.SetThreshold(ctx, t)
	}
	return t, err
}

func (s *SQLite) SetThreshold(ctx context.Context, threshold model.Threshold) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sensor_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"min_value", "max_value"}),
	}).Create(&threshold).Error
}

func (s *SQLite) GetThresholds(ctx context.Context) ([]model.Threshold, error) {
	var stored []model.Threshold
	if err := s.db.WithContext(ctx).Find(&stored).Error; err != nil {
		return nil, err
	}
	return fillDefaultThresholds(stored), nil
}
