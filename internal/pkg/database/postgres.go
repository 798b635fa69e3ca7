package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anicoll/sensor-monitor/internal/pkg/database/migration"
	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if err := migration.Migrate(migration.Postgres, dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func (db *Postgres) Close() error {
	if db.pool == nil {
		return nil
	}
	db.pool.Close()
	return nil
}

func (db *Postgres) WriteReadings(ctx context.Context, readings model.Readings) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, r := range readings {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sensor_readings (sensor_type, value, unit, timestamp, batch_id)
			VALUES ($1, $2, $3, $4, $5)
		`, r.SensorType, r.Value, r.Unit, r.Timestamp.UTC(), r.BatchID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

const readingColumns = `id, sensor_type, value, unit, timestamp, batch_id`

func (db *Postgres) GetLatestReading(ctx context.Context, sensorType model.SensorType) (model.Reading, error) {
	row := db.pool.QueryRow(ctx, `
	SELECT `+readingColumns+`
	FROM sensor_readings
	WHERE sensor_type = $1
	ORDER BY timestamp DESC, id DESC
	LIMIT 1;
	`, sensorType)

	var r model.Reading
	if err := row.Scan(&r.ID, &r.SensorType, &r.Value, &r.Unit, &r.Timestamp, &r.BatchID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Reading{}, ErrNotFound
		}
		return model.Reading{}, err
	}
	return r, nil
}

func (db *Postgres) GetLatestReadings(ctx context.Context) (model.Readings, error) {
	rows, err := db.pool.Query(ctx, `
	SELECT DISTINCT ON (sensor_type) `+readingColumns+`
	FROM sensor_readings
	ORDER BY sensor_type, timestamp DESC, id DESC;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings, err := scanReadings(rows)
	if err != nil {
		return nil, err
	}
	return sortByType(readings.Latest()), nil
}

func (db *Postgres) GetReadings(ctx context.Context, sensorType model.SensorType, from, to time.Time) (model.Readings, error) {
	rows, err := db.pool.Query(ctx, `
	SELECT `+readingColumns+`
	FROM sensor_readings
	WHERE sensor_type = $1 AND timestamp BETWEEN $2 AND $3
	ORDER BY timestamp ASC, id ASC;
	`, sensorType, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanReadings(rows)
}

func (db *Postgres) GetHistory(ctx context.Context, sensorType model.SensorType, limit int) (model.Readings, error) {
	rows, err := db.pool.Query(ctx, `
	SELECT `+readingColumns+`
	FROM sensor_readings
	WHERE sensor_type = $1
	ORDER BY timestamp DESC, id DESC
	LIMIT $2;
	`, sensorType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanReadings(rows)
}

func (db *Postgres) GetSensorTypes(ctx context.Context) ([]model.SensorType, error) {
	rows, err := db.pool.Query(ctx, `SELECT DISTINCT sensor_type FROM sensor_readings ORDER BY sensor_type;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []model.SensorType
	for rows.Next() {
		var t model.SensorType
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (db *Postgres) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := db.pool.Exec(ctx, "DELETE FROM sensor_readings WHERE timestamp < $1", olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (db *Postgres) GetThreshold(ctx context.Context, sensorType model.SensorType) (model.Threshold, error) {
	t := model.Threshold{}
	err := db.pool.QueryRow(ctx, `
	SELECT sensor_type, min_value, max_value
	FROM sensor_thresholds
	WHERE sensor_type = $1;
	`, sensorType).Scan(&t.SensorType, &t.Min, &t.Max)
	if errors.Is(err, pgx.ErrNoRows) {
		t = sensorType.DefaultThreshold()
		return t, db.SetThreshold(ctx, t)
	}
	return t, err
}

func (db *Postgres) SetThreshold(ctx context.Context, threshold model.Threshold) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO sensor_thresholds (sensor_type, min_value, max_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (sensor_type) DO UPDATE SET min_value = EXCLUDED.min_value, max_value = EXCLUDED.max_value;`,
		threshold.SensorType, threshold.Min, threshold.Max)
	return err
}

func (db *Postgres) GetThresholds(ctx context.Context) ([]model.Threshold, error) {
	rows, err := db.pool.Query(ctx, `SELECT sensor_type, min_value, max_value FROM sensor_thresholds;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stored []model.Threshold
	for rows.Next() {
		var t model.Threshold
		if err := rows.Scan(&t.SensorType, &t.Min, &t.Max); err != nil {
			return nil, err
		}
		stored = append(stored, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fillDefaultThresholds(stored), nil
}

func scanReadings(rows pgx.Rows) (model.Readings, error) {
	var readings model.Readings
	for rows.Next() {
		var r model.Reading
		if err := rows.Scan(&r.ID, &r.SensorType, &r.Value, &r.Unit, &r.Timestamp, &r.BatchID); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return readings, nil
		}
		return nil, err
	}

	return readings, nil
}
