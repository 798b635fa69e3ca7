package model

import (
	"time"

	"github.com/samber/lo"
)

// Reading is one persisted (type, value, unit, timestamp) row.
type Reading struct {
	ID         int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	SensorType SensorType `json:"sensor_type" gorm:"column:sensor_type;not null;index:idx_sensor_readings_type_ts,priority:1"`
	Value      float64    `json:"value" gorm:"not null"`
	Unit       string     `json:"unit" gorm:"not null"`
	Timestamp  time.Time  `json:"timestamp" gorm:"not null;index:idx_sensor_readings_type_ts,priority:2"`
	BatchID    string     `json:"batch_id" gorm:"column:batch_id;not null"`
}

func (Reading) TableName() string {
	return "sensor_readings"
}

type Readings []Reading

// Types returns the distinct sensor types present, in first-seen order.
func (r Readings) Types() []SensorType {
	return lo.Uniq(lo.Map(r, func(reading Reading, _ int) SensorType {
		return reading.SensorType
	}))
}

// LatestReadings maps each sensor type to its most recent reading.
type LatestReadings map[SensorType]Reading

func (l LatestReadings) Clone() LatestReadings {
	out := make(LatestReadings, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Latest picks the newest reading per type.
func (r Readings) Latest() LatestReadings {
	out := LatestReadings{}
	for _, reading := range r {
		if existing, ok := out[reading.SensorType]; ok && !reading.Timestamp.After(existing.Timestamp) {
			continue
		}
		out[reading.SensorType] = reading
	}
	return out
}
