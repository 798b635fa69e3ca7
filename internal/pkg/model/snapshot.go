package model

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is one push from the rig: every sensor value at one instant.
type Snapshot struct {
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	WaterLevel   float64 `json:"water_level"`
	Ph           float64 `json:"ph"`
	Salinity     float64 `json:"salinity"`
	Rain         bool    `json:"rain"`
	SoilMoisture float64 `json:"soil_moisture"`
	Timestamp    int64   `json:"timestamp"` // epoch milliseconds
}

func (s Snapshot) Time() time.Time {
	return time.UnixMilli(s.Timestamp).UTC()
}

func (s Snapshot) value(t SensorType) float64 {
	switch t {
	case Temperature:
		return s.Temperature
	case Humidity:
		return s.Humidity
	case WaterLevel:
		return s.WaterLevel
	case Ph:
		return s.Ph
	case Salinity:
		return s.Salinity
	case Rain:
		if s.Rain {
			return 1
		}
		return 0
	case SoilMoisture:
		return s.SoilMoisture
	}
	return 0
}

// Decompose splits a snapshot into one reading per sensor type. All rows share
// the snapshot timestamp and a fresh batch id.
func Decompose(s Snapshot) Readings {
	ts := s.Time()
	batchID := uuid.NewString()
	readings := make(Readings, 0, len(SensorTypes))
	for _, t := range SensorTypes {
		readings = append(readings, Reading{
			SensorType: t,
			Value:      s.value(t),
			Unit:       t.Unit(),
			Timestamp:  ts,
			BatchID:    batchID,
		})
	}
	return readings
}
