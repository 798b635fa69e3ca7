package model

type Threshold struct {
	SensorType SensorType `json:"sensor_type" gorm:"column:sensor_type;primaryKey"`
	Min        float64    `json:"min" gorm:"column:min_value;not null"`
	Max        float64    `json:"max" gorm:"column:max_value;not null"`
}

func (Threshold) TableName() string {
	return "sensor_thresholds"
}

// Breached reports whether v falls outside [Min, Max].
func (t Threshold) Breached(v float64) bool {
	return v < t.Min || v > t.Max
}
