package model

import (
	"errors"
	"fmt"
	"strings"
)

type SensorType string

func (t SensorType) String() string {
	return string(t)
}

const (
	Temperature  SensorType = "temperature"
	Humidity     SensorType = "humidity"
	WaterLevel   SensorType = "water_level"
	Ph           SensorType = "ph"
	Salinity     SensorType = "salinity"
	Rain         SensorType = "rain"
	SoilMoisture SensorType = "soil_moisture"
)

// SensorTypes lists every sensor on the rig, in display order.
var SensorTypes = []SensorType{
	Temperature,
	Humidity,
	WaterLevel,
	Ph,
	Salinity,
	Rain,
	SoilMoisture,
}

type sensorInfo struct {
	unit        string
	displayName string
	min, max    float64
}

var sensorTable = map[SensorType]sensorInfo{
	Temperature:  {unit: "°C", displayName: "Temperature", min: 10, max: 40},
	Humidity:     {unit: "%", displayName: "Humidity", min: 20, max: 80},
	WaterLevel:   {unit: "cm", displayName: "Water Level", min: 5, max: 90},
	Ph:           {unit: "pH", displayName: "pH", min: 5, max: 9},
	Salinity:     {unit: "ppt", displayName: "Salinity", min: 0, max: 30},
	Rain:         {unit: "", displayName: "Rain", min: 0, max: 1},
	SoilMoisture: {unit: "%", displayName: "Soil Moisture", min: 20, max: 80},
}

func (t SensorType) Unit() string {
	return sensorTable[t].unit
}

func (t SensorType) DisplayName() string {
	if info, ok := sensorTable[t]; ok {
		return info.displayName
	}
	return "Unknown Sensor"
}

func (t SensorType) Known() bool {
	_, ok := sensorTable[t]
	return ok
}

// DefaultThreshold returns the alert band used until a user sets one.
func (t SensorType) DefaultThreshold() Threshold {
	info, ok := sensorTable[t]
	if !ok {
		return Threshold{SensorType: t, Min: 0, Max: 100}
	}
	return Threshold{SensorType: t, Min: info.min, Max: info.max}
}

var ErrUnknownSensorType = errors.New("unknown sensor type")

func ParseSensorType(s string) (SensorType, error) {
	t := SensorType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSensorType, s)
	}
	return t, nil
}
