package models

import "time"

// MeterType distinguishes the two utility meters billed per contract.
type MeterType string

const (
	MeterWater    MeterType = "WATER"
	MeterElectric MeterType = "ELECTRIC"
)

// ValidMeterType reports whether t is one of the supported meter types.
func ValidMeterType(t MeterType) bool {
	return t == MeterWater || t == MeterElectric
}

// Meter is a physical water/electric meter installed at a lock.
// Immutable after creation except Note; AssetTag is the field-scannable
// identifier printed on the meter body, distinct from the database id.
type Meter struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`
	Type      MeterType  `gorm:"column:meter_type;size:16;not null"`
	Number    string     `gorm:"column:meter_number;size:64;not null"`
	Serial    string     `gorm:"column:meter_serial;size:64"`
	AssetTag  string     `gorm:"column:asset_tag;size:64;uniqueIndex"`
	Note      string     `gorm:"size:255"`
}
