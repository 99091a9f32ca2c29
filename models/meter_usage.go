package models

import (
	"fmt"
	"time"
)

// UsageStatus is the lifecycle state of one meter's reading for one month.
type UsageStatus string

const (
	UsagePending     UsageStatus = "PENDING"
	UsageUnconfirmed UsageStatus = "UNCONFIRMED"
	UsageConfirmed   UsageStatus = "CONFIRMED"
)

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. PENDING advances to UNCONFIRMED once an end reading exists,
// UNCONFIRMED advances to CONFIRMED on operator submission, and CONFIRMED is
// terminal. Staying in place is always allowed.
func (s UsageStatus) CanTransition(next UsageStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case UsagePending:
		return next == UsageUnconfirmed
	case UsageUnconfirmed:
		return next == UsageConfirmed
	default:
		return false
	}
}

// Editable reports whether row inputs for this status may still be changed.
func (s UsageStatus) Editable() bool {
	return s != UsageConfirmed
}

// MeterUsage is one reading cycle for one meter in one calendar month.
// MeterEnd stays nil until captured; Usage is derived, never stored.
type MeterUsage struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time  `gorm:"index"`
	MeterID    uint        `gorm:"index;not null;uniqueIndex:idx_meter_month"`
	Meter      Meter       `gorm:"foreignKey:MeterID;references:ID"`
	Month      string      `gorm:"size:7;not null;uniqueIndex:idx_meter_month"` // YYYY-MM
	MeterStart int64       `gorm:"not null"`
	MeterEnd   *int64
	Note       string      `gorm:"size:255"`
	ImgPath    string      `gorm:"size:512"`
	Status     UsageStatus `gorm:"size:16;not null;default:PENDING"`
}

// Usage returns endReading - startReading, or (0, false) while no end reading
// has been captured. Negative values are possible (meter rollover or operator
// error) and are reported as-is; capture never rejects them.
func (u MeterUsage) Usage() (int64, bool) {
	if u.MeterEnd == nil {
		return 0, false
	}
	return *u.MeterEnd - u.MeterStart, true
}

// Advance sets the status after validating the transition.
func (u *MeterUsage) Advance(next UsageStatus) error {
	if !u.Status.CanTransition(next) {
		return fmt.Errorf("illegal usage transition %s -> %s", u.Status, next)
	}
	u.Status = next
	return nil
}

// ValidMonth reports whether m looks like a YYYY-MM billing month key.
func ValidMonth(m string) bool {
	if len(m) != 7 || m[4] != '-' {
		return false
	}
	for i, r := range m {
		if i == 4 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	mm := (int(m[5]-'0') * 10) + int(m[6]-'0')
	return mm >= 1 && mm <= 12
}
