package domain

import (
	"time"
)

type ParkingLot struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Address      string    `json:"address,omitempty"`
	TotalSlots   int       `json:"total_slots,omitempty"`
	PricePerHour float64   `json:"price_per_hour"`
	OpenTime     string    `json:"open_time"`  // "HH:MM"
	CloseTime    string    `json:"close_time"` // "HH:MM"
	IsOpen       bool      `json:"is_open"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsOpenAt reports whether the lot accepts bookings at the given instant.
// Open hours are inclusive on both ends.
func (l *ParkingLot) IsOpenAt(t time.Time) bool {
	if !l.IsOpen {
		return false
	}
	open, err1 := parseClock(l.OpenTime)
	closeAt, err2 := parseClock(l.CloseTime)
	if err1 != nil || err2 != nil {
		// Malformed hours must not lock every driver out of the lot.
		return true
	}
	minute := t.Hour()*60 + t.Minute()
	return open <= minute && minute <= closeAt
}

func parseClock(s string) (int, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

type ParkingLotDTO struct {
	Name         string  `json:"name" binding:"required"`
	Address      string  `json:"address"`
	TotalSlots   int     `json:"total_slots"`
	PricePerHour float64 `json:"price_per_hour"`
	OpenTime     string  `json:"open_time"`
	CloseTime    string  `json:"close_time"`
}
