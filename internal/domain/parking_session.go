package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type ParkingSessionStatus string

const (
	SessionActive    ParkingSessionStatus = "active"
	SessionCompleted ParkingSessionStatus = "completed"
	SessionCanceled  ParkingSessionStatus = "canceled"
)

// SessionOriginKind distinguishes sessions opened against a confirmed
// booking from walk-ins. The two cases are modeled as a tagged variant so
// callers have to handle both instead of poking at a nullable foreign key.
type SessionOriginKind string

const (
	OriginBooked SessionOriginKind = "booked"
	OriginWalkIn SessionOriginKind = "walk_in"
)

type SessionOrigin struct {
	Kind      SessionOriginKind
	BookingID int // valid only when Kind == OriginBooked
}

func BookedOrigin(bookingID int) SessionOrigin {
	return SessionOrigin{Kind: OriginBooked, BookingID: bookingID}
}

func WalkInOrigin() SessionOrigin {
	return SessionOrigin{Kind: OriginWalkIn}
}

type ParkingSession struct {
	ID                   int                  `json:"id"`
	BookingID            null.Int             `json:"booking_id"` // storage form of Origin
	VehicleID            int                  `json:"vehicle_id"`
	ParkingSlotID        int                  `json:"parking_slot_id"`
	ParkingLotID         int                  `json:"parking_lot_id"`
	LicensePlate         string               `json:"license_plate"`
	StartTime            time.Time            `json:"start_time"`
	EndTime              null.Time            `json:"end_time"`
	Status               ParkingSessionStatus `json:"status"`
	TotalDurationMinutes null.Float           `json:"total_duration_minutes"`
	ParkingCost          null.Float           `json:"parking_cost"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// Origin returns the session's provenance as a tagged variant.
func (s *ParkingSession) Origin() SessionOrigin {
	if s.BookingID.Valid {
		return BookedOrigin(int(s.BookingID.Int64))
	}
	return WalkInOrigin()
}

// SetOrigin records the provenance in its storage form.
func (s *ParkingSession) SetOrigin(o SessionOrigin) {
	if o.Kind == OriginBooked {
		s.BookingID = null.IntFrom(int64(o.BookingID))
		return
	}
	s.BookingID = null.Int{}
}

type ParkingSessionFilterDTO struct {
	LotID  *int    `form:"lotId"`
	Status *string `form:"status"`
}
