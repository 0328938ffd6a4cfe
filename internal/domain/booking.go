package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type BookingStatus string

const (
	BookingInitiated BookingStatus = "initiated"
	BookingLocked    BookingStatus = "locked"
	BookingConfirmed BookingStatus = "confirmed"
	BookingExpired   BookingStatus = "expired"
	BookingCanceled  BookingStatus = "canceled"
)

// NonTerminalBookingStatuses are the statuses that count against the
// one-booking-per-slot rule. Only one booking in any of these statuses may
// exist for a slot at a time.
var NonTerminalBookingStatuses = []BookingStatus{BookingInitiated, BookingLocked, BookingConfirmed}

// PendingBookingStatuses are the statuses the expiry sweeper demotes once
// expires_at has passed.
var PendingBookingStatuses = []BookingStatus{BookingInitiated, BookingLocked}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingExpired || s == BookingCanceled
}

func (s BookingStatus) IsPending() bool {
	return s == BookingInitiated || s == BookingLocked
}

type Booking struct {
	ID            int           `json:"id"`
	DriverID      int           `json:"driver_id"`
	LicensePlate  string        `json:"license_plate"` // normalized form
	ParkingSlotID int           `json:"parking_slot_id"`
	ParkingLotID  int           `json:"parking_lot_id"`
	Status        BookingStatus `json:"status"`
	BookedAt      time.Time     `json:"booked_at"`
	ExpiresAt     null.Time     `json:"expires_at"` // set only while pending
	ConfirmedAt   null.Time     `json:"confirmed_at"`
	CanceledAt    null.Time     `json:"canceled_at"`
}

type BookingCreateDTO struct {
	LicensePlate  string `json:"license_plate" binding:"required"`
	ParkingSlotID int    `json:"parking_slot_id" binding:"required"`
}

type BookingCancelDTO struct {
	Reason string `json:"reason,omitempty"`
}
