package service

import "errors"

// Booking and session failures the API layer translates into HTTP statuses.
var (
	// ErrSlotContended means another request holds the slot's lock right
	// now. Retryable: the caller should try again shortly.
	ErrSlotContended = errors.New("slot is being booked by another request")

	// ErrSlotUnavailable means the slot is not in a bookable state, or a
	// non-terminal booking already exists for it.
	ErrSlotUnavailable = errors.New("slot is not available for booking")

	// ErrLotClosed means the lot is outside its operating hours.
	ErrLotClosed = errors.New("parking lot is closed")

	// ErrBookingExpired means the reservation hold window elapsed before
	// the booking was confirmed. The caller must start over.
	ErrBookingExpired = errors.New("booking has expired")

	// ErrBookingNotPending means a confirm was attempted on a booking that
	// already left the pending states.
	ErrBookingNotPending = errors.New("booking is not awaiting confirmation")

	// ErrNotOwner means the requester does not own the resource.
	ErrNotOwner = errors.New("resource belongs to another user")

	// ErrInvalidPlate means the plate text normalized to nothing usable.
	ErrInvalidPlate = errors.New("license plate contains no usable characters")
)
