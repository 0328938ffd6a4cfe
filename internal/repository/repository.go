package repository

import (
	"context"
	"errors"
	"time"

	"github.com/adith23/parking-automation-app/internal/domain"
)

var ErrNotFound = errors.New("record not found")
var ErrDuplicateEntry = errors.New("record already exists")
var ErrNoActiveSession = errors.New("no active parking session for the given key")

// ErrStaleStatus is returned by conditional status updates when the row's
// current status no longer matches what the writer expected. Conflicting
// writers must stay detectable instead of silently clobbering each other.
var ErrStaleStatus = errors.New("slot status changed since it was read")

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id int) (*domain.User, error)
}

type VehicleRepository interface {
	Create(ctx context.Context, vehicle *domain.Vehicle) (*domain.Vehicle, error)
	FindByPlate(ctx context.Context, normalizedPlate string) (*domain.Vehicle, error)
	FindByPlateAndDriver(ctx context.Context, normalizedPlate string, driverID int) (*domain.Vehicle, error)
	FindByDriverID(ctx context.Context, driverID int) ([]domain.Vehicle, error)
	FindAll(ctx context.Context) ([]domain.Vehicle, error)
}

type ParkingLotRepository interface {
	Create(ctx context.Context, lot *domain.ParkingLot) (*domain.ParkingLot, error)
	FindByID(ctx context.Context, id int) (*domain.ParkingLot, error)
	FindAll(ctx context.Context) ([]domain.ParkingLot, error)
	Update(ctx context.Context, lot *domain.ParkingLot) (*domain.ParkingLot, error)
}

type ParkingSlotRepository interface {
	Create(ctx context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error)
	FindByID(ctx context.Context, id int) (*domain.ParkingSlot, error)
	FindByLotID(ctx context.Context, lotID int) ([]domain.ParkingSlot, error)
	FindAll(ctx context.Context) ([]domain.ParkingSlot, error)
	Update(ctx context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error)
	// UpdateStatusFrom flips the slot's status only if the current value is
	// one of expected; otherwise it returns ErrStaleStatus. Every writer
	// path (confirm, cancel, sweeper, reconciler) goes through this.
	UpdateStatusFrom(ctx context.Context, id int, expected []domain.SlotStatus, to domain.SlotStatus, observedAt time.Time, source string) error
	Delete(ctx context.Context, id int) error
}

type BookingRepository interface {
	// Create inserts an initiated booking. A storage-level partial unique
	// index on (parking_slot_id) over non-terminal statuses rejects the
	// loser of a degraded-lock race with ErrDuplicateEntry.
	Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error)
	FindByID(ctx context.Context, id int) (*domain.Booking, error)
	FindByIDAndDriver(ctx context.Context, id, driverID int) (*domain.Booking, error)
	FindNonTerminalBySlotID(ctx context.Context, slotID int) (*domain.Booking, error)
	FindConfirmedByPlateAndSlot(ctx context.Context, normalizedPlate string, slotID int) (*domain.Booking, error)
	FindByDriver(ctx context.Context, driverID int, status *domain.BookingStatus) ([]domain.Booking, error)
	FindExpiredPending(ctx context.Context, now time.Time) ([]domain.Booking, error)
	Update(ctx context.Context, booking *domain.Booking) (*domain.Booking, error)
}

type ParkingSessionRepository interface {
	Create(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error)
	FindByID(ctx context.Context, id int) (*domain.ParkingSession, error)
	FindActiveBySlotID(ctx context.Context, slotID int) (*domain.ParkingSession, error)
	FindActiveByPlate(ctx context.Context, normalizedPlate string) (*domain.ParkingSession, error)
	FindByVehicleIDs(ctx context.Context, vehicleIDs []int, status *domain.ParkingSessionStatus) ([]domain.ParkingSession, error)
	Update(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error)
}
