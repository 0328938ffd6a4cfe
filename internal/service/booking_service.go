package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gopkg.in/guregu/null.v4"

	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/events"
	"github.com/adith23/parking-automation-app/internal/lock"
	"github.com/adith23/parking-automation-app/internal/plate"
	"github.com/adith23/parking-automation-app/internal/repository"
)

// SlotBaselineSync lets the booking and administrative paths tell the
// occupancy reconciler about changes made outside the vision stream, so its
// cached baselines and geofences do not go stale.
type SlotBaselineSync interface {
	SyncSlotStatus(slotID int, status domain.SlotStatus)
	SyncSlotGeofence(slot *domain.ParkingSlot)
}

// BookingService owns the reservation state machine. Every initiate/confirm
// sequence for a slot is serialized through the per-slot lock; the partial
// unique index on non-terminal bookings is the second line of defense when
// the lock store is degraded.
type BookingService struct {
	bookingRepo repository.BookingRepository
	slotRepo    repository.ParkingSlotRepository
	lotRepo     repository.ParkingLotRepository
	locker      lock.SlotLocker
	publisher   events.StatusPublisher
	baseline    SlotBaselineSync
	holdWindow  time.Duration
}

func NewBookingService(
	bookingRepo repository.BookingRepository,
	slotRepo repository.ParkingSlotRepository,
	lotRepo repository.ParkingLotRepository,
	locker lock.SlotLocker,
	publisher events.StatusPublisher,
	baseline SlotBaselineSync,
	holdWindow time.Duration,
) *BookingService {
	if holdWindow <= 0 {
		holdWindow = lock.DefaultTTL
	}
	return &BookingService{
		bookingRepo: bookingRepo,
		slotRepo:    slotRepo,
		lotRepo:     lotRepo,
		locker:      locker,
		publisher:   publisher,
		baseline:    baseline,
		holdWindow:  holdWindow,
	}
}

// Initiate starts a reservation: acquire the slot lock, validate the slot
// and lot, create the booking row in 'initiated'. The slot status itself is
// not touched until confirmation.
func (s *BookingService) Initiate(ctx context.Context, driverID int, dto domain.BookingCreateDTO) (*domain.Booking, error) {
	normalized := plate.Normalize(dto.LicensePlate)
	if normalized == "" {
		return nil, ErrInvalidPlate
	}

	if !s.locker.Acquire(ctx, dto.ParkingSlotID, driverID) {
		return nil, ErrSlotContended
	}

	booking, err := s.initiateLocked(ctx, driverID, normalized, dto.ParkingSlotID)
	if err != nil {
		// No error path may leave the lock held beyond its TTL.
		s.locker.Release(ctx, dto.ParkingSlotID)
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) initiateLocked(ctx context.Context, driverID int, normalizedPlate string, slotID int) (*domain.Booking, error) {
	slot, err := s.slotRepo.FindByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("checking slot %d: %w", slotID, err)
	}
	if slot.Status != domain.StatusAvailable && slot.Status != domain.StatusReserved {
		return nil, fmt.Errorf("%w: slot %d is %s", ErrSlotUnavailable, slotID, slot.Status)
	}

	if _, err := s.bookingRepo.FindNonTerminalBySlotID(ctx, slotID); err == nil {
		return nil, fmt.Errorf("%w: slot %d already has an active booking", ErrSlotUnavailable, slotID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("checking active bookings for slot %d: %w", slotID, err)
	}

	lot, err := s.lotRepo.FindByID(ctx, slot.ParkingLotID)
	if err != nil {
		return nil, fmt.Errorf("checking lot %d: %w", slot.ParkingLotID, err)
	}
	now := time.Now().UTC()
	if !lot.IsOpenAt(now) {
		return nil, fmt.Errorf("%w: lot %d is outside operating hours", ErrLotClosed, lot.ID)
	}

	booking := &domain.Booking{
		DriverID:      driverID,
		LicensePlate:  normalizedPlate,
		ParkingSlotID: slotID,
		ParkingLotID:  slot.ParkingLotID,
		Status:        domain.BookingInitiated,
		ExpiresAt:     null.TimeFrom(now.Add(s.holdWindow)),
	}
	created, err := s.bookingRepo.Create(ctx, booking)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// Lost a degraded-lock race: another initiate committed first.
			return nil, fmt.Errorf("%w: slot %d already has an active booking", ErrSlotUnavailable, slotID)
		}
		return nil, fmt.Errorf("creating booking: %w", err)
	}
	log.Printf("BookingService: driver %d initiated booking %d on slot %d, expires at %s",
		driverID, created.ID, slotID, created.ExpiresAt.Time.Format(time.RFC3339))
	return created, nil
}

// Confirm moves a pending booking to confirmed and marks the slot reserved.
// The lock is released on every exit path: once confirmed the booking row is
// the system of record, and on failure the lock must not outlive the attempt.
func (s *BookingService) Confirm(ctx context.Context, driverID int, bookingID int) (*domain.Booking, error) {
	booking, err := s.bookingRepo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.DriverID != driverID {
		return nil, ErrNotOwner
	}

	defer s.locker.Release(ctx, booking.ParkingSlotID)

	switch {
	case booking.Status == domain.BookingExpired:
		return nil, ErrBookingExpired
	case !booking.Status.IsPending():
		return nil, fmt.Errorf("%w: booking %d is %s", ErrBookingNotPending, bookingID, booking.Status)
	}

	now := time.Now().UTC()
	if booking.ExpiresAt.Valid && now.After(booking.ExpiresAt.Time) {
		booking.Status = domain.BookingExpired
		if _, err := s.bookingRepo.Update(ctx, booking); err != nil {
			log.Printf("BookingService: error expiring booking %d during confirm: %v", bookingID, err)
		}
		return nil, ErrBookingExpired
	}

	// Re-validate the slot: a walk-in may have physically occupied it
	// since initiation, or an operator may have pulled it from service.
	slot, err := s.slotRepo.FindByID(ctx, booking.ParkingSlotID)
	if err != nil {
		return nil, fmt.Errorf("checking slot %d: %w", booking.ParkingSlotID, err)
	}
	if slot.Status != domain.StatusAvailable && slot.Status != domain.StatusReserved {
		booking.Status = domain.BookingCanceled
		booking.CanceledAt = null.TimeFrom(now)
		if _, err := s.bookingRepo.Update(ctx, booking); err != nil {
			log.Printf("BookingService: error canceling booking %d after slot conflict: %v", bookingID, err)
		}
		return nil, fmt.Errorf("%w: slot %d is %s", ErrSlotUnavailable, slot.ID, slot.Status)
	}

	// The conditional update is the real guard against a sensor transition
	// racing this confirm: if the status moved since the read above, the
	// confirm must fail rather than reserve a physically occupied slot.
	err = s.slotRepo.UpdateStatusFrom(ctx, slot.ID,
		[]domain.SlotStatus{domain.StatusAvailable, domain.StatusReserved},
		domain.StatusReserved, now, "booking_confirm")
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			booking.Status = domain.BookingCanceled
			booking.CanceledAt = null.TimeFrom(now)
			if _, uerr := s.bookingRepo.Update(ctx, booking); uerr != nil {
				log.Printf("BookingService: error canceling booking %d after stale slot status: %v", bookingID, uerr)
			}
			return nil, fmt.Errorf("%w: slot %d changed status during confirmation", ErrSlotUnavailable, slot.ID)
		}
		return nil, fmt.Errorf("reserving slot %d: %w", slot.ID, err)
	}

	booking.Status = domain.BookingConfirmed
	booking.ConfirmedAt = null.TimeFrom(now)
	updated, err := s.bookingRepo.Update(ctx, booking)
	if err != nil {
		return nil, fmt.Errorf("confirming booking %d: %w", bookingID, err)
	}
	s.slotStatusChanged(ctx, slot.ID, booking.ParkingLotID, domain.StatusReserved, now)

	log.Printf("BookingService: booking %d confirmed, slot %d reserved", bookingID, slot.ID)
	return updated, nil
}

// Cancel is idempotent: canceling a booking that is already canceled or
// expired returns it unchanged with no side effects.
func (s *BookingService) Cancel(ctx context.Context, driverID int, bookingID int) (*domain.Booking, error) {
	booking, err := s.bookingRepo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.DriverID != driverID {
		return nil, ErrNotOwner
	}
	if booking.Status.IsTerminal() {
		return booking, nil
	}

	now := time.Now().UTC()
	wasConfirmed := booking.Status == domain.BookingConfirmed
	booking.Status = domain.BookingCanceled
	booking.CanceledAt = null.TimeFrom(now)
	updated, err := s.bookingRepo.Update(ctx, booking)
	if err != nil {
		return nil, fmt.Errorf("canceling booking %d: %w", bookingID, err)
	}

	if wasConfirmed {
		s.revertReservedSlot(ctx, booking.ParkingSlotID, booking.ParkingLotID, now, "booking_cancel")
	}
	s.locker.Release(ctx, booking.ParkingSlotID)

	log.Printf("BookingService: booking %d canceled by driver %d", bookingID, driverID)
	return updated, nil
}

// CleanupExpiredBookings expires every pending booking whose hold window has
// passed. Per-booking failures are logged and the batch continues; the next
// sweep retries anything left over. Returns the number of bookings expired.
func (s *BookingService) CleanupExpiredBookings(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired, err := s.bookingRepo.FindExpiredPending(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("finding expired bookings: %w", err)
	}

	count := 0
	for i := range expired {
		booking := &expired[i]
		booking.Status = domain.BookingExpired
		if _, err := s.bookingRepo.Update(ctx, booking); err != nil {
			log.Printf("BookingService: error expiring booking %d: %v", booking.ID, err)
			continue
		}
		s.revertReservedSlot(ctx, booking.ParkingSlotID, booking.ParkingLotID, now, "booking_expiry")
		// Release unconditionally: if the lock already lapsed on its own
		// TTL this is a no-op.
		s.locker.Release(ctx, booking.ParkingSlotID)
		count++
		log.Printf("BookingService: booking %d expired (slot %d)", booking.ID, booking.ParkingSlotID)
	}
	return count, nil
}

func (s *BookingService) GetBookingByID(ctx context.Context, driverID int, bookingID int) (*domain.Booking, error) {
	booking, err := s.bookingRepo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.DriverID != driverID {
		return nil, ErrNotOwner
	}
	return booking, nil
}

func (s *BookingService) GetDriverBookings(ctx context.Context, driverID int, status *domain.BookingStatus) ([]domain.Booking, error) {
	return s.bookingRepo.FindByDriver(ctx, driverID, status)
}

// revertReservedSlot returns a slot held by a dead booking to the pool. A
// stale status here means another writer (usually the reconciler seeing the
// car still parked) got there first, which is fine.
func (s *BookingService) revertReservedSlot(ctx context.Context, slotID, lotID int, now time.Time, source string) {
	err := s.slotRepo.UpdateStatusFrom(ctx, slotID,
		[]domain.SlotStatus{domain.StatusReserved}, domain.StatusAvailable, now, source)
	if err != nil {
		if !errors.Is(err, repository.ErrStaleStatus) && !errors.Is(err, repository.ErrNotFound) {
			log.Printf("BookingService: error reverting slot %d to available: %v", slotID, err)
		}
		return
	}
	s.slotStatusChanged(ctx, slotID, lotID, domain.StatusAvailable, now)
}

func (s *BookingService) slotStatusChanged(ctx context.Context, slotID, lotID int, status domain.SlotStatus, at time.Time) {
	if s.baseline != nil {
		s.baseline.SyncSlotStatus(slotID, status)
	}
	if s.publisher != nil {
		s.publisher.PublishSlotStatus(ctx, domain.SlotStatusChangeEvent{
			SlotID:       slotID,
			ParkingLotID: lotID,
			Status:       status,
			ObservedAt:   at,
		})
	}
}
