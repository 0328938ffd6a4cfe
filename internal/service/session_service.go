package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"gopkg.in/guregu/null.v4"

	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/plate"
	"github.com/adith23/parking-automation-app/internal/repository"
)

// SessionService bridges occupancy transitions to billing: it opens a
// session when a recognized vehicle arrives in a slot and closes it with a
// computed cost when the slot empties again.
type SessionService struct {
	sessionRepo repository.ParkingSessionRepository
	vehicleRepo repository.VehicleRepository
	bookingRepo repository.BookingRepository
	lotRepo     repository.ParkingLotRepository
}

func NewSessionService(
	sessionRepo repository.ParkingSessionRepository,
	vehicleRepo repository.VehicleRepository,
	bookingRepo repository.BookingRepository,
	lotRepo repository.ParkingLotRepository,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		vehicleRepo: vehicleRepo,
		bookingRepo: bookingRepo,
		lotRepo:     lotRepo,
	}
}

// OnArrival opens a session for a slot that just became occupied. Idempotent
// per slot: a second arrival for a slot with an active session is a no-op
// returning that session. If none of the observed plates matches a
// registered vehicle, no session is created: unattributable observations
// must not pollute session history.
func (s *SessionService) OnArrival(ctx context.Context, slotID, lotID int, plates []string, observedAt time.Time) (*domain.ParkingSession, error) {
	existing, err := s.sessionRepo.FindActiveBySlotID(ctx, slotID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNoActiveSession) {
		return nil, fmt.Errorf("checking active session for slot %d: %w", slotID, err)
	}

	vehicle, err := s.matchVehicle(ctx, plates)
	if err != nil {
		return nil, err
	}
	if vehicle == nil {
		log.Printf("SessionService: no registered vehicle matched plates %v at slot %d, skipping session", plates, slotID)
		return nil, nil
	}

	origin := domain.WalkInOrigin()
	booking, err := s.bookingRepo.FindConfirmedByPlateAndSlot(ctx, vehicle.LicensePlate, slotID)
	if err == nil {
		origin = domain.BookedOrigin(booking.ID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("checking booking for plate %s at slot %d: %w", vehicle.LicensePlate, slotID, err)
	}

	return s.openSession(ctx, vehicle, slotID, lotID, origin, observedAt)
}

// OnBookedArrival opens a session only when an observed plate belongs to
// the holder of a confirmed booking for this slot. Used for reserved slots,
// where a walk-in must not claim the reservation. Returns nil when no
// booking holder is among the observed vehicles.
func (s *SessionService) OnBookedArrival(ctx context.Context, slotID, lotID int, plates []string, observedAt time.Time) (*domain.ParkingSession, error) {
	existing, err := s.sessionRepo.FindActiveBySlotID(ctx, slotID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNoActiveSession) {
		return nil, fmt.Errorf("checking active session for slot %d: %w", slotID, err)
	}

	vehicle, err := s.matchVehicle(ctx, plates)
	if err != nil {
		return nil, err
	}
	if vehicle == nil {
		return nil, nil
	}

	booking, err := s.bookingRepo.FindConfirmedByPlateAndSlot(ctx, vehicle.LicensePlate, slotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("SessionService: vehicle %s arrived at reserved slot %d without a confirmed booking, ignoring",
				vehicle.LicensePlate, slotID)
			return nil, nil
		}
		return nil, fmt.Errorf("checking booking for plate %s at slot %d: %w", vehicle.LicensePlate, slotID, err)
	}

	return s.openSession(ctx, vehicle, slotID, lotID, domain.BookedOrigin(booking.ID), observedAt)
}

// OnDeparture closes the slot's active session, computing duration and cost.
// A departure for a slot with no active session is a no-op.
func (s *SessionService) OnDeparture(ctx context.Context, slotID int, observedAt time.Time) (*domain.ParkingSession, error) {
	session, err := s.sessionRepo.FindActiveBySlotID(ctx, slotID)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveSession) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding active session for slot %d: %w", slotID, err)
	}

	lot, err := s.lotRepo.FindByID(ctx, session.ParkingLotID)
	if err != nil {
		return nil, fmt.Errorf("loading lot %d for session %d: %w", session.ParkingLotID, session.ID, err)
	}

	minutes := observedAt.Sub(session.StartTime).Minutes()
	if minutes < 0 {
		minutes = 0
	}
	session.EndTime = null.TimeFrom(observedAt.UTC())
	session.Status = domain.SessionCompleted
	session.TotalDurationMinutes = null.FloatFrom(minutes)
	session.ParkingCost = null.FloatFrom(CalculateCost(lot.PricePerHour, minutes))

	updated, err := s.sessionRepo.Update(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("closing session %d: %w", session.ID, err)
	}
	log.Printf("SessionService: session %d closed for slot %d, %.0f minutes, cost %.2f",
		updated.ID, slotID, minutes, updated.ParkingCost.Float64)
	return updated, nil
}

// CalculateCost rounds the duration up to whole 30-minute blocks and charges
// half the hourly rate per block. One minute and thirty minutes both cost
// one block; thirty-one minutes cost two.
func CalculateCost(pricePerHour float64, minutes float64) float64 {
	if minutes <= 0 {
		return 0
	}
	blocks := math.Ceil(minutes / 30.0)
	return pricePerHour * blocks * 30.0 / 60.0
}

// CostSoFar recomputes an active session's accrued cost on demand; for a
// completed session it returns the stored final cost.
func (s *SessionService) CostSoFar(ctx context.Context, sessionID int, now time.Time) (*domain.ParkingSession, float64, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if session.Status != domain.SessionActive {
		return session, session.ParkingCost.Float64, nil
	}
	lot, err := s.lotRepo.FindByID(ctx, session.ParkingLotID)
	if err != nil {
		return nil, 0, fmt.Errorf("loading lot %d for session %d: %w", session.ParkingLotID, sessionID, err)
	}
	minutes := now.Sub(session.StartTime).Minutes()
	return session, CalculateCost(lot.PricePerHour, minutes), nil
}

func (s *SessionService) GetSessionByID(ctx context.Context, sessionID int) (*domain.ParkingSession, error) {
	return s.sessionRepo.FindByID(ctx, sessionID)
}

// GetSessionForDriver loads a session only if its vehicle is registered to
// the given driver. Operator and admin callers use GetSessionByID instead.
func (s *SessionService) GetSessionForDriver(ctx context.Context, driverID, sessionID int) (*domain.ParkingSession, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	vehicles, err := s.vehicleRepo.FindByDriverID(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("loading vehicles for driver %d: %w", driverID, err)
	}
	for _, v := range vehicles {
		if v.ID == session.VehicleID {
			return session, nil
		}
	}
	return nil, ErrNotOwner
}

// GetDriverSessions lists sessions for all of the driver's registered
// vehicles, optionally filtered by status.
func (s *SessionService) GetDriverSessions(ctx context.Context, driverID int, status *domain.ParkingSessionStatus) ([]domain.ParkingSession, error) {
	vehicles, err := s.vehicleRepo.FindByDriverID(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("loading vehicles for driver %d: %w", driverID, err)
	}
	if len(vehicles) == 0 {
		return nil, nil
	}
	ids := make([]int, len(vehicles))
	for i, v := range vehicles {
		ids[i] = v.ID
	}
	return s.sessionRepo.FindByVehicleIDs(ctx, ids, status)
}

func (s *SessionService) openSession(ctx context.Context, vehicle *domain.Vehicle, slotID, lotID int, origin domain.SessionOrigin, observedAt time.Time) (*domain.ParkingSession, error) {
	session := &domain.ParkingSession{
		VehicleID:     vehicle.ID,
		ParkingSlotID: slotID,
		ParkingLotID:  lotID,
		LicensePlate:  vehicle.LicensePlate,
		StartTime:     observedAt.UTC(),
		Status:        domain.SessionActive,
	}
	session.SetOrigin(origin)

	created, err := s.sessionRepo.Create(ctx, session)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// Another arrival won the race; return the surviving session.
			return s.sessionRepo.FindActiveBySlotID(ctx, slotID)
		}
		return nil, fmt.Errorf("creating session for slot %d: %w", slotID, err)
	}
	log.Printf("SessionService: session %d opened for vehicle %s at slot %d (%s)",
		created.ID, vehicle.LicensePlate, slotID, origin.Kind)
	return created, nil
}

// matchVehicle resolves observed plate reads to a registered vehicle. Exact
// match on the normalized text wins; otherwise a fuzzy pass tolerates a
// single OCR transcription error.
func (s *SessionService) matchVehicle(ctx context.Context, plates []string) (*domain.Vehicle, error) {
	candidates := make([]string, 0, len(plates))
	for _, raw := range plates {
		if normalized := plate.Normalize(raw); normalized != "" {
			candidates = append(candidates, normalized)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	for _, candidate := range candidates {
		vehicle, err := s.vehicleRepo.FindByPlate(ctx, candidate)
		if err == nil {
			return vehicle, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("looking up plate %s: %w", candidate, err)
		}
	}

	registered, err := s.vehicleRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading registered vehicles: %w", err)
	}
	for _, candidate := range candidates {
		for i := range registered {
			if plate.FuzzyEquals(candidate, registered[i].LicensePlate) {
				return &registered[i], nil
			}
		}
	}
	return nil, nil
}
