package service

import (
	"context"
	"sync"
	"time"

	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/repository"
)

// In-memory repository fakes. They reproduce the storage-level invariants
// the services rely on (sentinel errors, the partial uniqueness rules,
// conditional status updates) without a database.

type fakeLotRepo struct {
	mu     sync.Mutex
	nextID int
	lots   map[int]domain.ParkingLot
}

func newFakeLotRepo() *fakeLotRepo {
	return &fakeLotRepo{nextID: 1, lots: make(map[int]domain.ParkingLot)}
}

func (r *fakeLotRepo) Create(_ context.Context, lot *domain.ParkingLot) (*domain.ParkingLot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lot.ID = r.nextID
	r.nextID++
	r.lots[lot.ID] = *lot
	return lot, nil
}

func (r *fakeLotRepo) FindByID(_ context.Context, id int) (*domain.ParkingLot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lot, ok := r.lots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &lot, nil
}

func (r *fakeLotRepo) FindAll(_ context.Context) ([]domain.ParkingLot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ParkingLot, 0, len(r.lots))
	for _, lot := range r.lots {
		out = append(out, lot)
	}
	return out, nil
}

func (r *fakeLotRepo) Update(_ context.Context, lot *domain.ParkingLot) (*domain.ParkingLot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lots[lot.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	r.lots[lot.ID] = *lot
	return lot, nil
}

type fakeSlotRepo struct {
	mu     sync.Mutex
	nextID int
	slots  map[int]domain.ParkingSlot
}

func newFakeSlotRepo() *fakeSlotRepo {
	return &fakeSlotRepo{nextID: 1, slots: make(map[int]domain.ParkingSlot)}
}

func (r *fakeSlotRepo) Create(_ context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.slots {
		if existing.ParkingLotID == slot.ParkingLotID && existing.SlotNumber == slot.SlotNumber {
			return nil, repository.ErrDuplicateEntry
		}
	}
	slot.ID = r.nextID
	r.nextID++
	r.slots[slot.ID] = *slot
	return slot, nil
}

func (r *fakeSlotRepo) FindByID(_ context.Context, id int) (*domain.ParkingSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &slot, nil
}

func (r *fakeSlotRepo) FindByLotID(_ context.Context, lotID int) ([]domain.ParkingSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ParkingSlot
	for _, slot := range r.slots {
		if slot.ParkingLotID == lotID {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (r *fakeSlotRepo) FindAll(_ context.Context) ([]domain.ParkingSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ParkingSlot, 0, len(r.slots))
	for _, slot := range r.slots {
		out = append(out, slot)
	}
	return out, nil
}

func (r *fakeSlotRepo) Update(_ context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[slot.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	r.slots[slot.ID] = *slot
	return slot, nil
}

func (r *fakeSlotRepo) UpdateStatusFrom(_ context.Context, id int, expected []domain.SlotStatus, to domain.SlotStatus, observedAt time.Time, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[id]
	if !ok {
		return repository.ErrNotFound
	}
	matched := false
	for _, s := range expected {
		if slot.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return repository.ErrStaleStatus
	}
	slot.Status = to
	slot.LastUpdatedAt = observedAt
	slot.LastStatusUpdateSource = source
	r.slots[id] = slot
	return nil
}

func (r *fakeSlotRepo) Delete(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.slots, id)
	return nil
}

func (r *fakeSlotRepo) status(id int) domain.SlotStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[id].Status
}

type fakeBookingRepo struct {
	mu       sync.Mutex
	nextID   int
	bookings map[int]domain.Booking
	// hideNonTerminal makes FindNonTerminalBySlotID always miss,
	// simulating the read-then-insert race during degraded-lock mode so
	// the uniqueness check at Create is exercised.
	hideNonTerminal bool
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{nextID: 1, bookings: make(map[int]domain.Booking)}
}

func (r *fakeBookingRepo) Create(_ context.Context, booking *domain.Booking) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.bookings {
		if existing.ParkingSlotID == booking.ParkingSlotID && !existing.Status.IsTerminal() {
			return nil, repository.ErrDuplicateEntry
		}
	}
	booking.ID = r.nextID
	r.nextID++
	if booking.BookedAt.IsZero() {
		booking.BookedAt = time.Now().UTC()
	}
	r.bookings[booking.ID] = *booking
	return booking, nil
}

func (r *fakeBookingRepo) FindByID(_ context.Context, id int) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &booking, nil
}

func (r *fakeBookingRepo) FindByIDAndDriver(_ context.Context, id, driverID int) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok || booking.DriverID != driverID {
		return nil, repository.ErrNotFound
	}
	return &booking, nil
}

func (r *fakeBookingRepo) FindNonTerminalBySlotID(_ context.Context, slotID int) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hideNonTerminal {
		return nil, repository.ErrNotFound
	}
	for _, booking := range r.bookings {
		if booking.ParkingSlotID == slotID && !booking.Status.IsTerminal() {
			b := booking
			return &b, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeBookingRepo) FindConfirmedByPlateAndSlot(_ context.Context, normalizedPlate string, slotID int) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, booking := range r.bookings {
		if booking.ParkingSlotID == slotID && booking.LicensePlate == normalizedPlate && booking.Status == domain.BookingConfirmed {
			b := booking
			return &b, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeBookingRepo) FindByDriver(_ context.Context, driverID int, status *domain.BookingStatus) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Booking
	for _, booking := range r.bookings {
		if booking.DriverID != driverID {
			continue
		}
		if status != nil && booking.Status != *status {
			continue
		}
		out = append(out, booking)
	}
	return out, nil
}

func (r *fakeBookingRepo) FindExpiredPending(_ context.Context, now time.Time) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Booking
	for _, booking := range r.bookings {
		if booking.Status.IsPending() && booking.ExpiresAt.Valid && booking.ExpiresAt.Time.Before(now) {
			out = append(out, booking)
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) Update(_ context.Context, booking *domain.Booking) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[booking.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	r.bookings[booking.ID] = *booking
	return booking, nil
}

func (r *fakeBookingRepo) get(id int) domain.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookings[id]
}

func (r *fakeBookingRepo) put(booking domain.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if booking.ID == 0 {
		booking.ID = r.nextID
		r.nextID++
	}
	if booking.ID >= r.nextID {
		r.nextID = booking.ID + 1
	}
	r.bookings[booking.ID] = booking
}

type fakeVehicleRepo struct {
	mu       sync.Mutex
	nextID   int
	vehicles map[int]domain.Vehicle
}

func newFakeVehicleRepo() *fakeVehicleRepo {
	return &fakeVehicleRepo{nextID: 1, vehicles: make(map[int]domain.Vehicle)}
}

func (r *fakeVehicleRepo) Create(_ context.Context, vehicle *domain.Vehicle) (*domain.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.vehicles {
		if existing.DriverID == vehicle.DriverID && existing.LicensePlate == vehicle.LicensePlate {
			return nil, repository.ErrDuplicateEntry
		}
	}
	vehicle.ID = r.nextID
	r.nextID++
	r.vehicles[vehicle.ID] = *vehicle
	return vehicle, nil
}

func (r *fakeVehicleRepo) FindByPlate(_ context.Context, normalizedPlate string) (*domain.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, vehicle := range r.vehicles {
		if vehicle.LicensePlate == normalizedPlate {
			v := vehicle
			return &v, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeVehicleRepo) FindByPlateAndDriver(_ context.Context, normalizedPlate string, driverID int) (*domain.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, vehicle := range r.vehicles {
		if vehicle.LicensePlate == normalizedPlate && vehicle.DriverID == driverID {
			v := vehicle
			return &v, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeVehicleRepo) FindByDriverID(_ context.Context, driverID int) ([]domain.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Vehicle
	for _, vehicle := range r.vehicles {
		if vehicle.DriverID == driverID {
			out = append(out, vehicle)
		}
	}
	return out, nil
}

func (r *fakeVehicleRepo) FindAll(_ context.Context) ([]domain.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Vehicle, 0, len(r.vehicles))
	for _, vehicle := range r.vehicles {
		out = append(out, vehicle)
	}
	return out, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	nextID   int
	sessions map[int]domain.ParkingSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{nextID: 1, sessions: make(map[int]domain.ParkingSession)}
}

func (r *fakeSessionRepo) Create(_ context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sessions {
		if existing.ParkingSlotID == session.ParkingSlotID && existing.Status == domain.SessionActive {
			return nil, repository.ErrDuplicateEntry
		}
	}
	session.ID = r.nextID
	r.nextID++
	r.sessions[session.ID] = *session
	return session, nil
}

func (r *fakeSessionRepo) FindByID(_ context.Context, id int) (*domain.ParkingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

func (r *fakeSessionRepo) FindActiveBySlotID(_ context.Context, slotID int) (*domain.ParkingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.ParkingSlotID == slotID && session.Status == domain.SessionActive {
			s := session
			return &s, nil
		}
	}
	return nil, repository.ErrNoActiveSession
}

func (r *fakeSessionRepo) FindActiveByPlate(_ context.Context, normalizedPlate string) (*domain.ParkingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.LicensePlate == normalizedPlate && session.Status == domain.SessionActive {
			s := session
			return &s, nil
		}
	}
	return nil, repository.ErrNoActiveSession
}

func (r *fakeSessionRepo) FindByVehicleIDs(_ context.Context, vehicleIDs []int, status *domain.ParkingSessionStatus) ([]domain.ParkingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make(map[int]bool, len(vehicleIDs))
	for _, id := range vehicleIDs {
		ids[id] = true
	}
	var out []domain.ParkingSession
	for _, session := range r.sessions {
		if !ids[session.VehicleID] {
			continue
		}
		if status != nil && session.Status != *status {
			continue
		}
		out = append(out, session)
	}
	return out, nil
}

func (r *fakeSessionRepo) Update(_ context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	r.sessions[session.ID] = *session
	return session, nil
}

// fakeLocker reproduces the real locker's semantics in memory: a single
// non-blocking attempt, optional fail-open mode for degraded-store tests.
type fakeLocker struct {
	mu       sync.Mutex
	held     map[int]bool
	failOpen bool
	releases int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[int]bool)}
}

func (l *fakeLocker) Acquire(_ context.Context, slotID int, _ int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failOpen {
		return true
	}
	if l.held[slotID] {
		return false
	}
	l.held[slotID] = true
	return true
}

func (l *fakeLocker) Release(_ context.Context, slotID int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, slotID)
	l.releases++
}

func (l *fakeLocker) isHeld(slotID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[slotID]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SlotStatusChangeEvent
}

func (p *recordingPublisher) PublishSlotStatus(_ context.Context, event domain.SlotStatusChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) all() []domain.SlotStatusChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.SlotStatusChangeEvent, len(p.events))
	copy(out, p.events)
	return out
}
