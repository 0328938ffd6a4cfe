package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"

	"github.com/adith23/parking-automation-app/internal/domain"
)

func newSessionFixture(t *testing.T) (*SessionService, *fakeSessionRepo, *fakeVehicleRepo, *fakeBookingRepo, *fakeLotRepo) {
	t.Helper()
	sessionRepo := newFakeSessionRepo()
	vehicleRepo := newFakeVehicleRepo()
	bookingRepo := newFakeBookingRepo()
	lotRepo := newFakeLotRepo()
	svc := NewSessionService(sessionRepo, vehicleRepo, bookingRepo, lotRepo)
	return svc, sessionRepo, vehicleRepo, bookingRepo, lotRepo
}

func TestCalculateCost(t *testing.T) {
	testCases := []struct {
		name     string
		minutes  float64
		expected float64
	}{
		{"one minute charges one block", 1, 5},
		{"thirty minutes charges one block", 30, 5},
		{"thirty-one minutes charges two blocks", 31, 10},
		{"full hour charges two blocks", 60, 10},
		{"just over an hour charges three blocks", 61, 15},
		{"zero minutes is free", 0, 0},
		{"negative duration is free", -5, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, CalculateCost(10, tc.minutes), 1e-9)
		})
	}
}

func TestOnArrivalOpensWalkInSession(t *testing.T) {
	svc, _, vehicleRepo, _, _ := newSessionFixture(t)
	ctx := context.Background()

	vehicle, err := vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)

	now := time.Now().UTC()
	session, err := svc.OnArrival(ctx, 5, 1, []string{"ABC123"}, now)
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, vehicle.ID, session.VehicleID)
	assert.Equal(t, 5, session.ParkingSlotID)
	assert.Equal(t, domain.SessionActive, session.Status)
	assert.Equal(t, domain.OriginWalkIn, session.Origin().Kind)
}

func TestOnArrivalLinksConfirmedBooking(t *testing.T) {
	svc, _, vehicleRepo, bookingRepo, _ := newSessionFixture(t)
	ctx := context.Background()

	_, err := vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)
	bookingRepo.put(domain.Booking{
		ID: 9, DriverID: 1, LicensePlate: "ABC123",
		ParkingSlotID: 5, ParkingLotID: 1, Status: domain.BookingConfirmed,
	})

	session, err := svc.OnArrival(ctx, 5, 1, []string{"ABC123"}, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, session)

	origin := session.Origin()
	assert.Equal(t, domain.OriginBooked, origin.Kind)
	assert.Equal(t, 9, origin.BookingID)
}

func TestOnArrivalMatchesFuzzyPlate(t *testing.T) {
	svc, _, vehicleRepo, _, _ := newSessionFixture(t)
	ctx := context.Background()

	vehicle, err := vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)

	// One OCR misread in the observed plate still attributes the session.
	session, err := svc.OnArrival(ctx, 5, 1, []string{"ABC12E"}, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, vehicle.ID, session.VehicleID)
	assert.Equal(t, "ABC123", session.LicensePlate)
}

func TestOnArrivalUnknownPlateSkipsSession(t *testing.T) {
	svc, sessionRepo, _, _, _ := newSessionFixture(t)
	ctx := context.Background()

	session, err := svc.OnArrival(ctx, 5, 1, []string{"ZZZ999"}, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Empty(t, sessionRepo.sessions)
}

func TestOnArrivalIsIdempotentPerSlot(t *testing.T) {
	svc, _, vehicleRepo, _, _ := newSessionFixture(t)
	ctx := context.Background()

	_, err := vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)

	first, err := svc.OnArrival(ctx, 5, 1, []string{"ABC123"}, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.OnArrival(ctx, 5, 1, []string{"ABC123"}, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
}

func TestOnBookedArrivalRequiresConfirmedBooking(t *testing.T) {
	svc, _, vehicleRepo, bookingRepo, _ := newSessionFixture(t)
	ctx := context.Background()

	_, err := vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)
	_, err = vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 2, LicensePlate: "XYZ789"})
	require.NoError(t, err)
	bookingRepo.put(domain.Booking{
		ID: 9, DriverID: 1, LicensePlate: "ABC123",
		ParkingSlotID: 5, ParkingLotID: 1, Status: domain.BookingConfirmed,
	})

	// A registered vehicle without the booking must not claim the slot.
	session, err := svc.OnBookedArrival(ctx, 5, 1, []string{"XYZ789"}, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, session)

	// The booking holder does.
	session, err = svc.OnBookedArrival(ctx, 5, 1, []string{"ABC123"}, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, domain.OriginBooked, session.Origin().Kind)
	assert.Equal(t, 9, session.Origin().BookingID)
}

func TestOnDepartureClosesSessionWithCost(t *testing.T) {
	svc, sessionRepo, vehicleRepo, _, lotRepo := newSessionFixture(t)
	ctx := context.Background()

	lot, err := lotRepo.Create(ctx, &domain.ParkingLot{Name: "Central", PricePerHour: 10, IsOpen: true})
	require.NoError(t, err)
	_, err = vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)

	start := time.Now().UTC().Add(-45 * time.Minute)
	opened, err := svc.OnArrival(ctx, 5, lot.ID, []string{"ABC123"}, start)
	require.NoError(t, err)
	require.NotNil(t, opened)

	closed, err := svc.OnDeparture(ctx, 5, start.Add(45*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, closed)

	assert.Equal(t, domain.SessionCompleted, closed.Status)
	assert.True(t, closed.EndTime.Valid)
	assert.InDelta(t, 45, closed.TotalDurationMinutes.Float64, 1e-6)
	// 45 min rounds up to two 30-minute blocks at $5 each.
	assert.InDelta(t, 10, closed.ParkingCost.Float64, 1e-9)

	stored, err := sessionRepo.FindByID(ctx, closed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, stored.Status)
}

func TestOnDepartureWithoutSessionIsNoOp(t *testing.T) {
	svc, _, _, _, _ := newSessionFixture(t)

	session, err := svc.OnDeparture(context.Background(), 5, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestOnDepartureClampsNegativeDuration(t *testing.T) {
	svc, _, vehicleRepo, _, lotRepo := newSessionFixture(t)
	ctx := context.Background()

	lot, err := lotRepo.Create(ctx, &domain.ParkingLot{Name: "Central", PricePerHour: 10, IsOpen: true})
	require.NoError(t, err)
	_, err = vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)

	start := time.Now().UTC()
	_, err = svc.OnArrival(ctx, 5, lot.ID, []string{"ABC123"}, start)
	require.NoError(t, err)

	// Clock skew between cameras can put the departure before the arrival.
	closed, err := svc.OnDeparture(ctx, 5, start.Add(-2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Zero(t, closed.TotalDurationMinutes.Float64)
	assert.Zero(t, closed.ParkingCost.Float64)
}

func TestCostSoFar(t *testing.T) {
	svc, sessionRepo, vehicleRepo, _, lotRepo := newSessionFixture(t)
	ctx := context.Background()

	lot, err := lotRepo.Create(ctx, &domain.ParkingLot{Name: "Central", PricePerHour: 10, IsOpen: true})
	require.NoError(t, err)
	vehicle, err := vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)

	start := time.Now().UTC().Add(-40 * time.Minute)
	active, err := svc.OnArrival(ctx, 5, lot.ID, []string{"ABC123"}, start)
	require.NoError(t, err)

	_, cost, err := svc.CostSoFar(ctx, active.ID, start.Add(40*time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 10, cost, 1e-9)

	// Completed sessions return the stored final cost, not a recomputation.
	done := &domain.ParkingSession{
		ID: 99, VehicleID: vehicle.ID, ParkingSlotID: 6, ParkingLotID: lot.ID,
		LicensePlate: "ABC123", StartTime: start,
		Status:      domain.SessionCompleted,
		ParkingCost: null.FloatFrom(25),
	}
	sessionRepo.sessions[done.ID] = *done
	_, cost, err = svc.CostSoFar(ctx, done.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.InDelta(t, 25, cost, 1e-9)
}

func TestGetSessionForDriverChecksOwnership(t *testing.T) {
	svc, sessionRepo, vehicleRepo, _, _ := newSessionFixture(t)
	ctx := context.Background()

	mine, err := vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)
	sessionRepo.sessions[1] = domain.ParkingSession{ID: 1, VehicleID: mine.ID, ParkingSlotID: 5, Status: domain.SessionActive}

	got, err := svc.GetSessionForDriver(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ID)

	_, err = svc.GetSessionForDriver(ctx, 2, 1)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestGetDriverSessions(t *testing.T) {
	svc, sessionRepo, vehicleRepo, _, _ := newSessionFixture(t)
	ctx := context.Background()

	mine, err := vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)
	other, err := vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 2, LicensePlate: "XYZ789"})
	require.NoError(t, err)

	sessionRepo.sessions[1] = domain.ParkingSession{ID: 1, VehicleID: mine.ID, ParkingSlotID: 5, Status: domain.SessionActive}
	sessionRepo.sessions[2] = domain.ParkingSession{ID: 2, VehicleID: mine.ID, ParkingSlotID: 6, Status: domain.SessionCompleted}
	sessionRepo.sessions[3] = domain.ParkingSession{ID: 3, VehicleID: other.ID, ParkingSlotID: 7, Status: domain.SessionActive}

	all, err := svc.GetDriverSessions(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active := domain.SessionActive
	onlyActive, err := svc.GetDriverSessions(ctx, 1, &active)
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, 1, onlyActive[0].ID)

	none, err := svc.GetDriverSessions(ctx, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
