package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/geometry"
)

type occupancyFixture struct {
	svc         *OccupancyService
	sessions    *SessionService
	sessionRepo *fakeSessionRepo
	vehicleRepo *fakeVehicleRepo
	bookingRepo *fakeBookingRepo
	slotRepo    *fakeSlotRepo
	lotRepo     *fakeLotRepo
	publisher   *recordingPublisher
	lot         *domain.ParkingLot
	slot        *domain.ParkingSlot
}

func newOccupancyFixture(t *testing.T) *occupancyFixture {
	t.Helper()
	ctx := context.Background()

	f := &occupancyFixture{
		sessionRepo: newFakeSessionRepo(),
		vehicleRepo: newFakeVehicleRepo(),
		bookingRepo: newFakeBookingRepo(),
		slotRepo:    newFakeSlotRepo(),
		lotRepo:     newFakeLotRepo(),
		publisher:   &recordingPublisher{},
	}

	lot, err := f.lotRepo.Create(ctx, &domain.ParkingLot{
		Name: "Central", PricePerHour: 10,
		OpenTime: "00:00", CloseTime: "23:59", IsOpen: true,
	})
	require.NoError(t, err)
	f.lot = lot

	slot, err := f.slotRepo.Create(ctx, &domain.ParkingSlot{
		ParkingLotID: lot.ID,
		SlotNumber:   "A1",
		Status:       domain.StatusAvailable,
		Polygon: geometry.Polygon{
			{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100},
		},
	})
	require.NoError(t, err)
	f.slot = slot

	f.sessions = NewSessionService(f.sessionRepo, f.vehicleRepo, f.bookingRepo, f.lotRepo)
	f.svc = NewOccupancyService(f.slotRepo, f.sessions, f.publisher, 3, 3)
	return f
}

func (f *occupancyFixture) frame(at time.Time, vehicles ...domain.TrackedVehicle) domain.VisionFrameEvent {
	return domain.VisionFrameEvent{
		CameraID:     "cam-1",
		ParkingLotID: f.lot.ID,
		ObservedAt:   at,
		Vehicles:     vehicles,
	}
}

func inSlot(trackID int, plateText string) domain.TrackedVehicle {
	return domain.TrackedVehicle{
		TrackID:         trackID,
		Centroid:        geometry.Point{X: 50, Y: 50},
		PlateText:       plateText,
		PlateConfidence: 0.9,
	}
}

func outsideSlot(trackID int) domain.TrackedVehicle {
	return domain.TrackedVehicle{
		TrackID:  trackID,
		Centroid: geometry.Point{X: 500, Y: 500},
	}
}

func TestProcessFrameHysteresisOccupied(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()
	_, err := f.vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)

	at := time.Now().UTC()
	for i := 0; i < 2; i++ {
		require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, inSlot(1, "ABC123"))))
		at = at.Add(time.Second)
	}
	// Two consecutive detections are not enough.
	assert.Equal(t, domain.StatusAvailable, f.slotRepo.status(f.slot.ID))
	assert.Empty(t, f.publisher.all())

	require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, inSlot(1, "ABC123"))))
	assert.Equal(t, domain.StatusOccupied, f.slotRepo.status(f.slot.ID))

	events := f.publisher.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusOccupied, events[0].Status)

	session, err := f.sessionRepo.FindActiveBySlotID(ctx, f.slot.ID)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", session.LicensePlate)
	assert.Equal(t, domain.OriginWalkIn, session.Origin().Kind)
}

func TestProcessFrameFlickerRejected(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()
	at := time.Now().UTC()

	// occupied, occupied, empty, occupied, occupied: the gap resets the
	// counter, so no transition happens.
	sequence := []bool{true, true, false, true, true}
	for _, present := range sequence {
		frame := f.frame(at)
		if present {
			frame = f.frame(at, inSlot(1, "ABC123"))
		}
		require.NoError(t, f.svc.ProcessFrame(ctx, frame))
		at = at.Add(time.Second)
	}

	assert.Equal(t, domain.StatusAvailable, f.slotRepo.status(f.slot.ID))
	assert.Empty(t, f.publisher.all())
}

func TestProcessFrameDepartureClosesSession(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()
	_, err := f.vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)

	at := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, inSlot(1, "ABC123"))))
		at = at.Add(time.Second)
	}
	require.Equal(t, domain.StatusOccupied, f.slotRepo.status(f.slot.ID))

	// Vehicle leaves; three empty frames flip the slot back.
	departAt := at.Add(40 * time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(departAt)))
		departAt = departAt.Add(time.Second)
	}
	assert.Equal(t, domain.StatusAvailable, f.slotRepo.status(f.slot.ID))

	session, err := f.sessionRepo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, session.Status)
	assert.True(t, session.ParkingCost.Valid)
	assert.Greater(t, session.ParkingCost.Float64, 0.0)
}

func TestProcessFrameReservedSlotImmuneToWalkIn(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()
	require.NoError(t, f.slotRepo.UpdateStatusFrom(ctx, f.slot.ID,
		[]domain.SlotStatus{domain.StatusAvailable}, domain.StatusReserved, time.Now().UTC(), "booking_confirm"))

	// A registered vehicle without a booking squats in the reserved slot.
	_, err := f.vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 2, LicensePlate: "XYZ789"})
	require.NoError(t, err)

	at := time.Now().UTC()
	for i := 0; i < 6; i++ {
		require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, inSlot(1, "XYZ789"))))
		at = at.Add(time.Second)
	}

	assert.Equal(t, domain.StatusReserved, f.slotRepo.status(f.slot.ID))
	assert.Empty(t, f.publisher.all())
	_, err = f.sessionRepo.FindActiveBySlotID(ctx, f.slot.ID)
	assert.Error(t, err)
}

func TestProcessFrameBookedArrivalAtReservedSlot(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()
	require.NoError(t, f.slotRepo.UpdateStatusFrom(ctx, f.slot.ID,
		[]domain.SlotStatus{domain.StatusAvailable}, domain.StatusReserved, time.Now().UTC(), "booking_confirm"))

	_, err := f.vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)
	f.bookingRepo.put(domain.Booking{
		ID: 9, DriverID: 1, LicensePlate: "ABC123",
		ParkingSlotID: f.slot.ID, ParkingLotID: f.lot.ID,
		Status: domain.BookingConfirmed,
	})

	at := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, inSlot(1, "ABC123"))))
		at = at.Add(time.Second)
	}

	assert.Equal(t, domain.StatusOccupied, f.slotRepo.status(f.slot.ID))

	session, err := f.sessionRepo.FindActiveBySlotID(ctx, f.slot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OriginBooked, session.Origin().Kind)
	assert.Equal(t, 9, session.Origin().BookingID)
}

func TestProcessFrameVehicleOutsidePolygonIgnored(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()

	at := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, outsideSlot(1))))
		at = at.Add(time.Second)
	}
	assert.Equal(t, domain.StatusAvailable, f.slotRepo.status(f.slot.ID))
}

func TestProcessFrameUsesBestPlateAcrossFrames(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()
	_, err := f.vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)

	at := time.Now().UTC()
	// The plate is readable only on the first frame; the track carries it.
	require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, inSlot(1, "ABC123"))))
	at = at.Add(time.Second)
	require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, inSlot(1, ""))))
	at = at.Add(time.Second)
	require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, inSlot(1, ""))))

	session, err := f.sessionRepo.FindActiveBySlotID(ctx, f.slot.ID)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", session.LicensePlate)
}

func TestSyncSlotStatusResetsHysteresis(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()

	at := time.Now().UTC()
	// Two detections in, then the booking path marks the slot reserved.
	for i := 0; i < 2; i++ {
		require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, inSlot(1, "XYZ789"))))
		at = at.Add(time.Second)
	}
	require.NoError(t, f.slotRepo.UpdateStatusFrom(ctx, f.slot.ID,
		[]domain.SlotStatus{domain.StatusAvailable}, domain.StatusReserved, at, "booking_confirm"))
	f.svc.SyncSlotStatus(f.slot.ID, domain.StatusReserved)

	// The third detection must not complete the old available->occupied
	// window; the reconciler now tracks against the reserved baseline.
	require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, inSlot(1, "XYZ789"))))
	assert.Equal(t, domain.StatusReserved, f.slotRepo.status(f.slot.ID))
}

func TestSyncSlotGeofenceRegistersRuntimeSlot(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()
	_, err := f.vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)

	// The consumer has already seen this lot, so the lot snapshot is cached.
	at := time.Now().UTC()
	require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at)))

	// A slot added afterwards must still become visible to the reconciler.
	added, err := f.slotRepo.Create(ctx, &domain.ParkingSlot{
		ParkingLotID: f.lot.ID,
		SlotNumber:   "A2",
		Status:       domain.StatusAvailable,
		Polygon: geometry.Polygon{
			{X: 200, Y: 200}, {X: 300, Y: 200}, {X: 300, Y: 300}, {X: 200, Y: 300},
		},
	})
	require.NoError(t, err)
	f.svc.SyncSlotGeofence(added)

	vehicle := domain.TrackedVehicle{
		TrackID:         7,
		Centroid:        geometry.Point{X: 250, Y: 250},
		PlateText:       "ABC123",
		PlateConfidence: 0.9,
	}
	for i := 0; i < 3; i++ {
		at = at.Add(time.Second)
		require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, vehicle)))
	}
	assert.Equal(t, domain.StatusOccupied, f.slotRepo.status(added.ID))
}

func TestProcessFrameDepartureLostWriteKeepsSession(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()
	_, err := f.vehicleRepo.Create(ctx, &domain.Vehicle{DriverID: 1, LicensePlate: "ABC123"})
	require.NoError(t, err)

	at := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, inSlot(1, "ABC123"))))
		at = at.Add(time.Second)
	}
	require.Equal(t, domain.StatusOccupied, f.slotRepo.status(f.slot.ID))

	// An operator takes the slot out of service behind the reconciler's
	// back. The occupied->available write must lose, and a session closed
	// on that losing path would bill a car the store says is still there.
	require.NoError(t, f.slotRepo.UpdateStatusFrom(ctx, f.slot.ID,
		[]domain.SlotStatus{domain.StatusOccupied}, domain.StatusUnavailable, at, "operator"))

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at)))
		at = at.Add(time.Second)
	}

	assert.Equal(t, domain.StatusUnavailable, f.slotRepo.status(f.slot.ID))
	session, err := f.sessionRepo.FindActiveBySlotID(ctx, f.slot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, session.Status)
}

func TestProcessFrameUnavailableSlotNeverWritten(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()
	require.NoError(t, f.slotRepo.UpdateStatusFrom(ctx, f.slot.ID,
		[]domain.SlotStatus{domain.StatusAvailable}, domain.StatusUnavailable, time.Now().UTC(), "operator"))

	at := time.Now().UTC()
	for i := 0; i < 6; i++ {
		require.NoError(t, f.svc.ProcessFrame(ctx, f.frame(at, inSlot(1, "ABC123"))))
		at = at.Add(time.Second)
	}
	assert.Equal(t, domain.StatusUnavailable, f.slotRepo.status(f.slot.ID))
	assert.Empty(t, f.publisher.all())
}
