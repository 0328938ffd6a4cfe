package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/events"
	"github.com/adith23/parking-automation-app/internal/geometry"
	"github.com/adith23/parking-automation-app/internal/repository"
)

const trackPlateRetention = 5 * time.Minute

// slotState is the reconciler's per-slot hysteresis state. occupiedCount and
// emptyCount are consecutive-frame counters; a status flip requires the
// relevant counter to reach the configured threshold, which filters
// single-frame detector flicker.
type slotState struct {
	slotID        int
	lotID         int
	polygon       geometry.Polygon
	baseline      domain.SlotStatus // last published status
	occupiedCount int
	emptyCount    int
}

// trackPlate remembers the best plate read seen so far for one vehicle
// track, so a slot transition can be attributed even when the deciding
// frame itself had no readable plate.
type trackPlate struct {
	text       string
	confidence float64
	lastSeen   time.Time
}

// OccupancyService reconciles vision frames into slot status. It owns every
// sensing-originated status write; reserved and unavailable slots are
// externally controlled and immune to vision override, except that a
// verified booking holder arriving at a reserved slot moves it to occupied.
type OccupancyService struct {
	slotRepo   repository.ParkingSlotRepository
	sessionSvc *SessionService
	publisher  events.StatusPublisher

	occupiedThreshold int
	emptyThreshold    int

	mu         sync.Mutex
	slots      map[int]*slotState // keyed by slot ID
	lotsLoaded map[int]bool
	plates     map[int]*trackPlate // keyed by track ID
}

func NewOccupancyService(
	slotRepo repository.ParkingSlotRepository,
	sessionSvc *SessionService,
	publisher events.StatusPublisher,
	occupiedThreshold, emptyThreshold int,
) *OccupancyService {
	if occupiedThreshold <= 0 {
		occupiedThreshold = 3
	}
	if emptyThreshold <= 0 {
		emptyThreshold = 3
	}
	return &OccupancyService{
		slotRepo:          slotRepo,
		sessionSvc:        sessionSvc,
		publisher:         publisher,
		occupiedThreshold: occupiedThreshold,
		emptyThreshold:    emptyThreshold,
		slots:             make(map[int]*slotState),
		lotsLoaded:        make(map[int]bool),
		plates:            make(map[int]*trackPlate),
	}
}

// ProcessFrame feeds one vision frame through the hysteresis state machine
// for every geofenced slot in the frame's lot. Frames for one camera arrive
// sequentially; the mutex only guards against concurrent baseline syncs
// from the booking path.
func (s *OccupancyService) ProcessFrame(ctx context.Context, frame domain.VisionFrameEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLotLoaded(ctx, frame.ParkingLotID); err != nil {
		return err
	}
	s.rememberPlates(frame)

	observedAt := frame.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	for _, state := range s.slots {
		if state.lotID != frame.ParkingLotID || len(state.polygon) < 3 {
			continue
		}
		insidePlates, occupied := s.observe(state, frame.Vehicles)
		s.advance(ctx, state, occupied, insidePlates, observedAt)
	}
	return nil
}

// SyncSlotStatus resets a slot's tracking baseline after a status change
// that did not come through the vision stream (confirm, cancel, sweep,
// operator update). Counters restart so the hysteresis window is honored
// from the new baseline.
func (s *OccupancyService) SyncSlotStatus(slotID int, status domain.SlotStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.slots[slotID]
	if !ok {
		return
	}
	state.baseline = status
	state.occupiedCount = 0
	state.emptyCount = 0
}

// SyncSlotGeofence registers a slot created after its lot was loaded, or
// refreshes the polygon of one the reconciler already tracks. Without this
// a slot added at runtime would be invisible to vision until restart.
func (s *OccupancyService) SyncSlotGeofence(slot *domain.ParkingSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.slots[slot.ID]
	if !ok {
		s.slots[slot.ID] = &slotState{
			slotID:   slot.ID,
			lotID:    slot.ParkingLotID,
			polygon:  slot.Polygon,
			baseline: slot.Status,
		}
		return
	}
	state.lotID = slot.ParkingLotID
	state.polygon = slot.Polygon
}

func (s *OccupancyService) observe(state *slotState, vehicles []domain.TrackedVehicle) ([]string, bool) {
	var insidePlates []string
	seen := make(map[string]bool)
	occupied := false
	for _, v := range vehicles {
		if !state.polygon.Contains(v.Centroid) {
			continue
		}
		occupied = true
		if best, ok := s.plates[v.TrackID]; ok && best.text != "" && !seen[best.text] {
			seen[best.text] = true
			insidePlates = append(insidePlates, best.text)
		}
	}
	return insidePlates, occupied
}

func (s *OccupancyService) advance(ctx context.Context, state *slotState, occupied bool, insidePlates []string, observedAt time.Time) {
	if occupied {
		state.occupiedCount++
		state.emptyCount = 0
	} else {
		state.emptyCount++
		state.occupiedCount = 0
	}

	switch state.baseline {
	case domain.StatusAvailable:
		if state.occupiedCount >= s.occupiedThreshold {
			s.transitionOccupied(ctx, state, insidePlates, observedAt)
		}
	case domain.StatusOccupied:
		if state.emptyCount >= s.emptyThreshold {
			s.transitionAvailable(ctx, state, observedAt)
		}
	case domain.StatusReserved:
		if state.occupiedCount >= s.occupiedThreshold {
			s.resolveReservedArrival(ctx, state, insidePlates, observedAt)
		}
	default:
		// unavailable: externally controlled, vision never writes it.
	}
}

func (s *OccupancyService) transitionOccupied(ctx context.Context, state *slotState, insidePlates []string, observedAt time.Time) {
	err := s.slotRepo.UpdateStatusFrom(ctx, state.slotID,
		[]domain.SlotStatus{domain.StatusAvailable}, domain.StatusOccupied, observedAt, "vision")
	if err != nil {
		s.handleWriteConflict(ctx, state, err)
		return
	}
	state.baseline = domain.StatusOccupied
	state.occupiedCount = 0
	s.publish(ctx, state, domain.StatusOccupied, observedAt)

	if _, err := s.sessionSvc.OnArrival(ctx, state.slotID, state.lotID, insidePlates, observedAt); err != nil {
		log.Printf("OccupancyService: error opening session for slot %d: %v", state.slotID, err)
	}
}

func (s *OccupancyService) transitionAvailable(ctx context.Context, state *slotState, observedAt time.Time) {
	// The conditional write must win before the session is billed: if
	// another writer took the slot meanwhile, closing the session here
	// would charge a car the authoritative state says is still parked.
	err := s.slotRepo.UpdateStatusFrom(ctx, state.slotID,
		[]domain.SlotStatus{domain.StatusOccupied}, domain.StatusAvailable, observedAt, "vision")
	if err != nil {
		s.handleWriteConflict(ctx, state, err)
		return
	}
	state.baseline = domain.StatusAvailable
	state.emptyCount = 0

	if _, err := s.sessionSvc.OnDeparture(ctx, state.slotID, observedAt); err != nil {
		log.Printf("OccupancyService: error closing session for slot %d: %v", state.slotID, err)
	}
	s.publish(ctx, state, domain.StatusAvailable, observedAt)
}

// resolveReservedArrival lets a reserved slot proceed into occupancy
// tracking only when one of the observed vehicles carries the plate of a
// confirmed booking for it. Anyone else parking in a reserved slot leaves
// the reservation intact.
func (s *OccupancyService) resolveReservedArrival(ctx context.Context, state *slotState, insidePlates []string, observedAt time.Time) {
	session, err := s.sessionSvc.OnBookedArrival(ctx, state.slotID, state.lotID, insidePlates, observedAt)
	if err != nil {
		log.Printf("OccupancyService: error resolving arrival at reserved slot %d: %v", state.slotID, err)
		return
	}
	if session == nil {
		// Not the booking holder. Restart the count so the check reruns
		// after another full confirmation window.
		state.occupiedCount = 0
		return
	}

	err = s.slotRepo.UpdateStatusFrom(ctx, state.slotID,
		[]domain.SlotStatus{domain.StatusReserved}, domain.StatusOccupied, observedAt, "vision")
	if err != nil {
		s.handleWriteConflict(ctx, state, err)
		return
	}
	state.baseline = domain.StatusOccupied
	state.occupiedCount = 0
	s.publish(ctx, state, domain.StatusOccupied, observedAt)
}

// handleWriteConflict refreshes the baseline from storage after a
// conditional update lost to another writer, so the state machine resumes
// from what actually happened instead of what it expected.
func (s *OccupancyService) handleWriteConflict(ctx context.Context, state *slotState, err error) {
	if !errors.Is(err, repository.ErrStaleStatus) && !errors.Is(err, repository.ErrNotFound) {
		log.Printf("OccupancyService: error persisting status for slot %d: %v", state.slotID, err)
		return
	}
	slot, ferr := s.slotRepo.FindByID(ctx, state.slotID)
	if ferr != nil {
		log.Printf("OccupancyService: error refreshing slot %d after write conflict: %v", state.slotID, ferr)
		delete(s.slots, state.slotID)
		return
	}
	state.baseline = slot.Status
	state.occupiedCount = 0
	state.emptyCount = 0
}

func (s *OccupancyService) publish(ctx context.Context, state *slotState, status domain.SlotStatus, observedAt time.Time) {
	log.Printf("OccupancyService: slot %d -> %s", state.slotID, status)
	if s.publisher == nil {
		return
	}
	s.publisher.PublishSlotStatus(ctx, domain.SlotStatusChangeEvent{
		SlotID:       state.slotID,
		ParkingLotID: state.lotID,
		Status:       status,
		ObservedAt:   observedAt,
	})
}

func (s *OccupancyService) ensureLotLoaded(ctx context.Context, lotID int) error {
	if s.lotsLoaded[lotID] {
		return nil
	}
	slots, err := s.slotRepo.FindByLotID(ctx, lotID)
	if err != nil {
		return fmt.Errorf("loading slots for lot %d: %w", lotID, err)
	}
	for i := range slots {
		slot := &slots[i]
		if _, exists := s.slots[slot.ID]; exists {
			continue
		}
		s.slots[slot.ID] = &slotState{
			slotID:   slot.ID,
			lotID:    slot.ParkingLotID,
			polygon:  slot.Polygon,
			baseline: slot.Status,
		}
	}
	s.lotsLoaded[lotID] = true
	return nil
}

func (s *OccupancyService) rememberPlates(frame domain.VisionFrameEvent) {
	now := frame.ObservedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	for _, v := range frame.Vehicles {
		best, ok := s.plates[v.TrackID]
		if !ok {
			best = &trackPlate{}
			s.plates[v.TrackID] = best
		}
		best.lastSeen = now
		if v.PlateText != "" && v.PlateConfidence >= best.confidence {
			best.text = v.PlateText
			best.confidence = v.PlateConfidence
		}
	}
	for trackID, best := range s.plates {
		if now.Sub(best.lastSeen) > trackPlateRetention {
			delete(s.plates, trackID)
		}
	}
}
