package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/events"
	"github.com/adith23/parking-automation-app/internal/plate"
	"github.com/adith23/parking-automation-app/internal/repository"
)

// ParkingService covers the administrative surface: lot and slot management
// and vehicle registration. Status changes made here flow through the same
// conditional-update and baseline-sync paths as the automated writers.
type ParkingService struct {
	lotRepo     repository.ParkingLotRepository
	slotRepo    repository.ParkingSlotRepository
	vehicleRepo repository.VehicleRepository
	publisher   events.StatusPublisher
	baseline    SlotBaselineSync
}

func NewParkingService(
	lotRepo repository.ParkingLotRepository,
	slotRepo repository.ParkingSlotRepository,
	vehicleRepo repository.VehicleRepository,
	publisher events.StatusPublisher,
	baseline SlotBaselineSync,
) *ParkingService {
	return &ParkingService{
		lotRepo:     lotRepo,
		slotRepo:    slotRepo,
		vehicleRepo: vehicleRepo,
		publisher:   publisher,
		baseline:    baseline,
	}
}

// --- ParkingLot ---

func (s *ParkingService) CreateParkingLot(ctx context.Context, dto domain.ParkingLotDTO) (*domain.ParkingLot, error) {
	lot := &domain.ParkingLot{
		Name:         dto.Name,
		Address:      dto.Address,
		TotalSlots:   dto.TotalSlots,
		PricePerHour: dto.PricePerHour,
		OpenTime:     dto.OpenTime,
		CloseTime:    dto.CloseTime,
		IsOpen:       true,
	}
	if lot.OpenTime == "" {
		lot.OpenTime = "00:00"
	}
	if lot.CloseTime == "" {
		lot.CloseTime = "23:59"
	}
	return s.lotRepo.Create(ctx, lot)
}

func (s *ParkingService) GetParkingLotByID(ctx context.Context, id int) (*domain.ParkingLot, error) {
	return s.lotRepo.FindByID(ctx, id)
}

func (s *ParkingService) GetAllParkingLots(ctx context.Context) ([]domain.ParkingLot, error) {
	return s.lotRepo.FindAll(ctx)
}

func (s *ParkingService) UpdateParkingLot(ctx context.Context, id int, dto domain.ParkingLotDTO) (*domain.ParkingLot, error) {
	lot, err := s.lotRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	lot.Name = dto.Name
	lot.Address = dto.Address
	lot.TotalSlots = dto.TotalSlots
	lot.PricePerHour = dto.PricePerHour
	if dto.OpenTime != "" {
		lot.OpenTime = dto.OpenTime
	}
	if dto.CloseTime != "" {
		lot.CloseTime = dto.CloseTime
	}
	return s.lotRepo.Update(ctx, lot)
}

// --- ParkingSlot ---

func (s *ParkingService) CreateParkingSlot(ctx context.Context, dto domain.ParkingSlotDTO) (*domain.ParkingSlot, error) {
	lot, err := s.lotRepo.FindByID(ctx, dto.ParkingLotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: parking lot %d does not exist", repository.ErrNotFound, dto.ParkingLotID)
		}
		return nil, fmt.Errorf("checking lot %d: %w", dto.ParkingLotID, err)
	}

	if lot.TotalSlots > 0 {
		current, err := s.slotRepo.FindByLotID(ctx, dto.ParkingLotID)
		if err != nil {
			return nil, fmt.Errorf("counting slots in lot %d: %w", dto.ParkingLotID, err)
		}
		if len(current) >= lot.TotalSlots {
			return nil, fmt.Errorf("lot %d already has its configured maximum of %d slots", lot.ID, lot.TotalSlots)
		}
	}

	status := domain.StatusAvailable
	if dto.Status != "" {
		status = domain.SlotStatus(dto.Status)
		if !domain.ValidSlotStatus(status) {
			return nil, fmt.Errorf("invalid slot status: %s", dto.Status)
		}
	}

	slot := &domain.ParkingSlot{
		ParkingLotID:           dto.ParkingLotID,
		SlotNumber:             dto.SlotNumber,
		Polygon:                dto.Polygon,
		Status:                 status,
		LastStatusUpdateSource: "admin_creation",
	}
	created, err := s.slotRepo.Create(ctx, slot)
	if err != nil {
		return nil, err
	}
	if s.baseline != nil {
		s.baseline.SyncSlotGeofence(created)
	}
	return created, nil
}

func (s *ParkingService) GetParkingSlotByID(ctx context.Context, slotID int) (*domain.ParkingSlot, error) {
	return s.slotRepo.FindByID(ctx, slotID)
}

func (s *ParkingService) GetSlotsByLotID(ctx context.Context, lotID int) ([]domain.ParkingSlot, error) {
	return s.slotRepo.FindByLotID(ctx, lotID)
}

func (s *ParkingService) UpdateParkingSlot(ctx context.Context, slotID int, dto domain.ParkingSlotDTO) (*domain.ParkingSlot, error) {
	slot, err := s.slotRepo.FindByID(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if dto.ParkingLotID != 0 && dto.ParkingLotID != slot.ParkingLotID {
		if _, err := s.lotRepo.FindByID(ctx, dto.ParkingLotID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: parking lot %d does not exist", repository.ErrNotFound, dto.ParkingLotID)
			}
			return nil, fmt.Errorf("checking lot %d: %w", dto.ParkingLotID, err)
		}
		slot.ParkingLotID = dto.ParkingLotID
	}
	if dto.SlotNumber != "" {
		slot.SlotNumber = dto.SlotNumber
	}
	if len(dto.Polygon) > 0 {
		slot.Polygon = dto.Polygon
	}

	statusChanged := false
	if dto.Status != "" && domain.SlotStatus(dto.Status) != slot.Status {
		status := domain.SlotStatus(dto.Status)
		if !domain.ValidSlotStatus(status) {
			return nil, fmt.Errorf("invalid slot status: %s", dto.Status)
		}
		slot.Status = status
		statusChanged = true
	}
	slot.LastStatusUpdateSource = "admin_update"

	updated, err := s.slotRepo.Update(ctx, slot)
	if err != nil {
		return nil, err
	}
	if s.baseline != nil {
		s.baseline.SyncSlotGeofence(updated)
	}
	if statusChanged {
		s.slotStatusChanged(ctx, updated, time.Now().UTC())
	}
	return updated, nil
}

// SetSlotStatus is the operator override for taking a slot out of service
// (or returning it). It goes through the conditional update so a concurrent
// automated write surfaces as a conflict instead of being clobbered.
func (s *ParkingService) SetSlotStatus(ctx context.Context, slotID int, status domain.SlotStatus) (*domain.ParkingSlot, error) {
	if !domain.ValidSlotStatus(status) {
		return nil, fmt.Errorf("invalid slot status: %s", status)
	}
	slot, err := s.slotRepo.FindByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Status == status {
		return slot, nil
	}
	now := time.Now().UTC()
	err = s.slotRepo.UpdateStatusFrom(ctx, slotID, []domain.SlotStatus{slot.Status}, status, now, "operator")
	if err != nil {
		return nil, err
	}
	slot.Status = status
	slot.LastStatusUpdateSource = "operator"
	slot.LastUpdatedAt = now
	s.slotStatusChanged(ctx, slot, now)
	return slot, nil
}

func (s *ParkingService) DeleteParkingSlot(ctx context.Context, slotID int) error {
	return s.slotRepo.Delete(ctx, slotID)
}

// --- Vehicle registration ---

func (s *ParkingService) RegisterVehicle(ctx context.Context, driverID int, dto domain.VehicleDTO) (*domain.Vehicle, error) {
	normalized := plate.Normalize(dto.LicensePlate)
	if normalized == "" {
		return nil, ErrInvalidPlate
	}
	vehicle := &domain.Vehicle{
		DriverID:     driverID,
		LicensePlate: normalized,
		Make:         dto.Make,
		Model:        dto.Model,
		Color:        dto.Color,
	}
	return s.vehicleRepo.Create(ctx, vehicle)
}

func (s *ParkingService) GetDriverVehicles(ctx context.Context, driverID int) ([]domain.Vehicle, error) {
	return s.vehicleRepo.FindByDriverID(ctx, driverID)
}

func (s *ParkingService) slotStatusChanged(ctx context.Context, slot *domain.ParkingSlot, at time.Time) {
	if s.baseline != nil {
		s.baseline.SyncSlotStatus(slot.ID, slot.Status)
	}
	if s.publisher != nil {
		s.publisher.PublishSlotStatus(ctx, domain.SlotStatusChangeEvent{
			SlotID:       slot.ID,
			ParkingLotID: slot.ParkingLotID,
			Status:       slot.Status,
			ObservedAt:   at,
		})
	}
}
