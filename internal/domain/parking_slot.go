package domain

import (
	"time"

	"github.com/adith23/parking-automation-app/internal/geometry"
)

type SlotStatus string

const (
	StatusAvailable   SlotStatus = "available"
	StatusOccupied    SlotStatus = "occupied"
	StatusReserved    SlotStatus = "reserved"
	StatusUnavailable SlotStatus = "unavailable"
)

func ValidSlotStatus(s SlotStatus) bool {
	switch s {
	case StatusAvailable, StatusOccupied, StatusReserved, StatusUnavailable:
		return true
	}
	return false
}

type ParkingSlot struct {
	ID                     int              `json:"id"`
	ParkingLotID           int              `json:"parking_lot_id"`
	SlotNumber             string           `json:"slot_number"`
	Polygon                geometry.Polygon `json:"polygon,omitempty"`
	Status                 SlotStatus       `json:"status"`
	LastStatusUpdateSource string           `json:"last_status_update_source,omitempty"`
	LastUpdatedAt          time.Time        `json:"last_updated_at"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

type ParkingSlotDTO struct {
	ParkingLotID int              `json:"parking_lot_id"`
	SlotNumber   string           `json:"slot_number" binding:"required"`
	Polygon      geometry.Polygon `json:"polygon"`
	Status       string           `json:"status,omitempty"`
}
