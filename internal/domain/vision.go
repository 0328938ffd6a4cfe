package domain

import (
	"time"

	"github.com/adith23/parking-automation-app/internal/geometry"
)

// TrackedVehicle is one vehicle reported by the external vision pipeline for
// a single frame: where its centroid is and the best plate read so far for
// that track, if any.
type TrackedVehicle struct {
	TrackID         int            `json:"track_id"`
	Centroid        geometry.Point `json:"centroid"`
	PlateText       string         `json:"plate_text,omitempty"`
	PlateConfidence float64        `json:"plate_confidence,omitempty"`
}

// VisionFrameEvent is the per-frame output contract of the vision pipeline.
// Frames for one camera arrive strictly in order; the upstream pipeline is
// sequential per camera.
type VisionFrameEvent struct {
	CameraID     string           `json:"camera_id"`
	ParkingLotID int              `json:"parking_lot_id"`
	ObservedAt   time.Time        `json:"observed_at"`
	Vehicles     []TrackedVehicle `json:"vehicles"`
}

// SlotStatusChangeEvent is published on the availability channel whenever a
// slot's status flips. Consumers recompute lot-level availability from it.
type SlotStatusChangeEvent struct {
	SlotID       int        `json:"slot_id"`
	ParkingLotID int        `json:"parking_lot_id"`
	Status       SlotStatus `json:"status"`
	ObservedAt   time.Time  `json:"observed_at"`
}

type LPRRequestDTO struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
}

type LPRResponseDTO struct {
	DetectedPlate string  `json:"detected_plate"`
	Confidence    float32 `json:"confidence,omitempty"`
	ErrorMessage  string  `json:"error_message,omitempty"`
}
