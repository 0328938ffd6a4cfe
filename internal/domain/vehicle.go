package domain

import "time"

type Vehicle struct {
	ID           int       `json:"id"`
	DriverID     int       `json:"driver_id"`
	LicensePlate string    `json:"license_plate"` // stored normalized
	Make         string    `json:"make,omitempty"`
	Model        string    `json:"model,omitempty"`
	Color        string    `json:"color,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type VehicleDTO struct {
	LicensePlate string `json:"license_plate" binding:"required"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	Color        string `json:"color"`
}
