package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/repository"
)

type pgVehicleRepository struct {
	db *sql.DB
}

func NewPgVehicleRepository(db *sql.DB) repository.VehicleRepository {
	return &pgVehicleRepository{db: db}
}

const vehicleColumns = `id, driver_id, license_plate, make, model, color, created_at`

func scanVehicle(row interface{ Scan(...any) error }) (*domain.Vehicle, error) {
	v := &domain.Vehicle{}
	var make, model, color sql.NullString
	if err := row.Scan(&v.ID, &v.DriverID, &v.LicensePlate, &make, &model, &color, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Make = make.String
	v.Model = model.String
	v.Color = color.String
	v.CreatedAt = v.CreatedAt.In(time.UTC)
	return v, nil
}

func (r *pgVehicleRepository) Create(ctx context.Context, vehicle *domain.Vehicle) (*domain.Vehicle, error) {
	query := `INSERT INTO vehicles (driver_id, license_plate, make, model, color, created_at)
	           VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
	           RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		vehicle.DriverID, vehicle.LicensePlate,
		sql.NullString{String: vehicle.Make, Valid: vehicle.Make != ""},
		sql.NullString{String: vehicle.Model, Valid: vehicle.Model != ""},
		sql.NullString{String: vehicle.Color, Valid: vehicle.Color != ""},
	).Scan(&vehicle.ID, &vehicle.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "vehicles_driver_id_license_plate_key") {
			return nil, fmt.Errorf("%w: plate '%s' is already registered for this driver", repository.ErrDuplicateEntry, vehicle.LicensePlate)
		}
		return nil, fmt.Errorf("VehicleRepository.Create: %w", err)
	}
	vehicle.CreatedAt = vehicle.CreatedAt.In(time.UTC)
	return vehicle, nil
}

func (r *pgVehicleRepository) FindByPlate(ctx context.Context, normalizedPlate string) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE license_plate = $1 LIMIT 1`
	v, err := scanVehicle(r.db.QueryRowContext(ctx, query, normalizedPlate))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("VehicleRepository.FindByPlate: %w", err)
	}
	return v, nil
}

func (r *pgVehicleRepository) FindByPlateAndDriver(ctx context.Context, normalizedPlate string, driverID int) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE license_plate = $1 AND driver_id = $2 LIMIT 1`
	v, err := scanVehicle(r.db.QueryRowContext(ctx, query, normalizedPlate, driverID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("VehicleRepository.FindByPlateAndDriver: %w", err)
	}
	return v, nil
}

func (r *pgVehicleRepository) FindByDriverID(ctx context.Context, driverID int) ([]domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE driver_id = $1 ORDER BY created_at`
	return r.queryVehicles(ctx, query, driverID)
}

func (r *pgVehicleRepository) FindAll(ctx context.Context) ([]domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles ORDER BY id`
	return r.queryVehicles(ctx, query)
}

func (r *pgVehicleRepository) queryVehicles(ctx context.Context, query string, args ...any) ([]domain.Vehicle, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("VehicleRepository query: %w", err)
	}
	defer rows.Close()

	var vehicles []domain.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("VehicleRepository query (scanning row): %w", err)
		}
		vehicles = append(vehicles, *v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("VehicleRepository query (rows error): %w", err)
	}
	return vehicles, nil
}
