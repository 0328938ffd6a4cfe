package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/geometry"
	"github.com/adith23/parking-automation-app/internal/repository"
)

type pgParkingSlotRepository struct {
	db *sql.DB
}

func NewPgParkingSlotRepository(db *sql.DB) repository.ParkingSlotRepository {
	return &pgParkingSlotRepository{db: db}
}

const slotColumns = `id, parking_lot_id, slot_number, polygon, status, last_status_update_source, last_updated_at, created_at, updated_at`

// Polygons are stored flattened as double precision[]: [x1,y1,x2,y2,...].
func flattenPolygon(p geometry.Polygon) []float64 {
	coords := make([]float64, 0, len(p)*2)
	for _, pt := range p {
		coords = append(coords, pt.X, pt.Y)
	}
	return coords
}

func unflattenPolygon(coords []float64) geometry.Polygon {
	if len(coords) < 2 {
		return nil
	}
	poly := make(geometry.Polygon, 0, len(coords)/2)
	for i := 0; i+1 < len(coords); i += 2 {
		poly = append(poly, geometry.Point{X: coords[i], Y: coords[i+1]})
	}
	return poly
}

func scanSlot(row interface{ Scan(...any) error }) (*domain.ParkingSlot, error) {
	slot := &domain.ParkingSlot{}
	var source sql.NullString
	var coords pq.Float64Array
	if err := row.Scan(&slot.ID, &slot.ParkingLotID, &slot.SlotNumber, &coords, &slot.Status,
		&source, &slot.LastUpdatedAt, &slot.CreatedAt, &slot.UpdatedAt); err != nil {
		return nil, err
	}
	slot.Polygon = unflattenPolygon(coords)
	slot.LastStatusUpdateSource = source.String
	slot.LastUpdatedAt = slot.LastUpdatedAt.In(time.UTC)
	slot.CreatedAt = slot.CreatedAt.In(time.UTC)
	slot.UpdatedAt = slot.UpdatedAt.In(time.UTC)
	return slot, nil
}

func (r *pgParkingSlotRepository) Create(ctx context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error) {
	query := `INSERT INTO parking_slots (parking_lot_id, slot_number, polygon, status, last_status_update_source, last_updated_at, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, last_updated_at, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		slot.ParkingLotID, slot.SlotNumber, pq.Array(flattenPolygon(slot.Polygon)), slot.Status,
		sql.NullString{String: slot.LastStatusUpdateSource, Valid: slot.LastStatusUpdateSource != ""},
	).Scan(&slot.ID, &slot.LastUpdatedAt, &slot.CreatedAt, &slot.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "parking_slots_parking_lot_id_slot_number_key") {
			return nil, fmt.Errorf("%w: slot '%s' already exists in lot %d", repository.ErrDuplicateEntry, slot.SlotNumber, slot.ParkingLotID)
		}
		return nil, fmt.Errorf("ParkingSlotRepository.Create: %w", err)
	}
	slot.LastUpdatedAt = slot.LastUpdatedAt.In(time.UTC)
	slot.CreatedAt = slot.CreatedAt.In(time.UTC)
	slot.UpdatedAt = slot.UpdatedAt.In(time.UTC)
	return slot, nil
}

func (r *pgParkingSlotRepository) FindByID(ctx context.Context, id int) (*domain.ParkingSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM parking_slots WHERE id = $1`
	slot, err := scanSlot(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ParkingSlotRepository.FindByID: %w", err)
	}
	return slot, nil
}

func (r *pgParkingSlotRepository) FindByLotID(ctx context.Context, lotID int) ([]domain.ParkingSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM parking_slots WHERE parking_lot_id = $1 ORDER BY slot_number`
	return r.querySlots(ctx, query, lotID)
}

func (r *pgParkingSlotRepository) FindAll(ctx context.Context) ([]domain.ParkingSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM parking_slots ORDER BY id`
	return r.querySlots(ctx, query)
}

func (r *pgParkingSlotRepository) querySlots(ctx context.Context, query string, args ...any) ([]domain.ParkingSlot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ParkingSlotRepository query: %w", err)
	}
	defer rows.Close()

	var slots []domain.ParkingSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("ParkingSlotRepository query (scanning row): %w", err)
		}
		slots = append(slots, *slot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ParkingSlotRepository query (rows error): %w", err)
	}
	return slots, nil
}

func (r *pgParkingSlotRepository) Update(ctx context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error) {
	query := `UPDATE parking_slots
	           SET parking_lot_id = $1, slot_number = $2, polygon = $3, status = $4,
	               last_status_update_source = $5, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $6
	           RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		slot.ParkingLotID, slot.SlotNumber, pq.Array(flattenPolygon(slot.Polygon)), slot.Status,
		sql.NullString{String: slot.LastStatusUpdateSource, Valid: slot.LastStatusUpdateSource != ""},
		slot.ID,
	).Scan(&slot.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		if isUniqueViolation(err, "parking_slots_parking_lot_id_slot_number_key") {
			return nil, fmt.Errorf("%w: slot '%s' already exists in lot %d", repository.ErrDuplicateEntry, slot.SlotNumber, slot.ParkingLotID)
		}
		return nil, fmt.Errorf("ParkingSlotRepository.Update: %w", err)
	}
	slot.UpdatedAt = slot.UpdatedAt.In(time.UTC)
	return slot, nil
}

func (r *pgParkingSlotRepository) UpdateStatusFrom(ctx context.Context, id int, expected []domain.SlotStatus, to domain.SlotStatus, observedAt time.Time, source string) error {
	expectedStrs := make([]string, len(expected))
	for i, s := range expected {
		expectedStrs[i] = string(s)
	}
	query := `UPDATE parking_slots
	           SET status = $1, last_updated_at = $2, last_status_update_source = $3, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $4 AND status = ANY($5)`
	result, err := r.db.ExecContext(ctx, query, to, observedAt,
		sql.NullString{String: source, Valid: source != ""},
		id, pq.Array(expectedStrs))
	if err != nil {
		return fmt.Errorf("ParkingSlotRepository.UpdateStatusFrom: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ParkingSlotRepository.UpdateStatusFrom (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		// Either the slot is gone or another writer got there first.
		if _, findErr := r.FindByID(ctx, id); errors.Is(findErr, repository.ErrNotFound) {
			return repository.ErrNotFound
		}
		return repository.ErrStaleStatus
	}
	return nil
}

func (r *pgParkingSlotRepository) Delete(ctx context.Context, id int) error {
	query := `DELETE FROM parking_slots WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ParkingSlotRepository.Delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ParkingSlotRepository.Delete (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
