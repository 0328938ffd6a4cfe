package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/repository"
)

type pgParkingSessionRepository struct {
	db *sql.DB
}

func NewPgParkingSessionRepository(db *sql.DB) repository.ParkingSessionRepository {
	return &pgParkingSessionRepository{db: db}
}

const sessionColumns = `id, booking_id, vehicle_id, parking_slot_id, parking_lot_id, license_plate,
	                 start_time, end_time, status, total_duration_minutes, parking_cost, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*domain.ParkingSession, error) {
	s := &domain.ParkingSession{}
	if err := row.Scan(&s.ID, &s.BookingID, &s.VehicleID, &s.ParkingSlotID, &s.ParkingLotID, &s.LicensePlate,
		&s.StartTime, &s.EndTime, &s.Status, &s.TotalDurationMinutes, &s.ParkingCost, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.StartTime = s.StartTime.In(time.UTC)
	if s.EndTime.Valid {
		s.EndTime.Time = s.EndTime.Time.In(time.UTC)
	}
	s.CreatedAt = s.CreatedAt.In(time.UTC)
	s.UpdatedAt = s.UpdatedAt.In(time.UTC)
	return s, nil
}

func (r *pgParkingSessionRepository) Create(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error) {
	query := `INSERT INTO parking_sessions
	           (booking_id, vehicle_id, parking_slot_id, parking_lot_id, license_plate, start_time, status, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		session.BookingID, session.VehicleID, session.ParkingSlotID, session.ParkingLotID,
		session.LicensePlate, session.StartTime, session.Status,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		// parking_sessions_one_active_per_slot guards the at-most-one
		// active session per slot invariant at the storage level.
		if isUniqueViolation(err, "parking_sessions_one_active_per_slot") {
			return nil, fmt.Errorf("%w: slot %d already has an active session", repository.ErrDuplicateEntry, session.ParkingSlotID)
		}
		return nil, fmt.Errorf("ParkingSessionRepository.Create: %w", err)
	}
	session.CreatedAt = session.CreatedAt.In(time.UTC)
	session.UpdatedAt = session.UpdatedAt.In(time.UTC)
	return session, nil
}

func (r *pgParkingSessionRepository) FindByID(ctx context.Context, id int) (*domain.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions WHERE id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ParkingSessionRepository.FindByID: %w", err)
	}
	return s, nil
}

func (r *pgParkingSessionRepository) FindActiveBySlotID(ctx context.Context, slotID int) (*domain.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions
	           WHERE parking_slot_id = $1 AND status = $2
	           ORDER BY start_time DESC LIMIT 1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, slotID, domain.SessionActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoActiveSession
		}
		return nil, fmt.Errorf("ParkingSessionRepository.FindActiveBySlotID: %w", err)
	}
	return s, nil
}

func (r *pgParkingSessionRepository) FindActiveByPlate(ctx context.Context, normalizedPlate string) (*domain.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions
	           WHERE license_plate = $1 AND status = $2
	           ORDER BY start_time DESC LIMIT 1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, normalizedPlate, domain.SessionActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoActiveSession
		}
		return nil, fmt.Errorf("ParkingSessionRepository.FindActiveByPlate: %w", err)
	}
	return s, nil
}

func (r *pgParkingSessionRepository) FindByVehicleIDs(ctx context.Context, vehicleIDs []int, status *domain.ParkingSessionStatus) ([]domain.ParkingSession, error) {
	if len(vehicleIDs) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(vehicleIDs))
	for i, id := range vehicleIDs {
		ids[i] = int64(id)
	}
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions WHERE vehicle_id = ANY($1)`
	args := []any{pq.Array(ids)}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY start_time DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ParkingSessionRepository.FindByVehicleIDs: %w", err)
	}
	defer rows.Close()

	var sessions []domain.ParkingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("ParkingSessionRepository.FindByVehicleIDs (scanning row): %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ParkingSessionRepository.FindByVehicleIDs (rows error): %w", err)
	}
	return sessions, nil
}

func (r *pgParkingSessionRepository) Update(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error) {
	query := `UPDATE parking_sessions
	           SET end_time = $1, status = $2, total_duration_minutes = $3, parking_cost = $4, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $5
	           RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		session.EndTime, session.Status, session.TotalDurationMinutes, session.ParkingCost, session.ID,
	).Scan(&session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ParkingSessionRepository.Update: %w", err)
	}
	session.UpdatedAt = session.UpdatedAt.In(time.UTC)
	return session, nil
}
