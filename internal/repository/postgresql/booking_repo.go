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

type pgBookingRepository struct {
	db *sql.DB
}

func NewPgBookingRepository(db *sql.DB) repository.BookingRepository {
	return &pgBookingRepository{db: db}
}

const bookingColumns = `id, driver_id, license_plate, parking_slot_id, parking_lot_id, status, booked_at, expires_at, confirmed_at, canceled_at`

func scanBooking(row interface{ Scan(...any) error }) (*domain.Booking, error) {
	b := &domain.Booking{}
	if err := row.Scan(&b.ID, &b.DriverID, &b.LicensePlate, &b.ParkingSlotID, &b.ParkingLotID,
		&b.Status, &b.BookedAt, &b.ExpiresAt, &b.ConfirmedAt, &b.CanceledAt); err != nil {
		return nil, err
	}
	b.BookedAt = b.BookedAt.In(time.UTC)
	if b.ExpiresAt.Valid {
		b.ExpiresAt.Time = b.ExpiresAt.Time.In(time.UTC)
	}
	if b.ConfirmedAt.Valid {
		b.ConfirmedAt.Time = b.ConfirmedAt.Time.In(time.UTC)
	}
	if b.CanceledAt.Valid {
		b.CanceledAt.Time = b.CanceledAt.Time.In(time.UTC)
	}
	return b, nil
}

func (r *pgBookingRepository) Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	query := `INSERT INTO bookings (driver_id, license_plate, parking_slot_id, parking_lot_id, status, booked_at, expires_at)
	           VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, $6)
	           RETURNING id, booked_at`
	err := r.db.QueryRowContext(ctx, query,
		booking.DriverID, booking.LicensePlate, booking.ParkingSlotID, booking.ParkingLotID,
		booking.Status, booking.ExpiresAt,
	).Scan(&booking.ID, &booking.BookedAt)
	if err != nil {
		// bookings_one_active_per_slot is a partial unique index over
		// non-terminal statuses; it rejects the loser when two initiates
		// race past a degraded (fail-open) lock.
		if isUniqueViolation(err, "bookings_one_active_per_slot") {
			return nil, fmt.Errorf("%w: slot %d already has an active booking", repository.ErrDuplicateEntry, booking.ParkingSlotID)
		}
		return nil, fmt.Errorf("BookingRepository.Create: %w", err)
	}
	booking.BookedAt = booking.BookedAt.In(time.UTC)
	return booking, nil
}

func (r *pgBookingRepository) FindByID(ctx context.Context, id int) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("BookingRepository.FindByID: %w", err)
	}
	return b, nil
}

func (r *pgBookingRepository) FindByIDAndDriver(ctx context.Context, id, driverID int) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 AND driver_id = $2`
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, id, driverID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("BookingRepository.FindByIDAndDriver: %w", err)
	}
	return b, nil
}

func (r *pgBookingRepository) FindNonTerminalBySlotID(ctx context.Context, slotID int) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	           WHERE parking_slot_id = $1 AND status = ANY($2)
	           ORDER BY booked_at DESC LIMIT 1`
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, slotID, pq.Array(statusStrings(domain.NonTerminalBookingStatuses))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("BookingRepository.FindNonTerminalBySlotID: %w", err)
	}
	return b, nil
}

func (r *pgBookingRepository) FindConfirmedByPlateAndSlot(ctx context.Context, normalizedPlate string, slotID int) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	           WHERE license_plate = $1 AND parking_slot_id = $2 AND status = $3
	           ORDER BY booked_at DESC LIMIT 1`
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, normalizedPlate, slotID, domain.BookingConfirmed))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("BookingRepository.FindConfirmedByPlateAndSlot: %w", err)
	}
	return b, nil
}

func (r *pgBookingRepository) FindByDriver(ctx context.Context, driverID int, status *domain.BookingStatus) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE driver_id = $1`
	args := []any{driverID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY booked_at DESC`
	return r.queryBookings(ctx, query, args...)
}

func (r *pgBookingRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	           WHERE status = ANY($1) AND expires_at IS NOT NULL AND expires_at < $2
	           ORDER BY expires_at`
	return r.queryBookings(ctx, query, pq.Array(statusStrings(domain.PendingBookingStatuses)), now)
}

func (r *pgBookingRepository) Update(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	query := `UPDATE bookings
	           SET status = $1, expires_at = $2, confirmed_at = $3, canceled_at = $4
	           WHERE id = $5`
	result, err := r.db.ExecContext(ctx, query,
		booking.Status, booking.ExpiresAt, booking.ConfirmedAt, booking.CanceledAt, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("BookingRepository.Update: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("BookingRepository.Update (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return nil, repository.ErrNotFound
	}
	return booking, nil
}

func (r *pgBookingRepository) queryBookings(ctx context.Context, query string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("BookingRepository query: %w", err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("BookingRepository query (scanning row): %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("BookingRepository query (rows error): %w", err)
	}
	return bookings, nil
}

func statusStrings(statuses []domain.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
