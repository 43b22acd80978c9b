package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

const reservationColumns = `id, user_id, slot_id, lot_id, status, start_time, end_time, price, currency,
	payment_status, qr_code, cancelled_at, created_at, updated_at`

// openReservationStatuses are the statuses that hold a slot.
var openReservationStatuses = []string{
	string(domain.ReservationPending), string(domain.ReservationConfirmed), string(domain.ReservationActive),
}

type pgReservationRepository struct {
	db *sql.DB
}

func NewPgReservationRepository(db *sql.DB) repository.ReservationRepository {
	return &pgReservationRepository{db: db}
}

func scanReservation(row interface{ Scan(...any) error }, extra ...any) (*domain.Reservation, error) {
	var r domain.Reservation
	dest := []any{
		&r.ID, &r.UserID, &r.SlotID, &r.LotID, &r.Status, &r.StartTime, &r.EndTime, &r.Price, &r.Currency,
		&r.PaymentStatus, &r.QRCode, &r.CancelledAt, &r.CreatedAt, &r.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	r.StartTime = r.StartTime.In(time.UTC)
	r.EndTime = r.EndTime.In(time.UTC)
	r.CreatedAt = r.CreatedAt.In(time.UTC)
	r.UpdatedAt = r.UpdatedAt.In(time.UTC)
	return &r, nil
}

func (r *pgReservationRepository) Create(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error) {
	query := `INSERT INTO reservations (user_id, slot_id, lot_id, status, start_time, end_time, price, currency,
	                                   payment_status, qr_code)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	           RETURNING ` + reservationColumns
	created, err := scanReservation(r.db.QueryRowContext(ctx, query,
		res.UserID, res.SlotID, res.LotID, res.Status, res.StartTime, res.EndTime, res.Price, res.Currency,
		res.PaymentStatus, res.QRCode,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: reservation code already issued", repository.ErrDuplicateEntry)
		}
		return nil, fmt.Errorf("ReservationRepository.Create: %w", err)
	}
	return created, nil
}

func (r *pgReservationRepository) FindByID(ctx context.Context, id int) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ReservationRepository.FindByID: %w", err)
	}
	return res, nil
}

const reservationFilterWhere = `
	           WHERE ($1 = 0 OR user_id = $1) AND ($2 = '' OR status = $2)`

func (r *pgReservationRepository) Find(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, int, error) {
	page := filter.Paging.Normalize(domain.DefaultPageLimit)
	query := `SELECT ` + reservationColumns + `, COUNT(*) OVER ()
	           FROM reservations` + reservationFilterWhere + `
	           ORDER BY created_at DESC, id DESC
	           LIMIT $3 OFFSET $4`
	rows, err := r.db.QueryContext(ctx, query, filter.UserID, string(filter.Status), page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("ReservationRepository.Find: %w", err)
	}
	defer rows.Close()

	reservations := []domain.Reservation{}
	total := 0
	for rows.Next() {
		res, err := scanReservation(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("ReservationRepository.Find (scanning row): %w", err)
		}
		reservations = append(reservations, *res)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ReservationRepository.Find (rows error): %w", err)
	}
	if len(reservations) == 0 && page.Offset() > 0 {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations`+reservationFilterWhere,
			filter.UserID, string(filter.Status)).Scan(&total)
		if err != nil {
			return nil, 0, fmt.Errorf("ReservationRepository.Find (counting): %w", err)
		}
	}
	return reservations, total, nil
}

func (r *pgReservationRepository) FindOverlapping(ctx context.Context, slotID int, start, end time.Time) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
	           FROM reservations
	           WHERE slot_id = $1 AND status = ANY($2) AND start_time <= $4 AND end_time >= $3
	           ORDER BY start_time`
	statuses := []string{string(domain.ReservationConfirmed), string(domain.ReservationActive)}
	rows, err := r.db.QueryContext(ctx, query, slotID, pq.Array(statuses), start, end)
	if err != nil {
		return nil, fmt.Errorf("ReservationRepository.FindOverlapping: %w", err)
	}
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("ReservationRepository.FindOverlapping (scanning row): %w", err)
		}
		reservations = append(reservations, *res)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ReservationRepository.FindOverlapping (rows error): %w", err)
	}
	return reservations, nil
}

func (r *pgReservationRepository) Cancel(ctx context.Context, id int, at time.Time) (*domain.Reservation, error) {
	query := `UPDATE reservations
	           SET status = 'cancelled', cancelled_at = $2, payment_status = CASE WHEN payment_status = 'paid' THEN 'refunded' ELSE payment_status END,
	               updated_at = CURRENT_TIMESTAMP
	           WHERE id = $1 AND status = ANY($3)
	           RETURNING ` + reservationColumns
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, id, at, pq.Array(openReservationStatuses)))
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ReservationRepository.Cancel: %w", err)
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: reservation %d is already closed", repository.ErrConflict, id)
}

func (r *pgReservationRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ReservationRepository.Delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ReservationRepository.Delete (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgReservationRepository) CountOpenByLot(ctx context.Context, lotID int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE lot_id = $1 AND status = ANY($2)`,
		lotID, pq.Array(openReservationStatuses)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ReservationRepository.CountOpenByLot: %w", err)
	}
	return n, nil
}
