package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

const lotColumns = `id, name, address, latitude, longitude, total_slots, available_slots,
	traffic_condition, hourly_rate, currency, status, created_at, updated_at`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type pgParkingLotRepository struct {
	db *sql.DB
}

func NewPgParkingLotRepository(db *sql.DB) repository.ParkingLotRepository {
	return &pgParkingLotRepository{db: db}
}

func scanLot(row interface{ Scan(...any) error }) (*domain.ParkingLot, error) {
	var lot domain.ParkingLot
	err := row.Scan(&lot.ID, &lot.Name, &lot.Address, &lot.Latitude, &lot.Longitude, &lot.TotalSlots, &lot.AvailableSlots,
		&lot.TrafficCondition, &lot.HourlyRate, &lot.Currency, &lot.Status, &lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		return nil, err
	}
	lot.CreatedAt = lot.CreatedAt.In(time.UTC)
	lot.UpdatedAt = lot.UpdatedAt.In(time.UTC)
	return &lot, nil
}

func findLot(ctx context.Context, q queryer, id int, forUpdate bool) (*domain.ParkingLot, error) {
	query := `SELECT ` + lotColumns + ` FROM parking_lots WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	lot, err := scanLot(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return lot, nil
}

func (r *pgParkingLotRepository) Create(ctx context.Context, lot *domain.ParkingLot, slotNumbers []string) (*domain.ParkingLot, error) {
	var created *domain.ParkingLot
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `INSERT INTO parking_lots (name, address, latitude, longitude, total_slots, available_slots,
	                                   traffic_condition, hourly_rate, currency, status)
	           VALUES ($1, $2, $3, $4, $5, $5, $6, $7, $8, $9)
	           RETURNING ` + lotColumns
		var err error
		created, err = scanLot(tx.QueryRowContext(ctx, query,
			lot.Name, lot.Address, lot.Latitude, lot.Longitude, len(slotNumbers),
			lot.TrafficCondition, lot.HourlyRate, lot.Currency, lot.Status,
		))
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO parking_slots (lot_id, slot_number, status, confidence, last_update_source)
	           VALUES ($1, $2, 'available', 1, 'provisioning')`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, number := range slotNumbers {
			if _, err := stmt.ExecContext(ctx, created.ID, number); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: parking lot '%s' already exists", repository.ErrDuplicateEntry, lot.Name)
		}
		return nil, fmt.Errorf("ParkingLotRepository.Create: %w", err)
	}
	return created, nil
}

func (r *pgParkingLotRepository) FindByID(ctx context.Context, id int) (*domain.ParkingLot, error) {
	lot, err := findLot(ctx, r.db, id, false)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("ParkingLotRepository.FindByID: %w", err)
	}
	return lot, nil
}

func (r *pgParkingLotRepository) FindAll(ctx context.Context, filter domain.ParkingLotFilter) ([]domain.ParkingLot, error) {
	query := `SELECT ` + lotColumns + ` FROM parking_lots WHERE ($1 = '' OR status = $1) ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("ParkingLotRepository.FindAll: %w", err)
	}
	defer rows.Close()

	lots := []domain.ParkingLot{}
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("ParkingLotRepository.FindAll (scanning row): %w", err)
		}
		lots = append(lots, *lot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ParkingLotRepository.FindAll (rows error): %w", err)
	}
	return lots, nil
}

// Update writes descriptive fields only; the slot counters are left alone.
func (r *pgParkingLotRepository) Update(ctx context.Context, lot *domain.ParkingLot) (*domain.ParkingLot, error) {
	query := `UPDATE parking_lots
	           SET name = $1, address = $2, latitude = $3, longitude = $4, traffic_condition = $5,
	               hourly_rate = $6, currency = $7, status = $8, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $9
	           RETURNING ` + lotColumns
	updated, err := scanLot(r.db.QueryRowContext(ctx, query,
		lot.Name, lot.Address, lot.Latitude, lot.Longitude, lot.TrafficCondition,
		lot.HourlyRate, lot.Currency, lot.Status, lot.ID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: parking lot '%s' already exists", repository.ErrDuplicateEntry, lot.Name)
		}
		return nil, fmt.Errorf("ParkingLotRepository.Update: %w", err)
	}
	return updated, nil
}

func (r *pgParkingLotRepository) Delete(ctx context.Context, id int) error {
	query := `DELETE FROM parking_lots WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ParkingLotRepository.Delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ParkingLotRepository.Delete (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
