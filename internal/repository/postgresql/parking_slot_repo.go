package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gopkg.in/guregu/null.v4"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

const slotColumns = `id, lot_id, slot_number, status, confidence, vehicle_id, vehicle_entry_time,
	license_plate, last_update_source, created_at, updated_at`

type pgParkingSlotRepository struct {
	db *sql.DB
}

func NewPgParkingSlotRepository(db *sql.DB) repository.ParkingSlotRepository {
	return &pgParkingSlotRepository{db: db}
}

func scanSlot(row interface{ Scan(...any) error }, extra ...any) (*domain.ParkingSlot, error) {
	var slot domain.ParkingSlot
	var vehicleID, plate, source null.String
	var entryTime null.Time
	dest := []any{
		&slot.ID, &slot.LotID, &slot.SlotNumber, &slot.Status, &slot.Confidence,
		&vehicleID, &entryTime, &plate, &source, &slot.CreatedAt, &slot.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if vehicleID.Valid || plate.Valid || entryTime.Valid {
		slot.VehicleEntry = &domain.VehicleEntry{
			VehicleID:    vehicleID.String,
			EntryTime:    entryTime.Time.In(time.UTC),
			LicensePlate: plate.String,
		}
	}
	slot.LastUpdateSource = source.String
	slot.CreatedAt = slot.CreatedAt.In(time.UTC)
	slot.UpdatedAt = slot.UpdatedAt.In(time.UTC)
	return &slot, nil
}

// vehicleArgs flattens an optional vehicle entry into its three nullable columns.
func vehicleArgs(v *domain.VehicleEntry) (null.String, null.Time, null.String) {
	if v == nil {
		return null.String{}, null.Time{}, null.String{}
	}
	return null.NewString(v.VehicleID, v.VehicleID != ""),
		null.NewTime(v.EntryTime, !v.EntryTime.IsZero()),
		null.NewString(v.LicensePlate, v.LicensePlate != "")
}

func (r *pgParkingSlotRepository) Create(ctx context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error) {
	var created *domain.ParkingSlot
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := findLot(ctx, tx, slot.LotID, true); err != nil {
			return err
		}
		query := `INSERT INTO parking_slots (lot_id, slot_number, status, confidence, last_update_source)
	           VALUES ($1, $2, 'available', 1, $3)
	           RETURNING ` + slotColumns
		var err error
		created, err = scanSlot(tx.QueryRowContext(ctx, query,
			slot.LotID, slot.SlotNumber, null.NewString(slot.LastUpdateSource, slot.LastUpdateSource != ""),
		))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE parking_lots
	           SET total_slots = total_slots + 1, available_slots = available_slots + 1, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $1`, slot.LotID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: slot '%s' already exists in lot %d", repository.ErrDuplicateEntry, slot.SlotNumber, slot.LotID)
		}
		return nil, fmt.Errorf("ParkingSlotRepository.Create: %w", err)
	}
	return created, nil
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

const slotFilterWhere = `
	           WHERE lot_id = $1
	             AND ($2 = '' OR status = $2)
	             AND ($3::double precision IS NULL OR confidence >= $3)`

func (r *pgParkingSlotRepository) FindByLotID(ctx context.Context, lotID int, filter domain.SlotFilter) ([]domain.ParkingSlot, int, error) {
	page := filter.Paging.Normalize(domain.MaxPageLimit)
	query := `SELECT ` + slotColumns + `, COUNT(*) OVER ()
	           FROM parking_slots` + slotFilterWhere + `
	           ORDER BY slot_number
	           LIMIT $4 OFFSET $5`
	rows, err := r.db.QueryContext(ctx, query,
		lotID, string(filter.Status), null.FloatFromPtr(filter.MinConfidence), page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("ParkingSlotRepository.FindByLotID: %w", err)
	}
	defer rows.Close()

	slots := []domain.ParkingSlot{}
	total := 0
	for rows.Next() {
		slot, err := scanSlot(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("ParkingSlotRepository.FindByLotID (scanning row): %w", err)
		}
		slots = append(slots, *slot)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ParkingSlotRepository.FindByLotID (rows error): %w", err)
	}
	// a page past the end has no row to carry the window count
	if len(slots) == 0 && page.Offset() > 0 {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parking_slots`+slotFilterWhere,
			lotID, string(filter.Status), null.FloatFromPtr(filter.MinConfidence)).Scan(&total)
		if err != nil {
			return nil, 0, fmt.Errorf("ParkingSlotRepository.FindByLotID (counting): %w", err)
		}
	}
	return slots, total, nil
}
