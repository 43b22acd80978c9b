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

// pgSlotStateStore serializes transitions with a row lock on the slot and
// always locks slot before lot, so concurrent transitions cannot deadlock.
type pgSlotStateStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPgSlotStateStore(db *sql.DB) repository.SlotStateStore {
	return &pgSlotStateStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *pgSlotStateStore) ApplyTransition(ctx context.Context, slotID int, upd domain.SlotUpdate, decide repository.TransitionFunc) (*domain.SlotTransition, error) {
	var result *domain.SlotTransition
	var rejected error
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		before, err := scanSlot(tx.QueryRowContext(ctx,
			`SELECT `+slotColumns+` FROM parking_slots WHERE id = $1 FOR UPDATE`, slotID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repository.ErrNotFound
			}
			return err
		}

		delta, err := decide(before)
		if err != nil {
			rejected = err
			return err
		}

		after := before.Apply(upd, s.now())
		vehicleID, entryTime, plate := vehicleArgs(after.VehicleEntry)
		_, err = tx.ExecContext(ctx, `UPDATE parking_slots
	           SET status = $1, confidence = $2, vehicle_id = $3, vehicle_entry_time = $4, license_plate = $5,
	               last_update_source = $6, updated_at = $7
	           WHERE id = $8`,
			after.Status, after.Confidence, vehicleID, entryTime, plate,
			null.NewString(after.LastUpdateSource, after.LastUpdateSource != ""), after.UpdatedAt, slotID)
		if err != nil {
			return err
		}

		lot, err := adjustLotCounter(ctx, tx, before.LotID, delta)
		if err != nil {
			return err
		}
		result = &domain.SlotTransition{Before: *before, After: after, Update: upd, Delta: delta, Lot: *lot}
		return nil
	})
	if rejected != nil {
		return nil, rejected
	}
	if err != nil {
		if isStoreError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("SlotStateStore.ApplyTransition: %w", err)
	}
	return result, nil
}

func (s *pgSlotStateStore) AdjustLotCounter(ctx context.Context, lotID int, delta int) error {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := adjustLotCounter(ctx, tx, lotID, delta)
		return err
	})
	if err != nil {
		if isStoreError(err) {
			return err
		}
		return fmt.Errorf("SlotStateStore.AdjustLotCounter: %w", err)
	}
	return nil
}

func (s *pgSlotStateStore) RecountAvailable(ctx context.Context, lotID int) (before, after int, err error) {
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		lot, err := findLot(ctx, tx, lotID, true)
		if err != nil {
			return err
		}
		before = lot.AvailableSlots
		return tx.QueryRowContext(ctx, `UPDATE parking_lots
	           SET available_slots = c.available, total_slots = c.total, updated_at = CURRENT_TIMESTAMP
	           FROM (SELECT COUNT(*) FILTER (WHERE status = 'available') AS available, COUNT(*) AS total
	                 FROM parking_slots WHERE lot_id = $1) c
	           WHERE id = $1
	           RETURNING available_slots`, lotID).Scan(&after)
	})
	if err != nil {
		if isStoreError(err) {
			return 0, 0, err
		}
		return 0, 0, fmt.Errorf("SlotStateStore.RecountAvailable: %w", err)
	}
	return before, after, nil
}

// adjustLotCounter applies delta only when the result stays within
// [0, total_slots] and returns the lot as it is after the write.
func adjustLotCounter(ctx context.Context, tx *sql.Tx, lotID, delta int) (*domain.ParkingLot, error) {
	if delta == 0 {
		return findLot(ctx, tx, lotID, false)
	}
	lot, err := scanLot(tx.QueryRowContext(ctx, `UPDATE parking_lots
	           SET available_slots = available_slots + $1, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $2 AND available_slots + $1 BETWEEN 0 AND total_slots
	           RETURNING `+lotColumns, delta, lotID))
	if err == nil {
		return lot, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if _, err := findLot(ctx, tx, lotID, false); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: lot %d delta %+d", repository.ErrCounterOutOfRange, lotID, delta)
}

func isStoreError(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrCounterOutOfRange)
}
