package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

func window(hours int) (time.Time, time.Time) {
	start := time.Now().UTC().Add(time.Hour).Truncate(time.Minute)
	return start, start.Add(time.Duration(hours) * time.Hour)
}

func TestPrice(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, 9.0, Price(start, start.Add(3*time.Hour), 3.0))
	assert.Equal(t, 1.25, Price(start, start.Add(30*time.Minute), 2.5))
}

func TestReserveThenCancelRestoresSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot, slots := f.lotWithSlots(t, "Central", 3)
	user := domain.Principal{UserID: 7, Role: domain.RoleUser}
	start, end := window(2)

	res, err := f.reservations.Create(ctx, user, domain.CreateReservationDTO{SlotID: slots[0].ID, StartTime: start, EndTime: end})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, res.Status)
	assert.Equal(t, domain.PaymentPending, res.PaymentStatus)
	assert.Equal(t, 6.0, res.Price)
	assert.NotEmpty(t, res.QRCode)
	assert.Equal(t, 2, f.lot(t, lot.ID).AvailableSlots)

	slot, err := f.store.Slots().FindByID(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, slot.Status)

	f.hub.reset()
	cancelled, err := f.reservations.Cancel(ctx, user, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, cancelled.Status)
	assert.True(t, cancelled.CancelledAt.Valid)

	slot, err = f.store.Slots().FindByID(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailable, slot.Status)
	assert.Equal(t, 3, f.lot(t, lot.ID).AvailableSlots)

	sent := f.hub.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, domain.FrameSlotUpdated, sent[0].Event)
	assert.Equal(t, 1, sent[1].Data.(domain.LotAvailabilityEvent).Delta)

	_, err = f.reservations.Cancel(ctx, user, res.ID)
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestCancelKeepsReservationOpenWhenReleaseFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot, slots := f.lotWithSlots(t, "Kiosk", 1)
	user := domain.Principal{UserID: 4, Role: domain.RoleUser}
	start, end := window(1)

	res, err := f.reservations.Create(ctx, user, domain.CreateReservationDTO{SlotID: slots[0].ID, StartTime: start, EndTime: end})
	require.NoError(t, err)

	// drifted counter: releasing the slot would push it past total_slots
	f.store.CorruptAvailable(lot.ID, 1)
	_, err = f.reservations.Cancel(ctx, user, res.ID)
	require.ErrorIs(t, err, repository.ErrCounterOutOfRange)

	still, err := f.reservations.Get(ctx, user, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, still.Status)
	slot, err := f.store.Slots().FindByID(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, slot.Status)

	_, err = f.reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, f.lot(t, lot.ID).AvailableSlots)

	cancelled, err := f.reservations.Cancel(ctx, user, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, cancelled.Status)
	slot, err = f.store.Slots().FindByID(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailable, slot.Status)
	assert.Equal(t, 1, f.lot(t, lot.ID).AvailableSlots)
}

func TestReserveRejectsBusySlotAndBadWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, slots := f.lotWithSlots(t, "Central", 2)
	user := domain.Principal{UserID: 1, Role: domain.RoleUser}
	start, end := window(1)

	f.setStatus(t, slots[0].ID, domain.StatusOccupied)
	_, err := f.reservations.Create(ctx, user, domain.CreateReservationDTO{SlotID: slots[0].ID, StartTime: start, EndTime: end})
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = f.reservations.Create(ctx, user, domain.CreateReservationDTO{SlotID: slots[1].ID, StartTime: end, EndTime: start})
	assert.ErrorIs(t, err, ErrInvalidInput)

	past := time.Now().UTC().Add(-3 * time.Hour)
	_, err = f.reservations.Create(ctx, user, domain.CreateReservationDTO{SlotID: slots[1].ID, StartTime: past, EndTime: past.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.reservations.Create(ctx, user, domain.CreateReservationDTO{SlotID: 999, StartTime: start, EndTime: end})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestConcurrentReservationsOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot, slots := f.lotWithSlots(t, "Central", 1)
	start, end := window(1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(uid int) {
			defer wg.Done()
			_, err := f.reservations.Create(ctx, domain.Principal{UserID: uid, Role: domain.RoleUser},
				domain.CreateReservationDTO{SlotID: slots[0].ID, StartTime: start, EndTime: end})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repository.ErrConflict)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 0, f.lot(t, lot.ID).AvailableSlots)
}

func TestReservationAccessRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, slots := f.lotWithSlots(t, "Central", 1)
	owner := domain.Principal{UserID: 1, Role: domain.RoleUser}
	other := domain.Principal{UserID: 2, Role: domain.RoleUser}
	staff := domain.Principal{UserID: 3, Role: domain.RoleStaff}
	start, end := window(1)

	res, err := f.reservations.Create(ctx, owner, domain.CreateReservationDTO{SlotID: slots[0].ID, StartTime: start, EndTime: end})
	require.NoError(t, err)

	_, err = f.reservations.Get(ctx, other, res.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.reservations.Get(ctx, staff, res.ID)
	assert.NoError(t, err)
	_, err = f.reservations.Cancel(ctx, other, res.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	mine, err := f.reservations.ListMine(ctx, owner, domain.ReservationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, mine.Total)
	assert.Equal(t, domain.DefaultPageLimit, mine.Limit)

	theirs, err := f.reservations.ListMine(ctx, other, domain.ReservationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, theirs.Total)
	assert.NotNil(t, theirs.Data)
}

func TestDeleteLotRefusedWithOpenReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot, slots := f.lotWithSlots(t, "Central", 1)
	start, end := window(1)
	_, err := f.reservations.Create(ctx, domain.Principal{UserID: 1}, domain.CreateReservationDTO{SlotID: slots[0].ID, StartTime: start, EndTime: end})
	require.NoError(t, err)

	err = f.parking.DeleteParkingLot(ctx, lot.ID)
	assert.ErrorIs(t, err, repository.ErrConflict)
}
