package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

func seedLot(t *testing.T, s *Store, slots ...string) (*domain.ParkingLot, []domain.ParkingSlot) {
	t.Helper()
	ctx := context.Background()
	lot, err := s.Lots().Create(ctx, &domain.ParkingLot{Name: "Lot A", Status: domain.LotActive}, slots)
	require.NoError(t, err)
	list, total, err := s.Slots().FindByLotID(ctx, lot.ID, domain.SlotFilter{})
	require.NoError(t, err)
	require.Equal(t, len(slots), total)
	return lot, list
}

func statusPtr(s domain.SlotStatus) *domain.SlotStatus { return &s }

func fixedDelta(d int) repository.TransitionFunc {
	return func(*domain.ParkingSlot) (int, error) { return d, nil }
}

func TestCreateLotProvisionsSlots(t *testing.T) {
	s := New()
	lot, slots := seedLot(t, s, "S-001", "S-002", "S-003")
	assert.Equal(t, 3, lot.TotalSlots)
	assert.Equal(t, 3, lot.AvailableSlots)
	for _, slot := range slots {
		assert.Equal(t, domain.StatusAvailable, slot.Status)
		assert.Equal(t, lot.ID, slot.LotID)
	}

	_, err := s.Lots().Create(context.Background(), &domain.ParkingLot{Name: "Lot A"}, nil)
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)
}

func TestApplyTransitionWritesSlotAndCounter(t *testing.T) {
	s := New()
	ctx := context.Background()
	lot, slots := seedLot(t, s, "S-001", "S-002")

	tr, err := s.SlotState().ApplyTransition(ctx, slots[0].ID,
		domain.SlotUpdate{Status: statusPtr(domain.StatusOccupied), Source: "test"}, fixedDelta(-1))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailable, tr.Before.Status)
	assert.Equal(t, domain.StatusOccupied, tr.After.Status)
	assert.Equal(t, 1, tr.Lot.AvailableSlots)

	got, err := s.Lots().FindByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableSlots)
}

func TestApplyTransitionRejectedLeavesStateUntouched(t *testing.T) {
	s := New()
	ctx := context.Background()
	lot, slots := seedLot(t, s, "S-001")

	boom := errors.New("rejected")
	_, err := s.SlotState().ApplyTransition(ctx, slots[0].ID,
		domain.SlotUpdate{Status: statusPtr(domain.StatusOccupied)},
		func(*domain.ParkingSlot) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	// counter already at total: +1 must fail and roll back the slot write
	_, err = s.SlotState().ApplyTransition(ctx, slots[0].ID,
		domain.SlotUpdate{Status: statusPtr(domain.StatusMaintenance)}, fixedDelta(1))
	assert.ErrorIs(t, err, repository.ErrCounterOutOfRange)

	slot, err := s.Slots().FindByID(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailable, slot.Status)
	got, _ := s.Lots().FindByID(ctx, lot.ID)
	assert.Equal(t, 1, got.AvailableSlots)
}

func TestApplyTransitionUnknownSlot(t *testing.T) {
	s := New()
	_, err := s.SlotState().ApplyTransition(context.Background(), 99, domain.SlotUpdate{}, fixedDelta(0))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestConcurrentTransitionsSerialize(t *testing.T) {
	s := New()
	ctx := context.Background()
	lot, slots := seedLot(t, s, "S-001")

	// only the caller that still sees "available" may take the slot
	decide := func(before *domain.ParkingSlot) (int, error) {
		if before.Status != domain.StatusAvailable {
			return 0, repository.ErrConflict
		}
		return -1, nil
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SlotState().ApplyTransition(ctx, slots[0].ID,
				domain.SlotUpdate{Status: statusPtr(domain.StatusOccupied)}, decide)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	got, _ := s.Lots().FindByID(ctx, lot.ID)
	assert.Equal(t, 0, got.AvailableSlots)
}

func TestRecountAvailable(t *testing.T) {
	s := New()
	ctx := context.Background()
	lot, _ := seedLot(t, s, "S-001", "S-002", "S-003")
	s.CorruptAvailable(lot.ID, 0)

	before, after, err := s.SlotState().RecountAvailable(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, before)
	assert.Equal(t, 3, after)

	_, _, err = s.SlotState().RecountAvailable(ctx, 404)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAdjustLotCounterIsBounded(t *testing.T) {
	s := New()
	ctx := context.Background()
	lot, _ := seedLot(t, s, "S-001", "S-002")
	st := s.SlotState()

	assert.ErrorIs(t, st.AdjustLotCounter(ctx, lot.ID, 1), repository.ErrCounterOutOfRange)
	require.NoError(t, st.AdjustLotCounter(ctx, lot.ID, -2))
	assert.ErrorIs(t, st.AdjustLotCounter(ctx, lot.ID, -1), repository.ErrCounterOutOfRange)
	assert.ErrorIs(t, st.AdjustLotCounter(ctx, 404, 1), repository.ErrNotFound)

	got, _ := s.Lots().FindByID(ctx, lot.ID)
	assert.Equal(t, 0, got.AvailableSlots)
}

func TestSlotCreateBumpsCounters(t *testing.T) {
	s := New()
	ctx := context.Background()
	lot, _ := seedLot(t, s, "S-001")

	_, err := s.Slots().Create(ctx, &domain.ParkingSlot{LotID: lot.ID, SlotNumber: "S-002"})
	require.NoError(t, err)
	_, err = s.Slots().Create(ctx, &domain.ParkingSlot{LotID: lot.ID, SlotNumber: "S-002"})
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)

	got, _ := s.Lots().FindByID(ctx, lot.ID)
	assert.Equal(t, 2, got.TotalSlots)
	assert.Equal(t, 2, got.AvailableSlots)
}

func TestSlotFilterAndPaging(t *testing.T) {
	s := New()
	ctx := context.Background()
	lot, slots := seedLot(t, s, "S-003", "S-001", "S-002")
	low := 0.4
	_, err := s.SlotState().ApplyTransition(ctx, slots[0].ID,
		domain.SlotUpdate{Status: statusPtr(domain.StatusOccupied), Confidence: &low}, fixedDelta(-1))
	require.NoError(t, err)

	page, total, err := s.Slots().FindByLotID(ctx, lot.ID, domain.SlotFilter{Paging: domain.Paging{Page: 1, Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "S-001", page[0].SlotNumber)

	minConf := 0.5
	_, total, err = s.Slots().FindByLotID(ctx, lot.ID, domain.SlotFilter{MinConfidence: &minConf})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	occupied, total, err := s.Slots().FindByLotID(ctx, lot.ID, domain.SlotFilter{Status: domain.StatusOccupied})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, slots[0].ID, occupied[0].ID)
}

func TestReservationCancelIsGuarded(t *testing.T) {
	s := New()
	ctx := context.Background()
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	res, err := s.Reservations().Create(ctx, &domain.Reservation{
		UserID: 1, SlotID: 2, LotID: 3, Status: domain.ReservationConfirmed,
		StartTime: start, EndTime: start.Add(time.Hour), QRCode: "QR-1", PaymentStatus: domain.PaymentPaid,
	})
	require.NoError(t, err)

	overlapping, err := s.Reservations().FindOverlapping(ctx, 2, start.Add(30*time.Minute), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, overlapping, 1)

	cancelled, err := s.Reservations().Cancel(ctx, res.ID, start)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, cancelled.Status)
	assert.Equal(t, domain.PaymentRefunded, cancelled.PaymentStatus)
	assert.True(t, cancelled.CancelledAt.Valid)

	_, err = s.Reservations().Cancel(ctx, res.ID, start)
	assert.ErrorIs(t, err, repository.ErrConflict)

	overlapping, err = s.Reservations().FindOverlapping(ctx, 2, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, overlapping)
}

func TestUserEmailIsCaseInsensitive(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Users().Create(ctx, &domain.User{Email: "Ana@Example.com", Name: "Ana"})
	require.NoError(t, err)
	u, err := s.Users().FindByEmail(ctx, "ana@example.COM")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	_, err = s.Users().Create(ctx, &domain.User{Email: "ANA@example.com"})
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)
}
