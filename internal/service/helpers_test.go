package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/repository/memory"
)

type sentFrame struct {
	LotID  int // 0 for broadcasts
	Event  string
	Data   any
	Global bool
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	frames []sentFrame
}

func (b *recordingBroadcaster) Publish(lotID int, event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, sentFrame{LotID: lotID, Event: event, Data: data})
}

func (b *recordingBroadcaster) Broadcast(event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, sentFrame{Event: event, Data: data, Global: true})
}

func (b *recordingBroadcaster) sent() []sentFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentFrame(nil), b.frames...)
}

func (b *recordingBroadcaster) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
}

type recordingObserver struct {
	mu   sync.Mutex
	lots []domain.ParkingLot
}

func (o *recordingObserver) LotChanged(_ context.Context, lot domain.ParkingLot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lots = append(o.lots, lot)
}

type fixture struct {
	store        *memory.Store
	hub          *recordingBroadcaster
	observer     *recordingObserver
	slots        *SlotService
	parking      *ParkingService
	reservations *ReservationService
	reconciler   *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	hub := &recordingBroadcaster{}
	obs := &recordingObserver{}
	notifier := NewNotifier(hub, obs)
	slots := NewSlotService(store.SlotState(), notifier)
	return &fixture{
		store:        store,
		hub:          hub,
		observer:     obs,
		slots:        slots,
		parking:      NewParkingService(store.Lots(), store.Slots(), store.Reservations(), 3.0),
		reservations: NewReservationService(store.Reservations(), store.Slots(), store.Lots(), slots, 3.0),
		reconciler:   NewReconciler(store.Lots(), store.SlotState(), notifier),
	}
}

// lotWithSlots provisions a lot and returns it with its slots ordered by number.
func (f *fixture) lotWithSlots(t *testing.T, name string, n int) (*domain.ParkingLot, []domain.ParkingSlot) {
	t.Helper()
	ctx := context.Background()
	lot, err := f.parking.CreateParkingLot(ctx, domain.ParkingLotDTO{Name: name, TotalSlots: n})
	require.NoError(t, err)
	page, err := f.parking.GetSlotsByLotID(ctx, lot.ID, domain.SlotFilter{})
	require.NoError(t, err)
	require.Len(t, page.Data, n)
	return lot, page.Data
}

func (f *fixture) setStatus(t *testing.T, slotID int, st domain.SlotStatus) *domain.SlotTransition {
	t.Helper()
	tr, err := f.slots.ApplyTransition(context.Background(), slotID, domain.SlotUpdate{Status: &st, Source: SourceAPI})
	require.NoError(t, err)
	return tr
}

func (f *fixture) lot(t *testing.T, id int) *domain.ParkingLot {
	t.Helper()
	lot, err := f.store.Lots().FindByID(context.Background(), id)
	require.NoError(t, err)
	return lot
}

func ptr[T any](v T) *T { return &v }
