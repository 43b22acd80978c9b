package service

import (
	"context"
	"time"

	"github.com/mynul56/smart-parking-ai/internal/domain"
)

// Broadcaster is the outbound side of the realtime hub.
type Broadcaster interface {
	// Publish delivers to the connections subscribed to lotID.
	Publish(lotID int, event string, data any)
	// Broadcast delivers to every connection.
	Broadcast(event string, data any)
}

// LotObserver is told about a lot's counters after they changed.
type LotObserver interface {
	LotChanged(ctx context.Context, lot domain.ParkingLot)
}

// Notifier fans committed changes out to the broadcaster and observers.
// A nil broadcaster is allowed for offline commands.
type Notifier struct {
	broadcaster Broadcaster
	observers   []LotObserver
	now         func() time.Time
}

func NewNotifier(b Broadcaster, observers ...LotObserver) *Notifier {
	return &Notifier{broadcaster: b, observers: observers, now: func() time.Time { return time.Now().UTC() }}
}

// SlotChanged emits the slot event to the lot's channel and the aggregate
// event to everyone. Both go out even when the delta is zero.
func (n *Notifier) SlotChanged(ctx context.Context, t *domain.SlotTransition) {
	now := n.now()
	if n.broadcaster != nil {
		n.broadcaster.Publish(t.After.LotID, domain.FrameSlotUpdated, domain.NewSlotStatusChangedEvent(t, now))
		n.broadcaster.Broadcast(domain.FrameLotUpdated, domain.NewLotAvailabilityEvent(t.After.LotID, t.Delta, now))
	}
	n.notify(ctx, t.Lot)
}

// LotCorrected announces a counter change that did not come from a slot
// transition, such as a reconciliation fix.
func (n *Notifier) LotCorrected(ctx context.Context, lot domain.ParkingLot, delta int) {
	if n.broadcaster != nil {
		n.broadcaster.Broadcast(domain.FrameLotUpdated, domain.NewLotAvailabilityEvent(lot.ID, delta, n.now()))
	}
	n.notify(ctx, lot)
}

func (n *Notifier) notify(ctx context.Context, lot domain.ParkingLot) {
	for _, o := range n.observers {
		o.LotChanged(ctx, lot)
	}
}
