package domain

import (
	"encoding/json"
	"time"
)

const EventTypeSlotStatusChanged = "slot.status_changed"

// Names of the websocket frames carrying the two transition events.
const (
	FrameSlotUpdated = "slot:updated"
	FrameLotUpdated  = "lot:updated"
)

// SlotEventUpdates lists only the fields the update touched; UpdatedAt is
// always present.
type SlotEventUpdates struct {
	Status       *SlotStatus
	Confidence   *float64
	VehicleEntry OptionalVehicleEntry
	UpdatedAt    time.Time
}

func (u SlotEventUpdates) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 4)
	if u.Status != nil {
		m["status"] = *u.Status
	}
	if u.Confidence != nil {
		m["confidence"] = *u.Confidence
	}
	if u.VehicleEntry.Set {
		m["vehicleEntry"] = u.VehicleEntry.Value
	}
	m["updatedAt"] = u.UpdatedAt
	return json.Marshal(m)
}

// SlotStatusChangedEvent is delivered to the subscribers of one lot.
type SlotStatusChangedEvent struct {
	Type      string           `json:"type"`
	SlotID    int              `json:"slotId"`
	LotID     int              `json:"lotId"`
	Updates   SlotEventUpdates `json:"updates"`
	Timestamp time.Time        `json:"timestamp"`
}

// LotAvailabilityEvent is delivered to every connection.
type LotAvailabilityEvent struct {
	LotID     int       `json:"lotId"`
	Delta     int       `json:"delta"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSlotStatusChangedEvent(t *SlotTransition, now time.Time) SlotStatusChangedEvent {
	return SlotStatusChangedEvent{
		Type:   EventTypeSlotStatusChanged,
		SlotID: t.After.ID,
		LotID:  t.After.LotID,
		Updates: SlotEventUpdates{
			Status:       t.Update.Status,
			Confidence:   t.Update.Confidence,
			VehicleEntry: t.Update.VehicleEntry,
			UpdatedAt:    t.After.UpdatedAt,
		},
		Timestamp: now,
	}
}

func NewLotAvailabilityEvent(lotID, delta int, now time.Time) LotAvailabilityEvent {
	return LotAvailabilityEvent{LotID: lotID, Delta: delta, Timestamp: now}
}
