package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSlotStatus(t *testing.T) {
	for _, s := range []string{"available", "occupied", "reserved", "maintenance"} {
		st, err := ParseSlotStatus(s)
		require.NoError(t, err)
		assert.Equal(t, SlotStatus(s), st)
	}
	_, err := ParseSlotStatus("vacant")
	assert.ErrorIs(t, err, ErrUnknownSlotStatus)
}

func TestOptionalVehicleEntryDistinguishesNullFromAbsent(t *testing.T) {
	var absent SlotStatusUpdateDTO
	require.NoError(t, json.Unmarshal([]byte(`{"status":"occupied"}`), &absent))
	assert.False(t, absent.VehicleEntry.Set)

	var cleared SlotStatusUpdateDTO
	require.NoError(t, json.Unmarshal([]byte(`{"vehicle_entry":null}`), &cleared))
	assert.True(t, cleared.VehicleEntry.Set)
	assert.Nil(t, cleared.VehicleEntry.Value)

	var set SlotStatusUpdateDTO
	require.NoError(t, json.Unmarshal([]byte(`{"vehicle_entry":{"vehicle_id":"v1","license_plate":"DHA-1234","entry_time":"2026-01-02T03:04:05Z"}}`), &set))
	require.True(t, set.VehicleEntry.Set)
	require.NotNil(t, set.VehicleEntry.Value)
	assert.Equal(t, "DHA-1234", set.VehicleEntry.Value.LicensePlate)
}

func TestSlotApply(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	occupied := StatusOccupied
	conf := 0.91
	slot := ParkingSlot{ID: 1, LotID: 2, Status: StatusAvailable, Confidence: 0.5,
		VehicleEntry: &VehicleEntry{VehicleID: "old"}}

	got := slot.Apply(SlotUpdate{Status: &occupied, Confidence: &conf, Source: "api"}, now)
	assert.Equal(t, StatusOccupied, got.Status)
	assert.InDelta(t, 0.91, got.Confidence, 1e-9)
	assert.Equal(t, "old", got.VehicleEntry.VehicleID)
	assert.Equal(t, now, got.UpdatedAt)
	assert.Equal(t, StatusAvailable, slot.Status, "original untouched")

	cleared := got.Apply(SlotUpdate{VehicleEntry: SetVehicleEntry(nil)}, now)
	assert.Nil(t, cleared.VehicleEntry)
	assert.Equal(t, "api", cleared.LastUpdateSource)
}

func TestLotCanAdjust(t *testing.T) {
	lot := ParkingLot{TotalSlots: 10, AvailableSlots: 10}
	assert.False(t, lot.CanAdjust(1))
	assert.True(t, lot.CanAdjust(-1))
	lot.AvailableSlots = 0
	assert.False(t, lot.CanAdjust(-1))
}

func TestSlotEventWireShape(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	occupied := StatusOccupied
	tr := &SlotTransition{
		After:  ParkingSlot{ID: 5, LotID: 9, Status: StatusOccupied, UpdatedAt: now},
		Update: SlotUpdate{Status: &occupied},
	}
	b, err := json.Marshal(NewSlotStatusChangedEvent(tr, now))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "slot.status_changed", m["type"])
	assert.EqualValues(t, 5, m["slotId"])
	assert.EqualValues(t, 9, m["lotId"])
	assert.Contains(t, m, "timestamp")
	updates := m["updates"].(map[string]any)
	assert.Equal(t, "occupied", updates["status"])
	assert.Contains(t, updates, "updatedAt")
	assert.NotContains(t, updates, "confidence")
	assert.NotContains(t, updates, "vehicleEntry")

	lb, err := json.Marshal(NewLotAvailabilityEvent(9, -1, now))
	require.NoError(t, err)
	assert.JSONEq(t, `{"lotId":9,"delta":-1,"timestamp":"2026-05-01T10:00:00Z"}`, string(lb))
}

func TestSlotEventIncludesClearedVehicleEntry(t *testing.T) {
	tr := &SlotTransition{Update: SlotUpdate{VehicleEntry: SetVehicleEntry(nil)}}
	b, err := json.Marshal(NewSlotStatusChangedEvent(tr, time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"vehicleEntry":null`)
}

func TestReservationOverlaps(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	r := Reservation{StartTime: base, EndTime: base.Add(2 * time.Hour)}
	assert.True(t, r.Overlaps(base.Add(time.Hour), base.Add(3*time.Hour)))
	assert.True(t, r.Overlaps(base.Add(2*time.Hour), base.Add(3*time.Hour)))
	assert.False(t, r.Overlaps(base.Add(3*time.Hour), base.Add(4*time.Hour)))
	assert.True(t, ReservationCancelled.Terminal())
	assert.False(t, ReservationConfirmed.Terminal())
}

func TestPagingNormalize(t *testing.T) {
	p := Paging{}.Normalize(50)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 50, p.Limit)
	assert.Equal(t, 0, p.Offset())
	p = Paging{Page: 3, Limit: 10000}.Normalize(20)
	assert.Equal(t, MaxPageLimit, p.Limit)
	assert.Equal(t, 2*MaxPageLimit, p.Offset())
}
