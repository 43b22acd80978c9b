package domain

import (
	"encoding/json"
	"errors"
	"time"
)

type SlotStatus string

const (
	StatusAvailable   SlotStatus = "available"
	StatusOccupied    SlotStatus = "occupied"
	StatusReserved    SlotStatus = "reserved"
	StatusMaintenance SlotStatus = "maintenance"
)

var ErrUnknownSlotStatus = errors.New("unknown slot status")

// Valid reports whether s is one of the four slot statuses.
func (s SlotStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusOccupied, StatusReserved, StatusMaintenance:
		return true
	}
	return false
}

func ParseSlotStatus(s string) (SlotStatus, error) {
	st := SlotStatus(s)
	if !st.Valid() {
		return "", ErrUnknownSlotStatus
	}
	return st, nil
}

type VehicleEntry struct {
	VehicleID    string    `json:"vehicle_id,omitempty"`
	EntryTime    time.Time `json:"entry_time"`
	LicensePlate string    `json:"license_plate,omitempty"`
}

type ParkingSlot struct {
	ID               int           `json:"id"`
	LotID            int           `json:"lot_id"`
	SlotNumber       string        `json:"slot_number"`
	Status           SlotStatus    `json:"status"`
	Confidence       float64       `json:"confidence"`
	VehicleEntry     *VehicleEntry `json:"vehicle_entry,omitempty"`
	LastUpdateSource string        `json:"last_update_source,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// OptionalVehicleEntry distinguishes an absent vehicle_entry (Set=false)
// from an explicit null that clears the current entry (Set=true, Value=nil).
type OptionalVehicleEntry struct {
	Set   bool
	Value *VehicleEntry
}

func (o *OptionalVehicleEntry) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v VehicleEntry
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func (o OptionalVehicleEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value)
}

func SetVehicleEntry(v *VehicleEntry) OptionalVehicleEntry {
	return OptionalVehicleEntry{Set: true, Value: v}
}

// SlotUpdate is a partial update of a slot. ExpectedStatus, when set, turns
// the update into a compare-and-swap on the slot's current status.
type SlotUpdate struct {
	Status         *SlotStatus
	Confidence     *float64
	VehicleEntry   OptionalVehicleEntry
	ExpectedStatus *SlotStatus
	Source         string
}

// Apply returns a copy of s with the update's fields written and UpdatedAt set to at.
func (s ParkingSlot) Apply(u SlotUpdate, at time.Time) ParkingSlot {
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.Confidence != nil {
		s.Confidence = *u.Confidence
	}
	if u.VehicleEntry.Set {
		if u.VehicleEntry.Value == nil {
			s.VehicleEntry = nil
		} else {
			v := *u.VehicleEntry.Value
			s.VehicleEntry = &v
		}
	}
	if u.Source != "" {
		s.LastUpdateSource = u.Source
	}
	s.UpdatedAt = at
	return s
}

// SlotTransition is the outcome of one applied slot update.
type SlotTransition struct {
	Before ParkingSlot
	After  ParkingSlot
	Update SlotUpdate
	Delta  int
	Lot    ParkingLot
}

type ParkingSlotDTO struct {
	SlotNumber string `json:"slot_number" binding:"required,max=32"`
}

type SlotStatusUpdateDTO struct {
	Status         *string              `json:"status"`
	Confidence     *float64             `json:"confidence" binding:"omitempty,gte=0,lte=1"`
	VehicleEntry   OptionalVehicleEntry `json:"vehicle_entry"`
	ExpectedStatus *string              `json:"expected_status"`
}

type SlotFilter struct {
	Status        SlotStatus
	MinConfidence *float64
	Paging
}
