package domain

import "time"

type TrafficCondition string

const (
	TrafficLow      TrafficCondition = "low"
	TrafficModerate TrafficCondition = "moderate"
	TrafficHeavy    TrafficCondition = "heavy"
)

type LotStatus string

const (
	LotActive      LotStatus = "active"
	LotMaintenance LotStatus = "maintenance"
	LotClosed      LotStatus = "closed"
)

// ParkingLot owns its slots by reference. AvailableSlots is a cache of the
// number of slots whose status is available and is only ever changed by
// slot transitions, slot provisioning and reconciliation.
type ParkingLot struct {
	ID               int              `json:"id"`
	Name             string           `json:"name"`
	Address          string           `json:"address,omitempty"`
	Latitude         float64          `json:"latitude"`
	Longitude        float64          `json:"longitude"`
	TotalSlots       int              `json:"total_slots"`
	AvailableSlots   int              `json:"available_slots"`
	TrafficCondition TrafficCondition `json:"traffic_condition"`
	HourlyRate       float64          `json:"hourly_rate"`
	Currency         string           `json:"currency"`
	Status           LotStatus        `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// CanAdjust reports whether adding delta keeps 0 <= available <= total.
func (l *ParkingLot) CanAdjust(delta int) bool {
	next := l.AvailableSlots + delta
	return next >= 0 && next <= l.TotalSlots
}

type ParkingLotDTO struct {
	Name             string  `json:"name" binding:"required,max=200"`
	Address          string  `json:"address" binding:"max=500"`
	Latitude         float64 `json:"latitude" binding:"gte=-90,lte=90"`
	Longitude        float64 `json:"longitude" binding:"gte=-180,lte=180"`
	TotalSlots       int     `json:"total_slots" binding:"gte=0,lte=5000"`
	TrafficCondition string  `json:"traffic_condition" binding:"omitempty,oneof=low moderate heavy"`
	HourlyRate       float64 `json:"hourly_rate" binding:"gte=0"`
	Currency         string  `json:"currency" binding:"omitempty,oneof=USD EUR BDT"`
	Status           string  `json:"status" binding:"omitempty,oneof=active maintenance closed"`
}

// ParkingLotUpdateDTO deliberately has no counters: total and available
// slots follow the slot records.
type ParkingLotUpdateDTO struct {
	Name             *string  `json:"name" binding:"omitempty,min=1,max=200"`
	Address          *string  `json:"address" binding:"omitempty,max=500"`
	Latitude         *float64 `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude        *float64 `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
	TrafficCondition *string  `json:"traffic_condition" binding:"omitempty,oneof=low moderate heavy"`
	HourlyRate       *float64 `json:"hourly_rate" binding:"omitempty,gte=0"`
	Currency         *string  `json:"currency" binding:"omitempty,oneof=USD EUR BDT"`
	Status           *string  `json:"status" binding:"omitempty,oneof=active maintenance closed"`
}

type ParkingLotFilter struct {
	Status LotStatus
}
