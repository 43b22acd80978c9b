package domain

import (
	"encoding/json"
	"time"

	"gopkg.in/guregu/null.v4"
)

// DetectionMessage is what an AI edge device publishes to the detection
// queue for a single slot observation.
type DetectionMessage struct {
	SlotID       int           `json:"slot_id"`
	Status       string        `json:"status"`
	Confidence   *float64      `json:"confidence,omitempty"`
	VehicleEntry *VehicleEntry `json:"vehicle_entry,omitempty"`
	DeviceID     string        `json:"device_id"`
	DetectedAt   time.Time     `json:"detected_at"`
}

type AIEventType string

const (
	AIEventStatusDetected AIEventType = "status_detected"
	AIEventPlateRead      AIEventType = "plate_read"
	AIEventInvalidPayload AIEventType = "invalid_payload"
)

type AIEventLog struct {
	ID         int             `json:"id"`
	EventID    string          `json:"event_id"`
	LotID      null.Int        `json:"lot_id"`
	SlotID     null.Int        `json:"slot_id"`
	DeviceID   string          `json:"device_id,omitempty"`
	EventType  AIEventType     `json:"event_type"`
	Status     string          `json:"status,omitempty"`
	Confidence null.Float      `json:"confidence"`
	IsAnomaly  bool            `json:"is_anomaly"`
	Accepted   bool            `json:"accepted"`
	Notes      string          `json:"notes,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

type AIEventFilter struct {
	LotID     int
	SlotID    int
	EventType AIEventType
	IsAnomaly *bool
	Paging
}

// PlateEntryDTO carries a camera frame used to read a vehicle's licence plate.
type PlateEntryDTO struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
	VehicleID   string `json:"vehicle_id" binding:"omitempty,max=64"`
}
