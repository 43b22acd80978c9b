package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gopkg.in/guregu/null.v4"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/logging"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

// DetectionService feeds AI camera observations into the slot transition
// path and keeps an audit log of every observation it receives.
type DetectionService struct {
	slots            *SlotService
	slotRepo         repository.ParkingSlotRepository
	eventRepo        repository.AIEventRepository
	anomalyThreshold float64
	now              func() time.Time
}

func NewDetectionService(
	slots *SlotService,
	slotRepo repository.ParkingSlotRepository,
	eventRepo repository.AIEventRepository,
	anomalyThreshold float64,
) *DetectionService {
	return &DetectionService{
		slots:            slots,
		slotRepo:         slotRepo,
		eventRepo:        eventRepo,
		anomalyThreshold: anomalyThreshold,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// HandleMessage processes one raw queue message. It returns an error only
// for failures worth a redelivery; rejected observations are logged and
// acknowledged.
func (s *DetectionService) HandleMessage(ctx context.Context, body []byte) error {
	event := &domain.AIEventLog{
		EventID:   uuid.NewString(),
		EventType: domain.AIEventStatusDetected,
		Payload:   json.RawMessage(body),
		Timestamp: s.now(),
	}
	if !json.Valid(body) {
		event.Payload = nil
	}

	var msg domain.DetectionMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.SlotID <= 0 {
		event.EventType = domain.AIEventInvalidPayload
		event.IsAnomaly = true
		event.Notes = "malformed detection message"
		s.record(ctx, event)
		return nil
	}

	event.SlotID = null.IntFrom(int64(msg.SlotID))
	event.DeviceID = msg.DeviceID
	event.Status = msg.Status
	event.Confidence = null.FloatFromPtr(msg.Confidence)
	if !msg.DetectedAt.IsZero() {
		event.Timestamp = msg.DetectedAt.UTC()
	}
	if msg.Confidence != nil && *msg.Confidence < s.anomalyThreshold {
		event.IsAnomaly = true
	}

	upd, err := detectionUpdate(msg)
	if err != nil {
		event.IsAnomaly = true
		event.Notes = err.Error()
		if slot, ferr := s.slotRepo.FindByID(ctx, msg.SlotID); ferr == nil {
			event.LotID = null.IntFrom(int64(slot.LotID))
		}
		s.record(ctx, event)
		return nil
	}

	t, err := s.slots.ApplyTransition(ctx, msg.SlotID, upd)
	switch {
	case err == nil:
		event.Accepted = true
		event.LotID = null.IntFrom(int64(t.After.LotID))
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, ErrInvalidInput),
		errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrCounterOutOfRange):
		event.Notes = err.Error()
	default:
		return fmt.Errorf("apply detection for slot %d: %w", msg.SlotID, err)
	}
	s.record(ctx, event)
	return nil
}

func detectionUpdate(msg domain.DetectionMessage) (domain.SlotUpdate, error) {
	st, err := domain.ParseSlotStatus(msg.Status)
	if err != nil {
		return domain.SlotUpdate{}, fmt.Errorf("%w: status %q", ErrInvalidInput, msg.Status)
	}
	if msg.Confidence != nil && (*msg.Confidence < 0 || *msg.Confidence > 1) {
		return domain.SlotUpdate{}, fmt.Errorf("%w: confidence %v", ErrInvalidInput, *msg.Confidence)
	}
	upd := domain.SlotUpdate{Status: &st, Confidence: msg.Confidence, Source: SourceAIDetection}
	switch {
	case msg.VehicleEntry != nil:
		upd.VehicleEntry = domain.SetVehicleEntry(msg.VehicleEntry)
	case st == domain.StatusAvailable:
		upd.VehicleEntry = domain.SetVehicleEntry(nil)
	}
	return upd, nil
}

func (s *DetectionService) record(ctx context.Context, event *domain.AIEventLog) {
	if err := s.eventRepo.Create(ctx, event); err != nil {
		logging.Error(ctx, "could not record AI event",
			slog.String("event_id", event.EventID),
			logging.Err(err),
		)
		return
	}
	if event.IsAnomaly {
		logging.Warn(ctx, "anomalous detection",
			slog.String("event_id", event.EventID),
			slog.Int64("slot_id", event.SlotID.Int64),
			slog.String("device_id", event.DeviceID),
			slog.String("notes", event.Notes),
		)
	}
}

func (s *DetectionService) ListEvents(ctx context.Context, filter domain.AIEventFilter) (*domain.PageResult[domain.AIEventLog], error) {
	filter.Paging = filter.Paging.Normalize(domain.DefaultPageLimit)
	events, total, err := s.eventRepo.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &domain.PageResult[domain.AIEventLog]{Data: events, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}
