package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/logging"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

const (
	SourceAPI          = "api"
	SourceAIDetection  = "ai_detection"
	SourceReservation  = "reservation"
	SourcePlateReader  = "plate_reader"
	SourceProvisioning = "provisioning"
)

// SlotService is the single path through which slot statuses change:
// validate, commit slot and lot counter together, then notify.
type SlotService struct {
	store     repository.SlotStateStore
	validator TransitionValidator
	notifier  *Notifier
}

func NewSlotService(store repository.SlotStateStore, notifier *Notifier) *SlotService {
	return &SlotService{store: store, notifier: notifier}
}

func (s *SlotService) ApplyTransition(ctx context.Context, slotID int, upd domain.SlotUpdate) (*domain.SlotTransition, error) {
	t, err := s.store.ApplyTransition(ctx, slotID, upd, func(before *domain.ParkingSlot) (int, error) {
		d, err := s.validator.Validate(before, upd)
		if err != nil {
			return 0, err
		}
		return d.Delta, nil
	})
	if err != nil {
		return nil, err
	}

	logging.Debug(ctx, "slot transition applied",
		slog.Int("slot_id", t.After.ID),
		slog.Int("lot_id", t.After.LotID),
		slog.String("from", string(t.Before.Status)),
		slog.String("to", string(t.After.Status)),
		slog.Int("delta", t.Delta),
		slog.String("source", upd.Source),
	)
	if s.notifier != nil {
		s.notifier.SlotChanged(ctx, t)
	}
	return t, nil
}

// UpdateFromDTO converts an HTTP status update into a SlotUpdate. Unknown
// statuses are rejected before anything is read or written.
func (s *SlotService) UpdateFromDTO(ctx context.Context, slotID int, dto domain.SlotStatusUpdateDTO, source string) (*domain.ParkingSlot, error) {
	upd := domain.SlotUpdate{Confidence: dto.Confidence, VehicleEntry: dto.VehicleEntry, Source: source}
	if dto.Status != nil {
		st, err := domain.ParseSlotStatus(*dto.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, *dto.Status)
		}
		upd.Status = &st
	}
	if dto.ExpectedStatus != nil {
		st, err := domain.ParseSlotStatus(*dto.ExpectedStatus)
		if err != nil {
			return nil, fmt.Errorf("%w: expected_status %q", ErrInvalidInput, *dto.ExpectedStatus)
		}
		upd.ExpectedStatus = &st
	}

	t, err := s.ApplyTransition(ctx, slotID, upd)
	if err != nil {
		return nil, err
	}
	return &t.After, nil
}
