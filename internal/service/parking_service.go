package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/logging"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

type ParkingService struct {
	lotRepo         repository.ParkingLotRepository
	slotRepo        repository.ParkingSlotRepository
	reservationRepo repository.ReservationRepository
	defaultRate     float64
}

func NewParkingService(
	lotRepo repository.ParkingLotRepository,
	slotRepo repository.ParkingSlotRepository,
	reservationRepo repository.ReservationRepository,
	defaultRate float64,
) *ParkingService {
	return &ParkingService{
		lotRepo:         lotRepo,
		slotRepo:        slotRepo,
		reservationRepo: reservationRepo,
		defaultRate:     defaultRate,
	}
}

// SlotNumbers returns the provisioning labels S-001 … S-n.
func SlotNumbers(n int) []string {
	numbers := make([]string, n)
	for i := range numbers {
		numbers[i] = fmt.Sprintf("S-%03d", i+1)
	}
	return numbers
}

// --- ParkingLot ---

func (s *ParkingService) CreateParkingLot(ctx context.Context, dto domain.ParkingLotDTO) (*domain.ParkingLot, error) {
	lot := &domain.ParkingLot{
		Name:             dto.Name,
		Address:          dto.Address,
		Latitude:         dto.Latitude,
		Longitude:        dto.Longitude,
		TrafficCondition: domain.TrafficLow,
		HourlyRate:       dto.HourlyRate,
		Currency:         "USD",
		Status:           domain.LotActive,
	}
	if dto.TrafficCondition != "" {
		lot.TrafficCondition = domain.TrafficCondition(dto.TrafficCondition)
	}
	if dto.Currency != "" {
		lot.Currency = dto.Currency
	}
	if dto.Status != "" {
		lot.Status = domain.LotStatus(dto.Status)
	}
	if lot.HourlyRate == 0 {
		lot.HourlyRate = s.defaultRate
	}

	created, err := s.lotRepo.Create(ctx, lot, SlotNumbers(dto.TotalSlots))
	if err != nil {
		return nil, err
	}
	logging.Info(ctx, "parking lot provisioned",
		slog.Int("lot_id", created.ID),
		slog.Int("total_slots", created.TotalSlots),
	)
	return created, nil
}

func (s *ParkingService) GetParkingLotByID(ctx context.Context, id int) (*domain.ParkingLot, error) {
	return s.lotRepo.FindByID(ctx, id)
}

func (s *ParkingService) GetAllParkingLots(ctx context.Context, filter domain.ParkingLotFilter) ([]domain.ParkingLot, error) {
	return s.lotRepo.FindAll(ctx, filter)
}

func (s *ParkingService) UpdateParkingLot(ctx context.Context, id int, dto domain.ParkingLotUpdateDTO) (*domain.ParkingLot, error) {
	lot, err := s.lotRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dto.Name != nil {
		lot.Name = *dto.Name
	}
	if dto.Address != nil {
		lot.Address = *dto.Address
	}
	if dto.Latitude != nil {
		lot.Latitude = *dto.Latitude
	}
	if dto.Longitude != nil {
		lot.Longitude = *dto.Longitude
	}
	if dto.TrafficCondition != nil {
		lot.TrafficCondition = domain.TrafficCondition(*dto.TrafficCondition)
	}
	if dto.HourlyRate != nil {
		lot.HourlyRate = *dto.HourlyRate
	}
	if dto.Currency != nil {
		lot.Currency = *dto.Currency
	}
	if dto.Status != nil {
		lot.Status = domain.LotStatus(*dto.Status)
	}
	return s.lotRepo.Update(ctx, lot)
}

// DeleteParkingLot removes the lot and its slots; refused while any
// reservation on the lot is still open.
func (s *ParkingService) DeleteParkingLot(ctx context.Context, id int) error {
	if _, err := s.lotRepo.FindByID(ctx, id); err != nil {
		return err
	}
	open, err := s.reservationRepo.CountOpenByLot(ctx, id)
	if err != nil {
		return fmt.Errorf("count open reservations of lot %d: %w", id, err)
	}
	if open > 0 {
		return fmt.Errorf("%w: lot %d still has %d open reservations", repository.ErrConflict, id, open)
	}
	return s.lotRepo.Delete(ctx, id)
}

// --- ParkingSlot ---

func (s *ParkingService) CreateParkingSlot(ctx context.Context, lotID int, dto domain.ParkingSlotDTO) (*domain.ParkingSlot, error) {
	slot := &domain.ParkingSlot{
		LotID:            lotID,
		SlotNumber:       dto.SlotNumber,
		LastUpdateSource: SourceProvisioning,
	}
	return s.slotRepo.Create(ctx, slot)
}

func (s *ParkingService) GetParkingSlotByID(ctx context.Context, slotID int) (*domain.ParkingSlot, error) {
	return s.slotRepo.FindByID(ctx, slotID)
}

func (s *ParkingService) GetSlotsByLotID(ctx context.Context, lotID int, filter domain.SlotFilter) (*domain.PageResult[domain.ParkingSlot], error) {
	if _, err := s.lotRepo.FindByID(ctx, lotID); err != nil {
		return nil, err
	}
	filter.Paging = filter.Paging.Normalize(domain.MaxPageLimit)
	slots, total, err := s.slotRepo.FindByLotID(ctx, lotID, filter)
	if err != nil {
		return nil, err
	}
	return &domain.PageResult[domain.ParkingSlot]{Data: slots, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}
