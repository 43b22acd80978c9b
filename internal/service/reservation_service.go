package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/logging"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

type ReservationService struct {
	reservationRepo repository.ReservationRepository
	slotRepo        repository.ParkingSlotRepository
	lotRepo         repository.ParkingLotRepository
	slots           *SlotService
	defaultRate     float64
	now             func() time.Time
}

func NewReservationService(
	reservationRepo repository.ReservationRepository,
	slotRepo repository.ParkingSlotRepository,
	lotRepo repository.ParkingLotRepository,
	slots *SlotService,
	defaultRate float64,
) *ReservationService {
	return &ReservationService{
		reservationRepo: reservationRepo,
		slotRepo:        slotRepo,
		lotRepo:         lotRepo,
		slots:           slots,
		defaultRate:     defaultRate,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Price charges the lot's hourly rate for the window, rounded to cents.
func Price(start, end time.Time, hourlyRate float64) float64 {
	hours := end.Sub(start).Hours()
	return math.Round(hours*hourlyRate*100) / 100
}

// Create books a slot for the caller. The slot is claimed first with a
// compare-and-swap from available to reserved, so of two concurrent
// bookings only one gets the slot; the loser sees a conflict.
func (s *ReservationService) Create(ctx context.Context, p domain.Principal, dto domain.CreateReservationDTO) (*domain.Reservation, error) {
	start, end := dto.StartTime.UTC(), dto.EndTime.UTC()
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", ErrInvalidInput)
	}
	if !end.After(s.now()) {
		return nil, fmt.Errorf("%w: reservation window is already over", ErrInvalidInput)
	}

	slot, err := s.slotRepo.FindByID(ctx, dto.SlotID)
	if err != nil {
		return nil, err
	}
	if slot.Status != domain.StatusAvailable {
		return nil, fmt.Errorf("%w: slot %d is %s", repository.ErrConflict, slot.ID, slot.Status)
	}
	overlapping, err := s.reservationRepo.FindOverlapping(ctx, slot.ID, start, end)
	if err != nil {
		return nil, err
	}
	if len(overlapping) > 0 {
		return nil, fmt.Errorf("%w: slot %d is already booked for that window", repository.ErrConflict, slot.ID)
	}
	lot, err := s.lotRepo.FindByID(ctx, slot.LotID)
	if err != nil {
		return nil, err
	}
	rate := lot.HourlyRate
	if rate <= 0 {
		rate = s.defaultRate
	}

	reserved, available := domain.StatusReserved, domain.StatusAvailable
	if _, err := s.slots.ApplyTransition(ctx, slot.ID, domain.SlotUpdate{
		Status:         &reserved,
		ExpectedStatus: &available,
		Source:         SourceReservation,
	}); err != nil {
		return nil, err
	}

	res, err := s.reservationRepo.Create(ctx, &domain.Reservation{
		UserID:        p.UserID,
		SlotID:        slot.ID,
		LotID:         slot.LotID,
		Status:        domain.ReservationConfirmed,
		StartTime:     start,
		EndTime:       end,
		Price:         Price(start, end, rate),
		Currency:      lot.Currency,
		PaymentStatus: domain.PaymentPending,
		QRCode:        "PARK-" + uuid.NewString(),
	})
	if err != nil {
		s.release(ctx, slot.ID, &reserved)
		return nil, err
	}
	logging.Info(ctx, "reservation confirmed",
		slog.Int("reservation_id", res.ID),
		slog.Int("slot_id", res.SlotID),
		slog.Int("user_id", res.UserID),
	)
	return res, nil
}

func (s *ReservationService) Get(ctx context.Context, p domain.Principal, id int) (*domain.Reservation, error) {
	res, err := s.reservationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.UserID != p.UserID && !p.HasRole(domain.RoleAdmin, domain.RoleStaff) {
		return nil, ErrForbidden
	}
	return res, nil
}

func (s *ReservationService) ListMine(ctx context.Context, p domain.Principal, filter domain.ReservationFilter) (*domain.PageResult[domain.Reservation], error) {
	filter.UserID = p.UserID
	filter.Paging = filter.Paging.Normalize(domain.DefaultPageLimit)
	items, total, err := s.reservationRepo.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &domain.PageResult[domain.Reservation]{Data: items, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// Cancel forces the slot of an open reservation back to available through
// the regular transition path, then closes the reservation.
func (s *ReservationService) Cancel(ctx context.Context, p domain.Principal, id int) (*domain.Reservation, error) {
	res, err := s.reservationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.UserID != p.UserID && !p.HasRole(domain.RoleAdmin) {
		return nil, ErrForbidden
	}
	if res.Status.Terminal() {
		return nil, fmt.Errorf("%w: reservation %d is already closed", repository.ErrConflict, id)
	}
	// slot first: the reservation stays open until the release has committed
	if err := s.release(ctx, res.SlotID, nil); err != nil {
		return nil, fmt.Errorf("release slot %d: %w", res.SlotID, err)
	}
	return s.reservationRepo.Cancel(ctx, id, s.now())
}

// release moves a slot to available and clears its vehicle entry. With
// expected set, it only fires while the slot is still in that status.
func (s *ReservationService) release(ctx context.Context, slotID int, expected *domain.SlotStatus) error {
	available := domain.StatusAvailable
	_, err := s.slots.ApplyTransition(ctx, slotID, domain.SlotUpdate{
		Status:         &available,
		ExpectedStatus: expected,
		VehicleEntry:   domain.SetVehicleEntry(nil),
		Source:         SourceReservation,
	})
	if err != nil && !errors.Is(err, repository.ErrConflict) {
		logging.Error(ctx, "could not release slot",
			slog.Int("slot_id", slotID),
			logging.Err(err),
		)
		return err
	}
	return nil
}
