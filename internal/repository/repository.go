package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mynul56/smart-parking-ai/internal/domain"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEntry = errors.New("record already exists")
	// ErrConflict reports that a conditional write lost against a concurrent one.
	ErrConflict = errors.New("record changed concurrently")
	// ErrCounterOutOfRange reports that a lot counter adjustment would leave
	// available_slots outside [0, total_slots].
	ErrCounterOutOfRange = errors.New("lot availability counter out of range")
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id int) (*domain.User, error)
	UpdateProfile(ctx context.Context, id int, name, phone *string) (*domain.User, error)
}

type ParkingLotRepository interface {
	// Create inserts the lot together with one available slot per slot number.
	Create(ctx context.Context, lot *domain.ParkingLot, slotNumbers []string) (*domain.ParkingLot, error)
	FindByID(ctx context.Context, id int) (*domain.ParkingLot, error)
	FindAll(ctx context.Context, filter domain.ParkingLotFilter) ([]domain.ParkingLot, error)
	Update(ctx context.Context, lot *domain.ParkingLot) (*domain.ParkingLot, error)
	Delete(ctx context.Context, id int) error
}

type ParkingSlotRepository interface {
	// Create adds an available slot to an existing lot and bumps both lot counters.
	Create(ctx context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error)
	FindByID(ctx context.Context, id int) (*domain.ParkingSlot, error)
	FindByLotID(ctx context.Context, lotID int, filter domain.SlotFilter) ([]domain.ParkingSlot, int, error)
}

// TransitionFunc inspects the locked pre-update slot and returns the lot
// counter delta, or an error to abort without writing anything.
type TransitionFunc func(before *domain.ParkingSlot) (delta int, err error)

// SlotStateStore owns the slot/lot consistency rule: a slot write and the
// matching lot counter adjustment commit together or not at all, and
// transitions on the same slot are serialized.
type SlotStateStore interface {
	ApplyTransition(ctx context.Context, slotID int, upd domain.SlotUpdate, decide TransitionFunc) (*domain.SlotTransition, error)
	AdjustLotCounter(ctx context.Context, lotID int, delta int) error
	// RecountAvailable sets the lot's available_slots to the number of its
	// available slots and returns the previous and new values.
	RecountAvailable(ctx context.Context, lotID int) (before, after int, err error)
}

type ReservationRepository interface {
	Create(ctx context.Context, r *domain.Reservation) (*domain.Reservation, error)
	FindByID(ctx context.Context, id int) (*domain.Reservation, error)
	Find(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, int, error)
	// FindOverlapping returns confirmed or active reservations of the slot
	// whose window intersects [start, end].
	FindOverlapping(ctx context.Context, slotID int, start, end time.Time) ([]domain.Reservation, error)
	// Cancel moves a non-terminal reservation to cancelled; ErrConflict when
	// it is already terminal.
	Cancel(ctx context.Context, id int, at time.Time) (*domain.Reservation, error)
	Delete(ctx context.Context, id int) error
	CountOpenByLot(ctx context.Context, lotID int) (int, error)
}

type AIEventRepository interface {
	Create(ctx context.Context, event *domain.AIEventLog) error
	Find(ctx context.Context, filter domain.AIEventFilter) ([]domain.AIEventLog, int, error)
}
