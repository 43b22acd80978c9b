package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

// SlotStateSuite runs against a real Postgres named by TEST_DATABASE_URL.
// Every table is truncated before each test.
type SlotStateSuite struct {
	suite.Suite

	ctx   context.Context
	db    *sql.DB
	lots  repository.ParkingLotRepository
	slots repository.ParkingSlotRepository
	state repository.SlotStateStore
}

func TestSlotStateSuite(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()
	suite.Run(t, &SlotStateSuite{ctx: context.Background(), db: db})
}

func (s *SlotStateSuite) SetupSuite() {
	s.Require().NoError(s.db.PingContext(s.ctx))
	s.Require().NoError(EnsureSchema(s.ctx, s.db))
	s.lots = NewPgParkingLotRepository(s.db)
	s.slots = NewPgParkingSlotRepository(s.db)
	s.state = NewPgSlotStateStore(s.db)
}

func (s *SlotStateSuite) SetupTest() {
	_, err := s.db.ExecContext(s.ctx,
		`TRUNCATE ai_event_logs, reservations, parking_slots, parking_lots, users RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)
}

func (s *SlotStateSuite) seedLot(n int) (*domain.ParkingLot, []domain.ParkingSlot) {
	numbers := make([]string, n)
	for i := range numbers {
		numbers[i] = fmt.Sprintf("S-%03d", i+1)
	}
	lot, err := s.lots.Create(s.ctx, &domain.ParkingLot{
		Name: "Harbor", Status: domain.LotActive, TrafficCondition: domain.TrafficLow, Currency: "USD",
	}, numbers)
	s.Require().NoError(err)
	slots, total, err := s.slots.FindByLotID(s.ctx, lot.ID, domain.SlotFilter{})
	s.Require().NoError(err)
	s.Require().Equal(n, total)
	return lot, slots
}

func (s *SlotStateSuite) available(lotID int) int {
	lot, err := s.lots.FindByID(s.ctx, lotID)
	s.Require().NoError(err)
	return lot.AvailableSlots
}

func status(st domain.SlotStatus) *domain.SlotStatus { return &st }

func delta(d int) repository.TransitionFunc {
	return func(*domain.ParkingSlot) (int, error) { return d, nil }
}

// takeIfAvailable mirrors the validator: only an available slot may be taken.
func takeIfAvailable(before *domain.ParkingSlot) (int, error) {
	if before.Status != domain.StatusAvailable {
		return 0, repository.ErrConflict
	}
	return -1, nil
}

func (s *SlotStateSuite) TestTransitionWritesSlotAndCounter() {
	lot, slots := s.seedLot(2)

	tr, err := s.state.ApplyTransition(s.ctx, slots[0].ID,
		domain.SlotUpdate{Status: status(domain.StatusOccupied), Source: "test"}, delta(-1))
	s.Require().NoError(err)
	s.Equal(domain.StatusAvailable, tr.Before.Status)
	s.Equal(domain.StatusOccupied, tr.After.Status)
	s.Equal(-1, tr.Delta)
	s.Equal(1, tr.Lot.AvailableSlots)
	s.Equal(1, s.available(lot.ID))

	slot, err := s.slots.FindByID(s.ctx, slots[0].ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusOccupied, slot.Status)
}

func (s *SlotStateSuite) TestOutOfRangeCounterRollsBackSlotWrite() {
	lot, slots := s.seedLot(1)

	// counter already equals total_slots
	_, err := s.state.ApplyTransition(s.ctx, slots[0].ID,
		domain.SlotUpdate{Status: status(domain.StatusMaintenance)}, delta(1))
	s.ErrorIs(err, repository.ErrCounterOutOfRange)

	slot, err := s.slots.FindByID(s.ctx, slots[0].ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusAvailable, slot.Status)
	s.Equal(1, s.available(lot.ID))
}

func (s *SlotStateSuite) TestRejectedTransitionWritesNothing() {
	lot, slots := s.seedLot(1)
	s.Require().NoError(s.state.AdjustLotCounter(s.ctx, lot.ID, -1))

	_, err := s.state.ApplyTransition(s.ctx, slots[0].ID,
		domain.SlotUpdate{Status: status(domain.StatusOccupied)},
		func(*domain.ParkingSlot) (int, error) { return 0, repository.ErrConflict })
	s.ErrorIs(err, repository.ErrConflict)
	s.Equal(0, s.available(lot.ID))

	_, err = s.state.ApplyTransition(s.ctx, 4040, domain.SlotUpdate{}, delta(0))
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *SlotStateSuite) TestConcurrentTakersOnlyOneWins() {
	lot, slots := s.seedLot(1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.state.ApplyTransition(s.ctx, slots[0].ID,
				domain.SlotUpdate{Status: status(domain.StatusOccupied)}, takeIfAvailable)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, wins)
	s.Equal(0, s.available(lot.ID))
}

func (s *SlotStateSuite) TestConcurrentFlipsKeepCounterConsistent() {
	lot, slots := s.seedLot(4)

	var wg sync.WaitGroup
	for _, slot := range slots {
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func(slotID int, occupy bool) {
				defer wg.Done()
				target := domain.StatusAvailable
				if occupy {
					target = domain.StatusOccupied
				}
				decide := func(before *domain.ParkingSlot) (int, error) {
					switch {
					case before.Status == target:
						return 0, nil
					case target == domain.StatusAvailable:
						return 1, nil
					default:
						return -1, nil
					}
				}
				_, err := s.state.ApplyTransition(s.ctx, slotID, domain.SlotUpdate{Status: &target}, decide)
				s.NoError(err)
			}(slot.ID, i%2 == 0)
		}
	}
	wg.Wait()

	current, _, err := s.slots.FindByLotID(s.ctx, lot.ID, domain.SlotFilter{Status: domain.StatusAvailable})
	s.Require().NoError(err)
	s.Equal(len(current), s.available(lot.ID))
}

func (s *SlotStateSuite) TestAdjustLotCounterIsBounded() {
	lot, _ := s.seedLot(2)

	s.ErrorIs(s.state.AdjustLotCounter(s.ctx, lot.ID, 1), repository.ErrCounterOutOfRange)
	s.Require().NoError(s.state.AdjustLotCounter(s.ctx, lot.ID, -2))
	s.Equal(0, s.available(lot.ID))
	s.ErrorIs(s.state.AdjustLotCounter(s.ctx, lot.ID, -1), repository.ErrCounterOutOfRange)
	s.ErrorIs(s.state.AdjustLotCounter(s.ctx, 4040, 1), repository.ErrNotFound)
}

func (s *SlotStateSuite) TestRecountAvailable() {
	lot, slots := s.seedLot(3)
	_, err := s.state.ApplyTransition(s.ctx, slots[0].ID,
		domain.SlotUpdate{Status: status(domain.StatusReserved)}, delta(-1))
	s.Require().NoError(err)
	s.Require().NoError(s.state.AdjustLotCounter(s.ctx, lot.ID, -2))

	before, after, err := s.state.RecountAvailable(s.ctx, lot.ID)
	s.Require().NoError(err)
	s.Equal(0, before)
	s.Equal(2, after)
	s.Equal(2, s.available(lot.ID))

	_, _, err = s.state.RecountAvailable(s.ctx, 4040)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *SlotStateSuite) TestPageBeyondLastRowKeepsTotal() {
	lot, _ := s.seedLot(3)

	page, total, err := s.slots.FindByLotID(s.ctx, lot.ID, domain.SlotFilter{Paging: domain.Paging{Page: 5, Limit: 2}})
	s.Require().NoError(err)
	s.Empty(page)
	s.Equal(3, total)
}
