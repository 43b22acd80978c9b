// Package memory keeps every repository in process memory behind a single
// mutex. It backs the "memory" storage driver and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

type Store struct {
	mu sync.Mutex

	lots         map[int]domain.ParkingLot
	slots        map[int]domain.ParkingSlot
	users        map[int]domain.User
	reservations map[int]domain.Reservation
	aiEvents     []domain.AIEventLog

	nextID int
	now    func() time.Time
}

func New() *Store {
	return &Store{
		lots:         make(map[int]domain.ParkingLot),
		slots:        make(map[int]domain.ParkingSlot),
		users:        make(map[int]domain.User),
		reservations: make(map[int]domain.Reservation),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Lots() repository.ParkingLotRepository          { return lotRepo{s} }
func (s *Store) Slots() repository.ParkingSlotRepository        { return slotRepo{s} }
func (s *Store) SlotState() repository.SlotStateStore           { return slotStateStore{s} }
func (s *Store) Users() repository.UserRepository               { return userRepo{s} }
func (s *Store) Reservations() repository.ReservationRepository { return reservationRepo{s} }
func (s *Store) AIEvents() repository.AIEventRepository         { return aiEventRepo{s} }

// CorruptAvailable overwrites a lot counter without touching its slots.
// Only reconciliation tests use it.
func (s *Store) CorruptAvailable(lotID, available int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot := s.lots[lotID]
	lot.AvailableSlots = available
	s.lots[lotID] = lot
}

func (s *Store) id() int {
	s.nextID++
	return s.nextID
}

func paginate[T any](items []T, p domain.Paging) []T {
	off := p.Offset()
	if off >= len(items) {
		return []T{}
	}
	end := off + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[off:end]
}

type lotRepo struct{ s *Store }

func (r lotRepo) Create(_ context.Context, lot *domain.ParkingLot, slotNumbers []string) (*domain.ParkingLot, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lots {
		if l.Name == lot.Name {
			return nil, fmt.Errorf("%w: parking lot '%s' already exists", repository.ErrDuplicateEntry, lot.Name)
		}
	}
	now := s.now()
	created := *lot
	created.ID = s.id()
	created.TotalSlots = len(slotNumbers)
	created.AvailableSlots = len(slotNumbers)
	created.CreatedAt, created.UpdatedAt = now, now
	s.lots[created.ID] = created
	for _, number := range slotNumbers {
		id := s.id()
		s.slots[id] = domain.ParkingSlot{
			ID: id, LotID: created.ID, SlotNumber: number, Status: domain.StatusAvailable,
			Confidence: 1, LastUpdateSource: "provisioning", CreatedAt: now, UpdatedAt: now,
		}
	}
	return &created, nil
}

func (r lotRepo) FindByID(_ context.Context, id int) (*domain.ParkingLot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lot, ok := r.s.lots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &lot, nil
}

func (r lotRepo) FindAll(_ context.Context, filter domain.ParkingLotFilter) ([]domain.ParkingLot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lots := []domain.ParkingLot{}
	for _, l := range r.s.lots {
		if filter.Status == "" || l.Status == filter.Status {
			lots = append(lots, l)
		}
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].Name < lots[j].Name })
	return lots, nil
}

func (r lotRepo) Update(_ context.Context, lot *domain.ParkingLot) (*domain.ParkingLot, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.lots[lot.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for _, l := range s.lots {
		if l.ID != lot.ID && l.Name == lot.Name {
			return nil, fmt.Errorf("%w: parking lot '%s' already exists", repository.ErrDuplicateEntry, lot.Name)
		}
	}
	cur.Name, cur.Address = lot.Name, lot.Address
	cur.Latitude, cur.Longitude = lot.Latitude, lot.Longitude
	cur.TrafficCondition, cur.HourlyRate = lot.TrafficCondition, lot.HourlyRate
	cur.Currency, cur.Status = lot.Currency, lot.Status
	cur.UpdatedAt = s.now()
	s.lots[cur.ID] = cur
	return &cur, nil
}

func (r lotRepo) Delete(_ context.Context, id int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lots[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.lots, id)
	for sid, slot := range s.slots {
		if slot.LotID == id {
			delete(s.slots, sid)
		}
	}
	for rid, res := range s.reservations {
		if res.LotID == id {
			delete(s.reservations, rid)
		}
	}
	return nil
}

type slotRepo struct{ s *Store }

func (r slotRepo) Create(_ context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[slot.LotID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for _, existing := range s.slots {
		if existing.LotID == slot.LotID && existing.SlotNumber == slot.SlotNumber {
			return nil, fmt.Errorf("%w: slot '%s' already exists in lot %d", repository.ErrDuplicateEntry, slot.SlotNumber, slot.LotID)
		}
	}
	now := s.now()
	created := domain.ParkingSlot{
		ID: s.id(), LotID: slot.LotID, SlotNumber: slot.SlotNumber, Status: domain.StatusAvailable,
		Confidence: 1, LastUpdateSource: slot.LastUpdateSource, CreatedAt: now, UpdatedAt: now,
	}
	s.slots[created.ID] = created
	lot.TotalSlots++
	lot.AvailableSlots++
	lot.UpdatedAt = now
	s.lots[lot.ID] = lot
	return &created, nil
}

func (r slotRepo) FindByID(_ context.Context, id int) (*domain.ParkingSlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copySlot(slot), nil
}

func (s *Store) slotsOf(lotID int) []domain.ParkingSlot {
	var out []domain.ParkingSlot
	for _, slot := range s.slots {
		if slot.LotID == lotID {
			out = append(out, *copySlot(slot))
		}
	}
	return out
}

func (r slotRepo) FindByLotID(_ context.Context, lotID int, filter domain.SlotFilter) ([]domain.ParkingSlot, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []domain.ParkingSlot
	for _, slot := range r.s.slotsOf(lotID) {
		if filter.Status != "" && slot.Status != filter.Status {
			continue
		}
		if filter.MinConfidence != nil && slot.Confidence < *filter.MinConfidence {
			continue
		}
		matched = append(matched, slot)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].SlotNumber < matched[j].SlotNumber })
	return paginate(matched, filter.Paging.Normalize(domain.MaxPageLimit)), len(matched), nil
}

func copySlot(slot domain.ParkingSlot) *domain.ParkingSlot {
	if slot.VehicleEntry != nil {
		v := *slot.VehicleEntry
		slot.VehicleEntry = &v
	}
	return &slot
}

type slotStateStore struct{ s *Store }

func (st slotStateStore) ApplyTransition(_ context.Context, slotID int, upd domain.SlotUpdate, decide repository.TransitionFunc) (*domain.SlotTransition, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.slots[slotID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	before := copySlot(cur)
	delta, err := decide(before)
	if err != nil {
		return nil, err
	}
	lot, ok := s.lots[before.LotID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !lot.CanAdjust(delta) {
		return nil, fmt.Errorf("%w: lot %d delta %+d", repository.ErrCounterOutOfRange, lot.ID, delta)
	}
	now := s.now()
	after := before.Apply(upd, now)
	s.slots[slotID] = *copySlot(after)
	if delta != 0 {
		lot.AvailableSlots += delta
		lot.UpdatedAt = now
		s.lots[lot.ID] = lot
	}
	return &domain.SlotTransition{Before: *before, After: after, Update: upd, Delta: delta, Lot: lot}, nil
}

func (st slotStateStore) AdjustLotCounter(_ context.Context, lotID int, delta int) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[lotID]
	if !ok {
		return repository.ErrNotFound
	}
	if !lot.CanAdjust(delta) {
		return fmt.Errorf("%w: lot %d delta %+d", repository.ErrCounterOutOfRange, lotID, delta)
	}
	lot.AvailableSlots += delta
	lot.UpdatedAt = s.now()
	s.lots[lotID] = lot
	return nil
}

func (st slotStateStore) RecountAvailable(_ context.Context, lotID int) (int, int, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[lotID]
	if !ok {
		return 0, 0, repository.ErrNotFound
	}
	before := lot.AvailableSlots
	total, available := 0, 0
	for _, slot := range s.slots {
		if slot.LotID != lotID {
			continue
		}
		total++
		if slot.Status == domain.StatusAvailable {
			available++
		}
	}
	lot.TotalSlots, lot.AvailableSlots = total, available
	lot.UpdatedAt = s.now()
	s.lots[lotID] = lot
	return before, available, nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(user.Email)
	for _, u := range s.users {
		if u.Email == email {
			return nil, fmt.Errorf("%w: email '%s' is already registered", repository.ErrDuplicateEntry, user.Email)
		}
	}
	now := s.now()
	created := *user
	created.ID = s.id()
	created.Email = email
	created.CreatedAt, created.UpdatedAt = now, now
	s.users[created.ID] = created
	return &created, nil
}

func (r userRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) FindByID(_ context.Context, id int) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) UpdateProfile(_ context.Context, id int, name, phone *string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if name != nil {
		u.Name = *name
	}
	if phone != nil {
		u.Phone = *phone
	}
	u.UpdatedAt = r.s.now()
	r.s.users[id] = u
	return &u, nil
}

type reservationRepo struct{ s *Store }

func (r reservationRepo) Create(_ context.Context, res *domain.Reservation) (*domain.Reservation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reservations {
		if existing.QRCode == res.QRCode {
			return nil, fmt.Errorf("%w: reservation code already issued", repository.ErrDuplicateEntry)
		}
	}
	now := s.now()
	created := *res
	created.ID = s.id()
	created.CreatedAt, created.UpdatedAt = now, now
	s.reservations[created.ID] = created
	return &created, nil
}

func (r reservationRepo) FindByID(_ context.Context, id int) (*domain.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &res, nil
}

func (r reservationRepo) Find(_ context.Context, filter domain.ReservationFilter) ([]domain.Reservation, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []domain.Reservation
	for _, res := range r.s.reservations {
		if filter.UserID != 0 && res.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && res.Status != filter.Status {
			continue
		}
		matched = append(matched, res)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return paginate(matched, filter.Paging.Normalize(domain.DefaultPageLimit)), len(matched), nil
}

func (r reservationRepo) FindOverlapping(_ context.Context, slotID int, start, end time.Time) ([]domain.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Reservation
	for _, res := range r.s.reservations {
		if res.SlotID != slotID {
			continue
		}
		if res.Status != domain.ReservationConfirmed && res.Status != domain.ReservationActive {
			continue
		}
		if res.Overlaps(start, end) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r reservationRepo) Cancel(_ context.Context, id int, at time.Time) (*domain.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if res.Status.Terminal() {
		return nil, fmt.Errorf("%w: reservation %d is already closed", repository.ErrConflict, id)
	}
	res.Status = domain.ReservationCancelled
	res.CancelledAt.SetValid(at)
	if res.PaymentStatus == domain.PaymentPaid {
		res.PaymentStatus = domain.PaymentRefunded
	}
	res.UpdatedAt = r.s.now()
	r.s.reservations[id] = res
	return &res, nil
}

func (r reservationRepo) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reservations[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.reservations, id)
	return nil
}

func (r reservationRepo) CountOpenByLot(_ context.Context, lotID int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, res := range r.s.reservations {
		if res.LotID == lotID && !res.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

type aiEventRepo struct{ s *Store }

func (r aiEventRepo) Create(_ context.Context, e *domain.AIEventLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.aiEvents {
		if existing.EventID == e.EventID {
			return fmt.Errorf("%w: event %s already logged", repository.ErrDuplicateEntry, e.EventID)
		}
	}
	e.ID = r.s.id()
	r.s.aiEvents = append(r.s.aiEvents, *e)
	return nil
}

func (r aiEventRepo) Find(_ context.Context, filter domain.AIEventFilter) ([]domain.AIEventLog, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []domain.AIEventLog
	for i := len(r.s.aiEvents) - 1; i >= 0; i-- {
		e := r.s.aiEvents[i]
		if filter.LotID != 0 && e.LotID.Int64 != int64(filter.LotID) {
			continue
		}
		if filter.SlotID != 0 && e.SlotID.Int64 != int64(filter.SlotID) {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if filter.IsAnomaly != nil && e.IsAnomaly != *filter.IsAnomaly {
			continue
		}
		matched = append(matched, e)
	}
	return paginate(matched, filter.Paging.Normalize(domain.DefaultPageLimit)), len(matched), nil
}
