package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// MemoryStore keeps everything in process memory.  It backs tests and the
// STORE_DRIVER=memory mode.  Each showtime has its own one-slot semaphore so
// that lock acquisition can give up when the context expires; units of work
// stage their writes and apply them only on success.
type MemoryStore struct {
	mu           sync.RWMutex
	locks        map[string]chan struct{}
	inventories  map[string]model.SeatInventory
	seats        map[string]map[string]model.Seat
	bookings     map[string]*model.Booking
	correlations map[string]*model.PaymentCorrelation
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:        make(map[string]chan struct{}),
		inventories:  make(map[string]model.SeatInventory),
		seats:        make(map[string]map[string]model.Seat),
		bookings:     make(map[string]*model.Booking),
		correlations: make(map[string]*model.PaymentCorrelation),
	}
}

func (s *MemoryStore) lockFor(showtimeID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[showtimeID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[showtimeID] = ch
	}
	return ch
}

// WithShowtime implements Store.
func (s *MemoryStore) WithShowtime(ctx context.Context, showtimeID string, fn func(tx ShowtimeTx) error) error {
	lock := s.lockFor(showtimeID)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: showtime %s: %v", model.ErrLockTimeout, showtimeID, ctx.Err())
	}
	defer func() { <-lock }()

	tx := &memoryTx{
		store:        s,
		showtimeID:   showtimeID,
		seats:        make(map[string]model.Seat),
		bookings:     make(map[string]*model.Booking),
		correlations: make(map[string]*model.PaymentCorrelation),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// Inventory implements Store.
func (s *MemoryStore) Inventory(_ context.Context, showtimeID string) (*model.SeatInventory, []model.Seat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.inventories[showtimeID]
	if !ok {
		return nil, nil, model.ErrInventoryNotFound
	}
	seats := make([]model.Seat, 0, len(s.seats[showtimeID]))
	for _, seat := range s.seats[showtimeID] {
		seats = append(seats, copySeat(seat))
	}
	sortSeats(seats)
	return &inv, seats, nil
}

// Booking implements Store.
func (s *MemoryStore) Booking(_ context.Context, id string) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, model.ErrBookingNotFound
	}
	return b.Clone(), nil
}

// BookingsByUser implements Store.  Newest bookings come first.
func (s *MemoryStore) BookingsByUser(_ context.Context, userID string) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Booking{}
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, *b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Correlation implements Store.
func (s *MemoryStore) Correlation(_ context.Context, id string) (*model.PaymentCorrelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.correlations[id]
	if !ok {
		return nil, model.ErrUnknownCorrelation
	}
	return copyCorrelation(c), nil
}

// ShowtimesWithExpiredHolds implements Store.
func (s *MemoryStore) ShowtimesWithExpiredHolds(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for showtimeID, seats := range s.seats {
		for _, seat := range seats {
			if seat.HoldLapsed(now) {
				out = append(out, showtimeID)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// memoryTx stages writes for one unit of work.
type memoryTx struct {
	store      *MemoryStore
	showtimeID string

	dropBase     bool
	inventory    *model.SeatInventory
	seats        map[string]model.Seat
	bookings     map[string]*model.Booking
	correlations map[string]*model.PaymentCorrelation
}

func (t *memoryTx) Inventory(_ context.Context) (*model.SeatInventory, error) {
	if t.inventory != nil {
		inv := *t.inventory
		return &inv, nil
	}
	if t.dropBase {
		return nil, model.ErrInventoryNotFound
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	inv, ok := t.store.inventories[t.showtimeID]
	if !ok {
		return nil, model.ErrInventoryNotFound
	}
	return &inv, nil
}

func (t *memoryTx) CreateInventory(ctx context.Context, inv model.SeatInventory, seats []model.Seat) error {
	if _, err := t.Inventory(ctx); err == nil {
		return model.ErrAlreadyInitialized
	}
	inv.ShowtimeID = t.showtimeID
	t.inventory = &inv
	t.seats = make(map[string]model.Seat, len(seats))
	for _, seat := range seats {
		seat.ShowtimeID = t.showtimeID
		t.seats[seat.Code] = copySeat(seat)
	}
	return nil
}

func (t *memoryTx) DeleteInventory(ctx context.Context) error {
	if _, err := t.Inventory(ctx); err != nil {
		return err
	}
	t.dropBase = true
	t.inventory = nil
	t.seats = make(map[string]model.Seat)
	return nil
}

func (t *memoryTx) Seats(_ context.Context, codes []string) ([]model.Seat, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	var base map[string]model.Seat
	if !t.dropBase {
		base = t.store.seats[t.showtimeID]
	}
	lookup := func(code string) (model.Seat, bool) {
		if seat, ok := t.seats[code]; ok {
			return seat, true
		}
		seat, ok := base[code]
		return seat, ok
	}

	var out []model.Seat
	if codes == nil {
		merged := make(map[string]model.Seat, len(base)+len(t.seats))
		for code, seat := range base {
			merged[code] = seat
		}
		for code, seat := range t.seats {
			merged[code] = seat
		}
		out = make([]model.Seat, 0, len(merged))
		for _, seat := range merged {
			out = append(out, copySeat(seat))
		}
	} else {
		out = make([]model.Seat, 0, len(codes))
		seen := make(map[string]struct{}, len(codes))
		for _, code := range codes {
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			if seat, ok := lookup(code); ok {
				out = append(out, copySeat(seat))
			}
		}
	}
	sortSeats(out)
	return out, nil
}

func (t *memoryTx) SaveSeats(ctx context.Context, seats []model.Seat) error {
	if _, err := t.Inventory(ctx); err != nil {
		return err
	}
	for _, seat := range seats {
		seat.ShowtimeID = t.showtimeID
		t.seats[seat.Code] = copySeat(seat)
	}
	return nil
}

func (t *memoryTx) Booking(_ context.Context, id string) (*model.Booking, error) {
	if b, ok := t.bookings[id]; ok {
		return b.Clone(), nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	b, ok := t.store.bookings[id]
	if !ok || b.ShowtimeID != t.showtimeID {
		return nil, model.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (t *memoryTx) SaveBooking(_ context.Context, b *model.Booking) error {
	if b.ShowtimeID != t.showtimeID {
		return fmt.Errorf("booking %s belongs to showtime %s, not %s", b.ID, b.ShowtimeID, t.showtimeID)
	}
	t.bookings[b.ID] = b.Clone()
	return nil
}

func (t *memoryTx) Correlation(_ context.Context, id string) (*model.PaymentCorrelation, error) {
	if c, ok := t.correlations[id]; ok {
		return copyCorrelation(c), nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	c, ok := t.store.correlations[id]
	if !ok || c.ShowtimeID != t.showtimeID {
		return nil, model.ErrUnknownCorrelation
	}
	return copyCorrelation(c), nil
}

func (t *memoryTx) SaveCorrelation(_ context.Context, c *model.PaymentCorrelation) error {
	if c.ShowtimeID != t.showtimeID {
		return fmt.Errorf("correlation %s belongs to showtime %s, not %s", c.ID, c.ShowtimeID, t.showtimeID)
	}
	t.correlations[c.ID] = copyCorrelation(c)
	return nil
}

func (t *memoryTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.dropBase {
		delete(s.inventories, t.showtimeID)
		delete(s.seats, t.showtimeID)
	}
	if t.inventory != nil {
		s.inventories[t.showtimeID] = *t.inventory
	}
	if len(t.seats) > 0 {
		m, ok := s.seats[t.showtimeID]
		if !ok {
			m = make(map[string]model.Seat, len(t.seats))
			s.seats[t.showtimeID] = m
		}
		for code, seat := range t.seats {
			m[code] = seat
		}
	}
	for id, b := range t.bookings {
		s.bookings[id] = b
	}
	for id, c := range t.correlations {
		s.correlations[id] = c
	}
}

func copySeat(s model.Seat) model.Seat {
	if s.HoldExpiresAt != nil {
		exp := *s.HoldExpiresAt
		s.HoldExpiresAt = &exp
	}
	return s
}

func copyCorrelation(c *model.PaymentCorrelation) *model.PaymentCorrelation {
	out := *c
	if c.ResolvedAt != nil {
		at := *c.ResolvedAt
		out.ResolvedAt = &at
	}
	return &out
}

func sortSeats(seats []model.Seat) {
	sort.Slice(seats, func(i, j int) bool { return seats[i].Position < seats[j].Position })
}
