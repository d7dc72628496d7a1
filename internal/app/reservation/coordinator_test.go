package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/adapter/memory"
	"github.com/YelzhanWeb/pizzaline/internal/app/calendar"
	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []interfaces.ReservationMessage
	err    error
}

func (p *recordingPublisher) PublishReservation(ctx context.Context, msg interfaces.ReservationMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	return p.err
}

func (p *recordingPublisher) count(event interfaces.ReservationEvent) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

type fixture struct {
	coord     *Coordinator
	store     interfaces.CapacityStore
	repo      interfaces.ReservationRepository
	publisher *recordingPublisher
	business  *domain.Business
}

func newFixture(t *testing.T, clock string) *fixture {
	t.Helper()
	b := &domain.Business{
		ID:                  "roma",
		Timezone:            "Europe/Rome",
		SlotDurationMinutes: 15,
		MaxUnitsPerSlot:     10,
		CapacityCategories:  []string{"pizza"},
		Hours: map[time.Weekday]domain.DayHours{
			time.Friday: {Windows: []domain.OpeningWindow{{Open: "18:00", Close: "22:00"}}},
		},
		Menu: []domain.MenuItem{
			{Name: "Margherita", Price: 7, Category: "pizza"},
			{Name: "Diavola", Price: 8, Category: "pizza"},
			{Name: "Coca Cola", Price: 2.5, Category: "bevande"},
		},
	}
	now, err := time.ParseInLocation("2006-01-02 15:04", "2026-05-15 "+clock, b.Location())
	if err != nil {
		t.Fatal(err)
	}

	store := memory.NewCapacityStore()
	repo := memory.NewReservationRepository()
	pub := &recordingPublisher{}
	cal := calendar.New(store, calendar.WithClock(func() time.Time { return now }))
	return &fixture{
		coord:     NewCoordinator(store, cal, repo, pub, logger.Nop()),
		store:     store,
		repo:      repo,
		publisher: pub,
		business:  b,
	}
}

func draft(pickup string, items ...domain.DraftItem) domain.OrderDraft {
	d := domain.OrderDraft{Items: items}
	if pickup != "" {
		d.PickupText = &pickup
	}
	return d
}

func item(name string, qty int, price float64, category string) domain.DraftItem {
	return domain.DraftItem{Name: name, Quantity: qty, UnitPrice: price, Category: category}
}

// flakyStore fails the next releaseFailures calls to Release
type flakyStore struct {
	interfaces.CapacityStore
	mu              sync.Mutex
	releaseFailures int
}

func (s *flakyStore) Release(ctx context.Context, key domain.TimeSlotKey, units int) error {
	s.mu.Lock()
	if s.releaseFailures > 0 {
		s.releaseFailures--
		s.mu.Unlock()
		return errors.New("capacity store unreachable")
	}
	s.mu.Unlock()
	return s.CapacityStore.Release(ctx, key, units)
}

func slot(start string) domain.TimeSlotKey {
	return domain.TimeSlotKey{BusinessID: "roma", Date: "2026-05-15", Start: start}
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "12:00")

	first, err := f.coord.TryReserve(ctx, "call-1", draft("19:00",
		item("Margherita", 2, 7, "pizza"),
		item("Diavola", 1, 8, "pizza"),
	), f.business)
	if err != nil {
		t.Fatal(err)
	}
	if first.Key != slot("19:00") || first.Units != 3 || first.TotalAmount != 22 {
		t.Fatalf("reservation = %+v", first)
	}
	if occ, _ := f.store.Occupancy(ctx, slot("19:00")); occ != 3 {
		t.Fatalf("occupancy = %d, want 3", occ)
	}

	_, err = f.coord.TryReserve(ctx, "call-2", draft("19:00", item("Diavola", 8, 8, "pizza")), f.business)
	var unavailable *domain.CapacityUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want CapacityUnavailableError", err)
	}
	if unavailable.Remaining != 7 || unavailable.Units != 8 {
		t.Fatalf("unavailable = %+v", unavailable)
	}
	if unavailable.Suggested == nil || unavailable.Suggested.Start != "19:15" {
		t.Fatalf("suggested = %v, want 19:15", unavailable.Suggested)
	}
	if occ, _ := f.store.Occupancy(ctx, slot("19:15")); occ != 0 {
		t.Fatalf("19:15 occupancy = %d", occ)
	}
	if occ, _ := f.store.Occupancy(ctx, slot("19:00")); occ != 3 {
		t.Fatalf("failed attempt changed occupancy to %d", occ)
	}
	if f.publisher.count(interfaces.EventReservationConfirmed) != 1 {
		t.Fatal("expected exactly one confirmed event")
	}
}

func TestTryReserveBeveragesDoNotCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "12:00")

	res, err := f.coord.TryReserve(ctx, "call-1", draft("alle 20",
		item("Margherita", 1, 7, "pizza"),
		item("Coca Cola", 6, 2.5, "bevande"),
	), f.business)
	if err != nil {
		t.Fatal(err)
	}
	if res.Units != 1 {
		t.Fatalf("units = %d, want 1", res.Units)
	}
}

func TestTryReserveSlotNotOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "19:20")

	tests := []struct {
		name   string
		pickup string
	}{
		{"no pickup", ""},
		{"closed hour", "alle 23"},
		{"slot over", "19:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.TryReserve(ctx, "call", draft(tt.pickup, item("Diavola", 1, 8, "pizza")), f.business)
			if !errors.Is(err, domain.ErrSlotNotOpen) {
				t.Fatalf("err = %v, want ErrSlotNotOpen", err)
			}
			if !IsRecoverable(err) {
				t.Fatal("slot errors must be recoverable")
			}
		})
	}
}

func TestTryReserveNoSlotLeft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "21:50")

	if ok, _ := f.store.TryReserve(ctx, slot("21:45"), 10, 10); !ok {
		t.Fatal("setup failed")
	}
	_, err := f.coord.TryReserve(ctx, "call", draft("21:45", item("Diavola", 1, 8, "pizza")), f.business)
	var unavailable *domain.CapacityUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v", err)
	}
	if unavailable.Suggested != nil {
		t.Fatalf("suggested %v although the day is over", unavailable.Suggested)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "12:00")

	if ok, _ := f.store.TryReserve(ctx, slot("19:00"), 4, 10); !ok {
		t.Fatal("setup failed")
	}
	res, err := f.coord.TryReserve(ctx, "call", draft("19:00", item("Margherita", 3, 7, "pizza")), f.business)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.coord.Release(ctx, res.ID); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if occ, _ := f.store.Occupancy(ctx, slot("19:00")); occ != 4 {
		t.Fatalf("occupancy = %d, want the 4 units of the other order", occ)
	}
	if f.publisher.count(interfaces.EventReservationReleased) != 1 {
		t.Fatal("expected exactly one released event")
	}
	if err := f.coord.Release(ctx, "missing"); !errors.Is(err, domain.ErrReservationNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestPublishFailureDoesNotFailReservation(t *testing.T) {
	f := newFixture(t, "12:00")
	f.publisher.err = errors.New("broker down")

	if _, err := f.coord.TryReserve(context.Background(), "call", draft("19:00", item("Diavola", 1, 8, "pizza")), f.business); err != nil {
		t.Fatalf("publish failure surfaced: %v", err)
	}
}

func TestReschedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "12:00")

	res, err := f.coord.TryReserve(ctx, "call", draft("19:00", item("Diavola", 2, 8, "pizza")), f.business)
	if err != nil {
		t.Fatal(err)
	}

	moved, err := f.coord.Reschedule(ctx, res.ID, slot("20:30"), f.business)
	if err != nil {
		t.Fatal(err)
	}
	if moved.ID == res.ID || moved.Key != slot("20:30") {
		t.Fatalf("moved = %+v", moved)
	}
	if occ, _ := f.store.Occupancy(ctx, slot("19:00")); occ != 0 {
		t.Fatalf("old slot occupancy = %d", occ)
	}
	if occ, _ := f.store.Occupancy(ctx, slot("20:30")); occ != 2 {
		t.Fatalf("new slot occupancy = %d", occ)
	}

	if _, err := f.coord.Reschedule(ctx, res.ID, slot("21:00"), f.business); !errors.Is(err, domain.ErrAlreadyReleased) {
		t.Fatalf("rescheduling a released reservation: %v", err)
	}
}

func TestRescheduleRestoresOriginalSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "12:00")

	res, err := f.coord.TryReserve(ctx, "call", draft("19:00", item("Diavola", 2, 8, "pizza")), f.business)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := f.store.TryReserve(ctx, slot("20:00"), 10, 10); !ok {
		t.Fatal("setup failed")
	}

	restored, err := f.coord.Reschedule(ctx, res.ID, slot("20:00"), f.business)
	if !errors.Is(err, domain.ErrCapacityUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if restored == nil || restored.Key != slot("19:00") {
		t.Fatalf("restored = %+v", restored)
	}
	if occ, _ := f.store.Occupancy(ctx, slot("19:00")); occ != 2 {
		t.Fatalf("original slot occupancy = %d", occ)
	}
}

func TestReleaseRetriesAfterStoreFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "12:00")
	store := &flakyStore{CapacityStore: f.store, releaseFailures: 1}
	coord := NewCoordinator(store, f.coord.calendar, f.repo, f.publisher, logger.Nop())

	res, err := coord.TryReserve(ctx, "call", draft("19:00", item("Margherita", 3, 7, "pizza")), f.business)
	if err != nil {
		t.Fatal(err)
	}

	if err := coord.Release(ctx, res.ID); err == nil {
		t.Fatal("store failure was swallowed")
	}
	if active, err := f.repo.FindActiveBySession(ctx, "call"); err != nil || active.ID != res.ID {
		t.Fatalf("reservation not active after failed release: %v, %v", active, err)
	}
	if f.publisher.count(interfaces.EventReservationReleased) != 0 {
		t.Fatal("released event published for a failed release")
	}

	if err := coord.Release(ctx, res.ID); err != nil {
		t.Fatal(err)
	}
	if err := coord.Release(ctx, res.ID); err != nil {
		t.Fatal(err)
	}
	if occ, _ := f.store.Occupancy(ctx, slot("19:00")); occ != 0 {
		t.Fatalf("occupancy = %d, want 0", occ)
	}
	if f.publisher.count(interfaces.EventReservationReleased) != 1 {
		t.Fatal("expected exactly one released event")
	}
}

func TestTryReserveRejectsEmptyDraft(t *testing.T) {
	f := newFixture(t, "12:00")

	res, err := f.coord.TryReserve(context.Background(), "call", draft("19:00"), f.business)
	if !errors.Is(err, domain.ErrEmptyOrder) || res != nil {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}
