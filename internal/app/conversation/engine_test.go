package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/adapter/memory"
	"github.com/YelzhanWeb/pizzaline/internal/app/calendar"
	"github.com/YelzhanWeb/pizzaline/internal/app/extractor"
	"github.com/YelzhanWeb/pizzaline/internal/app/reservation"
	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

// scriptedResponder answers with the reply registered for the last user line
type scriptedResponder struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
}

func (r *scriptedResponder) Respond(ctx context.Context, messages []domain.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	last := messages[len(messages)-1]
	if last.Role != domain.RoleUser {
		return "", fmt.Errorf("last message is %s", last.Role)
	}
	if reply, ok := r.replies[last.Content]; ok {
		return reply, nil
	}
	return "Certo.", nil
}

type memoryArchiver struct {
	mu       sync.Mutex
	sessions []domain.Session
}

func (a *memoryArchiver) Archive(ctx context.Context, s domain.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = append(a.sessions, s)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []interfaces.ReservationMessage
}

func (l *eventLog) PublishReservation(ctx context.Context, msg interfaces.ReservationMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, msg)
	return nil
}

type harness struct {
	engine    *Engine
	store     interfaces.CapacityStore
	responder *scriptedResponder
	archiver  *memoryArchiver
	events    *eventLog
	business  domain.Business
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := domain.Business{
		ID:                  "roma",
		Name:                "Pizzeria Roma",
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
	directory, err := memory.NewBusinessDirectory([]domain.Business{b})
	if err != nil {
		t.Fatal(err)
	}
	now, _ := time.ParseInLocation("2006-01-02 15:04", "2026-05-15 12:00", b.Location())

	store := memory.NewCapacityStore()
	reservations := memory.NewReservationRepository()
	cal := calendar.New(store, calendar.WithClock(func() time.Time { return now }))
	log := logger.Nop()
	responder := &scriptedResponder{replies: map[string]string{}}
	archiver := &memoryArchiver{}
	events := &eventLog{}

	engine := NewEngine(Deps{
		Directory:    directory,
		Registry:     memory.NewSessionRegistry(),
		Reservations: reservations,
		Extractor:    extractor.New(),
		Calendar:     cal,
		Coordinator:  reservation.NewCoordinator(store, cal, reservations, events, log),
		Responder:    responder,
		Archiver:     archiver,
		Logger:       log,
	})
	return &harness{engine: engine, store: store, responder: responder, archiver: archiver, events: events, business: b}
}

func (h *harness) script(user, reply string) {
	h.responder.mu.Lock()
	defer h.responder.mu.Unlock()
	h.responder.replies[user] = reply
}

func block(text, json string) string {
	return text + "\n```json\n" + json + "\n```"
}

func slot19() domain.TimeSlotKey {
	return domain.TimeSlotKey{BusinessID: "roma", Date: "2026-05-15", Start: "19:00"}
}

const orderBlock = `{"items":[{"name":"Margherita","quantity":2},{"name":"Diavola","quantity":1}],"customer_name":"Mario","pickup_time":"19:00"}`

func TestIngestConfirmsOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.script("due margherita e una diavola alle 19, sono Mario", block("Due margherita e una diavola alle 19. Confermiamo?", orderBlock))
	h.script("confermo", block("Grazie Mario, ordine confermato!", orderBlock))

	turn, err := h.engine.Ingest(ctx, "call-1", "roma", "due margherita e una diavola alle 19, sono Mario")
	if err != nil {
		t.Fatal(err)
	}
	if turn.State != domain.StateOpen || len(turn.Draft.Items) != 2 {
		t.Fatalf("turn 1 = %+v", turn)
	}
	if strings.Contains(turn.Reply, "```") {
		t.Fatalf("reply still carries the block: %q", turn.Reply)
	}
	if turn.Draft.RequestedPickup == nil || *turn.Draft.RequestedPickup != slot19() {
		t.Fatalf("pickup = %v", turn.Draft.RequestedPickup)
	}

	turn, err = h.engine.Ingest(ctx, "call-1", "roma", "confermo")
	if err != nil {
		t.Fatal(err)
	}
	if turn.State != domain.StateConfirmed || turn.Reservation == nil {
		t.Fatalf("turn 2 = %+v", turn)
	}
	if turn.Reservation.Units != 3 || turn.Reservation.CustomerName != "Mario" {
		t.Fatalf("reservation = %+v", turn.Reservation)
	}
	if occ, _ := h.store.Occupancy(ctx, slot19()); occ != 3 {
		t.Fatalf("occupancy = %d", occ)
	}

	session, err := h.engine.Session(ctx, "call-1")
	if err != nil {
		t.Fatal(err)
	}
	if session.ReservationID == nil || *session.ReservationID != turn.Reservation.ID {
		t.Fatal("session does not point at its reservation")
	}
	assertHistoryContains(t, session, "[state] OPEN -> AWAITING_CONFIRMATION")
	assertHistoryContains(t, session, "[state] AWAITING_CONFIRMATION -> CONFIRMED")

	if _, err := h.engine.Ingest(ctx, "call-1", "roma", "aggiungi una coca"); !errors.Is(err, domain.ErrSessionAlreadyConfirmed) {
		t.Fatalf("err = %v, want ErrSessionAlreadyConfirmed", err)
	}
}

func TestIngestCarriesCallerPhoneAndTranscript(t *testing.T) {
	ctx := domain.WithCallerPhone(context.Background(), "+393331234567")
	h := newHarness(t)
	h.script("due margherita e una diavola alle 19, sono Mario", block("Confermiamo?", orderBlock))
	h.script("confermo", block("Confermato!", orderBlock))

	if _, err := h.engine.Ingest(ctx, "call-6", "roma", "due margherita e una diavola alle 19, sono Mario"); err != nil {
		t.Fatal(err)
	}
	// later turns may come without the caller id
	turn, err := h.engine.Ingest(context.Background(), "call-6", "roma", "confermo")
	if err != nil {
		t.Fatal(err)
	}
	if turn.Reservation == nil || turn.Reservation.CustomerPhone != "+393331234567" {
		t.Fatalf("reservation = %+v", turn.Reservation)
	}

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	if len(h.events.events) != 1 {
		t.Fatalf("events = %d", len(h.events.events))
	}
	msg := h.events.events[0]
	if msg.Event != interfaces.EventReservationConfirmed || msg.CustomerPhone != "+393331234567" {
		t.Fatalf("event = %+v", msg)
	}
	var users int
	for _, m := range msg.ConversationLog {
		if m.Role == domain.RoleUser {
			users++
		}
	}
	if users != 2 {
		t.Fatalf("conversation log has %d user lines, want 2", users)
	}
}

func TestIngestAffirmationWithEmptyDraftStaysOpen(t *testing.T) {
	h := newHarness(t)

	turn, err := h.engine.Ingest(context.Background(), "call-1", "roma", "ok")
	if err != nil {
		t.Fatal(err)
	}
	if turn.State != domain.StateOpen || turn.Reservation != nil {
		t.Fatalf("turn = %+v", turn)
	}
	session, _ := h.engine.Session(context.Background(), "call-1")
	for _, m := range session.Messages {
		if strings.HasPrefix(m.Content, "[state]") {
			t.Fatalf("unexpected transition %q", m.Content)
		}
	}
}

func TestIngestConfirmationThatEmptiesOrderStaysOpen(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	two := `{"items":[{"name":"Margherita","quantity":2}],"pickup_time":"19:00"}`
	h.script("due margherita alle 19", block("Due margherita alle 19.", two))
	h.script("ok, anzi togli tutto", block("Va bene, ho tolto tutto.", `{"items":[]}`))

	if _, err := h.engine.Ingest(ctx, "call-5", "roma", "due margherita alle 19"); err != nil {
		t.Fatal(err)
	}
	turn, err := h.engine.Ingest(ctx, "call-5", "roma", "ok, anzi togli tutto")
	if err != nil {
		t.Fatal(err)
	}

	if turn.State != domain.StateOpen || turn.Reservation != nil {
		t.Fatalf("turn = %+v", turn)
	}
	if len(turn.Draft.Items) != 0 {
		t.Fatalf("items = %+v", turn.Draft.Items)
	}
	if !strings.Contains(turn.Reply, "Cosa desidera ordinare") {
		t.Fatalf("reply = %q", turn.Reply)
	}
	if occ, _ := h.store.Occupancy(ctx, slot19()); occ != 0 {
		t.Fatalf("occupancy = %d", occ)
	}
	session, _ := h.engine.Session(ctx, "call-5")
	assertHistoryContains(t, session, renegotiateTag)
}

func TestIngestRenegotiatesFullSlot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if ok, _ := h.store.TryReserve(ctx, slot19(), 7, 10); !ok {
		t.Fatal("setup failed")
	}

	five := `{"items":[{"name":"Diavola","quantity":5}],"pickup_time":"19:00"}`
	h.script("cinque diavola alle 19", block("Cinque diavola alle 19.", five))
	h.script("va bene", block("Perfetto.", five))

	if _, err := h.engine.Ingest(ctx, "call-2", "roma", "cinque diavola alle 19"); err != nil {
		t.Fatal(err)
	}
	turn, err := h.engine.Ingest(ctx, "call-2", "roma", "va bene")
	if err != nil {
		t.Fatal(err)
	}

	if turn.State != domain.StateOpen || turn.Reservation != nil {
		t.Fatalf("turn = %+v", turn)
	}
	if len(turn.Draft.Items) != 1 || turn.Draft.Items[0].Quantity != 5 {
		t.Fatalf("items lost: %+v", turn.Draft.Items)
	}
	if turn.Draft.RequestedPickup != nil || turn.Draft.PickupText != nil {
		t.Fatal("pickup not cleared")
	}
	if !strings.Contains(turn.Reply, "19:15") {
		t.Fatalf("reply does not suggest 19:15: %q", turn.Reply)
	}
	if occ, _ := h.store.Occupancy(ctx, slot19()); occ != 7 {
		t.Fatalf("occupancy = %d", occ)
	}

	session, _ := h.engine.Session(ctx, "call-2")
	assertHistoryContains(t, session, "[state] AWAITING_CONFIRMATION -> OPEN")
	assertHistoryContains(t, session, renegotiateTag)
}

func TestIngestConfirmationWithoutPickupAsksForTime(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	noTime := `{"items":[{"name":"Diavola","quantity":1}]}`
	h.script("una diavola", block("Una diavola.", noTime))
	h.script("ok", block("Bene.", noTime))

	h.engine.Ingest(ctx, "call-3", "roma", "una diavola")
	turn, err := h.engine.Ingest(ctx, "call-3", "roma", "ok")
	if err != nil {
		t.Fatal(err)
	}
	if turn.State != domain.StateOpen {
		t.Fatalf("state = %s", turn.State)
	}
	if !strings.Contains(turn.Reply, "A che ora") {
		t.Fatalf("reply = %q", turn.Reply)
	}
}

func TestIngestResponderFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.script("una diavola alle 20", block("Ok.", `{"items":[{"name":"Diavola","quantity":1}],"pickup_time":"20:00"}`))
	if _, err := h.engine.Ingest(ctx, "call-4", "roma", "una diavola alle 20"); err != nil {
		t.Fatal(err)
	}
	before, _ := h.engine.Session(ctx, "call-4")

	h.responder.err = context.DeadlineExceeded
	turn, err := h.engine.Ingest(ctx, "call-4", "roma", "confermo")
	if err != nil {
		t.Fatal(err)
	}
	if turn.Reply != fallbackReply || turn.State != domain.StateOpen {
		t.Fatalf("turn = %+v", turn)
	}
	after, _ := h.engine.Session(ctx, "call-4")
	if len(after.Messages) != len(before.Messages) {
		t.Fatal("failed turn was stored")
	}
}

func TestIngestBusinessChecks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	if _, err := h.engine.Ingest(ctx, "call-5", "napoli", "ciao"); !errors.Is(err, domain.ErrBusinessNotFound) {
		t.Fatalf("err = %v", err)
	}
	if _, err := h.engine.Ingest(ctx, "call-5", "roma", "   "); err == nil {
		t.Fatal("empty utterance accepted")
	}
}

func TestResetReleasesReservation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.script("ordine", block("Ecco.", orderBlock))
	h.script("confermo", block("Confermato.", orderBlock))
	h.engine.Ingest(ctx, "call-6", "roma", "ordine")
	turn, err := h.engine.Ingest(ctx, "call-6", "roma", "confermo")
	if err != nil || turn.State != domain.StateConfirmed {
		t.Fatalf("setup: %+v, %v", turn, err)
	}

	if err := h.engine.Reset(ctx, "call-6"); err != nil {
		t.Fatal(err)
	}
	if occ, _ := h.store.Occupancy(ctx, slot19()); occ != 0 {
		t.Fatalf("occupancy after reset = %d", occ)
	}
	if _, err := h.engine.Session(ctx, "call-6"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("session survived reset: %v", err)
	}
	if len(h.archiver.sessions) != 1 || h.archiver.sessions[0].State != domain.StateReset {
		t.Fatalf("archived = %+v", h.archiver.sessions)
	}

	// a second reset is harmless and the id starts over
	if err := h.engine.Reset(ctx, "call-6"); err != nil {
		t.Fatal(err)
	}
	turn, err = h.engine.Ingest(ctx, "call-6", "roma", "buonasera")
	if err != nil {
		t.Fatal(err)
	}
	if turn.State != domain.StateOpen || !turn.Draft.IsEmpty() {
		t.Fatalf("fresh session = %+v", turn)
	}
}

func TestRebuildReplaysHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.script("due margherita", block("Due margherita.", `{"items":[{"name":"Margherita","quantity":2}]}`))
	h.script("e una diavola alle 20", "Certo, aggiungo.")
	h.engine.Ingest(ctx, "call-7", "roma", "due margherita")
	h.engine.Ingest(ctx, "call-7", "roma", "e una diavola alle 20")

	session, _ := h.engine.Session(ctx, "call-7")
	want := session.Draft
	session.Draft = domain.OrderDraft{}

	got := h.engine.Rebuild(session, &h.business)
	if len(got.Items) != len(want.Items) {
		t.Fatalf("rebuilt %+v, want %+v", got.Items, want.Items)
	}
	for i := range want.Items {
		if got.Items[i] != want.Items[i] {
			t.Fatalf("item %d = %+v, want %+v", i, got.Items[i], want.Items[i])
		}
	}
	if got.RequestedPickup == nil || got.RequestedPickup.Start != "20:00" {
		t.Fatalf("pickup = %v", got.RequestedPickup)
	}
}

func TestConcurrentSessionsNeverOverbook(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	one := `{"items":[{"name":"Margherita","quantity":1}],"pickup_time":"19:00"}`
	h.script("una margherita alle 19", block("Una margherita.", one))
	h.script("confermo", block("Fatto.", one))

	const sessions = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed int
	)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := h.engine.Ingest(ctx, id, "roma", "una margherita alle 19"); err != nil {
				t.Error(err)
				return
			}
			turn, err := h.engine.Ingest(ctx, id, "roma", "confermo")
			if err != nil {
				t.Error(err)
				return
			}
			if turn.State == domain.StateConfirmed {
				mu.Lock()
				confirmed++
				mu.Unlock()
			}
		}(fmt.Sprintf("call-%d", i))
	}
	wg.Wait()

	if confirmed != 10 {
		t.Fatalf("confirmed = %d, want 10", confirmed)
	}
	if occ, _ := h.store.Occupancy(ctx, slot19()); occ != 10 {
		t.Fatalf("occupancy = %d", occ)
	}
}

func TestAvailableSlots(t *testing.T) {
	h := newHarness(t)
	date := time.Date(2026, 5, 15, 0, 0, 0, 0, h.business.Location())
	slots, err := h.engine.AvailableSlots(context.Background(), "roma", date)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 16 || !slots[0].Available {
		t.Fatalf("slots = %+v", slots)
	}
}

func TestCheckSlot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	date := time.Date(2026, 5, 15, 0, 0, 0, 0, h.business.Location())
	h.store.TryReserve(ctx, slot19(), 9, 10)

	slot, err := h.engine.CheckSlot(ctx, "roma", date, "19:10", 2)
	if err != nil {
		t.Fatal(err)
	}
	if slot.SlotStart != "19:00" || slot.Available || slot.Occupied != 9 {
		t.Fatalf("slot = %+v", slot)
	}

	if _, err := h.engine.CheckSlot(ctx, "napoli", date, "19:00", 1); !errors.Is(err, domain.ErrBusinessNotFound) {
		t.Fatalf("unknown business err = %v", err)
	}
}

func TestKeyedMutexSerializes(t *testing.T) {
	k := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("call")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 100 {
		t.Fatalf("counter = %d", counter)
	}
	if len(k.locks) != 0 {
		t.Fatalf("%d lock entries leaked", len(k.locks))
	}
}

func assertHistoryContains(t *testing.T, s *domain.Session, fragment string) {
	t.Helper()
	for _, m := range s.Messages {
		if strings.Contains(m.Content, fragment) {
			return
		}
	}
	t.Fatalf("history has no message containing %q", fragment)
}
