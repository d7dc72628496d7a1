package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

// Calendar maps business hours to capacity-tracked slots
type Calendar struct {
	store interfaces.CapacityStore
	now   func() time.Time
}

type Option func(*Calendar)

// WithClock replaces the wall clock, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(c *Calendar) {
		c.now = now
	}
}

func New(store interfaces.CapacityStore, opts ...Option) *Calendar {
	c := &Calendar{store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the calendar's notion of the current time
func (c *Calendar) Now() time.Time {
	return c.now()
}

type slotBounds struct {
	start, end int
}

// bounds lists the slots of a weekday in minutes since midnight, ordered by
// start. A trailing partial slot is cut at the window close.
func bounds(b *domain.Business, day time.Weekday) ([]slotBounds, error) {
	step := int(b.SlotDuration() / time.Minute)
	seen := make(map[int]bool)
	var out []slotBounds

	for _, w := range b.WindowsFor(day) {
		open, closeAt, err := w.Bounds()
		if err != nil {
			return nil, err
		}
		for m := open; m < closeAt; m += step {
			if seen[m] {
				continue
			}
			seen[m] = true
			end := m + step
			if end > closeAt {
				end = closeAt
			}
			out = append(out, slotBounds{start: m, end: end})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out, nil
}

func dayStart(b *domain.Business, date time.Time) time.Time {
	loc := b.Location()
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SlotsForDate returns every slot of the date with its current occupancy
func (c *Calendar) SlotsForDate(ctx context.Context, b *domain.Business, date time.Time) ([]domain.SlotInfo, error) {
	midnight := dayStart(b, date)
	list, err := bounds(b, midnight.Weekday())
	if err != nil {
		return nil, err
	}
	capacity := b.CapacityFor(midnight.Weekday())
	dateStr := midnight.Format(domain.DateLayout)

	slots := make([]domain.SlotInfo, 0, len(list))
	for _, sb := range list {
		key := domain.TimeSlotKey{
			BusinessID: b.ID,
			Date:       dateStr,
			Start:      domain.FormatClockMinutes(sb.start),
		}
		occupied, err := c.store.Occupancy(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read occupancy of %s: %w", key, err)
		}
		slots = append(slots, domain.SlotInfo{
			Key:      key,
			Start:    atMinutes(midnight, sb.start),
			End:      atMinutes(midnight, sb.end),
			Capacity: capacity,
			Occupied: occupied,
		})
	}
	return slots, nil
}

// Normalize maps an instant to the key of the slot that contains it
func (c *Calendar) Normalize(b *domain.Business, at time.Time) (domain.TimeSlotKey, error) {
	local := at.In(b.Location())
	minutes := local.Hour()*60 + local.Minute()
	return c.normalizeMinutes(b, dayStart(b, local), minutes)
}

func (c *Calendar) normalizeMinutes(b *domain.Business, midnight time.Time, minutes int) (domain.TimeSlotKey, error) {
	dateStr := midnight.Format(domain.DateLayout)
	windows := b.WindowsFor(midnight.Weekday())
	if len(windows) == 0 {
		return domain.TimeSlotKey{}, &domain.SlotNotOpenError{
			Date:      dateStr,
			Requested: domain.FormatClockMinutes(minutes),
			Reason:    "closed all day",
		}
	}

	step := int(b.SlotDuration() / time.Minute)
	for _, w := range windows {
		open, closeAt, err := w.Bounds()
		if err != nil {
			return domain.TimeSlotKey{}, err
		}
		if minutes >= open && minutes < closeAt {
			start := open + (minutes-open)/step*step
			return domain.TimeSlotKey{
				BusinessID: b.ID,
				Date:       dateStr,
				Start:      domain.FormatClockMinutes(start),
			}, nil
		}
	}
	return domain.TimeSlotKey{}, &domain.SlotNotOpenError{
		Date:      dateStr,
		Requested: domain.FormatClockMinutes(minutes),
		Reason:    "outside opening hours",
	}
}

// ResolvePickup turns free pickup text into a slot key. Hours before noon
// that fall outside the opening hours are retried as evening hours, since
// "alle 8" at a pizzeria means 20:00.
func (c *Calendar) ResolvePickup(b *domain.Business, text string) (domain.TimeSlotKey, error) {
	req, ok := ParsePickup(text)
	if !ok {
		return domain.TimeSlotKey{}, &domain.SlotNotOpenError{Requested: text, Reason: "no time recognised"}
	}
	loc := b.Location()
	day, err := req.day(c.now(), loc)
	if err != nil {
		return domain.TimeSlotKey{}, &domain.SlotNotOpenError{Requested: text, Reason: "invalid date"}
	}

	key, err := c.normalizeMinutes(b, day, req.Minutes)
	if err != nil && req.Minutes < 12*60 {
		if evening, err2 := c.normalizeMinutes(b, day, req.Minutes+12*60); err2 == nil {
			return evening, nil
		}
	}
	return key, err
}

// SlotEnd returns the end of the slot identified by key
func (c *Calendar) SlotEnd(b *domain.Business, key domain.TimeSlotKey) (time.Time, error) {
	start, err := key.StartTime(b.Location())
	if err != nil {
		return time.Time{}, err
	}
	list, err := bounds(b, start.Weekday())
	if err != nil {
		return time.Time{}, err
	}
	minutes := start.Hour()*60 + start.Minute()
	for _, sb := range list {
		if sb.start == minutes {
			return atMinutes(dayStart(b, start), sb.end), nil
		}
	}
	return time.Time{}, &domain.SlotNotOpenError{Date: key.Date, Requested: key.Start, Reason: "not a slot start"}
}

// NearestAvailable scans the slots of the requested date by distance from
// the requested start and returns the first one that is not over and still
// has room for units. On equal distance the later slot wins, not the
// earliest: a full 19:00 with 18:45 and 19:15 both free suggests 19:15.
func (c *Calendar) NearestAvailable(ctx context.Context, b *domain.Business, requested domain.TimeSlotKey, units int) (domain.TimeSlotKey, bool, error) {
	loc := b.Location()
	target, err := requested.StartTime(loc)
	if err != nil {
		return domain.TimeSlotKey{}, false, fmt.Errorf("invalid slot key %s: %w", requested, err)
	}
	slots, err := c.SlotsForDate(ctx, b, target)
	if err != nil {
		return domain.TimeSlotKey{}, false, err
	}

	now := c.now()
	candidates := slots[:0:0]
	for _, s := range slots {
		if !s.End.After(now) {
			continue
		}
		candidates = append(candidates, s)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := absDuration(candidates[i].Start.Sub(target)), absDuration(candidates[j].Start.Sub(target))
		if di != dj {
			return di < dj
		}
		return candidates[i].Start.After(candidates[j].Start)
	})

	for _, s := range candidates {
		if s.Fits(units) {
			return s.Key, true, nil
		}
	}
	return domain.TimeSlotKey{}, false, nil
}

// AvailableSlots is the read-only availability view. Slots already over
// are reported as unavailable.
func (c *Calendar) AvailableSlots(ctx context.Context, b *domain.Business, date time.Time) ([]domain.SlotAvailability, error) {
	slots, err := c.SlotsForDate(ctx, b, date)
	if err != nil {
		return nil, err
	}
	now := c.now()
	out := make([]domain.SlotAvailability, len(slots))
	for i, s := range slots {
		out[i] = domain.SlotAvailability{
			SlotStart: s.Key.Start,
			SlotEnd:   s.End.Format("15:04"),
			Available: s.Available() && s.End.After(now),
			Capacity:  s.Capacity,
			Occupied:  s.Occupied,
		}
	}
	return out, nil
}

// CheckSlot reports on the single slot containing clock on date. With
// units > 0 the slot is available only if that many units still fit.
func (c *Calendar) CheckSlot(ctx context.Context, b *domain.Business, date time.Time, clock string, units int) (domain.SlotAvailability, error) {
	minutes, err := domain.ParseClockMinutes(clock)
	if err != nil {
		return domain.SlotAvailability{}, &domain.SlotNotOpenError{Requested: clock, Reason: "invalid time"}
	}
	key, err := c.normalizeMinutes(b, dayStart(b, date), minutes)
	if err != nil {
		return domain.SlotAvailability{}, err
	}
	slots, err := c.SlotsForDate(ctx, b, date)
	if err != nil {
		return domain.SlotAvailability{}, err
	}
	for _, s := range slots {
		if s.Key != key {
			continue
		}
		available := s.Available()
		if units > 0 {
			available = s.Fits(units)
		}
		return domain.SlotAvailability{
			SlotStart: s.Key.Start,
			SlotEnd:   s.End.Format("15:04"),
			Available: available && s.End.After(c.now()),
			Capacity:  s.Capacity,
			Occupied:  s.Occupied,
		}, nil
	}
	return domain.SlotAvailability{}, &domain.SlotNotOpenError{Date: key.Date, Requested: clock, Reason: "not a slot start"}
}

// atMinutes keeps wall-clock minutes correct across DST changes
func atMinutes(midnight time.Time, minutes int) time.Time {
	y, m, d := midnight.Date()
	return time.Date(y, m, d, 0, minutes, 0, 0, midnight.Location())
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
