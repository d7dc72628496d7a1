package domain

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// TimeSlotKey identifies one capacity-tracked slot. It is a value type:
// every timestamp inside [start, start+duration) maps to the same key.
type TimeSlotKey struct {
	BusinessID string `json:"business_id"`
	Date       string `json:"date"`
	Start      string `json:"start"`
}

func (k TimeSlotKey) String() string {
	return fmt.Sprintf("slots:%s:%s:%s", k.BusinessID, k.Date, k.Start)
}

// StartTime resolves the key to an instant in the given location
func (k TimeSlotKey) StartTime(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" 15:04", k.Date+" "+k.Start, loc)
}

// SlotInfo describes a slot and its current occupancy
type SlotInfo struct {
	Key      TimeSlotKey
	Start    time.Time
	End      time.Time
	Capacity int
	Occupied int
}

// Available reports whether at least one more unit fits
func (s SlotInfo) Available() bool {
	return s.Occupied < s.Capacity
}

// Fits reports whether the given number of units fits in the slot
func (s SlotInfo) Fits(units int) bool {
	return s.Occupied+units <= s.Capacity
}

// Remaining returns the free capacity units
func (s SlotInfo) Remaining() int {
	if s.Occupied >= s.Capacity {
		return 0
	}
	return s.Capacity - s.Occupied
}

// SlotAvailability is the read-only view surfaced to booking collaborators
type SlotAvailability struct {
	SlotStart string `json:"slot_start"`
	SlotEnd   string `json:"slot_end"`
	Available bool   `json:"available"`
	Capacity  int    `json:"capacity"`
	Occupied  int    `json:"occupied"`
}
