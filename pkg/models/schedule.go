package models

// SlotStatus is the derived occupancy state of a publication slot.
// It is recomputed on every read and never persisted.
type SlotStatus string

const (
	SlotPosted   SlotStatus = "posted"
	SlotCurrent  SlotStatus = "current"
	SlotUpcoming SlotStatus = "upcoming"
	SlotSkipped  SlotStatus = "skipped"
)

// TimeSlot is one entry of the fixed daily posting template.
type TimeSlot struct {
	ID         string `json:"id"`
	Time       string `json:"time"`  // "09:00", "10:30", ...
	Label      string `json:"label"` // "9:00 AM"
	OrderIndex int    `json:"order_index"`
}

// SlotView is a template slot annotated with its derived status and the
// article assigned to it, if any.
type SlotView struct {
	TimeSlot
	Status  SlotStatus `json:"status"`
	Article *Article   `json:"article,omitempty"`
}

// DefaultTimeSlots is the default posting schedule: 6 slots per day.
var DefaultTimeSlots = []TimeSlot{
	{ID: "slot-1", Time: "09:00", Label: "9:00 AM", OrderIndex: 0},
	{ID: "slot-2", Time: "10:30", Label: "10:30 AM", OrderIndex: 1},
	{ID: "slot-3", Time: "12:00", Label: "12:00 PM", OrderIndex: 2},
	{ID: "slot-4", Time: "14:00", Label: "2:00 PM", OrderIndex: 3},
	{ID: "slot-5", Time: "15:30", Label: "3:30 PM", OrderIndex: 4},
	{ID: "slot-6", Time: "17:00", Label: "5:00 PM", OrderIndex: 5},
}
