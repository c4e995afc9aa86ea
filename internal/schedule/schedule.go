// Package schedule derives the day's posting timeline from the fixed slot
// template and the committed approval sequence. Derivation is a pure
// function of its inputs and is recomputed on every read.
package schedule

import (
	"time"

	"masthead/pkg/models"
)

// slotMinutes parses a "HH:MM" template time into minutes since midnight.
// A malformed time reports !ok and is skipped by slot selection, so it can
// never be mistaken for the current slot; it classifies as upcoming.
func slotMinutes(clock string) (int, bool) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// CurrentSlotIndex returns the index of the current slot: the latest slot
// whose clock time is at or before now's time of day. Before the first slot
// the day collapses to the first slot.
func CurrentSlotIndex(now time.Time, template []models.TimeSlot) int {
	if len(template) == 0 {
		return -1
	}
	nowMin := now.Hour()*60 + now.Minute()
	for i := len(template) - 1; i >= 0; i-- {
		if mins, ok := slotMinutes(template[i].Time); ok && mins <= nowMin {
			return i
		}
	}
	return 0
}

// Derive pairs approved articles to template slots by position (approval
// order fills slots front to back, deliberately ignoring the wall clock for
// assignment) and classifies every slot:
//
//	posted   — an article is paired to it, regardless of time
//	current  — the single slot identified by CurrentSlotIndex
//	skipped  — unpaired, strictly before now's time of day, not current
//	upcoming — everything else
//
// Exactly one unposted slot is current; earlier unposted slots are skipped,
// never current. Articles must be ordered oldest first, matching the
// committed publication sequence.
func Derive(now time.Time, template []models.TimeSlot, approved []models.Article) []models.SlotView {
	current := CurrentSlotIndex(now, template)
	nowMin := now.Hour()*60 + now.Minute()

	views := make([]models.SlotView, 0, len(template))
	for i, slot := range template {
		view := models.SlotView{TimeSlot: slot}
		mins, ok := slotMinutes(slot.Time)
		switch {
		case i < len(approved):
			view.Status = models.SlotPosted
			a := approved[i].Clone()
			view.Article = &a
		case i == current:
			view.Status = models.SlotCurrent
		case ok && mins < nowMin:
			view.Status = models.SlotSkipped
		default:
			view.Status = models.SlotUpcoming
		}
		views = append(views, view)
	}
	return views
}

// View wraps Derive with the posted/total fill counts shown above the
// timeline.
func View(now time.Time, template []models.TimeSlot, approved []models.Article) models.ScheduleView {
	slots := Derive(now, template, approved)
	posted := 0
	for _, s := range slots {
		if s.Status == models.SlotPosted {
			posted++
		}
	}
	return models.ScheduleView{
		Slots:  slots,
		Posted: posted,
		Total:  len(slots),
	}
}
