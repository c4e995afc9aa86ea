package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masthead/pkg/models"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 8, 28, hour, min, 0, 0, time.UTC)
}

func threeSlots() []models.TimeSlot {
	return []models.TimeSlot{
		{ID: "slot-1", Time: "09:00", Label: "9:00 AM", OrderIndex: 0},
		{ID: "slot-2", Time: "10:30", Label: "10:30 AM", OrderIndex: 1},
		{ID: "slot-3", Time: "12:00", Label: "12:00 PM", OrderIndex: 2},
	}
}

func approved(ids ...string) []models.Article {
	out := make([]models.Article, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Article{ID: id, Status: models.StatusApproved})
	}
	return out
}

func TestCurrentSlotIsLatestAtOrBeforeNow(t *testing.T) {
	tpl := threeSlots()

	assert.Equal(t, 0, CurrentSlotIndex(at(9, 15), tpl))
	assert.Equal(t, 1, CurrentSlotIndex(at(10, 30), tpl))
	assert.Equal(t, 2, CurrentSlotIndex(at(23, 59), tpl))
}

func TestBeforeDayStartCollapsesToFirstSlot(t *testing.T) {
	assert.Equal(t, 0, CurrentSlotIndex(at(6, 0), threeSlots()))
}

func TestCurrentSlotEmptyTemplate(t *testing.T) {
	assert.Equal(t, -1, CurrentSlotIndex(at(12, 0), nil))
}

func TestDeriveExactlyOneCurrentWhenUnposted(t *testing.T) {
	// No approvals: one current slot, earlier ones skipped, later upcoming.
	slots := Derive(at(12, 30), threeSlots(), nil)
	require.Len(t, slots, 3)
	assert.Equal(t, models.SlotSkipped, slots[0].Status)
	assert.Equal(t, models.SlotSkipped, slots[1].Status)
	assert.Equal(t, models.SlotCurrent, slots[2].Status)
}

func TestDerivePostedWinsOverTime(t *testing.T) {
	// An approval pairs to slot 1 positionally even though its time passed.
	slots := Derive(at(9, 15), threeSlots(), approved("x"))
	require.Len(t, slots, 3)
	assert.Equal(t, models.SlotPosted, slots[0].Status)
	require.NotNil(t, slots[0].Article)
	assert.Equal(t, "x", slots[0].Article.ID)
	assert.Equal(t, models.SlotUpcoming, slots[1].Status)
	assert.Equal(t, models.SlotUpcoming, slots[2].Status)
}

func TestDeriveCurrentWinsOverSkipped(t *testing.T) {
	// 09:15 with nothing posted: slot 1 is current, not skipped.
	slots := Derive(at(9, 15), threeSlots(), nil)
	assert.Equal(t, models.SlotCurrent, slots[0].Status)
	assert.Equal(t, models.SlotUpcoming, slots[1].Status)
}

func TestDeriveSixSlotTwoApprovals(t *testing.T) {
	// Approvals fill slots 1 and 2; at 12:10 slot 3 is current; slots 4-6
	// are upcoming.
	slots := Derive(at(12, 10), models.DefaultTimeSlots, approved("x", "y"))
	require.Len(t, slots, 6)

	assert.Equal(t, models.SlotPosted, slots[0].Status)
	assert.Equal(t, "x", slots[0].Article.ID)
	assert.Equal(t, models.SlotPosted, slots[1].Status)
	assert.Equal(t, "y", slots[1].Article.ID)
	assert.Equal(t, models.SlotCurrent, slots[2].Status)
	for i := 3; i < 6; i++ {
		assert.Equal(t, models.SlotUpcoming, slots[i].Status, "slot %d", i+1)
	}

	// Later in the day the unfilled 12:00 slot becomes skipped.
	slots = Derive(at(14, 5), models.DefaultTimeSlots, approved("x", "y"))
	assert.Equal(t, models.SlotSkipped, slots[2].Status)
	assert.Equal(t, models.SlotCurrent, slots[3].Status)
}

func TestDeriveIsPure(t *testing.T) {
	tpl := models.DefaultTimeSlots
	items := approved("x", "y", "z")
	now := at(15, 45)

	first := Derive(now, tpl, items)
	second := Derive(now, tpl, items)
	assert.Equal(t, first, second)

	// Mutating a returned view must not leak into the inputs.
	first[0].Article.Title = "mutated"
	assert.Empty(t, items[0].Title)
}

func TestViewCountsPostedSlots(t *testing.T) {
	view := View(at(11, 0), models.DefaultTimeSlots, approved("x", "y", "z"))
	assert.Equal(t, 3, view.Posted)
	assert.Equal(t, 6, view.Total)
	require.Len(t, view.Slots, 6)
}

func TestMalformedSlotTimeNeverCurrent(t *testing.T) {
	tpl := []models.TimeSlot{
		{ID: "slot-1", Time: "09:00", Label: "9:00 AM", OrderIndex: 0},
		{ID: "slot-2", Time: "10:30", Label: "10:30 AM", OrderIndex: 1},
		{ID: "slot-3", Time: "25:99", Label: "broken", OrderIndex: 2},
	}

	// Late in the day the malformed trailing slot must not win selection.
	require.Equal(t, 1, CurrentSlotIndex(at(23, 0), tpl))

	views := Derive(at(23, 0), tpl, nil)
	assert.Equal(t, models.SlotSkipped, views[0].Status)
	assert.Equal(t, models.SlotCurrent, views[1].Status)
	assert.Equal(t, models.SlotUpcoming, views[2].Status)
}
