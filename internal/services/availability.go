package services

import (
	"strings"
	"time"

	"github.com/dumxhh/play-book-app/internal/models"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	maxDurationMinutes = 24 * 60
)

// DefaultSlotGrid is the set of bookable start times offered by the club,
// one per hour from opening to the last bookable hour.
var DefaultSlotGrid = []string{
	"08:00", "09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00",
	"16:00", "17:00", "18:00", "19:00", "20:00", "21:00", "22:00",
}

type SlotRequest struct {
	Resource        models.Resource
	Date            string
	StartTime       string
	DurationMinutes int
}

// Interval is a half-open [Start, End) occupation of one resource.
type Interval struct {
	Resource models.Resource
	Start    time.Time
	End      time.Time
}

func (i Interval) Overlaps(other Interval) bool {
	return i.Resource == other.Resource && i.Start.Before(other.End) && other.Start.Before(i.End)
}

type SlotAvailability struct {
	StartTime string `json:"start_time"`
	Available bool   `json:"available"`
}

type SlotResolver struct {
	clock    Clock
	location *time.Location
	grid     []string
	gridSet  map[string]struct{}
}

func NewSlotResolver(clock Clock, location *time.Location, grid []string) *SlotResolver {
	if clock == nil {
		clock = SystemClock
	}
	if location == nil {
		location = time.UTC
	}
	if len(grid) == 0 {
		grid = DefaultSlotGrid
	}

	gridSet := make(map[string]struct{}, len(grid))
	for _, start := range grid {
		gridSet[start] = struct{}{}
	}
	return &SlotResolver{
		clock:    clock,
		location: location,
		grid:     append([]string(nil), grid...),
		gridSet:  gridSet,
	}
}

func (r *SlotResolver) Grid() []string {
	return append([]string(nil), r.grid...)
}

func (r *SlotResolver) Location() *time.Location {
	return r.location
}

// Validate checks a booking request against the grid, the duration rules and
// the clock, and returns the interval it would occupy.
func (r *SlotResolver) Validate(req SlotRequest) (Interval, error) {
	if !req.Resource.Valid() {
		return Interval{}, invalidRequest("unknown resource %q", req.Resource)
	}
	if req.DurationMinutes <= 0 || req.DurationMinutes > maxDurationMinutes {
		return Interval{}, invalidRequest("duration must be between 1 and %d minutes", maxDurationMinutes)
	}

	startTime := strings.TrimSpace(req.StartTime)
	if _, ok := r.gridSet[startTime]; !ok {
		return Interval{}, invalidRequest("start time %q is not on the slot grid", req.StartTime)
	}

	slot, err := r.Interval(req.Resource, req.Date, startTime, req.DurationMinutes)
	if err != nil {
		return Interval{}, err
	}
	if slot.Start.Before(r.clock.Now()) {
		return Interval{}, invalidRequest("slot %s %s is in the past", req.Date, startTime)
	}
	return slot, nil
}

// Interval resolves a stored date and HH:MM start into absolute instants in
// the club's time zone.
func (r *SlotResolver) Interval(
	resource models.Resource,
	date string,
	startTime string,
	durationMinutes int,
) (Interval, error) {
	start, err := r.parseDateTime(date, startTime)
	if err != nil {
		return Interval{}, err
	}
	return Interval{
		Resource: resource,
		Start:    start,
		End:      start.Add(time.Duration(durationMinutes) * time.Minute),
	}, nil
}

func (r *SlotResolver) BlockInterval(block models.TimeBlock) (Interval, error) {
	start, err := r.parseDateTime(block.Date, block.StartTime)
	if err != nil {
		return Interval{}, err
	}
	end, err := r.parseDateTime(block.Date, block.EndTime)
	if err != nil {
		return Interval{}, err
	}
	if !end.After(start) {
		return Interval{}, invalidRequest("time block must end after it starts")
	}
	return Interval{Resource: block.Resource, Start: start, End: end}, nil
}

// LookupWindow is the range of stored dates whose reservations can overlap a
// slot on date: the day before covers bookings that run past midnight.
func (r *SlotResolver) LookupWindow(date string) (string, string, error) {
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), r.location)
	if err != nil {
		return "", "", invalidRequest("date %q must be YYYY-MM-DD", date)
	}
	return day.AddDate(0, 0, -1).Format(dateLayout), day.AddDate(0, 0, 1).Format(dateLayout), nil
}

// IsAvailable reports whether slot is free given the reservations and blocks
// recorded for its resource. Failed reservations release their slot; pending
// ones hold it. Records that cannot be resolved are treated as occupying.
func (r *SlotResolver) IsAvailable(
	slot Interval,
	reservations []models.Reservation,
	blocks []models.TimeBlock,
) bool {
	for _, reservation := range reservations {
		if reservation.Resource != slot.Resource || reservation.PaymentStatus == models.PaymentStatusFailed {
			continue
		}
		occupied, err := r.Interval(
			reservation.Resource,
			reservation.Date,
			reservation.StartTime,
			reservation.DurationMinutes,
		)
		if err != nil || occupied.Overlaps(slot) {
			return false
		}
	}

	for _, block := range blocks {
		if block.Resource != slot.Resource {
			continue
		}
		blocked, err := r.BlockInterval(block)
		if err != nil || blocked.Overlaps(slot) {
			return false
		}
	}
	return true
}

func (r *SlotResolver) parseDateTime(date, clock string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), r.location)
	if err != nil {
		return time.Time{}, invalidRequest("date %q must be YYYY-MM-DD", date)
	}
	hm, err := time.Parse(timeLayout, strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, invalidRequest("time %q must be HH:MM", clock)
	}
	return time.Date(
		day.Year(), day.Month(), day.Day(),
		hm.Hour(), hm.Minute(), 0, 0,
		r.location,
	), nil
}
