package crawler

import (
	"context"
	"fmt"
	"io"
	"time"
)

// RunContext is the configuration snapshot for one check cycle
type RunContext struct {
	Year     int
	Month    time.Month
	Interval time.Duration
}

// String returns the target month as YYYY-MM
func (rc RunContext) String() string {
	return fmt.Sprintf("%04d-%02d", rc.Year, int(rc.Month))
}

// CalendarCell is one day entry of the booking calendar markup
type CalendarCell struct {
	Label    string
	Bookable bool
	Token    string
}

// AvailableDate is a bookable calendar day
type AvailableDate struct {
	Year  int
	Month time.Month
	Day   int
}

// NewAvailableDate returns the date or an error when the day does not exist in that month
func NewAvailableDate(year int, month time.Month, day int) (AvailableDate, error) {
	if month < time.January || month > time.December {
		return AvailableDate{}, fmt.Errorf("invalid month %d", int(month))
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if day < 1 || t.Month() != month || t.Year() != year {
		return AvailableDate{}, fmt.Errorf("invalid day %d for %04d-%02d", day, year, int(month))
	}
	return AvailableDate{Year: year, Month: month, Day: day}, nil
}

// String returns the date as YYYY-MM-DD
func (d AvailableDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// KoreanLabel returns the date the way the calendar titles it, e.g. "2025년 05월 14일"
func (d AvailableDate) KoreanLabel() string {
	return fmt.Sprintf("%04d년 %02d월 %02d일", d.Year, int(d.Month), d.Day)
}

// MarshalText implements encoding.TextMarshaler so dates serialize as YYYY-MM-DD
func (d AvailableDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// TimeSlot is one bookable tee time of an available date
type TimeSlot struct {
	Course string `json:"course"`
	Time   string `json:"time"`
	Price  string `json:"price,omitempty"`
}

// String renders the slot as "<course> <time> (<price>원)"
func (s TimeSlot) String() string {
	return fmt.Sprintf("%s %s (%s원)", s.Course, s.Time, s.Price)
}

// AvailabilityReport is the result of one check cycle
type AvailabilityReport struct {
	CycleID    string                       `json:"cycle_id"`
	RunContext RunContext                   `json:"-"`
	Target     []AvailableDate              `json:"target"`
	Dates      []AvailableDate              `json:"dates"`
	Slots      map[AvailableDate][]TimeSlot `json:"slots"`
	CheckedAt  time.Time                    `json:"checked_at"`
}

// SlotsFor returns the confirmed slots of a date
func (r *AvailabilityReport) SlotsFor(d AvailableDate) []TimeSlot {
	if r.Slots == nil {
		return nil
	}
	return r.Slots[d]
}

// SlotPolicy decides what happens to dates without a confirmable time slot
type SlotPolicy int

const (
	// SlotPolicyStrict drops dates without confirmable slots
	SlotPolicyStrict SlotPolicy = iota
	// SlotPolicyOptimistic keeps them with an empty slot list
	SlotPolicyOptimistic
)

func (p SlotPolicy) String() string {
	if p == SlotPolicyOptimistic {
		return "optimistic"
	}
	return "strict"
}

// Fetcher retrieves raw calendar markup from the booking site
type Fetcher interface {
	// FetchCalendar returns the calendar view for the target year/month
	FetchCalendar(ctx context.Context, rc RunContext) (io.Reader, error)

	// FetchDetail returns the time-slot view of one date
	FetchDetail(ctx context.Context, rc RunContext, date AvailableDate, token string) (io.Reader, error)

	// GetName returns the fetch strategy's name for logging and identification
	GetName() string
}
