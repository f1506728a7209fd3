package features

import (
	"time"

	"cloud.google.com/go/civil"
)

// periodEndWindow is how many days before the last day of a period still
// count as "period end".
const periodEndWindow = 5

// DateFeatures are the calendar flags derived from a booking/value date pair.
type DateFeatures struct {
	Delta       int  `json:"date_delta"`
	Delta7      bool `json:"date_delta_7"`
	Delta30     bool `json:"date_delta_30"`
	Weekend     bool `json:"is_weekend_booking"`
	MonthEnd    bool `json:"is_month_end"`
	QuarterEnd  bool `json:"is_quarter_end"`
	SemesterEnd bool `json:"is_semester_end"`
	YearEnd     bool `json:"is_year_end"`
}

// ExtractDates computes the date features. Delta is value minus booking in
// calendar days and may be negative.
func ExtractDates(booking, value civil.Date) DateFeatures {
	delta := value.DaysSince(booking)
	abs := delta
	if abs < 0 {
		abs = -abs
	}

	monthEnd := booking.Day >= lastDayOfMonth(booking)-periodEndWindow

	return DateFeatures{
		Delta:       delta,
		Delta7:      abs > 7,
		Delta30:     abs > 30,
		Weekend:     booking.Weekday() == time.Saturday || booking.Weekday() == time.Sunday,
		MonthEnd:    monthEnd,
		QuarterEnd:  monthEnd && booking.Month%3 == 0,
		SemesterEnd: monthEnd && booking.Month%6 == 0,
		YearEnd:     booking.Month == time.December && booking.Day >= 26,
	}
}

// lastDayOfMonth handles leap years through the civil calendar: the day
// before the first of next month.
func lastDayOfMonth(d civil.Date) int {
	first := civil.Date{Year: d.Year, Month: d.Month, Day: 1}
	return first.AddMonths(1).AddDays(-1).Day
}
