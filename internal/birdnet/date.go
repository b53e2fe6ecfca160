package birdnet

import "time"

// BirdNET divides the year into 48 weeks of 7.6 days.
const (
	WeeksPerYear = 48
	daysPerWeek  = 7.6
	yearStartDay = 1
)

var daysInMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// DayOfYear returns the day number of month/day in a non-leap year.
func DayOfYear(month, day int) int {
	doy := day
	for m := 1; m < month && m <= 12; m++ {
		doy += daysInMonth[m-1]
	}
	return doy
}

// DateToWeek converts a calendar date to a BirdNET week in 1..48.
func DateToWeek(month, day int) int {
	week := int(float64(DayOfYear(month, day)-1)/daysPerWeek) + 1
	return max(1, min(week, WeeksPerYear))
}

// DayOfYearToDate converts a day of year to month and day. Days beyond the
// end of the year map to December 31.
func DayOfYearToDate(dayOfYear int) (month, day int) {
	remaining := dayOfYear
	for i, days := range daysInMonth {
		if remaining <= days {
			return i + 1, remaining
		}
		remaining -= days
	}
	return 12, 31
}

// WeekToStartDay returns the first day of year of a BirdNET week.
func WeekToStartDay(week int) int {
	return int(float64(week-1)*daysPerWeek + yearStartDay)
}

// WeekToDate returns the month and day a BirdNET week starts on.
func WeekToDate(week int) (month, day int) {
	return DayOfYearToDate(WeekToStartDay(week))
}

// WeekForTime returns the BirdNET week of t.
func WeekForTime(t time.Time) int {
	return DateToWeek(int(t.Month()), t.Day())
}
