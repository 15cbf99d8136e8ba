package present

import (
	"fmt"
	"strings"
	"time"
)

// Locale holds the labels used for day headers.
type Locale struct {
	Name      string
	Today     string
	Yesterday string
	Weekdays  [7]string // Sunday first, as time.Weekday
	Months    [12]string
	// Layout formats weekday, day and month names; year is appended when
	// withYear is set.
	Layout func(weekday string, day int, month string, year int, withYear bool) string
}

// FormatDay renders a day header for a day other than today or yesterday.
func (l Locale) FormatDay(day time.Time, withYear bool) string {
	return l.Layout(l.Weekdays[day.Weekday()], day.Day(), l.Months[day.Month()-1], day.Year(), withYear)
}

var English = Locale{
	Name:      "en",
	Today:     "Today",
	Yesterday: "Yesterday",
	Weekdays:  [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
	Months:    [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
	Layout: func(wd string, d int, mon string, y int, withYear bool) string {
		if withYear {
			return fmt.Sprintf("%s, %s %d, %d", wd, mon, d, y)
		}
		return fmt.Sprintf("%s, %s %d", wd, mon, d)
	},
}

var Indonesian = Locale{
	Name:      "id",
	Today:     "Hari Ini",
	Yesterday: "Kemarin",
	Weekdays:  [7]string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"},
	Months:    [12]string{"Jan", "Feb", "Mar", "Apr", "Mei", "Jun", "Jul", "Agu", "Sep", "Okt", "Nov", "Des"},
	Layout: func(wd string, d int, mon string, y int, withYear bool) string {
		if withYear {
			return fmt.Sprintf("%s, %d %s %d", wd, d, mon, y)
		}
		return fmt.Sprintf("%s, %d %s", wd, d, mon)
	},
}

// LocaleFor maps a config value ("en", "id", "id-ID") to a Locale.
func LocaleFor(name string) (Locale, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexAny(n, "-_"); i > 0 {
		n = n[:i]
	}
	switch n {
	case "", "en":
		return English, true
	case "id":
		return Indonesian, true
	}
	return English, false
}
