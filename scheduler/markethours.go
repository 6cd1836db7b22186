package scheduler

import "time"

// eastern is the exchange-local timezone for NYSE/NASDAQ trading hours.
// When the tz database is unavailable it falls back to a fixed EST offset,
// which does not track daylight saving: on such hosts the session gate runs
// an hour late from March through November. The gate only skips intraday
// status polls, so the degradation is a shifted poll window, never data loss.
var eastern = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// isMarketHours reports whether t falls within the regular US equity
// session: weekdays 09:30 through 16:00 Eastern, both boundaries included.
func isMarketHours(t time.Time) bool {
	et := t.In(eastern)

	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := et.Hour()*60 + et.Minute()
	return minutes >= 9*60+30 && minutes <= 16*60
}
