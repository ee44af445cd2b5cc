package scheduler

import "time"

// MarketHours is the regular session window of an exchange.
type MarketHours struct {
	Location    *time.Location
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

// IndianMarketHours is the NSE/BSE cash session, 09:15 to 15:30 IST.
func IndianMarketHours(loc *time.Location) MarketHours {
	if loc == nil {
		loc = time.FixedZone("IST", 5*3600+1800)
	}
	return MarketHours{Location: loc, OpenHour: 9, OpenMinute: 15, CloseHour: 15, CloseMinute: 30}
}

// IsOpen reports whether t falls on a weekday inside the session, bounds
// inclusive. Exchange holidays are not modelled.
func (m MarketHours) IsOpen(t time.Time) bool {
	local := t.In(m.Location)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= m.OpenHour*60+m.OpenMinute && minutes <= m.CloseHour*60+m.CloseMinute
}
