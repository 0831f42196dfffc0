package common

import (
	"time"
)

const secondsPerDay = 60 * 60 * 24

// ParseDate maps YYYY-MM-DD to days since the Unix epoch. The calendar
// date is resolved in local time, mid-morning, so the result is stable
// across DST transitions. Parquet DATE values are epoch days already and
// bypass this path.
func ParseDate(text string) (int64, error) {
	t, err := time.ParseInLocation("2006-01-02", text, time.Local)
	if err != nil {
		return 0, Parsef("invalid Date literal: %s", text)
	}
	t = time.Date(t.Year(), t.Month(), t.Day(), 10, 15, 0, 0, time.Local)
	return t.Unix() / secondsPerDay, nil
}

func FormatDate(days int64) string {
	t := time.Unix(days*secondsPerDay, 0).In(time.Local)
	return t.Format("2006-01-02")
}
