package store

import "time"

// timeLayout is fixed width so that lexical order of stored values equals
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// timeGlob matches values already written in timeLayout.
const timeGlob = "[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]T[0-9][0-9]:[0-9][0-9]:[0-9][0-9].[0-9][0-9][0-9][0-9][0-9][0-9][0-9][0-9][0-9]Z"

// Layouts accepted when reading rows written by other tools. Zoneless
// T-separated values come from datetime.now().isoformat() and are local time;
// zoneless space-separated values come from SQLite's CURRENT_TIMESTAMP and are UTC.
var readLayouts = []struct {
	layout string
	local  bool
}{
	{layout: timeLayout},
	{layout: time.RFC3339Nano},
	{layout: "2006-01-02 15:04:05.999999999Z07:00"},
	{layout: "2006-01-02T15:04:05.999999999", local: true},
	{layout: "2006-01-02 15:04:05.999999999"},
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	for _, l := range readLayouts {
		loc := time.UTC
		if l.local {
			loc = time.Local
		}
		if t, err := time.ParseInLocation(l.layout, s, loc); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
