//nolint:revive // exported
package dbtime

import "time"

func DBNow() time.Time {
	return DBTime(time.Now())
}

func DBTime(t time.Time) time.Time {
	return t.UTC()
}

// UnixMilli is the column representation used for created/updated stamps.
func UnixMilli(t time.Time) int64 {
	return DBTime(t).UnixMilli()
}

func FromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
