package models

import "time"

// Timestamps are persisted as unix milliseconds so freshness and backoff
// comparisons stay exact across drivers.

func TimeToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
