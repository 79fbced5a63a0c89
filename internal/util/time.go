package util

import "time"

// NowMillis returns the current time as epoch milliseconds. Observation
// snapshots carry this as their write timestamp.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
