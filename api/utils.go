package api

import (
	"strconv"
	"sync/atomic"
	"time"
)

var (
	lastTimestamp int64
)

// nextTimestamp returns a strictly monotonic nanosecond timestamp, used to
// derive idempotency keys for gestures that arrive without one.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

func keyForTimestamp(ts int64) string {
	return strconv.FormatInt(ts, 36)
}
