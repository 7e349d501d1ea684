package resilience

import "time"

// windowBuckets is the number of buckets a rolling window is split into.
const windowBuckets = 10

// rollingWindow counts outcomes over a sliding time span using a fixed
// ring of buckets, so memory stays constant regardless of call volume.
// It is not safe for concurrent use; callers hold the owner's lock.
type rollingWindow struct {
	width   int64 // bucket width in nanoseconds
	buckets [windowBuckets]windowBucket
}

type windowBucket struct {
	epoch     int64
	successes int
	failures  int
}

func newRollingWindow(span time.Duration) *rollingWindow {
	width := int64(span) / windowBuckets
	if width <= 0 {
		width = 1
	}
	return &rollingWindow{width: width}
}

func (w *rollingWindow) epoch(now time.Time) int64 {
	return now.UnixNano() / w.width
}

func (w *rollingWindow) bucket(epoch int64) *windowBucket {
	idx := epoch % windowBuckets
	if idx < 0 {
		idx += windowBuckets
	}
	b := &w.buckets[idx]
	if b.epoch != epoch {
		*b = windowBucket{epoch: epoch}
	}
	return b
}

func (w *rollingWindow) record(now time.Time, failed bool) {
	b := w.bucket(w.epoch(now))
	if failed {
		b.failures++
	} else {
		b.successes++
	}
}

// counts returns the number of samples and failures still inside the window.
func (w *rollingWindow) counts(now time.Time) (total, failures int) {
	cur := w.epoch(now)
	for i := range w.buckets {
		b := &w.buckets[i]
		if b.epoch > cur-windowBuckets && b.epoch <= cur {
			total += b.successes + b.failures
			failures += b.failures
		}
	}
	return total, failures
}

func (w *rollingWindow) reset() {
	w.buckets = [windowBuckets]windowBucket{}
}
