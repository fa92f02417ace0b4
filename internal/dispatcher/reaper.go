package dispatcher

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// reaper tracks the number of live connection handlers against a soft cap.
// Talk2Me never refuses a connection for exceeding the cap (goroutines are
// cheap); spawn always starts the handler. reap is called periodically from
// the accept loop's deadline tick and simply logs when the cap is exceeded,
// matching the spec's "MAX_THREADS is observability, not a hard limit"
// framing of the original's thread-pool constant.
type reaper struct {
	softCap int
	live    int64
}

func newReaper(softCap int) *reaper {
	return &reaper{softCap: softCap}
}

// spawn starts fn in its own goroutine, tracking it as live until it returns.
func (r *reaper) spawn(fn func()) {
	atomic.AddInt64(&r.live, 1)
	go func() {
		defer atomic.AddInt64(&r.live, -1)
		fn()
	}()
}

// reap logs the live connection count against the soft cap. It doesn't
// reclaim anything itself — handlers clean themselves up via defer — this
// is purely the periodic observability tick.
func (r *reaper) reap() {
	live := atomic.LoadInt64(&r.live)
	if int(live) > r.softCap {
		log.Warn().Int64("live_connections", live).Int("soft_cap", r.softCap).Msg("connection count exceeds soft cap")
	}
}
