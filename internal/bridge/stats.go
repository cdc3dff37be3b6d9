package bridge

import (
	"sync/atomic"
	"time"
)

// RunStats accumulates low-level forwarding counters for one decode pass.
// Counters are atomic because progress accounting happens on the control
// goroutine while snapshots may be taken from a signal or debug path.
type RunStats struct {
	startTime time.Time

	framesEmitted atomic.Int64
	bytesEmitted  atomic.Int64
	lastIndex     atomic.Int64
}

// StatsSnapshot is a point-in-time view of a run's counters, suitable for
// structured logging.
type StatsSnapshot struct {
	FramesEmitted int64
	BytesEmitted  int64
	LastIndex     int64
	UptimeMs      int64
}

func newRunStats() *RunStats {
	s := &RunStats{startTime: time.Now()}
	s.lastIndex.Store(-1)
	return s
}

func (s *RunStats) recordFrame(index uint64, n int) {
	s.framesEmitted.Add(1)
	s.bytesEmitted.Add(int64(n))
	s.lastIndex.Store(int64(index))
}

// Snapshot returns the current counters.
func (s *RunStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesEmitted: s.framesEmitted.Load(),
		BytesEmitted:  s.bytesEmitted.Load(),
		LastIndex:     s.lastIndex.Load(),
		UptimeMs:      time.Since(s.startTime).Milliseconds(),
	}
}
