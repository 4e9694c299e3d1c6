package engine

import (
	"time"
)

// Snapshot is the aggregate progress of one run attempt. Percent is -1 when
// the total size is unknown.
type Snapshot struct {
	Transferred int64
	Total       int64
	Elapsed     time.Duration
	Speed       int64
	Percent     float64
}

func NewSnapshot(transferred, total int64, elapsed time.Duration) Snapshot {
	s := Snapshot{
		Transferred: transferred,
		Total:       total,
		Elapsed:     elapsed,
		Percent:     -1,
	}
	if ms := elapsed.Milliseconds(); ms > 0 {
		s.Speed = transferred * 1000 / ms
	}
	switch {
	case total > 0:
		s.Percent = float64(transferred) / float64(total) * 100
	case total == 0:
		s.Percent = 100
	}
	return s
}

// aggregate sums byte counts pushed by chunk workers and emits a snapshot on
// every tick. It returns after progressCh is closed and drained.
func (a *attempt) aggregate(progressCh <-chan int64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case n, ok := <-progressCh:
			if !ok {
				return
			}
			a.add(n)
		case <-ticker.C:
			a.progress(StatusDownloading)
		}
	}
}
