package history

import (
	"strings"
	"sync"

	"github.com/tanq16/parafetch/internal/engine"
	"github.com/tanq16/parafetch/internal/utils"
)

// Recorder saves a history record on every status change and flushes the
// store when a job ends or is scheduled. Updates are then passed to next.
type Recorder struct {
	store *Store
	next  engine.Reporter

	mu         sync.Mutex
	lastStatus map[string]string
}

func NewRecorder(store *Store, next engine.Reporter) *Recorder {
	if next == nil {
		next = engine.NopReporter{}
	}
	return &Recorder{
		store:      store,
		next:       next,
		lastStatus: make(map[string]string),
	}
}

func (r *Recorder) Progress(id string, u engine.Update) {
	r.mu.Lock()
	changed := r.lastStatus[id] != u.Status
	r.lastStatus[id] = u.Status
	r.mu.Unlock()

	if changed && u.URL != "" {
		r.store.Put(u.URL, NewRecord(u))
		if u.State.Terminal() || strings.HasPrefix(u.Status, "Scheduled for ") {
			if err := r.store.Flush(); err != nil {
				log := utils.GetLogger("history")
				log.Error().Err(err).Str("url", u.URL).Msg("Failed to save history")
			}
		}
	}
	r.next.Progress(id, u)
}

func (r *Recorder) Elapsed(id string, elapsed string) {
	r.next.Elapsed(id, elapsed)
}

// Forget drops the record for link and saves the store.
func (r *Recorder) Forget(link string) error {
	r.store.Delete(link)
	return r.store.Flush()
}
