package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tanq16/parafetch/internal/utils"
)

type State int

const (
	StatePending State = iota
	StateScheduled
	StateDownloading
	StatePaused
	StateMerging
	StateCompleted
	StateError
	StateCancelled
)

var stateNames = map[State]string{
	StatePending:     "Pending",
	StateScheduled:   "Scheduled",
	StateDownloading: "Downloading",
	StatePaused:      "Paused",
	StateMerging:     "Merging",
	StateCompleted:   "Completed",
	StateError:       "Error",
	StateCancelled:   "Cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError || s == StateCancelled
}

var transitions = map[State][]State{
	StatePending:     {StateScheduled, StateDownloading, StateCancelled},
	StateScheduled:   {StateDownloading, StateCancelled},
	StateDownloading: {StatePaused, StateMerging, StateCompleted, StateError, StateCancelled},
	StatePaused:      {StateDownloading, StateError, StateCancelled},
	StateMerging:     {StateCompleted, StateError, StateCancelled},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type StopReason int32

const (
	StopNone StopReason = iota
	StopPause
	StopCancel
)

// StopToken is shared by everything working on one run attempt. The first
// Stop call wins and cancels the attempt's context.
type StopToken struct {
	reason atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
}

func NewStopToken(parent context.Context) *StopToken {
	ctx, cancel := context.WithCancel(parent)
	return &StopToken{ctx: ctx, cancel: cancel}
}

func (t *StopToken) Stop(reason StopReason) bool {
	if t.reason.CompareAndSwap(int32(StopNone), int32(reason)) {
		t.cancel()
		return true
	}
	return false
}

func (t *StopToken) Reason() StopReason {
	return StopReason(t.reason.Load())
}

func (t *StopToken) Stopped() bool {
	return t.Reason() != StopNone
}

func (t *StopToken) Context() context.Context {
	return t.ctx
}

func (t *StopToken) Done() <-chan struct{} {
	return t.ctx.Done()
}

// release frees the context without marking the token stopped.
func (t *StopToken) release() {
	t.cancel()
}

// Job is one transfer request. Identity fields are fixed at creation; the rest
// is owned by the engine and read through Info.
type Job struct {
	ID          string
	URL         string
	Dir         string
	FileName    string
	CreatedAt   time.Time
	ScheduledAt time.Time

	mu             sync.Mutex
	state          State
	transferred    int64
	size           int64
	rangeSupported bool
	startedAt      time.Time
	snapshot       Snapshot
	attempts       int
	err            error
	token          *StopToken
	queued         bool
	running        chan struct{}
	finished       chan struct{}
}

// NewJob creates a pending job. An empty name is derived from the URL; an
// explicit name is used as given, relative to dir.
func NewJob(link, dir, name string, now time.Time) *Job {
	if name == "" {
		name = utils.FileNameFromURL(link, now)
	}
	return &Job{
		ID:        uuid.NewString(),
		URL:       link,
		Dir:       dir,
		FileName:  name,
		CreatedAt: now,
		size:      -1,
		snapshot:  Snapshot{Total: -1, Percent: -1},
		finished:  make(chan struct{}),
	}
}

func (j *Job) OutputPath() string {
	return filepath.Join(j.Dir, j.FileName)
}

// JobInfo is a point-in-time copy of a job for observers.
type JobInfo struct {
	ID             string
	URL            string
	Dir            string
	FileName       string
	OutputPath     string
	CreatedAt      time.Time
	ScheduledAt    time.Time
	State          State
	Size           int64
	RangeSupported bool
	Transferred    int64
	Speed          int64
	StartedAt      time.Time
	Attempts       int
	Err            error
}

func (j *Job) Info() JobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobInfo{
		ID:             j.ID,
		URL:            j.URL,
		Dir:            j.Dir,
		FileName:       j.FileName,
		OutputPath:     j.OutputPath(),
		CreatedAt:      j.CreatedAt,
		ScheduledAt:    j.ScheduledAt,
		State:          j.state,
		Size:           j.size,
		RangeSupported: j.rangeSupported,
		Transferred:    j.transferred,
		Speed:          j.snapshot.Speed,
		StartedAt:      j.startedAt,
		Attempts:       j.attempts,
		Err:            j.err,
	}
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Finished is closed once the job reaches a terminal state.
func (j *Job) Finished() <-chan struct{} {
	return j.finished
}

func (j *Job) transitionLocked(to State) error {
	if !canTransition(j.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, j.state, to)
	}
	j.state = to
	if to.Terminal() {
		close(j.finished)
	}
	return nil
}

func (j *Job) schedule(at time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StateScheduled); err != nil {
		return err
	}
	j.ScheduledAt = at
	return nil
}

// begin starts a run attempt. It returns the channel of the previous attempt,
// which must be drained before the new one touches any files.
func (j *Job) begin(parent context.Context) (*StopToken, chan struct{}, chan struct{}, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.state {
	case StatePending, StateScheduled, StatePaused:
	default:
		return nil, nil, nil, fmt.Errorf("%w: cannot run a job in state %s", ErrInvalidState, j.state)
	}
	if err := j.transitionLocked(StateDownloading); err != nil {
		return nil, nil, nil, err
	}
	previous := j.running
	j.running = make(chan struct{})
	j.token = NewStopToken(parent)
	j.queued = false
	j.attempts++
	j.startedAt = time.Now()
	j.err = nil
	j.transferred = 0
	j.snapshot = Snapshot{Total: j.size, Percent: -1}
	return j.token, previous, j.running, nil
}

// PrepareResume marks a paused job as queued for a new attempt. It fails when
// the job is not paused or a resume is already pending.
func (j *Job) PrepareResume() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StatePaused {
		return fmt.Errorf("%w: cannot resume a job in state %s", ErrInvalidState, j.state)
	}
	if j.queued {
		return fmt.Errorf("%w: resume already queued", ErrInvalidState)
	}
	j.queued = true
	return nil
}

// advance moves the job on behalf of the attempt holding token. Attempts that
// were stopped or superseded cannot change the state.
func (j *Job) advance(token *StopToken, to State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.token != token || token.Stopped() {
		return errStopped
	}
	return j.transitionLocked(to)
}

func (j *Job) fail(token *StopToken, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.token != token || token.Stopped() {
		return errStopped
	}
	if e := j.transitionLocked(StateError); e != nil {
		return e
	}
	j.err = err
	return nil
}

func (j *Job) stop(reason StopReason) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var to State
	switch reason {
	case StopPause:
		if j.state != StateDownloading {
			return fmt.Errorf("%w: cannot pause a job in state %s", ErrInvalidState, j.state)
		}
		to = StatePaused
	case StopCancel:
		to = StateCancelled
	default:
		return fmt.Errorf("%w: unknown stop reason %d", ErrInvalidState, reason)
	}
	if err := j.transitionLocked(to); err != nil {
		return err
	}
	j.queued = false
	if j.token != nil {
		j.token.Stop(reason)
	}
	return nil
}

func (j *Job) setProbe(result utils.ProbeResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.size = result.Size
	j.rangeSupported = result.RangeSupported
}

// publish sets the byte count of the attempt holding token. Counts from a
// superseded attempt are dropped.
func (j *Job) publish(token *StopToken, transferred int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.token == token {
		j.transferred = transferred
	}
}

func (j *Job) record(token *StopToken, s Snapshot) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.token == token {
		j.snapshot = s
		j.transferred = s.Transferred
	}
}

func (j *Job) lastSnapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshot
}

// Wait blocks until the job is terminal and its last attempt has returned.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.finished:
	case <-ctx.Done():
		return ctx.Err()
	}
	j.mu.Lock()
	running := j.running
	j.mu.Unlock()
	if running == nil {
		return nil
	}
	select {
	case <-running:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
