package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/parafetch/internal/engine"
	"github.com/tanq16/parafetch/internal/utils"
)

var ErrJobNotFound = errors.New("job not found")

type Options struct {
	MaxJobs      int
	MaxScheduled int
	OnConflict   utils.CollisionPolicy
}

// Manager accepts transfer commands and runs jobs on a bounded pool. Jobs
// scheduled for later wait in a separate, smaller timer pool.
type Manager struct {
	engine *engine.Engine
	opts   Options
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	slots  chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs     map[string]*engine.Job
	order    []string
	timers   map[string]*time.Timer
	reserved int // scheduled submissions still being validated
}

func NewManager(e *engine.Engine, opts Options) *Manager {
	if opts.MaxJobs < 1 {
		opts.MaxJobs = 10
	}
	if opts.MaxScheduled < 1 {
		opts.MaxScheduled = 5
	}
	if opts.OnConflict == "" {
		opts.OnConflict = utils.CollisionOverwrite
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		engine: e,
		opts:   opts,
		log:    utils.GetLogger("scheduler"),
		ctx:    ctx,
		cancel: cancel,
		slots:  make(chan struct{}, opts.MaxJobs),
		jobs:   make(map[string]*engine.Job),
		timers: make(map[string]*time.Timer),
	}
}

type submitOptions struct {
	name string
}

type SubmitOption func(*submitOptions)

// WithName stores the download under name, a path relative to the
// destination directory, instead of the name taken from the URL.
func WithName(name string) SubmitOption {
	return func(o *submitOptions) {
		o.name = name
	}
}

// Submit validates the request and starts the job as soon as a pool slot is free.
func (m *Manager) Submit(link, dir string, opts ...SubmitOption) (*engine.Job, error) {
	job, err := m.newJob(link, dir, opts)
	if err != nil {
		return nil, err
	}
	m.add(job)
	m.log.Info().Str("job", job.ID).Str("url", link).Str("file", job.FileName).Msg("Job submitted")
	m.dispatch(job)
	return job, nil
}

// SubmitScheduled creates a job that starts no earlier than at. at must lie in
// the future; otherwise no job is created.
func (m *Manager) SubmitScheduled(link, dir string, at time.Time, opts ...SubmitOption) (*engine.Job, error) {
	if !at.After(time.Now()) {
		return nil, fmt.Errorf("%w: scheduled time %s is not in the future", engine.ErrValidation, at.Format(utils.TimestampLayout))
	}
	m.mu.Lock()
	pending := len(m.timers) + m.reserved
	if pending >= m.opts.MaxScheduled {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d scheduled jobs already waiting", engine.ErrValidation, pending)
	}
	m.reserved++
	m.mu.Unlock()

	job, err := m.newJob(link, dir, opts)
	if err == nil {
		err = m.engine.Schedule(job, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserved--
	if err != nil {
		return nil, err
	}
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.timers[job.ID] = time.AfterFunc(time.Until(at), func() {
		m.mu.Lock()
		delete(m.timers, job.ID)
		m.mu.Unlock()
		m.log.Debug().Str("job", job.ID).Msg("Scheduled start reached")
		m.dispatch(job)
	})
	m.log.Info().Str("job", job.ID).Str("url", link).Time("at", at).Msg("Job scheduled")
	return job, nil
}

func (m *Manager) newJob(link, dir string, opts []SubmitOption) (*engine.Job, error) {
	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(link) == "" {
		return nil, fmt.Errorf("%w: URL is empty", engine.ErrValidation)
	}
	if _, err := m.engine.FetcherFor(link); err != nil {
		return nil, err
	}
	if err := utils.CreateDirectoryIfNotExists(dir); err != nil {
		return nil, fmt.Errorf("%w: destination directory: %v", engine.ErrValidation, err)
	}
	job := engine.NewJob(link, dir, o.name, time.Now())
	if m.opts.OnConflict == utils.CollisionRename {
		if _, err := os.Stat(job.OutputPath()); err == nil {
			renamed := utils.RenewOutputPath(job.OutputPath())
			if rel, err := filepath.Rel(dir, renamed); err == nil {
				job.FileName = rel
			}
		}
	}
	return job, nil
}

func (m *Manager) add(job *engine.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
}

// dispatch runs job once a pool slot frees up. Jobs cancelled while waiting
// are skipped by the engine.
func (m *Manager) dispatch(job *engine.Job) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case m.slots <- struct{}{}:
		case <-m.ctx.Done():
			return
		}
		defer func() { <-m.slots }()
		if err := m.engine.Run(m.ctx, job); err != nil {
			if errors.Is(err, engine.ErrInvalidState) {
				m.log.Debug().Str("job", job.ID).Err(err).Msg("Job skipped")
				return
			}
			m.log.Debug().Str("job", job.ID).Err(err).Msg("Job failed")
		}
	}()
}

func (m *Manager) lookup(id string) (*engine.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	var found *engine.Job
	for jobID, job := range m.jobs {
		if id != "" && strings.HasPrefix(jobID, id) {
			if found != nil {
				return nil, fmt.Errorf("%w: id prefix %q is ambiguous", ErrJobNotFound, id)
			}
			found = job
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return found, nil
}

func (m *Manager) Pause(id string) error {
	job, err := m.lookup(id)
	if err != nil {
		return err
	}
	return m.engine.Pause(job)
}

// Resume starts a fresh attempt of a paused job from byte 0.
func (m *Manager) Resume(id string) error {
	job, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := job.PrepareResume(); err != nil {
		return err
	}
	m.dispatch(job)
	return nil
}

func (m *Manager) Cancel(id string) error {
	job, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := m.engine.Cancel(job); err != nil {
		return err
	}
	m.stopTimer(job.ID)
	return nil
}

func (m *Manager) stopTimer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timer, ok := m.timers[id]; ok {
		timer.Stop()
		delete(m.timers, id)
	}
}

// Remove cancels a live job and forgets it.
func (m *Manager) Remove(id string) (engine.JobInfo, error) {
	job, err := m.lookup(id)
	if err != nil {
		return engine.JobInfo{}, err
	}
	if !job.State().Terminal() {
		if err := m.engine.Cancel(job); err != nil && !errors.Is(err, engine.ErrInvalidState) {
			return engine.JobInfo{}, err
		}
	}
	m.stopTimer(job.ID)
	m.mu.Lock()
	delete(m.jobs, job.ID)
	for i, jobID := range m.order {
		if jobID == job.ID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	return job.Info(), nil
}

func (m *Manager) Get(id string) (engine.JobInfo, error) {
	job, err := m.lookup(id)
	if err != nil {
		return engine.JobInfo{}, err
	}
	return job.Info(), nil
}

// List returns all known jobs in submission order.
func (m *Manager) List() []engine.JobInfo {
	m.mu.Lock()
	jobs := make([]*engine.Job, 0, len(m.order))
	for _, id := range m.order {
		jobs = append(jobs, m.jobs[id])
	}
	m.mu.Unlock()
	infos := make([]engine.JobInfo, 0, len(jobs))
	for _, job := range jobs {
		infos = append(infos, job.Info())
	}
	return infos
}

func (m *Manager) Wait(ctx context.Context, id string) error {
	job, err := m.lookup(id)
	if err != nil {
		return err
	}
	return job.Wait(ctx)
}

// WaitAll blocks until every known job is terminal.
func (m *Manager) WaitAll(ctx context.Context) error {
	for _, info := range m.List() {
		if err := m.Wait(ctx, info.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
			return err
		}
	}
	return nil
}

// Shutdown cancels every unfinished job and waits for running attempts.
func (m *Manager) Shutdown() {
	for _, info := range m.List() {
		if !info.State.Terminal() {
			if err := m.Cancel(info.ID); err != nil {
				m.log.Debug().Str("job", info.ID).Err(err).Msg("Cancel on shutdown")
			}
		}
	}
	m.cancel()
	m.wg.Wait()
}
