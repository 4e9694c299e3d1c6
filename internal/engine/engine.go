package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/parafetch/internal/utils"
)

const (
	StatusStarting    = "Starting"
	StatusDownloading = "Downloading"
	StatusMerging     = "Merging files..."
	StatusCompleted   = "Completed"
	StatusPaused      = "Paused"
	StatusCancelled   = "Cancelled"
)

func ErrorStatus(err error) string {
	return "Error: " + err.Error()
}

func ScheduledStatus(at time.Time) string {
	return "Scheduled for " + at.Format(utils.TimestampLayout)
}

// Update is one progress notification, preformatted for display.
type Update struct {
	URL       string
	FileName  string
	SavePath  string
	CreatedAt time.Time
	State     State
	Status    string
	Size      string
	Percent   string
	Speed     string
	Snapshot  Snapshot
	Err       error
}

// Reporter receives job updates. Calls may arrive from several goroutines.
type Reporter interface {
	Progress(id string, u Update)
	Elapsed(id string, elapsed string)
}

type NopReporter struct{}

func (NopReporter) Progress(string, Update) {}
func (NopReporter) Elapsed(string, string)  {}

type Options struct {
	Connections      int
	BufferSize       int
	MultiThreshold   int64
	ProgressInterval time.Duration
	ElapsedInterval  time.Duration
}

func DefaultOptions() Options {
	return Options{
		Connections:      utils.DefaultWorkers,
		BufferSize:       utils.DefaultBufferSize,
		MultiThreshold:   utils.MultiThreshold,
		ProgressInterval: 500 * time.Millisecond,
		ElapsedInterval:  time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Connections <= 0 {
		o.Connections = d.Connections
	}
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	if o.MultiThreshold <= 0 {
		o.MultiThreshold = d.MultiThreshold
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = d.ProgressInterval
	}
	if o.ElapsedInterval <= 0 {
		o.ElapsedInterval = d.ElapsedInterval
	}
	return o
}

// Engine runs jobs against the fetcher registered for their URL scheme.
type Engine struct {
	fetchers map[string]utils.Fetcher
	reporter Reporter
	opts     Options
}

func New(fetchers map[string]utils.Fetcher, reporter Reporter, opts Options) *Engine {
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Engine{
		fetchers: fetchers,
		reporter: reporter,
		opts:     opts.withDefaults(),
	}
}

func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) FetcherFor(link string) (utils.Fetcher, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %v", ErrValidation, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: URL has no host: %s", ErrValidation, link)
	}
	fetcher, ok := e.fetchers[strings.ToLower(parsed.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrValidation, parsed.Scheme)
	}
	return fetcher, nil
}

// Schedule marks a pending job as waiting for its start instant.
func (e *Engine) Schedule(job *Job, at time.Time) error {
	if err := job.schedule(at); err != nil {
		return err
	}
	e.report(job, ScheduledStatus(at), job.lastSnapshot())
	return nil
}

// Pause stops a downloading job. Partial part files stay on disk.
func (e *Engine) Pause(job *Job) error {
	if err := job.stop(StopPause); err != nil {
		return err
	}
	e.report(job, StatusPaused, job.lastSnapshot())
	return nil
}

// Cancel stops a job for good. It never merges and leaves temp files.
func (e *Engine) Cancel(job *Job) error {
	if err := job.stop(StopCancel); err != nil {
		return err
	}
	e.report(job, StatusCancelled, job.lastSnapshot())
	return nil
}

// Run performs one attempt of job: guard, probe, transfer and merge. It returns
// the job's failure, or nil when the job completed or was paused or cancelled.
func (e *Engine) Run(ctx context.Context, job *Job) error {
	token, previous, running, err := job.begin(ctx)
	if err != nil {
		return err
	}
	defer close(running)
	defer token.release()
	if previous != nil {
		select {
		case <-previous:
		case <-token.Done():
			return nil
		}
	}

	info := job.Info()
	a := &attempt{
		engine:  e,
		job:     job,
		token:   token,
		started: time.Now(),
		total:   info.Size,
		log:     utils.GetLogger("engine").With().Str("job", job.ID).Int("attempt", info.Attempts).Logger(),
	}
	stopElapsed := a.startElapsed(e.opts.ElapsedInterval)
	defer stopElapsed()

	a.progress(StatusStarting)
	a.log.Debug().Str("url", job.URL).Str("file", job.FileName).Msg("Starting job")
	err = a.run()
	if err == nil {
		a.log.Info().Str("file", job.OutputPath()).Int64("bytes", a.transferred.Load()).Msg("Download completed")
		return nil
	}
	if errors.Is(err, errStopped) {
		a.log.Info().Str("reason", stopReasonName(token.Reason())).Msg("Attempt stopped")
		return nil
	}
	if ferr := job.fail(token, err); ferr != nil {
		a.log.Debug().Err(err).Msg("Attempt ended after stop")
		return nil
	}
	a.log.Error().Err(err).Msg("Download failed")
	a.emit(ErrorStatus(err))
	return err
}

func (e *Engine) report(job *Job, status string, s Snapshot) {
	info := job.Info()
	e.reporter.Progress(job.ID, Update{
		URL:       info.URL,
		FileName:  info.FileName,
		SavePath:  info.Dir,
		CreatedAt: info.CreatedAt,
		State:     info.State,
		Status:    status,
		Size:      utils.FormatSize(s.Total),
		Percent:   utils.FormatPercent(s.Percent),
		Speed:     utils.FormatSpeed(s.Speed),
		Snapshot:  s,
		Err:       info.Err,
	})
}

func stopReasonName(r StopReason) string {
	switch r {
	case StopPause:
		return "pause"
	case StopCancel:
		return "cancel"
	default:
		return "none"
	}
}

// attempt is the state of a single Run call. Its byte count reaches the job
// only while its token is the job's current one.
type attempt struct {
	engine      *Engine
	job         *Job
	token       *StopToken
	started     time.Time
	total       int64
	transferred atomic.Int64
	log         zerolog.Logger
}

func (a *attempt) add(n int64) {
	a.job.publish(a.token, a.transferred.Add(n))
}

func (a *attempt) snapshot() Snapshot {
	return NewSnapshot(a.transferred.Load(), a.total, time.Since(a.started))
}

func (a *attempt) emit(status string) {
	s := a.snapshot()
	a.job.record(a.token, s)
	a.engine.report(a.job, status, s)
}

// progress emits only while the attempt is live, so a stopped attempt never
// reports after the pause or cancel notification.
func (a *attempt) progress(status string) {
	if a.token.Stopped() {
		return
	}
	a.emit(status)
}

func (a *attempt) startElapsed(interval time.Duration) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.engine.reporter.Elapsed(a.job.ID, utils.FormatElapsed(time.Since(a.started)))
			case <-stop:
				return
			case <-a.token.Done():
				return
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

func (a *attempt) run() error {
	job := a.job
	outputPath, err := ResolveOutputPath(job.Dir, job.FileName)
	if err != nil {
		return err
	}
	fetcher, err := a.engine.FetcherFor(job.URL)
	if err != nil {
		return err
	}

	result, err := fetcher.Probe(a.token.Context(), job.URL)
	if err != nil {
		if a.token.Stopped() {
			return errStopped
		}
		return fmt.Errorf("%w: %v", ErrProbe, err)
	}
	job.setProbe(result)
	a.total = result.Size
	a.log.Debug().Int64("size", result.Size).Bool("rangeSupported", result.RangeSupported).Msg("Probed resource")
	a.progress(StatusDownloading)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("%w: creating destination directory: %v", ErrTransfer, err)
	}
	opts := a.engine.opts
	if result.RangeSupported && result.Size > opts.MultiThreshold && opts.Connections > 1 {
		err = a.runMulti(fetcher, outputPath)
	} else {
		err = a.runSingle(fetcher, outputPath)
	}
	if err != nil {
		return err
	}
	if err := job.advance(a.token, StateCompleted); err != nil {
		return err
	}
	a.emit(StatusCompleted)
	return nil
}

func (a *attempt) transferError(err error) error {
	if a.token.Stopped() {
		return errStopped
	}
	return fmt.Errorf("%w: %v", ErrTransfer, err)
}
