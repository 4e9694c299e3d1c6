package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tanq16/parafetch/internal/config"
	"github.com/tanq16/parafetch/internal/engine"
	"github.com/tanq16/parafetch/internal/history"
	"github.com/tanq16/parafetch/internal/output"
	"github.com/tanq16/parafetch/internal/scheduler"
	"github.com/tanq16/parafetch/internal/utils"
)

// request is one download asked for on the command line, in a batch file or
// in the shell.
type request struct {
	Link string
	Dir  string
	Name string
	At   time.Time
}

// session wires config, history, display, engine and scheduler together.
type session struct {
	cfg      config.Config
	store    *history.Store
	recorder *history.Recorder
	display  *output.Manager
	manager  *scheduler.Manager
}

func newSession(cfg config.Config, out io.Writer) (*session, error) {
	store, err := history.Open(cfg.HistoryFile)
	if err != nil {
		return nil, err
	}
	display := output.NewManager(out)
	recorder := history.NewRecorder(store, display)
	e := engine.New(scheduler.NewFetchers(cfg), recorder, cfg.EngineOptions())
	return &session{
		cfg:      cfg,
		store:    store,
		recorder: recorder,
		display:  display,
		manager:  scheduler.NewManager(e, scheduler.OptionsFrom(cfg)),
	}, nil
}

func (s *session) submit(r request) (*engine.Job, error) {
	dir := r.Dir
	if dir == "" {
		dir = s.cfg.SaveDir
	}
	var opts []scheduler.SubmitOption
	if r.Name != "" {
		opts = append(opts, scheduler.WithName(r.Name))
	}
	if r.At.IsZero() {
		return s.manager.Submit(r.Link, dir, opts...)
	}
	return s.manager.SubmitScheduled(r.Link, dir, r.At, opts...)
}

// remove cancels and forgets a job, including its history record.
func (s *session) remove(id string) (engine.JobInfo, error) {
	info, err := s.manager.Remove(id)
	if err != nil {
		return info, err
	}
	s.display.Forget(info.ID)
	if err := s.recorder.Forget(info.URL); err != nil {
		return info, fmt.Errorf("update history: %w", err)
	}
	return info, nil
}

// deleteDownload removes a job like remove, then deletes its file and any
// part files once the last attempt has stopped writing.
func (s *session) deleteDownload(id string) (engine.JobInfo, error) {
	info, err := s.manager.Get(id)
	if err != nil {
		return info, err
	}
	if !info.State.Terminal() {
		if err := s.manager.Cancel(info.ID); err != nil && !errors.Is(err, engine.ErrInvalidState) {
			return info, err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.manager.Wait(ctx, info.ID); err != nil {
		return info, fmt.Errorf("waiting for %s to stop: %w", info.FileName, err)
	}
	if info, err = s.remove(info.ID); err != nil {
		return info, err
	}
	if err := os.Remove(info.OutputPath); err != nil && !os.IsNotExist(err) {
		return info, fmt.Errorf("delete %s: %w", info.OutputPath, err)
	}
	if _, err := utils.Clean(filepath.Dir(info.OutputPath), filepath.Base(info.OutputPath)); err != nil {
		return info, fmt.Errorf("delete part files: %w", err)
	}
	return info, nil
}

func (s *session) failed() int {
	n := 0
	for _, info := range s.manager.List() {
		if info.State == engine.StateError {
			n++
		}
	}
	return n
}

func (s *session) close() {
	s.manager.Shutdown()
	if err := s.store.Flush(); err != nil {
		log := utils.GetLogger("cmd")
		log.Error().Err(err).Msg("Failed to save history")
	}
}

// runRequests submits every request and blocks until all jobs end. An
// interrupt cancels whatever is still running.
func runRequests(cfg config.Config, requests []request) error {
	live := output.IsTerminal()
	logFile := ""
	if live {
		if err := utils.CreateDirectoryIfNotExists(cfg.SaveDir); err != nil {
			return err
		}
		logFile = filepath.Join(cfg.SaveDir, utils.LogFile)
	}
	closer, err := utils.InitLogger(debug, logFile)
	if err != nil {
		return err
	}
	defer closer.Close()
	log := utils.GetLogger("cmd")

	s, err := newSession(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer s.close()

	var submitErrs []string
	for _, r := range requests {
		if _, err := s.submit(r); err != nil {
			log.Error().Err(err).Str("url", r.Link).Msg("Submission rejected")
			submitErrs = append(submitErrs, fmt.Sprintf("%s: %v", r.Link, err))
		}
	}
	for _, msg := range submitErrs {
		output.PrintError(msg)
	}
	if len(s.manager.List()) == 0 {
		return errors.New("no download could be started")
	}

	if live {
		s.display.StartDisplay()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			log.Info().Msg("Interrupted, cancelling active downloads")
			s.manager.Shutdown()
		case <-done:
		}
	}()

	err = s.manager.WaitAll(context.Background())
	close(done)
	if live {
		s.display.StopDisplay()
	} else {
		s.display.ShowSummary()
	}
	if err != nil {
		return err
	}
	if n := s.failed(); n > 0 || len(submitErrs) > 0 {
		return fmt.Errorf("%d download(s) failed", n+len(submitErrs))
	}
	return nil
}

// parseStartTime accepts "+<duration>", "yyyy-MM-dd HH:mm:ss" in local time,
// "yyyy-MM-ddTHH:mm:ss" or RFC 3339.
func parseStartTime(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "+") {
		d, err := time.ParseDuration(value[1:])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: invalid delay %q", engine.ErrValidation, value)
		}
		return now.Add(d), nil
	}
	for _, layout := range []string{utils.TimestampLayout, "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid start time %q (use %q or +DURATION)", engine.ErrValidation, value, utils.TimestampLayout)
}
