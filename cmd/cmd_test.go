package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tanq16/parafetch/internal/config"
	"github.com/tanq16/parafetch/internal/engine"
	"github.com/tanq16/parafetch/internal/utils"
)

func TestParseStartTime(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"+10m", now.Add(10 * time.Minute), true},
		{"2025-03-01 13:30:00", time.Date(2025, 3, 1, 13, 30, 0, 0, time.Local), true},
		{"2025-03-01T13:30:00", time.Date(2025, 3, 1, 13, 30, 0, 0, time.Local), true},
		{"2025-03-01T13:30:00Z", time.Date(2025, 3, 1, 13, 30, 0, 0, time.UTC), true},
		{"+soon", time.Time{}, false},
		{"tomorrow", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseStartTime(tt.input, now)
			if !tt.ok {
				if !errors.Is(err, engine.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil || !got.Equal(tt.want) {
				t.Fatalf("got %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestSplitStartTime(t *testing.T) {
	now := time.Now()
	at, rest, err := splitStartTime([]string{"2030-01-02", "03:04:05", "http://example.com/a", "dir"}, now)
	if err != nil || at.Year() != 2030 || len(rest) != 2 || rest[0] != "http://example.com/a" {
		t.Fatalf("two-field time: %v %v %v", at, rest, err)
	}
	at, rest, err = splitStartTime([]string{"+1h", "http://example.com/a", "dir"}, now)
	if err != nil || !at.Equal(now.Add(time.Hour)) || len(rest) != 2 {
		t.Fatalf("delay: %v %v %v", at, rest, err)
	}
	if _, _, err := splitStartTime([]string{"later", "http://example.com/a"}, now); err == nil {
		t.Fatal("expected error for bad time")
	}
}

func TestParseBatch(t *testing.T) {
	data := []byte(`
- link: https://example.com/a.iso
  dir: isos
- link: ""
- link: https://example.com/b.bin
  name: renamed.bin
  at: +30m
`)
	now := time.Now()
	requests, err := parseBatch(data, now)
	if err != nil {
		t.Fatalf("parseBatch: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}
	if requests[0].Dir != "isos" || !requests[0].At.IsZero() {
		t.Errorf("first request = %+v", requests[0])
	}
	if requests[1].Name != "renamed.bin" || !requests[1].At.Equal(now.Add(30*time.Minute)) {
		t.Errorf("second request = %+v", requests[1])
	}

	if _, err := parseBatch([]byte("- link: https://example.com/c\n  at: whenever\n"), now); err == nil {
		t.Error("expected error for bad start time")
	}
	if _, err := parseBatch([]byte("link: [unclosed"), now); err == nil {
		t.Error("expected YAML error")
	}
}

func newTestSession(t *testing.T) (*session, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.SaveDir = t.TempDir()
	cfg.HistoryFile = filepath.Join(t.TempDir(), "history.yaml")
	var display bytes.Buffer
	s, err := newSession(cfg, &display)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	t.Cleanup(s.close)
	return s, &display
}

func TestShellAddListRemove(t *testing.T) {
	payload := []byte("shell payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		if r.Method != http.MethodHead {
			w.Write(payload)
		}
	}))
	defer server.Close()

	s, _ := newTestSession(t)
	var out bytes.Buffer
	s.execute("add "+server.URL+"/shell.txt", &out)
	if !strings.Contains(out.String(), "Added shell.txt") {
		t.Fatalf("add output: %s", out.String())
	}
	jobs := s.manager.List()
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(jobs))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.manager.Wait(ctx, jobs[0].ID); err != nil {
		t.Fatal(err)
	}
	if got, _ := os.ReadFile(filepath.Join(s.cfg.SaveDir, "shell.txt")); !bytes.Equal(got, payload) {
		t.Fatalf("downloaded %q", got)
	}

	out.Reset()
	s.execute("list", &out)
	if !strings.Contains(out.String(), "shell.txt") || !strings.Contains(out.String(), "Completed") {
		t.Fatalf("list output: %s", out.String())
	}
	if _, ok := s.store.Get(server.URL + "/shell.txt"); !ok {
		t.Fatal("history record missing")
	}

	out.Reset()
	s.execute("remove "+jobs[0].ID[:8], &out)
	if !strings.Contains(out.String(), "Removed shell.txt") {
		t.Fatalf("remove output: %s", out.String())
	}
	if _, ok := s.store.Get(server.URL + "/shell.txt"); ok {
		t.Fatal("history record kept after remove")
	}
	if len(s.manager.List()) != 0 {
		t.Fatal("job kept after remove")
	}
}

func TestShellDeleteRemovesFiles(t *testing.T) {
	payload := []byte("delete me")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		if r.Method != http.MethodHead {
			w.Write(payload)
		}
	}))
	defer server.Close()

	s, _ := newTestSession(t)
	var out bytes.Buffer
	s.execute("add "+server.URL+"/gone.txt", &out)
	jobs := s.manager.List()
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %d (%s)", len(jobs), out.String())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.manager.Wait(ctx, jobs[0].ID); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(s.cfg.SaveDir, "gone.txt")
	part := utils.PartFilePath(target, 0)
	if err := os.MkdirAll(filepath.Dir(part), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(part, []byte("leftover"), 0644); err != nil {
		t.Fatal(err)
	}

	out.Reset()
	s.execute("delete "+jobs[0].ID[:8], &out)
	if !strings.Contains(out.String(), "Deleted") {
		t.Fatalf("delete output: %s", out.String())
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("downloaded file still on disk")
	}
	if _, err := os.Stat(part); !os.IsNotExist(err) {
		t.Error("part file still on disk")
	}
	if _, ok := s.store.Get(server.URL + "/gone.txt"); ok {
		t.Error("history record kept after delete")
	}
	if len(s.manager.List()) != 0 {
		t.Error("job kept after delete")
	}

	out.Reset()
	s.execute("delete nope", &out)
	if !strings.Contains(out.String(), "job not found") {
		t.Errorf("delete of unknown id: %s", out.String())
	}
}

func TestShellCommandErrors(t *testing.T) {
	s, _ := newTestSession(t)
	tests := []struct {
		line string
		want string
	}{
		{"frobnicate", "unknown command"},
		{"add", "usage: add"},
		{"pause", "usage: pause ID"},
		{"cancel nope", "job not found"},
		{"schedule +1h", "usage: schedule"},
		{"schedule yesterday http://example.com/a", "invalid start time"},
		{"add gopher://example.com/a", "unsupported scheme"},
		{"list", "No downloads yet"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if quit := s.execute(tt.line, &out); quit {
			t.Errorf("%q quit the shell", tt.line)
		}
		if !strings.Contains(out.String(), tt.want) {
			t.Errorf("%q: output %q, want %q", tt.line, out.String(), tt.want)
		}
	}
}

func TestShellScheduleAndCancel(t *testing.T) {
	s, _ := newTestSession(t)
	var out bytes.Buffer
	s.execute("schedule +1h http://example.com/later.bin", &out)
	jobs := s.manager.List()
	if len(jobs) != 1 || jobs[0].State != engine.StateScheduled {
		t.Fatalf("unexpected jobs %+v (%s)", jobs, out.String())
	}
	record, ok := s.store.Get("http://example.com/later.bin")
	if !ok || !strings.HasPrefix(record.Status, "Scheduled for ") {
		t.Fatalf("history record = %+v", record)
	}
	s.execute("cancel "+jobs[0].ID, &out)
	if info, _ := s.manager.Get(jobs[0].ID); info.State != engine.StateCancelled {
		t.Fatalf("state after cancel = %s", info.State)
	}
}

func TestRunShellQuitsAndShowsUnfinished(t *testing.T) {
	s, _ := newTestSession(t)
	var out bytes.Buffer
	s.execute("schedule +1h http://example.com/pending.bin", &out)

	out.Reset()
	s.runShell(strings.NewReader("help\nquit\nlist\n"), &out)
	text := out.String()
	if !strings.Contains(text, "Unfinished downloads") || !strings.Contains(text, "pending.bin") {
		t.Errorf("unfinished entries not shown:\n%s", text)
	}
	if !strings.Contains(text, "Commands:") {
		t.Errorf("help not shown:\n%s", text)
	}
	if strings.Count(text, "parafetch> ") != 2 {
		t.Errorf("shell kept reading after quit:\n%s", text)
	}
}
