package engine

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/tanq16/parafetch/internal/utils"
)

func TestPlanChunks(t *testing.T) {
	chunks := PlanChunks(5000000, 8, "/tmp/out/big.bin")
	if len(chunks) != 8 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if c.Size() != 625000 {
			t.Errorf("chunk %d size = %d", i, c.Size())
		}
		if c.Path != utils.PartFilePath("/tmp/out/big.bin", i) {
			t.Errorf("chunk %d path = %s", i, c.Path)
		}
	}

	chunks = PlanChunks(10, 3, "f")
	want := [][2]int64{{0, 2}, {3, 5}, {6, 9}}
	for i, c := range chunks {
		if c.Start != want[i][0] || c.End != want[i][1] {
			t.Errorf("chunk %d = [%d,%d], want %v", i, c.Start, c.End, want[i])
		}
	}

	if got := PlanChunks(3, 8, "f"); len(got) != 3 {
		t.Errorf("size smaller than worker count gave %d chunks", len(got))
	}
	if got := PlanChunks(0, 8, "f"); got != nil {
		t.Errorf("empty resource gave %d chunks", len(got))
	}
}

func TestPlanChunksCover(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		size := rng.Int63n(50_000_000) + 1
		n := rng.Intn(16) + 1
		chunks := PlanChunks(size, n, "f")
		next := int64(0)
		for _, c := range chunks {
			if c.Start != next || c.End < c.Start {
				t.Fatalf("size %d n %d: bad chunk %+v after %d", size, n, c, next)
			}
			next = c.End + 1
		}
		if next != size {
			t.Fatalf("size %d n %d: cover ends at %d", size, n, next)
		}
	}
}

func TestMergeChunksOrdersParts(t *testing.T) {
	dir := t.TempDir()
	data := patternData(100003)
	output := filepath.Join(dir, "merged.bin")
	chunks := PlanChunks(int64(len(data)), 7, output)
	if err := os.MkdirAll(utils.TempDir(dir), 0755); err != nil {
		t.Fatal(err)
	}

	shuffled := make([]ChunkRange, len(chunks))
	copy(shuffled, chunks)
	rand.New(rand.NewSource(3)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	// write parts in "completion" order
	for _, c := range shuffled {
		if err := os.WriteFile(c.Path, data[c.Start:c.End+1], 0644); err != nil {
			t.Fatal(err)
		}
	}

	total, err := MergeChunks(nil, shuffled, output)
	if err != nil {
		t.Fatalf("MergeChunks: %v", err)
	}
	if total != int64(len(data)) {
		t.Fatalf("merged %d bytes", total)
	}
	got, _ := os.ReadFile(output)
	if !bytes.Equal(got, data) {
		t.Fatal("merged output differs from source")
	}
	for _, c := range chunks {
		if _, err := os.Stat(c.Path); !os.IsNotExist(err) {
			t.Errorf("part %d not removed", c.Index)
		}
	}
}

func TestMergeChunksMissingPart(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.bin")
	chunks := PlanChunks(100, 2, output)
	os.MkdirAll(utils.TempDir(dir), 0755)
	os.WriteFile(chunks[0].Path, make([]byte, 50), 0644)

	_, err := MergeChunks(nil, chunks, output)
	if !errors.Is(err, ErrMerge) {
		t.Fatalf("expected ErrMerge, got %v", err)
	}
}

func TestMergeChunksStopsWhenCancelled(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.bin")
	chunks := PlanChunks(100, 2, output)
	os.MkdirAll(utils.TempDir(dir), 0755)
	for _, c := range chunks {
		os.WriteFile(c.Path, make([]byte, c.Size()), 0644)
	}
	token := NewStopToken(context.Background())
	token.Stop(StopCancel)
	if _, err := MergeChunks(token, chunks, output); !errors.Is(err, errStopped) {
		t.Fatalf("expected stop, got %v", err)
	}
	for _, c := range chunks {
		if _, err := os.Stat(c.Path); err != nil {
			t.Errorf("part %d should be left in place", c.Index)
		}
	}
}

func TestNewSnapshot(t *testing.T) {
	s := NewSnapshot(500, 1000, 2*time.Second)
	if s.Percent != 50 || s.Speed != 250 {
		t.Errorf("unexpected snapshot %+v", s)
	}
	if s := NewSnapshot(500, -1, 0); s.Percent != -1 || s.Speed != 0 {
		t.Errorf("unknown total or zero elapsed: %+v", s)
	}
	if s := NewSnapshot(0, 0, time.Second); s.Percent != 100 {
		t.Errorf("empty resource percent = %v", s.Percent)
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StatePending, StateScheduled, true},
		{StatePending, StateDownloading, true},
		{StateScheduled, StateDownloading, true},
		{StateDownloading, StatePaused, true},
		{StatePaused, StateDownloading, true},
		{StateDownloading, StateMerging, true},
		{StateMerging, StateCompleted, true},
		{StateDownloading, StateCompleted, true},
		{StateMerging, StateCancelled, true},
		{StatePaused, StateError, true},
		{StatePending, StateMerging, false},
		{StatePaused, StateMerging, false},
		{StateCompleted, StateDownloading, false},
		{StateCancelled, StateDownloading, false},
		{StateError, StatePaused, false},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
	for _, s := range []State{StateCompleted, StateError, StateCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestStopTokenFirstReasonWins(t *testing.T) {
	token := NewStopToken(context.Background())
	if token.Stopped() {
		t.Fatal("new token is stopped")
	}
	if !token.Stop(StopPause) {
		t.Fatal("first stop lost")
	}
	if token.Stop(StopCancel) {
		t.Fatal("second stop won")
	}
	if token.Reason() != StopPause {
		t.Fatalf("reason = %d", token.Reason())
	}
	select {
	case <-token.Done():
	default:
		t.Fatal("context not cancelled")
	}
}

func TestNewJobNaming(t *testing.T) {
	now := time.UnixMilli(42)
	job := NewJob("https://example.com/a/b/c.txt?x=1", "/data", "", now)
	if job.FileName != "c.txt" || job.ID == "" || job.State() != StatePending {
		t.Fatalf("unexpected job %+v", job.Info())
	}
	if job.Info().Size != -1 {
		t.Errorf("size before probe = %d", job.Info().Size)
	}
	override := NewJob("https://example.com/c.txt", "/data", "sub/renamed.txt", now)
	if override.OutputPath() != filepath.Join("/data", "sub", "renamed.txt") {
		t.Errorf("override path = %s", override.OutputPath())
	}
}

func TestResolveOutputPath(t *testing.T) {
	dir := t.TempDir()
	if _, err := ResolveOutputPath(dir, "file.bin"); err != nil {
		t.Errorf("plain name: %v", err)
	}
	if _, err := ResolveOutputPath(dir, "nested/deeper/file.bin"); err != nil {
		t.Errorf("nested name: %v", err)
	}
	for _, name := range []string{"../escape.bin", "a/../../escape.bin", ".", ""} {
		if _, err := ResolveOutputPath(dir, name); !errors.Is(err, ErrSecurityViolation) {
			t.Errorf("%q: expected ErrSecurityViolation, got %v", name, err)
		}
	}
}

func TestResolveOutputPathSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	dir := filepath.Join(root, "downloads")
	outside := filepath.Join(root, "outside")
	os.Mkdir(dir, 0755)
	os.Mkdir(outside, 0755)
	if err := os.Symlink(outside, filepath.Join(dir, "link")); err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveOutputPath(dir, "link/file.bin"); !errors.Is(err, ErrSecurityViolation) {
		t.Fatalf("expected ErrSecurityViolation through symlink, got %v", err)
	}

	linkedDir := filepath.Join(root, "alias")
	if err := os.Symlink(dir, linkedDir); err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveOutputPath(linkedDir, "ok.bin"); err != nil {
		t.Fatalf("symlinked download directory: %v", err)
	}
}
