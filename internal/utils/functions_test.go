package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{-1, "Unknown"},
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048575, "1024.0 KB"},
		{1048576, "1.0 MB"},
		{5000000, "4.8 MB"},
		{1073741824, "1.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatSpeedAndPercent(t *testing.T) {
	if got := FormatSpeed(2048); got != "2.0 KB/s" {
		t.Errorf("FormatSpeed(2048) = %q", got)
	}
	if got := FormatPercent(-1); got != "--" {
		t.Errorf("FormatPercent(-1) = %q", got)
	}
	if got := FormatPercent(12.345); got != "12.3%" {
		t.Errorf("FormatPercent(12.345) = %q", got)
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{61*time.Minute + 5*time.Second, "01:01:05"},
		{25*time.Hour + 1500*time.Millisecond, "25:00:01"},
	}
	for _, tt := range tests {
		if got := FormatElapsed(tt.d); got != tt.want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"8192", 8192, false},
		{"1MiB", MB, false},
		{"1 MB", MB, false},
		{"2kb", 2 * KB, false},
		{"1.5GiB", GB + GB/2, false},
		{"12B", 12, false},
		{"lots", 0, true},
		{"-5", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseBytes(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBytes(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseHeaderArgs(t *testing.T) {
	headers := ParseHeaderArgs([]string{"Authorization: Bearer x:y", "bad-header", " X-Test :  1 "})
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(headers))
	}
	if headers["Authorization"] != "Bearer x:y" {
		t.Errorf("unexpected Authorization value %q", headers["Authorization"])
	}
	if headers["X-Test"] != "1" {
		t.Errorf("unexpected X-Test value %q", headers["X-Test"])
	}
}

func TestRenewOutputPath(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "file.bin")
	if err := os.WriteFile(original, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	first := RenewOutputPath(original)
	if filepath.Base(first) != "file-(1).bin" {
		t.Fatalf("unexpected renamed path %s", first)
	}
	if err := os.WriteFile(first, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if second := RenewOutputPath(original); filepath.Base(second) != "file-(2).bin" {
		t.Fatalf("unexpected second renamed path %s", second)
	}
}

func TestCreateDirectoryIfNotExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := CreateDirectoryIfNotExists(dir); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := CreateDirectoryIfNotExists(dir); err != nil {
		t.Fatalf("existing directory: %v", err)
	}
	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := CreateDirectoryIfNotExists(file); err == nil {
		t.Fatal("expected error for a regular file")
	}
}

func TestPartFilePath(t *testing.T) {
	got := PartFilePath(filepath.Join("/data", "movie.mp4"), 3)
	want := filepath.Join("/data", TempDirName, "movie.mp4.part3")
	if got != want {
		t.Fatalf("PartFilePath = %s, want %s", got, want)
	}
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	tempDir := TempDir(dir)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.bin.part0", "a.bin.part1", "b.bin.part0"} {
		if err := os.WriteFile(filepath.Join(tempDir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := Clean(dir, "a.bin")
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed %d files, want 2", removed)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "b.bin.part0")); err != nil {
		t.Fatalf("unrelated part was removed: %v", err)
	}

	if removed, err = Clean(dir, ""); err != nil || removed != 1 {
		t.Fatalf("Clean all = %d, %v", removed, err)
	}
	if _, err := os.Stat(tempDir); !os.IsNotExist(err) {
		t.Fatal("empty temp directory should be removed")
	}
	if removed, err = Clean(dir, ""); err != nil || removed != 0 {
		t.Fatalf("Clean without temp dir = %d, %v", removed, err)
	}
}
