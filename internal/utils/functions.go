package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	KB = 1024
	MB = KB * 1024
	GB = MB * 1024
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// FormatSize renders bytes with one decimal for KB, MB and GB. Negative sizes
// mean the length is not known yet.
func FormatSize(bytes int64) string {
	switch {
	case bytes < 0:
		return "Unknown"
	case bytes < KB:
		return fmt.Sprintf("%d B", bytes)
	case bytes < MB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	case bytes < GB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	default:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	}
}

func FormatSpeed(bytesPerSecond int64) string {
	return FormatSize(bytesPerSecond) + "/s"
}

// FormatPercent renders a percentage with one decimal; negative means indeterminate.
func FormatPercent(percent float64) string {
	if percent < 0 {
		return "--"
	}
	return fmt.Sprintf("%.1f%%", percent)
}

func FormatElapsed(d time.Duration) string {
	seconds := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// ParseBytes accepts plain integers or values suffixed with B, KB/KiB, MB/MiB or GB/GiB (all binary).
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		value  int64
	}{
		{"GIB", GB}, {"MIB", MB}, {"KIB", KB},
		{"GB", GB}, {"MB", MB}, {"KB", KB}, {"B", 1},
	} {
		if strings.HasSuffix(upper, unit.suffix) {
			multiplier = unit.value
			s = strings.TrimSpace(s[:len(s)-len(unit.suffix)])
			break
		}
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}
	return int64(value * float64(multiplier)), nil
}

func CreateDirectoryIfNotExists(dirPath string) error {
	info, err := os.Stat(dirPath)
	if os.IsNotExist(err) {
		return os.MkdirAll(dirPath, 0755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dirPath)
	}
	return nil
}

// TempDir is where chunk part files for downloads into dir are kept.
func TempDir(dir string) string {
	return filepath.Join(dir, TempDirName)
}

// PartFilePath names the part file of chunk index for a destination file.
func PartFilePath(outputPath string, index int) string {
	return filepath.Join(TempDir(filepath.Dir(outputPath)), fmt.Sprintf("%s.part%d", filepath.Base(outputPath), index))
}

// Clean removes part files left in dir by paused, cancelled or failed downloads.
// With a non-empty name only that file's parts are removed.
func Clean(dir, name string) (int, error) {
	tempDir := TempDir(dir)
	files, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, file := range files {
		if name != "" && !strings.HasPrefix(file.Name(), name+".part") {
			continue
		}
		if err := os.RemoveAll(filepath.Join(tempDir, file.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	remainingFiles, err := os.ReadDir(tempDir)
	if err != nil {
		return removed, err
	}
	if len(remainingFiles) == 0 {
		if err := os.Remove(tempDir); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
