package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/tanq16/parafetch/internal/engine"
	"github.com/tanq16/parafetch/internal/utils"
)

// Record is the persisted summary of one download, keyed by URL.
type Record struct {
	FileName  string
	SavePath  string
	Timestamp string
	Status    string
}

func NewRecord(u engine.Update) Record {
	return Record{
		FileName:  u.FileName,
		SavePath:  u.SavePath,
		Timestamp: u.CreatedAt.Format(utils.TimestampLayout),
		Status:    u.Status,
	}
}

// Format renders fileName|savePath|timestamp|status.
func (r Record) Format() string {
	return strings.Join([]string{r.FileName, r.SavePath, r.Timestamp, r.Status}, "|")
}

// ParseRecord reads a formatted record. The status keeps any further '|'.
func ParseRecord(s string) (Record, error) {
	parts := strings.SplitN(s, "|", 4)
	if len(parts) != 4 {
		return Record{}, fmt.Errorf("malformed history record %q", s)
	}
	return Record{
		FileName:  parts[0],
		SavePath:  parts[1],
		Timestamp: parts[2],
		Status:    parts[3],
	}, nil
}

func (r Record) Time() (time.Time, error) {
	return time.ParseInLocation(utils.TimestampLayout, r.Timestamp, time.Local)
}

// Finished reports whether the recorded download reached Completed.
func (r Record) Finished() bool {
	return r.Status == engine.StatusCompleted
}
