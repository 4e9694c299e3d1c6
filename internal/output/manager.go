package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tanq16/parafetch/internal/engine"
	"github.com/tanq16/parafetch/internal/utils"
)

// JobOutput is the display state of one job, built from reporter updates.
type JobOutput struct {
	ID          string
	Index       int
	URL         string
	FileName    string
	SavePath    string
	State       engine.State
	Status      string
	Size        string
	Speed       string
	Elapsed     string
	Snapshot    engine.Snapshot
	Error       error
	StartTime   time.Time
	LastUpdated time.Time
}

type ErrorReport struct {
	Name  string
	Error error
	Time  time.Time
}

// Manager implements engine.Reporter for the terminal. With the live display
// running it redraws every job in place; otherwise it prints one line per
// status change, which suits the interactive shell.
type Manager struct {
	out         io.Writer
	outputs     map[string]*JobOutput
	mutex       sync.RWMutex
	numLines    int
	errors      []ErrorReport
	count       int
	live        bool
	doneCh      chan struct{}
	displayTick time.Duration
	displayWg   sync.WaitGroup
}

func NewManager(out io.Writer) *Manager {
	if out == nil {
		out = os.Stdout
	}
	return &Manager{
		out:         out,
		outputs:     make(map[string]*JobOutput),
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) Progress(id string, u engine.Update) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info, exists := m.outputs[id]
	if !exists {
		m.count++
		info = &JobOutput{ID: id, Index: m.count, StartTime: time.Now(), Elapsed: "00:00:00"}
		m.outputs[id] = info
	}
	changed := info.Status != u.Status
	info.URL = u.URL
	info.FileName = u.FileName
	info.SavePath = u.SavePath
	info.State = u.State
	info.Status = u.Status
	info.Size = u.Size
	info.Speed = u.Speed
	info.Snapshot = u.Snapshot
	info.Error = u.Err
	info.LastUpdated = time.Now()
	if !changed {
		return
	}
	if u.State == engine.StateError && u.Err != nil {
		m.errors = append(m.errors, ErrorReport{Name: u.FileName, Error: u.Err, Time: time.Now()})
	}
	if !m.live {
		fmt.Fprintln(m.out, m.statusLine(info))
	}
}

func (m *Manager) Elapsed(id string, elapsed string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Elapsed = elapsed
	}
}

// Get returns a copy of the display state of job id.
func (m *Manager) Get(id string) (JobOutput, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	info, exists := m.outputs[id]
	if !exists {
		return JobOutput{}, false
	}
	return *info, true
}

// Forget drops job id from the display.
func (m *Manager) Forget(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.outputs, id)
}

func (m *Manager) GetStatusIndicator(state engine.State) string {
	switch state {
	case engine.StateCompleted:
		return successStyle.Render(StyleSymbols["pass"])
	case engine.StateError:
		return errorStyle.Render(StyleSymbols["fail"])
	case engine.StatePaused, engine.StateCancelled:
		return warningStyle.Render(StyleSymbols["warning"])
	case engine.StatePending, engine.StateScheduled:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(state engine.State, message string) string {
	switch state {
	case engine.StateCompleted:
		return successStyle.Render(message)
	case engine.StateError:
		return errorStyle.Render(message)
	case engine.StatePaused, engine.StateCancelled:
		return warningStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) statusLine(info *JobOutput) string {
	return fmt.Sprintf("%s%s %s %s %s %s",
		pad(basePadding),
		m.GetStatusIndicator(info.State),
		debugStyle.Render(shortID(info.ID)),
		info.FileName,
		StyleSymbols["arrow"],
		styleMessage(info.State, info.Status))
}

func (m *Manager) progressLine(info *JobOutput) string {
	return fmt.Sprintf("%s%s %s %s", PrintProgressBar(info.Snapshot.Percent, 30),
		debugStyle.Render(info.Size), StyleSymbols["bullet"], debugStyle.Render(info.Speed))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m *Manager) sortJobs() (active, waiting, finished []*JobOutput) {
	all := make([]*JobOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Index < all[j].Index
	})
	for _, info := range all {
		switch {
		case info.State.Terminal():
			finished = append(finished, info)
		case info.State == engine.StatePending, info.State == engine.StateScheduled, info.State == engine.StatePaused:
			waiting = append(waiting, info)
		default:
			active = append(active, info)
		}
	}
	return active, waiting, finished
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	availableLines := getTerminalHeight() - 3
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	active, waiting, finished := m.sortJobs()

	totalNeeded := 2*len(active) + len(waiting) + len(finished)
	if totalNeeded > availableLines {
		maxFinished := max(availableLines-(totalNeeded-len(finished)), 0)
		if len(finished) > maxFinished {
			finished = finished[len(finished)-maxFinished:]
		}
	}

	lineCount := 0
	for _, info := range active {
		if lineCount >= availableLines {
			break
		}
		fmt.Fprintf(m.out, "%s %s\n", m.statusLine(info), debugStyle.Render(info.Elapsed))
		lineCount++
		if lineCount < availableLines && info.State == engine.StateDownloading {
			fmt.Fprintf(m.out, "%s%s\n", pad(basePadding+4), m.progressLine(info))
			lineCount++
		}
	}
	for _, info := range waiting {
		if lineCount >= availableLines {
			break
		}
		fmt.Fprintln(m.out, m.statusLine(info))
		lineCount++
	}
	if len(finished) > 10 && lineCount < availableLines {
		fmt.Fprintln(m.out, infoStyle.Render(fmt.Sprintf("%s%d downloads finished with hidden status ...", pad(basePadding), len(finished)-8)))
		finished = finished[len(finished)-8:]
		lineCount++
	}
	for _, info := range finished {
		if lineCount >= availableLines {
			break
		}
		fmt.Fprintf(m.out, "%s %s\n", m.statusLine(info), debugStyle.Render(info.Elapsed))
		lineCount++
	}
	m.numLines = lineCount
}

// StartDisplay redraws all jobs until StopDisplay is called.
func (m *Manager) StartDisplay() {
	m.mutex.Lock()
	m.live = true
	m.mutex.Unlock()
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
	m.mutex.Lock()
	m.live = false
	m.mutex.Unlock()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, pad(basePadding)+errorStyle.Bold(true).Render("Errors:"))
	for i, report := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			pad(basePadding+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", report.Time.Format("15:04:05"))),
			errorStyle.Render(report.Name))
		for _, line := range wrapText(report.Error.Error(), basePadding+4) {
			fmt.Fprintf(m.out, "%s%s\n", pad(basePadding+4), errorStyle.Render(line))
		}
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var completed, failed, cancelled int
	for _, info := range m.outputs {
		switch info.State {
		case engine.StateCompleted:
			completed++
		case engine.StateError:
			failed++
		case engine.StateCancelled:
			cancelled++
		}
	}
	total := len(m.outputs)
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, pad(basePadding)+success2Style.Render(fmt.Sprintf("Completed %d of %d", completed, total)))
	if failed > 0 {
		fmt.Fprintln(m.out, pad(basePadding)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failed, total)))
	}
	if cancelled > 0 {
		fmt.Fprintln(m.out, pad(basePadding)+warningStyle.Render(fmt.Sprintf("Cancelled %d of %d", cancelled, total)))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}

// JobTable renders infos with the live figures this manager has seen.
func (m *Manager) JobTable(infos []engine.JobInfo) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	t := NewTable("ID", "File", "State", "Progress", "Size", "Speed", "Elapsed", "Status")
	for _, info := range infos {
		row := []string{shortID(info.ID), info.FileName, info.State.String(), "--", "--", "--", "--", ""}
		if out, ok := m.outputs[info.ID]; ok {
			row[3] = utils.FormatPercent(out.Snapshot.Percent)
			row[4] = out.Size
			row[5] = out.Speed
			row[6] = out.Elapsed
			row[7] = out.Status
		}
		t.AddRow(row...)
	}
	return t.String()
}
