package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/parafetch/internal/engine"
	"github.com/tanq16/parafetch/internal/output"
	"github.com/tanq16/parafetch/internal/utils"
)

const shellHelp = `Commands:
  add URL [DIR] [NAME]              start a download now
  schedule TIME URL [DIR] [NAME]    start a download at TIME ("2006-01-02 15:04:05" or +10m)
  pause ID | resume ID | cancel ID  control a download (ID may be a prefix)
  remove ID                         cancel a download and drop it from history
  delete ID                         remove a download and delete its file
  list                              show all downloads of this session
  history                           show saved download history
  help                              show this message
  quit                              cancel running downloads and exit`

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Manage downloads interactively",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				output.PrintError(fmt.Sprintf("Invalid configuration: %v", err))
				os.Exit(1)
			}
			if err := utils.CreateDirectoryIfNotExists(cfg.SaveDir); err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			closer, err := utils.InitLogger(debug, filepath.Join(cfg.SaveDir, utils.LogFile))
			if err != nil {
				output.PrintError(fmt.Sprintf("Failed to open log file: %v", err))
				os.Exit(1)
			}
			defer closer.Close()
			s, err := newSession(cfg, os.Stdout)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			defer s.close()
			s.runShell(os.Stdin, os.Stdout)
		},
	}
}

func (s *session) runShell(in io.Reader, out io.Writer) {
	s.printUnfinished(out)
	fmt.Fprintln(out, output.FDebug("Type 'help' for commands."))
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "parafetch> ")
		if !scanner.Scan() {
			break
		}
		if s.execute(scanner.Text(), out) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(out, output.FError(fmt.Sprintf("Error reading input: %v", err)))
	}
}

// printUnfinished lists history entries from earlier sessions that never completed.
func (s *session) printUnfinished(out io.Writer) {
	t := output.NewTable("URL", "File", "Saved to", "Created", "Status")
	for _, entry := range s.store.Entries() {
		if entry.Record.Finished() {
			continue
		}
		r := entry.Record
		t.AddRow(entry.URL, r.FileName, r.SavePath, r.Timestamp, r.Status)
	}
	if len(t.Rows) == 0 {
		return
	}
	fmt.Fprintln(out, output.FWarning("Unfinished downloads from earlier sessions:"))
	fmt.Fprintln(out, t.String())
}

// execute runs one shell line and reports whether the shell should exit.
func (s *session) execute(line string, out io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	command, args := strings.ToLower(fields[0]), fields[1:]
	switch command {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprintln(out, shellHelp)
	case "add":
		s.shellAdd(args, time.Time{}, out)
	case "schedule":
		if len(args) < 2 {
			fmt.Fprintln(out, output.FError("usage: schedule TIME URL [DIR] [NAME]"))
			return false
		}
		at, rest, err := splitStartTime(args, time.Now())
		if err != nil {
			fmt.Fprintln(out, output.FError(err.Error()))
			return false
		}
		s.shellAdd(rest, at, out)
	case "pause", "resume", "cancel", "remove", "delete":
		if len(args) != 1 {
			fmt.Fprintln(out, output.FError(fmt.Sprintf("usage: %s ID", command)))
			return false
		}
		s.control(command, args[0], out)
	case "list", "ls":
		infos := s.manager.List()
		if len(infos) == 0 {
			fmt.Fprintln(out, output.FDebug("No downloads yet."))
			return false
		}
		fmt.Fprintln(out, s.display.JobTable(infos))
	case "history":
		fmt.Fprintln(out, historyTable(s.store.Entries()))
	default:
		fmt.Fprintln(out, output.FError(fmt.Sprintf("unknown command %q, type 'help'", command)))
	}
	return false
}

func (s *session) shellAdd(args []string, at time.Time, out io.Writer) {
	if len(args) < 1 || len(args) > 3 {
		fmt.Fprintln(out, output.FError("usage: add URL [DIR] [NAME]"))
		return
	}
	r := request{Link: args[0], At: at}
	if len(args) > 1 {
		r.Dir = args[1]
	}
	if len(args) > 2 {
		r.Name = args[2]
	}
	job, err := s.submit(r)
	if err != nil {
		fmt.Fprintln(out, output.FError(err.Error()))
		return
	}
	fmt.Fprintln(out, output.FSuccess(fmt.Sprintf("Added %s as %s", job.FileName, job.ID)))
}

func (s *session) control(command, id string, out io.Writer) {
	var err error
	switch command {
	case "pause":
		err = s.manager.Pause(id)
	case "resume":
		err = s.manager.Resume(id)
	case "cancel":
		err = s.manager.Cancel(id)
	case "remove":
		var info engine.JobInfo
		if info, err = s.remove(id); err == nil {
			fmt.Fprintln(out, output.FSuccess(fmt.Sprintf("Removed %s", info.FileName)))
		}
	case "delete":
		var info engine.JobInfo
		if info, err = s.deleteDownload(id); err == nil {
			fmt.Fprintln(out, output.FSuccess(fmt.Sprintf("Deleted %s", info.OutputPath)))
		}
	}
	if err != nil {
		fmt.Fprintln(out, output.FError(err.Error()))
	}
}

// splitStartTime reads a start time from the head of args. The time may span
// two fields ("2006-01-02 15:04:05").
func splitStartTime(args []string, now time.Time) (time.Time, []string, error) {
	if len(args) >= 3 {
		if at, err := parseStartTime(args[0]+" "+args[1], now); err == nil {
			return at, args[2:], nil
		}
	}
	at, err := parseStartTime(args[0], now)
	if err != nil {
		return time.Time{}, nil, err
	}
	return at, args[1:], nil
}
