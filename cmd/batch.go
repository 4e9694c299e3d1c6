package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/parafetch/internal/output"
	"gopkg.in/yaml.v3"
)

// BatchEntry is one item of a batch file:
//
//	- link: https://example.com/file.iso
//	  dir: isos
//	  name: custom.iso
//	  at: "2025-01-01 03:00:00"
type BatchEntry struct {
	Link string `yaml:"link"`
	Dir  string `yaml:"dir,omitempty"`
	Name string `yaml:"name,omitempty"`
	At   string `yaml:"at,omitempty"`
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Process multiple downloads from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				output.PrintError(fmt.Sprintf("Invalid configuration: %v", err))
				os.Exit(1)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				output.PrintError(fmt.Sprintf("Error reading YAML file: %v", err))
				os.Exit(1)
			}
			requests, err := parseBatch(data, time.Now())
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if len(requests) == 0 {
				output.PrintError("No valid entries found in the batch file")
				os.Exit(1)
			}
			if err := runRequests(cfg, requests); err != nil {
				fmt.Println()
				output.PrintError(err.Error())
				os.Exit(1)
			}
		},
	}
	return cmd
}

// parseBatch skips entries without a link and rejects unparsable start times.
func parseBatch(data []byte, now time.Time) ([]request, error) {
	var entries []BatchEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %w", err)
	}
	var requests []request
	for i, entry := range entries {
		link := strings.TrimSpace(entry.Link)
		if link == "" {
			output.PrintWarning(fmt.Sprintf("Entry %d has no link, skipping...", i+1))
			continue
		}
		r := request{Link: link, Dir: entry.Dir, Name: entry.Name}
		if entry.At != "" {
			at, err := parseStartTime(entry.At, now)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i+1, err)
			}
			r.At = at
		}
		requests = append(requests, r)
	}
	return requests, nil
}
