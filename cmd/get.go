package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/parafetch/internal/output"
)

func newGetCmd() *cobra.Command {
	var startAt string
	var name string

	cmd := &cobra.Command{
		Use:   "get [URL]... [--at TIME] [--name NAME]",
		Short: "Download one or more HTTP, HTTPS, FTP or S3 URLs",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if name != "" && len(args) > 1 {
				output.PrintError("--name can only be used with a single URL")
				os.Exit(1)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				output.PrintError(fmt.Sprintf("Invalid configuration: %v", err))
				os.Exit(1)
			}
			var at time.Time
			if startAt != "" {
				if at, err = parseStartTime(startAt, time.Now()); err != nil {
					output.PrintError(err.Error())
					os.Exit(1)
				}
			}
			requests := make([]request, 0, len(args))
			for _, link := range args {
				requests = append(requests, request{Link: link, Name: name, At: at})
			}
			if err := runRequests(cfg, requests); err != nil {
				fmt.Println()
				output.PrintError(err.Error())
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&startAt, "at", "", "Start time (\"2006-01-02 15:04:05\" or +DURATION like +10m)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "File name relative to the save directory (inferred from the URL if not provided)")
	return cmd
}
