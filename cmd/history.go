package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/parafetch/internal/history"
	"github.com/tanq16/parafetch/internal/output"
)

func newHistoryCmd() *cobra.Command {
	var unfinished bool
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "history [--unfinished] [--clear]",
		Short: "Show or clear the download history",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				output.PrintError(fmt.Sprintf("Invalid configuration: %v", err))
				os.Exit(1)
			}
			store, err := history.Open(cfg.HistoryFile)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if clearAll {
				for _, entry := range store.Entries() {
					store.Delete(entry.URL)
				}
				if err := store.Flush(); err != nil {
					output.PrintError(err.Error())
					os.Exit(1)
				}
				output.PrintSuccess("History cleared")
				return
			}
			var entries []history.Entry
			for _, entry := range store.Entries() {
				if unfinished && entry.Record.Finished() {
					continue
				}
				entries = append(entries, entry)
			}
			if len(entries) == 0 {
				output.PrintInfo("No downloads in history")
				return
			}
			fmt.Println(historyTable(entries))
		},
	}

	cmd.Flags().BoolVar(&unfinished, "unfinished", false, "Only show downloads that did not complete")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Remove all history entries")
	return cmd
}

func historyTable(entries []history.Entry) string {
	t := output.NewTable("URL", "File", "Saved to", "Created", "Status")
	for _, entry := range entries {
		r := entry.Record
		t.AddRow(entry.URL, r.FileName, r.SavePath, r.Timestamp, r.Status)
	}
	return t.String()
}
