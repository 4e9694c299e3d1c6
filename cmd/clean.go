package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/parafetch/internal/output"
	"github.com/tanq16/parafetch/internal/utils"
)

func newCleanCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "clean [DIR] [--name FILE]",
		Short: "Clean up part files left by paused, cancelled or failed downloads",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			} else if cmd.Flags().Changed("dir") {
				dir = saveDir
			}
			removed, err := utils.Clean(dir, name)
			if err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning up temporary files: %v", err))
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d temporary file(s)", removed))
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Only remove part files of this download")
	return cmd
}
