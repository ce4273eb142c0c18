package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/poreread/pkg/format"
)

// headerCmd represents the header command
var headerCmd = &cobra.Command{
	Use:   "header <file.abf>",
	Short: "Print the decoded header of an ABF2 file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := format.ReadABFHeader(args[0])
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return outputJSON(cmd.OutOrStdout(), h)
		}
		return outputHeaderTable(cmd.OutOrStdout(), h)
	},
}

func init() {
	rootCmd.AddCommand(headerCmd)
}
