package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/poreread/pkg/reader"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "Describe the experiment containing a file",
	Long: `Find every file belonging to the same experiment as <path> and list the
channels it holds, with their length and duration.

Example:
  poreread info ./data/2024_03_15_0001.abf
  poreread info ./data/run_20240315_101500_CH001.log -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openExperiment(cmd, args[0])
		if err != nil {
			return err
		}
		defer e.Close()

		if jsonOutput(cmd) {
			return outputJSON(cmd.OutOrStdout(), experimentInfo{
				Format:     e.Format().Name(),
				Pattern:    e.Pattern(),
				Samplerate: e.Samplerate(),
				Channels:   e.Info(),
			})
		}
		return outputExperimentTable(cmd.OutOrStdout(), e)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().StringP("format", "f", "", "File format (abf2, chimera, rawbin); default from the extension")
}

// openExperiment opens the experiment containing path with the format named
// by --format
func openExperiment(cmd *cobra.Command, path string) (*reader.Experiment, error) {
	name, _ := cmd.Flags().GetString("format")
	opener, err := container.Opener()
	if err != nil {
		return nil, err
	}
	return opener.Open(path, name)
}
