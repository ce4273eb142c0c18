package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ssargent/poreread/pkg/api"
	"github.com/ssargent/poreread/pkg/reader"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <path>",
	Short: "Print a window of one channel",
	Long: `Read length seconds of a channel starting at start seconds, across file
boundaries, and print one sample per line. With --raw the stored codes are
printed along with the scale and offset that convert them.

Example:
  poreread read ./data/2024_03_15_0001.abf --channel 0 --start 1.5 --length 0.01
  poreread read ./data/run_20240315_101500_CH001.log --raw -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, _ := cmd.Flags().GetInt("channel")
		start, _ := cmd.Flags().GetFloat64("start")
		length, _ := cmd.Flags().GetFloat64("length")
		raw, _ := cmd.Flags().GetBool("raw")

		e, err := openExperiment(cmd, args[0])
		if err != nil {
			return err
		}
		defer e.Close()

		return writeWindow(cmd.OutOrStdout(), e, channel, start, length, raw, jsonOutput(cmd))
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().IntP("channel", "c", 0, "Channel to read")
	readCmd.Flags().Float64("start", 0, "Start of the window in seconds")
	readCmd.Flags().Float64("length", 1, "Length of the window in seconds")
	readCmd.Flags().Bool("raw", false, "Print stored codes instead of physical values")
	readCmd.Flags().StringP("format", "f", "", "File format (abf2, chimera, rawbin); default from the extension")
}

// writeWindow reads a window and writes it as a table or as JSON
func writeWindow(w io.Writer, e *reader.Experiment, channel int, start, length float64, raw, asJSON bool) error {
	first, err := e.StartIndex(channel, start)
	if err != nil {
		return err
	}
	resp := api.WindowResponse{
		Channel:    channel,
		Start:      first,
		Samplerate: e.Samplerate(),
	}

	var values []float64
	if raw {
		win, err := e.ReadWindowRaw(channel, start, length)
		if err != nil {
			return err
		}
		values = win.Data.Floats()
		resp.Raw = &api.RawValues{
			DType:   win.Data.DType().String(),
			Codes:   values,
			Scale:   win.Scale,
			Offset:  win.Offset,
			Bitmask: win.Bitmask,
		}
	} else {
		values, err = e.ReadWindow(channel, start, length)
		if err != nil {
			return err
		}
		resp.Values = values
	}

	if asJSON {
		return outputJSON(w, resp)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if resp.Raw != nil {
		fmt.Fprintf(tw, "# dtype=%s scale=%g offset=%g", resp.Raw.DType, resp.Raw.Scale, resp.Raw.Offset)
		if resp.Raw.Bitmask != 0 {
			fmt.Fprintf(tw, " bitmask=%#x", resp.Raw.Bitmask)
		}
		fmt.Fprintln(tw)
	}
	fmt.Fprintln(tw, "INDEX\tTIME\tVALUE")
	for i, v := range values {
		idx := resp.Start + i
		fmt.Fprintf(tw, "%d\t%.6f\t%g\n", idx, float64(idx)/resp.Samplerate, v)
	}
	return tw.Flush()
}
