package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ssargent/poreread/pkg/export"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Write one channel to a Parquet file",
	Long: `Stream a channel chunk by chunk into a Parquet file with index, time and
value columns. Memory use is bounded by the chunk size, not by the length of
the recording.

Example:
  poreread export ./data/2024_03_15_0001.abf --channel 0 --out trace.parquet
  poreread export ./data/run_20240315_101500_CH001.log --start 10 --total 60 --compression zstd --out run.parquet`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, _ := cmd.Flags().GetInt("channel")
		out, _ := cmd.Flags().GetString("out")
		opts := export.Options{}
		opts.Start, _ = cmd.Flags().GetFloat64("start")
		opts.Total, _ = cmd.Flags().GetFloat64("total")
		opts.ChunkSeconds, _ = cmd.Flags().GetFloat64("chunk")
		opts.Compression, _ = cmd.Flags().GetString("compression")
		if opts.ChunkSeconds == 0 {
			opts.ChunkSeconds = container.Config().Read.ChunkSeconds
		}

		e, err := openExperiment(cmd, args[0])
		if err != nil {
			return err
		}
		defer e.Close()

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		n, err := export.Channel(ctx, f, e, channel, opts)
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", out, cerr)
		}
		if err != nil {
			os.Remove(out)
			return err
		}

		cmd.Printf("Exported %d samples of channel %d to %s\n", n, channel, out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().IntP("channel", "c", 0, "Channel to export")
	exportCmd.Flags().String("out", "", "Parquet file to write (required)")
	exportCmd.Flags().Float64("start", 0, "Start of the range in seconds")
	exportCmd.Flags().Float64("total", 0, "Length of the range in seconds, 0 = to the end")
	exportCmd.Flags().Float64("chunk", 0, "Seconds written per row group (default from config)")
	exportCmd.Flags().String("compression", "snappy", "Compression codec (snappy, zstd, gzip, none)")
	exportCmd.Flags().StringP("format", "f", "", "File format (abf2, chimera, rawbin); default from the extension")
	if err := exportCmd.MarkFlagRequired("out"); err != nil {
		panic(err)
	}
}
