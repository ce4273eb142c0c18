package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ssargent/poreread/pkg/abf"
	"github.com/ssargent/poreread/pkg/reader"
)

func jsonOutput(cmd *cobra.Command) bool {
	output, _ := cmd.Flags().GetString("output")
	return output == "json"
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// experimentInfo is the JSON form of the info command
type experimentInfo struct {
	Format     string               `json:"format"`
	Pattern    string               `json:"pattern"`
	Samplerate float64              `json:"samplerate"`
	Channels   []reader.ChannelInfo `json:"channels"`
}

// outputExperimentTable displays an experiment and its channels
func outputExperimentTable(w io.Writer, e *reader.Experiment) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Format:\t%s\n", e.Format().Name())
	fmt.Fprintf(tw, "Pattern:\t%s\n", e.Pattern())
	fmt.Fprintf(tw, "Samplerate:\t%g Hz\n", e.Samplerate())
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "CHANNEL\tSAMPLES\tDURATION\tFILES")
	for _, info := range e.Info() {
		fmt.Fprintf(tw, "%d\t%d\t%.3fs\t%s\n",
			info.Channel, info.Length, info.Duration, formatFiles(info.Files))
	}
	return tw.Flush()
}

// outputHeaderTable displays a decoded ABF2 header
func outputHeaderTable(w io.Writer, h *abf.Header) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Version:\t%s\n", h.Version())
	fmt.Fprintf(tw, "Started:\t%s\n", h.StartTime().Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(tw, "Samplerate:\t%g Hz\n", h.Samplerate())
	fmt.Fprintf(tw, "Samples:\t%d per channel\n", h.SamplesPerChannel())
	fmt.Fprintf(tw, "Data offset:\t%d bytes\n", h.DataOffset())
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "ADC\tNAME\tUNITS\tDTYPE\tSCALE\tLOWPASS")
	for i, adc := range h.Channels {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%g\t%g\n",
			adc.Number, adc.Name, adc.Units, h.DType(i).Element(), h.ScaleFactor(i), adc.LowpassFilter)
	}
	return tw.Flush()
}

func formatFiles(files []string) string {
	if len(files) == 0 {
		return "-"
	}
	first := filepath.Base(files[0])
	if len(files) == 1 {
		return first
	}
	return fmt.Sprintf("%s (+%d more)", first, len(files)-1)
}
