// Package export writes channels of an experiment to parquet files.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	parquet "github.com/parquet-go/parquet-go"

	"github.com/ssargent/poreread/pkg/reader"
)

// Row is one exported sample.
type Row struct {
	Index int64   `parquet:"index"`
	Time  float64 `parquet:"time"`  // Seconds from the start of the channel
	Value float64 `parquet:"value"` // Physical units
}

// Options selects the exported range and the file layout.
type Options struct {
	Start        float64 // Seconds
	Total        float64 // Seconds, 0 = to the end
	ChunkSeconds float64 // Samples written per row group, 0 = one second
	Compression  string  // snappy (default), zstd, gzip or none
}

// Compression returns the parquet writer option for name.
func Compression(name string) (parquet.WriterOption, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return parquet.Compression(&parquet.Snappy), nil
	case "zstd":
		return parquet.Compression(&parquet.Zstd), nil
	case "gzip", "gz":
		return parquet.Compression(&parquet.Gzip), nil
	case "none", "uncompressed":
		return parquet.Compression(&parquet.Uncompressed), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}

// Channel streams channel of e into w as parquet rows and returns the number
// of rows written. The file metadata records the samplerate, channel and
// file pattern.
func Channel(ctx context.Context, w io.Writer, e *reader.Experiment, channel int, opts Options) (int64, error) {
	compression, err := Compression(opts.Compression)
	if err != nil {
		return 0, err
	}

	s, err := e.Stream(channel, opts.Start, opts.Total, opts.ChunkSeconds)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	samplerate := e.Samplerate()
	pw := parquet.NewGenericWriter[Row](w,
		compression,
		parquet.KeyValueMetadata("samplerate", strconv.FormatFloat(samplerate, 'g', -1, 64)),
		parquet.KeyValueMetadata("channel", strconv.Itoa(channel)),
		parquet.KeyValueMetadata("pattern", e.Pattern()),
	)

	var written int64
	var rows []Row
	for {
		if err := ctx.Err(); err != nil {
			return written, errors.Join(err, pw.Close())
		}

		index := int64(s.Cursor())
		if !s.Next() {
			break
		}
		chunk := s.Chunk()
		rows = rows[:0]
		for i, v := range chunk {
			idx := index + int64(i)
			rows = append(rows, Row{Index: idx, Time: float64(idx) / samplerate, Value: v})
		}
		if _, err := pw.Write(rows); err != nil {
			return written, fmt.Errorf("failed to write rows: %w", err)
		}
		if err := pw.Flush(); err != nil {
			return written, fmt.Errorf("failed to flush row group: %w", err)
		}
		written += int64(len(rows))
	}
	if err := s.Err(); err != nil {
		return written, errors.Join(err, pw.Close())
	}

	if err := pw.Close(); err != nil {
		return written, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return written, nil
}

// ReadRows reads every row of an exported file.
func ReadRows(ra io.ReaderAt) ([]Row, error) {
	gr := parquet.NewGenericReader[Row](ra)
	defer gr.Close()

	out := make([]Row, 0, 1024)
	batch := make([]Row, 1024)
	for {
		n, err := gr.Read(batch)
		if n > 0 {
			out = append(out, batch[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
