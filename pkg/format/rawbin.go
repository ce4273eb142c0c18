package format

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/ssargent/poreread/pkg/config"
	"github.com/ssargent/poreread/pkg/dtype"
	"github.com/ssargent/poreread/pkg/reader"
)

// Raw reads headerless binary files of a fixed, user-described layout.
type Raw struct {
	settings  config.Raw
	dt        dtype.DType
	stamps    []*regexp.Regexp
	channelRe *regexp.Regexp
	timeRe    *regexp.Regexp
}

// NewRaw compiles the settings into a format.
func NewRaw(settings config.Raw) (*Raw, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: raw: %w", reader.ErrConfig, err)
	}
	dt, err := dtype.Parse(settings.DType)
	if err != nil {
		return nil, fmt.Errorf("%w: raw: %w", reader.ErrConfig, err)
	}

	r := &Raw{settings: settings, dt: dt}
	for _, expr := range []struct {
		src  string
		into **regexp.Regexp
	}{
		{settings.Pattern, nil},
		{settings.ChannelRegex, &r.channelRe},
		{settings.TimestampRegex, &r.timeRe},
	} {
		if expr.src == "" {
			continue
		}
		re, err := regexp.Compile(expr.src)
		if err != nil {
			return nil, fmt.Errorf("%w: raw: %q: %w", reader.ErrConfig, expr.src, err)
		}
		if expr.into != nil {
			if re.NumSubexp() < 1 {
				return nil, fmt.Errorf("%w: raw: %q needs a capture group", reader.ErrConfig, expr.src)
			}
			*expr.into = re
		}
		r.stamps = append(r.stamps, re)
	}
	return r, nil
}

func (*Raw) Name() string               { return "rawbin" }
func (r *Raw) Extension() string        { return r.settings.Extension }
func (r *Raw) Stamps() []*regexp.Regexp { return r.stamps }
func (*Raw) ConcurrentSafe() bool       { return true }

// Fingerprint changes whenever any layout or conversion setting changes.
func (r *Raw) Fingerprint() string { return settingsFingerprint(r.settings) }

func (r *Raw) RawType() *dtype.DType {
	dt := r.dt.Element()
	return &dt
}

// Resolve returns one source per interleaved channel. A configured channel
// regex sets the number of the file's first channel and a configured
// timestamp regex orders the files; without one they keep path order.
func (r *Raw) Resolve(path string) ([]reader.Source, error) {
	base := filepath.Base(path)

	first := 0
	if r.channelRe != nil {
		m := r.channelRe.FindStringSubmatch(base)
		if m == nil {
			return nil, fmt.Errorf("%w: %q does not match %s", reader.ErrChannelTag, base, r.channelRe)
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q in %s", reader.ErrChannelTag, m[1], base)
		}
		first = n
	}

	var ts time.Time
	if r.timeRe != nil {
		m := r.timeRe.FindStringSubmatch(base)
		if m == nil {
			return nil, fmt.Errorf("%w: %q does not match %s", reader.ErrTimestamp, base, r.timeRe)
		}
		var err error
		ts, err = time.ParseInLocation(r.settings.TimestampLayout, m[1], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", reader.ErrTimestamp, base, err)
		}
	}

	sources := make([]reader.Source, r.settings.Channels)
	for i := range sources {
		sources[i] = reader.Source{
			Path:      path,
			Channel:   first + i,
			Timestamp: ts,
			Config: reader.FileConfig{
				Samplerate:  r.settings.Samplerate,
				DType:       r.dt.Interleaved(r.settings.Channels, i),
				HeaderBytes: r.settings.HeaderBytes,
				Records:     r.settings.Records,
				Scale:       r.settings.Scale,
				Offset:      r.settings.Offset,
				Bitmask:     r.settings.Bitmask,
			},
		}
	}
	return sources, nil
}
