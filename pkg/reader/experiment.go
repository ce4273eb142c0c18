package reader

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ssargent/poreread/pkg/dtype"
)

// Option configures Open.
type Option func(*options)

type options struct {
	logger *zap.Logger
	cache  ConfigCache
}

// WithLogger sets the logger used while opening and closing experiments.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCache sets a cache for resolved file configurations.
func WithCache(cache ConfigCache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

// Experiment presents every channel of a multi-file recording as one
// contiguous sample sequence.
type Experiment struct {
	seed       string
	pattern    string
	format     Format
	samplerate float64
	timelines  map[int]*Timeline
	mappings   []*Mapping
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// Open finds every file belonging to the same experiment as seed, resolves
// their configurations, indexes them by channel and time, and maps them.
// Any failure releases everything acquired so far.
func Open(seed string, format Format, opts ...Option) (*Experiment, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	start := time.Now()

	abs, err := filepath.Abs(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPattern, seed, err)
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, abs)
		}
		return nil, fmt.Errorf("%w: %s: %v; %s", ErrIO, abs, err, ioHint)
	}
	if !hasExtension(abs, format.Extension()) {
		return nil, fmt.Errorf("%w: %s does not have the %s extension of format %s", ErrConfig, abs, format.Extension(), format.Name())
	}

	pattern, err := DerivePattern(abs, format.Stamps())
	if err != nil {
		return nil, err
	}
	paths, err := ResolveFiles(pattern)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("resolved experiment files",
		zap.String("seed", abs),
		zap.String("pattern", pattern),
		zap.Int("files", len(paths)))

	sources, err := resolveSources(format, paths, o)
	if err != nil {
		return nil, err
	}

	samplerate, err := checkSamplerate(sources)
	if err != nil {
		return nil, err
	}

	e := &Experiment{
		seed:       abs,
		pattern:    pattern,
		format:     format,
		samplerate: samplerate,
		timelines:  make(map[int]*Timeline),
		logger:     o.logger,
	}
	if err := e.index(sources); err != nil {
		e.release()
		return nil, err
	}

	o.logger.Info("opened experiment",
		zap.String("format", format.Name()),
		zap.String("pattern", pattern),
		zap.Int("files", len(paths)),
		zap.Ints("channels", e.Channels()),
		zap.Float64("samplerate", samplerate),
		zap.Duration("elapsed", time.Since(start)))
	return e, nil
}

// resolveSources resolves every path, consulting the cache first.
func resolveSources(format Format, paths []string, o options) ([]Source, error) {
	key := cacheKey(format)
	var all []Source
	for _, path := range paths {
		if !hasExtension(path, format.Extension()) {
			return nil, fmt.Errorf("%w: %s does not have the %s extension of format %s", ErrConfig, path, format.Extension(), format.Name())
		}

		var info os.FileInfo
		if o.cache != nil {
			var err error
			info, err = os.Stat(path)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v; %s", ErrIO, path, err, ioHint)
			}
			if cached, ok := o.cache.Get(key, path, info); ok {
				o.logger.Debug("config cache hit", zap.String("path", path))
				all = append(all, cached...)
				continue
			}
		}

		sources, err := format.Resolve(path)
		if err != nil {
			if isReadError(err) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s: %w", ErrConfig, path, err)
		}
		for _, s := range sources {
			if err := s.Config.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %s channel %d: %w", ErrConfig, path, s.Channel, err)
			}
		}

		if o.cache != nil {
			if err := o.cache.Put(key, path, info, sources); err != nil {
				o.logger.Warn("failed to cache file config", zap.String("path", path), zap.Error(err))
			}
		}
		all = append(all, sources...)
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("%w: no channels found in %d files", ErrConfig, len(paths))
	}
	return all, nil
}

// cacheKey names the cache namespace of format. Settings changes move a
// format to a new namespace so entries resolved under old settings are never
// returned.
func cacheKey(format Format) string {
	if fp := format.Fingerprint(); fp != "" {
		return format.Name() + "@" + fp
	}
	return format.Name()
}

// checkSamplerate returns the samplerate shared by every source.
func checkSamplerate(sources []Source) (float64, error) {
	samplerate := sources[0].Config.Samplerate
	for _, s := range sources[1:] {
		if s.Config.Samplerate != samplerate {
			return 0, fmt.Errorf("%w: samplerate %v of %s does not match samplerate %v of %s",
				ErrConfig, s.Config.Samplerate, s.Path, samplerate, sources[0].Path)
		}
	}
	return samplerate, nil
}

// index groups sources by channel, maps each file once and builds the
// per-channel timelines.
func (e *Experiment) index(sources []Source) error {
	channels := make([]int, len(sources))
	keys := make([]time.Time, len(sources))
	for i, s := range sources {
		channels[i] = s.Channel
		keys[i] = s.Timestamp
	}

	groups, err := GroupByChannel(sources, channels, keys, func(a, b time.Time) bool {
		return a.Before(b)
	})
	if err != nil {
		return err
	}

	maps := make(map[string]*Mapping)
	for ch, group := range groups {
		segments := make([]dtype.Slice, len(group))
		for i, s := range group {
			m, ok := maps[s.Path]
			if !ok {
				m, err = mapFile(s.Path)
				if err != nil {
					return err
				}
				maps[s.Path] = m
				e.mappings = append(e.mappings, m)
			}
			segments[i], err = m.View(s.Config)
			if err != nil {
				return err
			}
		}
		e.timelines[ch] = newTimeline(ch, group, segments)
	}
	return nil
}

// Channels returns the channel ids in ascending order.
func (e *Experiment) Channels() []int {
	channels := make([]int, 0, len(e.timelines))
	for ch := range e.timelines {
		channels = append(channels, ch)
	}
	sort.Ints(channels)
	return channels
}

// ChannelLength returns the number of samples in channel.
func (e *Experiment) ChannelLength(channel int) (int, error) {
	t, err := e.timeline(channel)
	if err != nil {
		return 0, err
	}
	return t.Length, nil
}

// Duration returns the length of channel in seconds.
func (e *Experiment) Duration(channel int) (float64, error) {
	n, err := e.ChannelLength(channel)
	if err != nil {
		return 0, err
	}
	return float64(n) / e.samplerate, nil
}

// Samplerate returns the samplerate shared by every channel.
func (e *Experiment) Samplerate() float64 {
	return e.samplerate
}

// Pattern returns the glob used to find the experiment's files.
func (e *Experiment) Pattern() string {
	return e.pattern
}

// Format returns the experiment's file format.
func (e *Experiment) Format() Format {
	return e.format
}

// Files returns the files of channel in time order.
func (e *Experiment) Files(channel int) ([]string, error) {
	t, err := e.timeline(channel)
	if err != nil {
		return nil, err
	}
	return t.files(), nil
}

// Sources returns the sources of channel in time order.
func (e *Experiment) Sources(channel int) ([]Source, error) {
	t, err := e.timeline(channel)
	if err != nil {
		return nil, err
	}
	return append([]Source(nil), t.Sources...), nil
}

// Info summarizes every channel.
func (e *Experiment) Info() []ChannelInfo {
	channels := e.Channels()
	out := make([]ChannelInfo, len(channels))
	for i, ch := range channels {
		t := e.timelines[ch]
		out[i] = ChannelInfo{
			Channel:  ch,
			Length:   t.Length,
			Duration: float64(t.Length) / e.samplerate,
			Files:    t.files(),
		}
	}
	return out
}

// Close drops every segment view and unmaps the files. It is safe to call
// more than once.
func (e *Experiment) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	err := e.release()
	e.logger.Debug("closed experiment", zap.String("pattern", e.pattern))
	return err
}

func (e *Experiment) release() error {
	for _, t := range e.timelines {
		t.Segments = nil
	}
	var errs []error
	for _, m := range e.mappings {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.mappings = nil
	return errors.Join(errs...)
}

func (e *Experiment) timeline(channel int) (*Timeline, error) {
	t, ok := e.timelines[channel]
	if !ok {
		return nil, fmt.Errorf("%w: no data map for channel %d", ErrRange, channel)
	}
	return t, nil
}

// toIndex converts a time in seconds to a sample index, saturating at the
// int range. NaN maps to math.MinInt so it is rejected as out of range.
func (e *Experiment) toIndex(seconds float64) int {
	x := math.Round(seconds * e.samplerate)
	switch {
	case math.IsNaN(x), x <= math.MinInt:
		return math.MinInt
	case x >= math.MaxInt:
		return math.MaxInt
	}
	return int(x)
}
