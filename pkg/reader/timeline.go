package reader

import (
	"fmt"
	"sort"

	"github.com/ssargent/poreread/pkg/dtype"
)

// GroupByChannel groups objs by channel and sorts each group by key. The
// three slices are parallel. Equal keys keep their input order.
func GroupByChannel[T, K any](objs []T, channels []int, keys []K, less func(a, b K) bool) (map[int][]T, error) {
	if len(objs) != len(channels) || len(objs) != len(keys) {
		return nil, fmt.Errorf("%w: a channel number and timestamp must be provided for every object (%d objects, %d channels, %d timestamps)",
			ErrConfig, len(objs), len(channels), len(keys))
	}

	order := make([]int, len(objs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return less(keys[order[a]], keys[order[b]])
	})

	groups := make(map[int][]T)
	for _, i := range order {
		groups[channels[i]] = append(groups[channels[i]], objs[i])
	}
	return groups, nil
}

// CumulativeStarts returns the global start index of each segment given the
// segment lengths.
func CumulativeStarts(lengths []int) []int {
	starts := make([]int, len(lengths))
	for i := 1; i < len(lengths); i++ {
		starts[i] = starts[i-1] + lengths[i-1]
	}
	return starts
}

// Timeline is the time-ordered list of segments of one channel.
type Timeline struct {
	Channel  int
	Sources  []Source
	Segments []dtype.Slice
	Starts   []int // Global index of the first sample of each segment
	Length   int   // Total number of samples
}

func newTimeline(channel int, sources []Source, segments []dtype.Slice) *Timeline {
	lengths := make([]int, len(segments))
	for i, s := range segments {
		lengths[i] = s.Len()
	}

	t := &Timeline{
		Channel:  channel,
		Sources:  sources,
		Segments: segments,
		Starts:   CumulativeStarts(lengths),
	}
	if n := len(segments); n > 0 {
		t.Length = t.Starts[n-1] + lengths[n-1]
	}
	return t
}

// locate returns the index of the last segment starting at or before idx.
func (t *Timeline) locate(idx int) int {
	i := sort.Search(len(t.Starts), func(i int) bool {
		return t.Starts[i] > idx
	}) - 1
	if i < 0 {
		i = 0
	}
	return i
}

// piece is the part of one segment covered by a read.
type piece struct {
	raw    dtype.Slice
	config FileConfig
}

// pieces returns the segment parts covering [start, end) in order, and the
// index of the first segment touched.
func (t *Timeline) pieces(start, end int) ([]piece, int) {
	first := t.locate(start)

	var out []piece
	for i := first; i < len(t.Segments) && t.Starts[i] < end; i++ {
		seg := t.Segments[i]
		lo := start - t.Starts[i]
		if lo < 0 {
			lo = 0
		}
		hi := end - t.Starts[i]
		if hi > seg.Len() {
			hi = seg.Len()
		}
		if hi > lo {
			out = append(out, piece{raw: seg.Sub(lo, hi), config: t.Sources[i].Config})
		}
	}
	return out, first
}

func (t *Timeline) files() []string {
	files := make([]string, len(t.Sources))
	for i, s := range t.Sources {
		files[i] = s.Path
	}
	return files
}
