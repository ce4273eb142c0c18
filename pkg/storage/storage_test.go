package storage

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/poreread/pkg/dtype"
	"github.com/ssargent/poreread/pkg/reader"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSources(path string) []reader.Source {
	return []reader.Source{{
		Path:      path,
		Channel:   3,
		Timestamp: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
		Config: reader.FileConfig{
			Samplerate:  250000,
			DType:       dtype.Int16.Interleaved(2, 1),
			HeaderBytes: 2048,
			Records:     1000,
			Scale:       3.0517578125e-4,
			Extras:      map[string]string{"units": "pA"},
		},
	}}
}

func TestHeaderCache(t *testing.T) {
	cache := NewHeaderCache(openStore(t), nil)

	path := filepath.Join(t.TempDir(), "a.abf")
	require.NoError(t, os.WriteFile(path, []byte("1234"), 0600))
	info, err := os.Stat(path)
	require.NoError(t, err)

	_, ok := cache.Get("abf2", path, info)
	assert.False(t, ok)

	want := testSources(path)
	require.NoError(t, cache.Put("abf2", path, info, want))

	got, ok := cache.Get("abf2", path, info)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// other formats do not share entries
	_, ok = cache.Get("rawbin", path, info)
	assert.False(t, ok)

	n, err := cache.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHeaderCacheInvalidation(t *testing.T) {
	cache := NewHeaderCache(openStore(t), nil)

	path := filepath.Join(t.TempDir(), "a.abf")
	require.NoError(t, os.WriteFile(path, []byte("1234"), 0600))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, cache.Put("abf2", path, info, testSources(path)))

	later := info.ModTime().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	touched, err := os.Stat(path)
	require.NoError(t, err)
	_, ok := cache.Get("abf2", path, touched)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("123456"), 0600))
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))
	grown, err := os.Stat(path)
	require.NoError(t, err)
	_, ok = cache.Get("abf2", path, grown)
	assert.False(t, ok)
}

func TestHeaderCacheWithReader(t *testing.T) {
	store := openStore(t)
	cache := NewHeaderCache(store, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "trace.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 0, 2, 0, 3, 0}, 0600))

	f := &countingFormat{}
	for i := 0; i < 3; i++ {
		e, err := reader.Open(path, f, reader.WithCache(cache))
		require.NoError(t, err)
		got, err := e.ReadSamples(0, 0, 3)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, got)
		require.NoError(t, e.Close())
	}
	assert.Equal(t, 1, f.calls)
}

func TestHeaderCacheSettingsChange(t *testing.T) {
	cache := NewHeaderCache(openStore(t), nil)

	path := filepath.Join(t.TempDir(), "trace.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 0, 2, 0, 3, 0}, 0600))

	read := func(f *countingFormat) []float64 {
		e, err := reader.Open(path, f, reader.WithCache(cache))
		require.NoError(t, err)
		defer e.Close()
		got, err := e.ReadSamples(0, 0, 3)
		require.NoError(t, err)
		return got
	}

	assert.Equal(t, []float64{0.5, 1, 1.5}, read(&countingFormat{scale: 0.5}))

	// same file, same cache, new settings: the old entry must not be served
	changed := &countingFormat{scale: 10}
	assert.Equal(t, []float64{10, 20, 30}, read(changed))
	assert.Equal(t, 1, changed.calls)

	again := &countingFormat{scale: 10}
	assert.Equal(t, []float64{10, 20, 30}, read(again))
	assert.Equal(t, 0, again.calls)
}

func TestExperiments(t *testing.T) {
	exps := NewExperiments(openStore(t))

	a, err := exps.Create("/data/a.abf", "abf2")
	require.NoError(t, err)
	b, err := exps.Create("/data/b.log", "chimera")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	got, err := exps.Read(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "/data/a.abf", got.Seed)
	assert.Equal(t, "abf2", got.Format)
	assert.True(t, a.OpenedAt.Equal(got.OpenedAt))

	list, err := exps.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, exps.Delete(a.ID))
	_, err = exps.Read(a.ID)
	assert.True(t, errors.Is(err, pebble.ErrNotFound))

	list, err = exps.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	_, err = exps.Read(ksuid.New())
	assert.ErrorIs(t, err, pebble.ErrNotFound)
}

func TestExperimentsSurviveReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := Open(dir)
	require.NoError(t, err)
	rec, err := NewExperiments(s).Create("/data/a.abf", "abf2")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := NewExperiments(s).Read(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Seed, got.Seed)
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("exp0"), prefixEnd([]byte("exp/")))
	assert.Equal(t, []byte{0x02}, prefixEnd([]byte{0x01, 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
}

// countingFormat reads headerless little-endian int16 files and counts how
// often it decodes one.
type countingFormat struct {
	calls int
	scale float64 // zero means 1
}

func (*countingFormat) Name() string             { return "counting" }
func (*countingFormat) Extension() string        { return ".bin" }
func (*countingFormat) Stamps() []*regexp.Regexp { return nil }
func (*countingFormat) RawType() *dtype.DType    { return nil }
func (*countingFormat) ConcurrentSafe() bool     { return true }

func (f *countingFormat) Fingerprint() string {
	if f.scale == 0 {
		return ""
	}
	return strconv.FormatFloat(f.scale, 'g', -1, 64)
}

func (f *countingFormat) Resolve(path string) ([]reader.Source, error) {
	f.calls++
	scale := f.scale
	if scale == 0 {
		scale = 1
	}
	return []reader.Source{{
		Path:   path,
		Config: reader.FileConfig{Samplerate: 1000, DType: dtype.Int16, Scale: scale},
	}}, nil
}
