package format

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/poreread/pkg/abf"
	"github.com/ssargent/poreread/pkg/config"
	"github.com/ssargent/poreread/pkg/dtype"
	"github.com/ssargent/poreread/pkg/reader"
	"github.com/ssargent/poreread/pkg/storage"
)

func abfHeader(start time.Time, channels ...abf.ADC) abf.Header {
	return abf.Header{
		FileVersion:         [4]byte{0, 0, 6, 2},
		StartDate:           uint32(start.Year()*10000 + int(start.Month())*100 + start.Day()),
		StartTimeMS:         uint32(start.Hour()*3600+start.Minute()*60+start.Second()) * 1000,
		ADCSequenceInterval: 100, // 10 kHz
		ADCRange:            10,
		ADCResolution:       32768,
		Channels:            channels,
	}
}

func adc(number int16, name string) abf.ADC {
	return abf.ADC{
		Number:                number,
		InstrumentScaleFactor: 0.5,
		SignalGain:            1,
		ProgrammableGain:      2,
		LowpassFilter:         5000,
		Name:                  name,
		Units:                 "pA",
	}
}

func writeABF[T abf.Sample](t *testing.T, path string, h abf.Header, data []T) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, abf.Encode(f, h, data))
}

func writeU16(t *testing.T, path string, header int, codes []uint16) {
	t.Helper()
	buf := make([]byte, header+2*len(codes))
	for i, c := range codes {
		binary.LittleEndian.PutUint16(buf[header+2*i:], c)
	}
	require.NoError(t, os.WriteFile(path, buf, 0600))
}

func openExperiment(t *testing.T, seed string, f reader.Format) *reader.Experiment {
	t.Helper()
	e, err := reader.Open(seed, f)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestABF2Resolve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2024_03_15_0000.abf")
	start := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	h := abfHeader(start, adc(0, "IN 0"), adc(3, "IN 3"))
	writeABF(t, path, h, []int16{1, -1, 2, -2, 3, -3})

	sources, err := NewABF2().Resolve(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	decoded, err := ReadABFHeader(path)
	require.NoError(t, err)

	s := sources[1]
	assert.Equal(t, 3, s.Channel)
	assert.Equal(t, start, s.Timestamp)
	assert.Equal(t, 10000.0, s.Config.Samplerate)
	assert.Equal(t, dtype.Int16.Interleaved(2, 1), s.Config.DType)
	assert.Equal(t, decoded.DataOffset(), s.Config.HeaderBytes)
	assert.Equal(t, 3, s.Config.Records)
	assert.Equal(t, decoded.ScaleFactor(1), s.Config.Scale)
	assert.InDelta(t, 10.0/32768, s.Config.Scale, 1e-12)
	assert.Equal(t, "IN 3", s.Config.Extras["name"])
	assert.Equal(t, "pA", s.Config.Extras["units"])
	assert.Equal(t, "5000", s.Config.Extras["lowpass_filter"])
	assert.NoError(t, s.Config.Validate())
}

func TestABF2Experiment(t *testing.T) {
	dir := t.TempDir()
	first := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	h0 := abfHeader(first, adc(0, "IN 0"), adc(3, "IN 3"))
	h1 := abfHeader(first.Add(time.Minute), adc(0, "IN 0"), adc(3, "IN 3"))
	h1.Channels[0].SignalGain = 2

	data0 := make([]int16, 0, 2*100)
	for i := 0; i < 100; i++ {
		data0 = append(data0, int16(i), int16(-i))
	}
	data1 := make([]int16, 0, 2*50)
	for i := 0; i < 50; i++ {
		data1 = append(data1, int16(1000+i), int16(-1000-i))
	}
	writeABF(t, filepath.Join(dir, "2024_03_15_0000.abf"), h0, data0)
	writeABF(t, filepath.Join(dir, "2024_03_15_0001.abf"), h1, data1)

	e := openExperiment(t, filepath.Join(dir, "2024_03_15_0001.abf"), NewABF2())
	assert.Equal(t, []int{0, 3}, e.Channels())
	assert.Equal(t, 10000.0, e.Samplerate())

	n, err := e.ChannelLength(3)
	require.NoError(t, err)
	assert.Equal(t, 150, n)

	s0, s1 := h0.ScaleFactor(0), h1.ScaleFactor(0)
	got, err := e.ReadSamples(0, 98, 4)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{98 * s0, 99 * s0, 1000 * s1, 1001 * s1}, got, 1e-9)

	got, err = e.ReadSamples(3, 99, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-99 * h0.ScaleFactor(1), -1000 * h1.ScaleFactor(1)}, got, 1e-9)

	raw, err := e.ReadSamplesRaw(3, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, dtype.Float32, raw.Data.DType())
	assert.Equal(t, []float64{-10, -11}, raw.Data.Floats())
}

func TestABF2FloatData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2024_03_15_0000.abf")
	writeABF(t, path, abfHeader(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), adc(0, "IN 0")),
		[]float32{1.5, -2.25, 100})

	e := openExperiment(t, path, NewABF2())
	got, err := e.ReadSamples(0, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2.25, 100}, got)
}

func TestABF2Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2024_03_15_0000.abf")
	require.NoError(t, os.WriteFile(path, []byte("ABF1 this is not an abf2 header"), 0600))

	_, err := reader.Open(path, NewABF2())
	assert.ErrorIs(t, err, reader.ErrConfig)
	assert.ErrorIs(t, err, abf.ErrUnsupportedVersion)

	_, err = ReadABFHeader(filepath.Join(dir, "missing.abf"))
	assert.ErrorIs(t, err, reader.ErrNotFound)
}

func testChimera(t *testing.T) *Chimera {
	t.Helper()
	c, err := NewChimera(config.DefaultConfig().Formats.Chimera)
	require.NoError(t, err)
	return c
}

func TestChimeraBitmask(t *testing.T) {
	assert.Equal(t, uint64(0xFFFC), ChimeraBitmask(14))
	assert.Equal(t, uint64(0xFFF0), ChimeraBitmask(12))
	assert.Equal(t, uint64(0xFFFF), ChimeraBitmask(16))
	assert.Equal(t, uint64(0x8000), ChimeraBitmask(1))
}

func TestChimeraConversion(t *testing.T) {
	settings := config.DefaultConfig().Formats.Chimera
	settings.CurrentOffset = 1e-9
	c, err := NewChimera(settings)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "pore_20240101_120000.log")
	writeU16(t, path, 0, []uint16{0x1237, 0x0003, 0xFFFF})

	sources, err := c.Resolve(path)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	cfg := sources[0].Config
	assert.Equal(t, 0, sources[0].Channel)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), sources[0].Timestamp)
	assert.Equal(t, dtype.Uint16, cfg.DType)
	assert.Equal(t, int64(0), cfg.HeaderBytes)

	gain := settings.TIAGain * settings.PreADCGain
	wantScale := 1e12 * 2 * settings.ADCVref / (65536 * gain)
	wantOffset := 1e12 * (settings.CurrentOffset - settings.ADCVref/gain)
	assert.InDelta(t, wantScale, cfg.Scale, 1e-15)
	assert.InDelta(t, wantOffset, cfg.Offset, 1e-9)

	e := openExperiment(t, path, c)
	got, err := e.ReadSamples(0, 0, 3)
	require.NoError(t, err)
	assert.InDelta(t, float64(0x1234)*cfg.Scale+cfg.Offset, got[0], 1e-9)
	assert.InDelta(t, cfg.Offset, got[1], 1e-9)
	assert.InDelta(t, float64(0xFFFC)*cfg.Scale+cfg.Offset, got[2], 1e-9)

	raw, err := e.ReadSamplesRaw(0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0x1237}, raw.Data.Floats())
	assert.Equal(t, uint64(0xFFFC), raw.Bitmask)
	assert.InDelta(t, got[0], raw.Floats()[0], 1e-9)
}

func TestChimeraMultiFile(t *testing.T) {
	dir := t.TempDir()
	writeU16(t, filepath.Join(dir, "pore_20240101_120005_CH002.log"), 0, []uint16{40, 44})
	writeU16(t, filepath.Join(dir, "pore_20240101_120000_CH002.log"), 0, []uint16{4, 8})
	writeU16(t, filepath.Join(dir, "pore_20240101_120000_CH001.log"), 0, []uint16{12})

	c := testChimera(t)
	e := openExperiment(t, filepath.Join(dir, "pore_20240101_120000_CH001.log"), c)
	assert.Equal(t, []int{1, 2}, e.Channels())

	raw, err := e.ReadSamplesRaw(2, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 8, 40, 44}, raw.Data.Floats())
}

func TestChimeraNameErrors(t *testing.T) {
	c := testChimera(t)
	dir := t.TempDir()

	t.Run("missing timestamp", func(t *testing.T) {
		path := filepath.Join(dir, "pore.log")
		writeU16(t, path, 0, []uint16{1})
		_, err := reader.Open(path, c)
		assert.ErrorIs(t, err, reader.ErrTimestamp)
	})

	t.Run("invalid timestamp", func(t *testing.T) {
		_, err := c.Resolve(filepath.Join(dir, "pore_20241301_120000.log"))
		assert.ErrorIs(t, err, reader.ErrTimestamp)
	})

	t.Run("channel tag out of range", func(t *testing.T) {
		_, err := c.Resolve(filepath.Join(dir, "tagged_20240101_120000_CH99999999999999999999.log"))
		assert.ErrorIs(t, err, reader.ErrChannelTag)
	})
}

func TestChimeraChannelTag(t *testing.T) {
	c := testChimera(t)
	dir := t.TempDir()

	for name, want := range map[string]int{
		"sample_CHIP_20240101_120000.log": 0,
		"pore_20240101_120000_CHx.log":    0,
		"pore_CH7_20240101_120000.log":    7,
		"pore_20240101_120000_CH012.log":  12,
		"pore_20240101_120000_CH3":        3,
	} {
		sources, err := c.Resolve(filepath.Join(dir, name))
		require.NoError(t, err, name)
		require.Len(t, sources, 1)
		assert.Equal(t, want, sources[0].Channel, name)
	}

	path := filepath.Join(dir, "sample_CHIP_20240101_120000.log")
	writeU16(t, path, 0, []uint16{1, 2})
	e := openExperiment(t, path, c)
	assert.Equal(t, []int{0}, e.Channels())
}

func TestChimeraFingerprint(t *testing.T) {
	settings := config.DefaultConfig().Formats.Chimera
	a, err := NewChimera(settings)
	require.NoError(t, err)
	b, err := NewChimera(settings)
	require.NoError(t, err)
	assert.NotEmpty(t, a.Fingerprint())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	settings.TIAGain = 1e9
	changed, err := NewChimera(settings)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), changed.Fingerprint())

	abf := &ABF2{}
	assert.Empty(t, abf.Fingerprint())
}

func TestChimeraSettingsChangeThroughCache(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer store.Close()
	cache := storage.NewHeaderCache(store, nil)

	path := filepath.Join(t.TempDir(), "pore_20240101_120000.log")
	writeU16(t, path, 0, []uint16{0x1234})

	first := func(settings config.Chimera, opts ...reader.Option) float64 {
		c, err := NewChimera(settings)
		require.NoError(t, err)
		e, err := reader.Open(path, c, opts...)
		require.NoError(t, err)
		defer e.Close()
		got, err := e.ReadSamples(0, 0, 1)
		require.NoError(t, err)
		return got[0]
	}

	settings := config.DefaultConfig().Formats.Chimera
	settings.TIAGain = 100e6
	before := first(settings, reader.WithCache(cache))

	settings.TIAGain = 1e9
	cached := first(settings, reader.WithCache(cache))
	uncached := first(settings)

	assert.Equal(t, uncached, cached)
	assert.InDelta(t, before/10, cached, 1e-6*math.Abs(before))
}

func TestNewChimeraInvalid(t *testing.T) {
	settings := config.DefaultConfig().Formats.Chimera
	settings.ADCBits = 0
	_, err := NewChimera(settings)
	assert.ErrorIs(t, err, reader.ErrConfig)
}

func rawSettings() config.Raw {
	return config.Raw{
		Extension:  ".bin",
		DType:      "<i2",
		Channels:   2,
		Samplerate: 50000,
		Scale:      0.1,
		Offset:     5,
	}
}

func TestRawSingleFile(t *testing.T) {
	settings := rawSettings()
	settings.HeaderBytes = 16
	r, err := NewRaw(settings)
	require.NoError(t, err)
	assert.Empty(t, r.Stamps())
	assert.Equal(t, dtype.Int16, *r.RawType())

	dir := t.TempDir()
	writeU16(t, filepath.Join(dir, "trace.bin"), 16, []uint16{10, 20, 30, 40, 50, 60})
	writeU16(t, filepath.Join(dir, "other.bin"), 16, []uint16{1, 2})

	e := openExperiment(t, filepath.Join(dir, "trace.bin"), r)
	assert.Equal(t, []int{0, 1}, e.Channels())

	got, err := e.ReadSamples(1, 0, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{7, 9, 11}, got, 1e-12)

	files, err := e.Files(0)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestRawPatternAndRegexes(t *testing.T) {
	settings := rawSettings()
	settings.Channels = 1
	settings.ChannelRegex = `^ch(\d+)`
	settings.TimestampRegex = `(\d{8}T\d{6})`
	settings.TimestampLayout = "20060102T150405"
	r, err := NewRaw(settings)
	require.NoError(t, err)

	dir := t.TempDir()
	writeU16(t, filepath.Join(dir, "ch0_20240101T000010.bin"), 0, []uint16{3, 4})
	writeU16(t, filepath.Join(dir, "ch0_20240101T000005.bin"), 0, []uint16{1, 2})
	writeU16(t, filepath.Join(dir, "ch1_20240101T000005.bin"), 0, []uint16{7})

	e := openExperiment(t, filepath.Join(dir, "ch0_20240101T000005.bin"), r)
	assert.Equal(t, []int{0, 1}, e.Channels())

	raw, err := e.ReadSamplesRaw(0, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, raw.Data.Floats())

	_, err = r.Resolve(filepath.Join(dir, "nochannel.bin"))
	assert.ErrorIs(t, err, reader.ErrChannelTag)

	_, err = r.Resolve(filepath.Join(dir, "ch0_notime.bin"))
	assert.ErrorIs(t, err, reader.ErrTimestamp)
}

func TestRawPatternKeepsPathOrder(t *testing.T) {
	settings := rawSettings()
	settings.Channels = 1
	settings.Pattern = `_\d{3}`
	r, err := NewRaw(settings)
	require.NoError(t, err)

	dir := t.TempDir()
	writeU16(t, filepath.Join(dir, "run_002.bin"), 0, []uint16{3})
	writeU16(t, filepath.Join(dir, "run_000.bin"), 0, []uint16{1})
	writeU16(t, filepath.Join(dir, "run_001.bin"), 0, []uint16{2})

	e := openExperiment(t, filepath.Join(dir, "run_001.bin"), r)
	raw, err := e.ReadSamplesRaw(0, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, raw.Data.Floats())
}

func TestNewRawInvalid(t *testing.T) {
	settings := rawSettings()
	settings.Pattern = `([`
	_, err := NewRaw(settings)
	assert.ErrorIs(t, err, reader.ErrConfig)

	settings = rawSettings()
	settings.ChannelRegex = `ch\d+`
	_, err = NewRaw(settings)
	assert.ErrorIs(t, err, reader.ErrConfig)
	assert.Contains(t, err.Error(), "capture group")

	settings = rawSettings()
	settings.DType = "<x2"
	_, err = NewRaw(settings)
	assert.ErrorIs(t, err, reader.ErrConfig)
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(config.DefaultConfig().Formats)
	require.NoError(t, err)
	assert.Equal(t, []string{"abf2", "chimera", "rawbin"}, r.Names())

	f, err := r.ForPath("/data/2024_01_01_0000.ABF")
	require.NoError(t, err)
	assert.Equal(t, "abf2", f.Name())

	f, err = r.ForPath("pore_20240101_120000.log")
	require.NoError(t, err)
	assert.Equal(t, "chimera", f.Name())

	f, err = r.Lookup("", "x.bin")
	require.NoError(t, err)
	assert.Equal(t, "rawbin", f.Name())

	f, err = r.Lookup("chimera", "x.bin")
	require.NoError(t, err)
	assert.Equal(t, "chimera", f.Name())

	_, err = r.ForPath("x.xyz")
	assert.ErrorIs(t, err, reader.ErrConfig)
	_, err = r.ByName("nope")
	assert.ErrorIs(t, err, reader.ErrConfig)

	assert.ErrorIs(t, r.Register(NewABF2()), reader.ErrConfig)
}

func TestRegistryExtensionClash(t *testing.T) {
	formats := config.DefaultConfig().Formats
	formats.Raw.Extension = ".LOG"
	_, err := NewRegistry(formats)
	assert.ErrorIs(t, err, reader.ErrConfig)
	assert.Contains(t, err.Error(), "already used by chimera")
}

func TestOpener(t *testing.T) {
	formats, err := NewRegistry(config.DefaultConfig().Formats)
	require.NoError(t, err)
	o := &Opener{Formats: formats}

	dir := t.TempDir()
	path := filepath.Join(dir, "pore_20240101_120000.log")
	writeU16(t, path, 0, []uint16{1, 2, 3})

	e, err := o.Open(path, "")
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, "chimera", e.Format().Name())

	_, err = o.Open(path, "abf2")
	assert.ErrorIs(t, err, reader.ErrConfig)

	_, err = o.Open(filepath.Join(dir, "notes.txt"), "")
	assert.ErrorIs(t, err, reader.ErrConfig)
}
