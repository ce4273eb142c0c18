// Package abf decodes the header of Axon Binary Format version 2 (ABF2) files.
//
// The decoder is offset addressed: it seeks to fixed positions in the file and
// reads little-endian primitives. It never reads the sample payload; callers
// use DataOffset, DType and ChannelCount to map the payload themselves.
//
// # Layout
//
// The first 512-byte block holds the file header:
//
//	offset 0    [4]byte  signature, "ABF2"
//	offset 4    [4]byte  file version, least significant part first
//	offset 16   uint32   start date, yyyymmdd
//	offset 20   uint32   start time of day in milliseconds
//	offset 30   int16    data format, 0 = int16, 1 = float32
//	offset 76   section  protocol
//	offset 92   section  ADC
//	offset 220  section  strings
//	offset 236  section  data
//
// Each section descriptor is 16 bytes: a uint32 block index, a uint32 entry
// size in bytes and an entry count (read as int32). A section starts at
// block index * 512.
//
// The protocol section provides the sample interval, ADC input range and ADC
// resolution. The ADC section holds one fixed-size entry per recorded
// channel with gains, offsets, telegraph settings and indices into the
// string table.
//
// # String table
//
// Channel names and units are stored in one NUL-delimited blob. Indexed
// strings begin at the first NUL-NUL boundary; everything before it is a
// free-text comment block. The byte 0xB5 (a Latin-1 micro sign) is rewritten
// to 'u' so units such as "µV" come out as "uV".
//
// # Scale factor
//
// The per-channel factor that converts int16 codes to physical units is
//
//	1 / fInstrumentScaleFactor / fSignalGain / fADCProgrammableGain
//	  [/ fTelegraphAdditGain if telegraph enabled]
//	  * fADCRange / lADCResolution + fInstrumentOffset - fSignalOffset
//
// Files stored as float32 are already scaled and use a factor of 1.
package abf
