// Package format implements the file formats understood by poreread.
//
// Each format turns one file into the sources (channel, timestamp,
// configuration) the reader needs to map it. ABF2 files describe themselves
// in their header. Chimera and raw binary files carry no header, so their
// settings come from the host configuration.
package format
