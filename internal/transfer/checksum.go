package transfer

import "hash/adler32"

// chunkChecksum computes the Adler-32 checksum of one upload chunk. This
// is a fixed, well-known algorithm named explicitly by the protocol
// (spec.md §4.3), so the standard library implementation is used as-is
// rather than reaching for a third-party checksum library — see
// DESIGN.md for the stdlib-use note.
func chunkChecksum(b []byte) uint32 {
	return adler32.Checksum(b)
}
